// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reachability reports the functions reachable in a Go program. The report of the type-flow analysis orders
// the functions by the strongly connected components of the computed call graph. A syntactic over-approximation is
// also available as a baseline.
package reachability

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/frontend"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/internal/graphutil"
	"golang.org/x/tools/go/ssa"
)

// FunctionEntry is one reachable function of a report
type FunctionEntry struct {
	Name     string `json:"name"`
	Package  string `json:"package,omitempty"`
	Position string `json:"position,omitempty"`
	// Component is the index of the strongly connected component of the function. Callees have lower indices than
	// their callers, except inside a component.
	Component int  `json:"scc"`
	Recursive bool `json:"recursive,omitempty"`
	// Clones is the number of contexts the function has been analyzed in
	Clones int `json:"clones"`
}

// Report is the list of the reachable functions of a program
type Report struct {
	Functions []FunctionEntry `json:"functions"`
}

// NewReport returns the report of the functions reachable in res. Only the functions whose package matches the
// package filter of cfg are reported.
func NewReport(p *frontend.Program, res *typeflow.Result, cfg *config.Config) Report {
	cg := graphutil.NewCallgraphIterator(p.CallGraph(res))
	reachable := p.ReachableFunctions(res)
	var report Report
	for i, component := range graphutil.StronglyConnectedComponents(cg) {
		recursive := graphutil.IsRecursive(cg, component)
		for _, fn := range component {
			if !reachable[fn] || !cfg.MatchPkgFilter(packageName(fn)) {
				continue
			}
			entry := FunctionEntry{
				Name:      fn.RelString(nil),
				Package:   packageName(fn),
				Component: i,
				Recursive: recursive,
			}
			if pos := p.SSA.Fset.Position(fn.Pos()); pos.IsValid() {
				entry.Position = cfg.RelPath(pos.String())
			}
			if m := p.Method(fn); m != nil {
				entry.Clones = len(res.Clones(m))
			}
			report.Functions = append(report.Functions, entry)
		}
	}
	return report
}

// Write writes the report to w, in JSON if jsonFlag is true or one function per line otherwise
func (r Report) Write(w io.Writer, jsonFlag bool) error {
	if jsonFlag {
		buf, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("could not marshal report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(buf))
		return err
	}
	for _, f := range r.Functions {
		recursive := ""
		if f.Recursive {
			recursive = " (recursive)"
		}
		if _, err := fmt.Fprintf(w, "%4d %s%s\n", f.Component, f.Name, recursive); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the sorted names of the functions of the report
func (r Report) Names() []string {
	names := make([]string, 0, len(r.Functions))
	for _, f := range r.Functions {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func packageName(fn *ssa.Function) string {
	if fn.Pkg != nil {
		return fn.Pkg.Pkg.Path()
	}
	if obj := fn.Object(); obj != nil && obj.Pkg() != nil {
		return obj.Pkg().Path()
	}
	return ""
}
