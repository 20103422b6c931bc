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

// Package stats implements the stats sub-command, printing the statistics of the type-flow analysis of a program
// and the recursive functions of its call graph.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
	"github.com/awslabs/ar-go-typeflow/internal/formatutil"
	"github.com/awslabs/ar-go-typeflow/internal/funcutil"
	"github.com/awslabs/ar-go-typeflow/internal/graphutil"
	"golang.org/x/tools/go/ssa"
)

const usage = `Print statistics of the type-flow analysis of a Go program.

Usage:
  typeflow stats package...
  typeflow stats source.go
  typeflow stats -cycles -exclude vendor source.go

Use the -help flag to display the options.

Examples:
% typeflow stats -context-sensitive hello.go
`

// Flags represents the flags for the stats sub-tool.
type Flags struct {
	tools.CommonFlags
	outputJSON   bool
	cycles       bool
	excludePaths tools.ExcludePaths
}

// NewFlags returns parsed flags for stats.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("stats")
	outputJSON := flags.FlagSet.Bool("json", false, "output results as JSON")
	cycles := flags.FlagSet.Bool("cycles", false, "list all the elementary cycles of the call graph")
	var exclude tools.ExcludePaths
	flags.FlagSet.Var(&exclude, "exclude", "paths to exclude from the SSA statistics")
	tools.SetUsage(flags.FlagSet, usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, outputJSON: *outputJSON, cycles: *cycles, excludePaths: exclude}, nil
}

// Statistics gathers the statistics printed by the stats tool
type Statistics struct {
	Engine typeflow.Stats     `json:"engine"`
	SSA    analysis.SsaStats  `json:"ssa"`
	Sites  analysis.SiteStats `json:"sites"`
	// Recursive lists the recursive components of the call graph
	Recursive [][]string `json:"recursive"`
	// Cycles lists the elementary cycles of the call graph, when they have been computed
	Cycles [][]string `json:"cycles,omitempty"`
}

// Compute returns the statistics of the type-flow analysis in cache, which must have been run. Elementary cycles
// are only enumerated when cycles is true.
func Compute(cache *analysis.Cache, exclude []string, cycles bool) Statistics {
	p, res := cache.Lowered, cache.Result
	s := Statistics{
		Engine: res.Stats(),
		SSA:    analysis.SSAStatistics(cache.Program, p.ReachableFunctions(res), exclude),
		Sites:  analysis.CallSiteStatistics(p.CallSiteCallees(res)),
	}
	cg := graphutil.NewCallgraphIterator(p.CallGraph(res))
	for _, component := range graphutil.StronglyConnectedComponents(cg) {
		if graphutil.IsRecursive(cg, component) {
			s.Recursive = append(s.Recursive, funcutil.Map(component, (*ssa.Function).String))
		}
	}
	if cycles {
		for _, cycle := range graphutil.FunctionCycles(cg) {
			s.Cycles = append(s.Cycles, funcutil.Map(cycle, (*ssa.Function).String))
		}
	}
	return s
}

// Write writes the statistics to w
func (s Statistics) Write(w io.Writer) {
	fmt.Fprintln(w, formatutil.Bold("Analysis"))
	for _, line := range strings.Split(s.Engine.String(), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, formatutil.Bold("Reachable code"))
	fmt.Fprintf(w, "  %s\n", s.SSA)
	fmt.Fprintf(w, "  %s\n", s.Sites)
	fmt.Fprintln(w, formatutil.Bold(fmt.Sprintf("%d recursive components", len(s.Recursive))))
	for _, c := range s.Recursive {
		fmt.Fprintf(w, "  %s\n", strings.Join(c, ", "))
	}
	if s.Cycles != nil {
		fmt.Fprintln(w, formatutil.Bold(fmt.Sprintf("%d cycles", len(s.Cycles))))
		for _, c := range s.Cycles {
			fmt.Fprintf(w, "  %s\n", strings.Join(c, " -> "))
		}
	}
}

// Run runs the type-flow analysis with flags and prints its statistics.
func Run(flags Flags) error {
	cache, err := tools.LoadCache(flags.CommonFlags)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, formatutil.Faint("Analyzing")+"\n")
	if _, err := cache.RunTypeFlow(context.Background()); err != nil {
		return err
	}
	s := Compute(cache, flags.excludePaths.Absolute(), flags.cycles)
	if flags.outputJSON {
		buf, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("could not marshal statistics: %w", err)
		}
		fmt.Println(string(buf))
		return nil
	}
	s.Write(os.Stdout)
	return nil
}
