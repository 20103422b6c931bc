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

// Package render writes the call graphs computed by the analyses in the Graphviz format, and the SSA and lowered
// form of the analyzed functions.
package render

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/frontend"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/types/typeutil"
)

// edgeColor defines specific color for specific edges in the callgraph
// - a go call site will be colored with a blue edge
// - a deferred call site will be colored with a green edge
// - all other call sites will have a default color edge
func edgeColor(edge *callgraph.Edge) string {
	switch edge.Site.(type) {
	case *ssa.Go:
		return " [color=blue]"
	case *ssa.Defer:
		return " [color=green]"
	}
	return ""
}

func pkgPath(node *callgraph.Node) string {
	if node != nil && node.Func != nil && node.Func.Pkg != nil {
		return node.Func.Pkg.Pkg.Path()
	}
	return ""
}

func fnName(node *callgraph.Node) string {
	if node != nil && node.Func != nil {
		return node.Func.Name()
	}
	return ""
}

// ExcludedNodes are the names of the functions that are not drawn. Those are called from almost everywhere and
// make the graphs unreadable.
var ExcludedNodes = []string{"String", "GoString", "init", "Error"}

func filterFn(edge *callgraph.Edge) bool {
	for _, name := range ExcludedNodes {
		if fnName(edge.Callee) == name || fnName(edge.Caller) == name {
			return false
		}
	}
	return true
}

// WriteGraphviz writes a graphviz representation the call-graph to w. Only the edges between functions of packages
// matching the package filter of the config are written.
func WriteGraphviz(cfg *config.Config, cg *callgraph.Graph, w io.Writer) error {
	if _, err := io.WriteString(w, "digraph callgraph {\n"); err != nil {
		return fmt.Errorf("error while writing graph: %w", err)
	}
	if err := callgraph.GraphVisitEdges(cg, func(edge *callgraph.Edge) error {
		if edge.Caller.Func == nil || edge.Callee.Func == nil || !filterFn(edge) {
			return nil
		}
		if !cfg.MatchPkgFilter(pkgPath(edge.Caller)) || !cfg.MatchPkgFilter(pkgPath(edge.Callee)) {
			return nil
		}
		_, err := fmt.Fprintf(w, "  %q -> %q%s;\n", edge.Caller.Func.String(), edge.Callee.Func.String(),
			edgeColor(edge))
		if err != nil {
			return fmt.Errorf("error while writing graph: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "}\n"); err != nil {
		return fmt.Errorf("error while writing graph: %w", err)
	}
	return nil
}

// GraphvizToFile writes the graphviz representation of cg in the file filename
func GraphvizToFile(cfg *config.Config, cg *callgraph.Graph, filename string) error {
	return toFile(filename, func(w io.Writer) error { return WriteGraphviz(cfg, cg, w) })
}

// WriteCloneGraphviz writes the graph of the clones of the methods analyzed in res: there is one node per method
// and context, and one edge per call resolved from a clone to another. Edges are labelled with the index of the
// call site in the body of the caller.
func WriteCloneGraphviz(res *typeflow.Result, w io.Writer) error {
	edges := res.CallGraph().CloneEdges()
	lines := make([]string, 0, len(edges))
	for _, e := range edges {
		lines = append(lines, fmt.Sprintf("  %q -> %q [label=\"%d\"];\n", e.Caller.String(), e.Callee.String(), e.Index))
	}
	sort.Strings(lines)
	bw := bufio.NewWriter(w)
	bw.WriteString("digraph clones {\n")
	for i, line := range lines {
		if i > 0 && lines[i-1] == line {
			continue
		}
		bw.WriteString(line)
	}
	bw.WriteString("}\n")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("error while writing graph: %w", err)
	}
	return nil
}

// CloneGraphvizToFile writes the clone graph of res in the file filename
func CloneGraphvizToFile(res *typeflow.Result, filename string) error {
	return toFile(filename, func(w io.Writer) error { return WriteCloneGraphviz(res, w) })
}

func toFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return err
	}
	return w.Flush()
}

// OutputPackages writes the SSA representation of the functions of p followed by their lowered bodies. Each
// package is written in its own folder under dirName. Functions that have not been lowered are skipped.
func OutputPackages(p *frontend.Program, dirName string) error {
	byPkg := map[*ssa.Package]bool{}
	for _, fn := range p.Functions() {
		if fn.Pkg != nil {
			byPkg[fn.Pkg] = true
		}
	}
	if len(byPkg) == 0 {
		return nil
	}
	if err := os.MkdirAll(dirName, 0700); err != nil {
		return fmt.Errorf("could not create directory %s: %v", dirName, err)
	}
	for pkg := range byPkg {
		// Make a directory corresponding to the package path minus last elt
		appendDirPath, _ := filepath.Split(pkg.Pkg.Path())
		fullDirPath := dirName
		if appendDirPath != "" {
			fullDirPath = filepath.Join(fullDirPath, appendDirPath)
			if err := os.MkdirAll(fullDirPath, 0700); err != nil {
				return fmt.Errorf("could not create directory %s: %v", fullDirPath, err)
			}
		}
		filename := filepath.Join(fullDirPath, pkg.Pkg.Name()+".ssa")
		if err := toFile(filename, func(w io.Writer) error { return WritePackage(p, pkg, w) }); err != nil {
			return err
		}
	}
	return nil
}

// WritePackage writes the lowered functions of pkg to w, ordered by name
func WritePackage(p *frontend.Program, pkg *ssa.Package, w io.Writer) error {
	var funcs []*ssa.Function
	add := func(fn *ssa.Function) {
		if fn != nil && p.Method(fn) != nil {
			funcs = append(funcs, fn)
		}
	}
	for _, member := range pkg.Members {
		switch m := member.(type) {
		case *ssa.Function:
			add(m)
			addAnons(m, add)
		case *ssa.Type:
			for _, sel := range typeutil.IntuitiveMethodSet(m.Type(), &p.SSA.MethodSets) {
				if fn := p.SSA.MethodValue(sel); fn != nil {
					add(fn)
					addAnons(fn, add)
				}
			}
		}
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].String() < funcs[j].String() })

	var b bytes.Buffer
	for i, fn := range funcs {
		if i > 0 && funcs[i-1] == fn {
			continue
		}
		ssa.WriteFunction(&b, fn)
		m := p.Method(fn)
		fmt.Fprintf(&b, "# lowered %s\n", m)
		if m.Body != nil {
			for _, instr := range m.Body.Instrs {
				fmt.Fprintf(&b, "%4d: %s\n", instr.Index(), instr)
			}
		}
		b.WriteString("\n")
		if _, err := b.WriteTo(w); err != nil {
			return fmt.Errorf("error while writing package %s: %w", pkg.Pkg.Path(), err)
		}
	}
	return nil
}

func addAnons(f *ssa.Function, add func(*ssa.Function)) {
	for _, anon := range f.AnonFuncs {
		add(anon)
		addAnons(anon, add)
	}
}
