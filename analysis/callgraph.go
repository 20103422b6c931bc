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

package analysis

import (
	"context"
	"fmt"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/frontend"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/callgraph/rta"
	"golang.org/x/tools/go/callgraph/static"
	"golang.org/x/tools/go/callgraph/vta"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// CallgraphAnalysisMode is an algorithm computing the call graph of a program
type CallgraphAnalysisMode uint64

const (
	PointerAnalysis        CallgraphAnalysisMode = iota // PointerAnalysis is over-approximating (slow)
	StaticAnalysis                                      // StaticAnalysis is under-approximating (fast)
	ClassHierarchyAnalysis                              // ClassHierarchyAnalysis is a coarse over-approximation (fast)
	RapidTypeAnalysis                                   // RapidTypeAnalysis tracks the types instantiated from the roots
	VariableTypeAnalysis                                // VariableTypeAnalysis refines the static call graph
	TypeFlowAnalysis                                    // TypeFlowAnalysis is the type-flow analysis of this module
)

// AllCallgraphModes lists the modes, ordered from the least to the most precise on virtual calls
var AllCallgraphModes = []CallgraphAnalysisMode{
	StaticAnalysis,
	ClassHierarchyAnalysis,
	RapidTypeAnalysis,
	VariableTypeAnalysis,
	PointerAnalysis,
	TypeFlowAnalysis,
}

func (mode CallgraphAnalysisMode) String() string {
	switch mode {
	case PointerAnalysis:
		return "pointer"
	case StaticAnalysis:
		return "static"
	case ClassHierarchyAnalysis:
		return "cha"
	case RapidTypeAnalysis:
		return "rta"
	case VariableTypeAnalysis:
		return "vta"
	case TypeFlowAnalysis:
		return "typeflow"
	default:
		return fmt.Sprintf("mode(%d)", uint64(mode))
	}
}

// ParseCallgraphMode returns the mode named name (see CallgraphAnalysisMode.String)
func ParseCallgraphMode(name string) (CallgraphAnalysisMode, error) {
	for _, mode := range AllCallgraphModes {
		if mode.String() == name {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown call graph analysis %q", name)
}

// ComputeCallgraph computes the call graph of prog using the provided mode. The roots of the analyses that need
// roots are the entry points of the program for cfg (see frontend.EntryPoints).
func (mode CallgraphAnalysisMode) ComputeCallgraph(prog *ssa.Program, cfg *config.Config) (*callgraph.Graph, error) {
	switch mode {
	case PointerAnalysis:
		// Build the callgraph using the pointer analysis. This function returns only the
		// callgraph, and not the entire pointer analysis result.
		// Pointer analysis is using Andersen's analysis. The documentation claims that
		// the analysis is sound if the program does not use reflection or unsafe Go.
		result, err := DoPointerAnalysis(prog, func(_ *ssa.Function) bool { return false }, true)
		if err != nil { // not a user-input problem if it fails, see Analyze doc.
			return nil, fmt.Errorf("pointer analysis failed: %w", err)
		}
		return result.CallGraph, nil
	case StaticAnalysis:
		// Build the callgraph using only static analysis.
		return static.CallGraph(prog), nil
	case ClassHierarchyAnalysis:
		// Build the callgraph using the Class Hierarchy Analysis
		// See the documentation, and
		// "Optimization of Object-Oriented Programs Using Static Class Hierarchy Analysis",
		// J. Dean, D. Grove, and C. Chambers, ECOOP'95.
		return cha.CallGraph(prog), nil
	case VariableTypeAnalysis:
		roots := make(map[*ssa.Function]bool)
		for _, root := range frontend.EntryPoints(prog, cfg, nil) {
			roots[root] = true
		}
		return vta.CallGraph(roots, cha.CallGraph(prog)), nil
	case RapidTypeAnalysis:
		// Build the callgraph using rapid type analysis
		// See the documentation, and
		// "Fast Analysis of C++ Virtual Function Calls", D.Bacon & P. Sweeney, OOPSLA'96
		roots := frontend.EntryPoints(prog, cfg, nil)
		if len(roots) == 0 {
			return nil, fmt.Errorf("no entry points for rapid type analysis")
		}
		return rta.Analyze(roots, true).CallGraph, nil
	case TypeFlowAnalysis:
		roots := frontend.EntryPoints(prog, cfg, nil)
		p, err := frontend.Lower(prog, roots, config.NewLogGroup(cfg))
		if err != nil {
			return nil, err
		}
		res, err := p.Analyze(context.Background(), cfg, config.NewLogGroup(cfg))
		if err != nil {
			return nil, fmt.Errorf("type-flow analysis failed: %w", err)
		}
		return p.CallGraph(res), nil
	default:
		return nil, fmt.Errorf("unsupported callgraph analysis mode %s", mode)
	}
}

// ReachableFromRoot returns the functions of cg that are reachable from its root node. When the root of cg has no
// outgoing edges (e.g. CHA and static call graphs), the roots are the entry points of prog for cfg.
func ReachableFromRoot(cg *callgraph.Graph, prog *ssa.Program, cfg *config.Config) map[*ssa.Function]bool {
	var worklist []*callgraph.Node
	if cg.Root != nil && len(cg.Root.Out) > 0 {
		worklist = append(worklist, cg.Root)
	} else {
		for _, fn := range frontend.EntryPoints(prog, cfg, nil) {
			if node := cg.Nodes[fn]; node != nil {
				worklist = append(worklist, node)
			}
		}
	}
	reachable := map[*ssa.Function]bool{}
	visited := map[*callgraph.Node]bool{}
	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		if node.Func != nil {
			reachable[node.Func] = true
		}
		for _, e := range node.Out {
			worklist = append(worklist, e.Callee)
		}
	}
	return reachable
}

// mainPackages returns the main packages of prog
func mainPackages(prog *ssa.Program) []*ssa.Package {
	return ssautil.MainPackages(prog.AllPackages())
}
