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

package frontend

import (
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/ssa"
)

// CallGraph returns the call graph computed by res as a call graph of Go functions. The root node of the graph has
// an edge without call site to every root of the analysis. Calls of function values are edges to the function
// called by the value, and the calls inside the $call methods do not appear in the graph.
func (p *Program) CallGraph(res *typeflow.Result) *callgraph.Graph {
	cg := callgraph.New(nil)
	for _, root := range res.Roots() {
		if fn := p.functions[root]; fn != nil {
			callgraph.AddEdge(cg.Root, nil, cg.CreateNode(fn))
		}
	}
	calls := res.CallGraph()
	for _, site := range calls.Sites() {
		instr := p.sites[universe.AllocationSite{Method: site.Caller, Index: site.Index}]
		caller := p.functions[site.Caller]
		if instr == nil || caller == nil {
			continue
		}
		for _, callee := range calls.Callees(site) {
			if fn := p.functions[callee]; fn != nil {
				callgraph.AddEdge(cg.CreateNode(caller), instr, cg.CreateNode(fn))
			}
		}
	}
	return cg
}

// CallSiteCallees returns the functions called at each call instruction of the reachable functions of res
func (p *Program) CallSiteCallees(res *typeflow.Result) map[ssa.CallInstruction][]*ssa.Function {
	callees := map[ssa.CallInstruction][]*ssa.Function{}
	calls := res.CallGraph()
	for _, site := range calls.Sites() {
		instr := p.sites[universe.AllocationSite{Method: site.Caller, Index: site.Index}]
		if instr == nil {
			continue
		}
		if _, ok := callees[instr]; !ok {
			callees[instr] = nil
		}
		for _, callee := range calls.Callees(site) {
			if fn := p.functions[callee]; fn != nil {
				callees[instr] = append(callees[instr], fn)
			}
		}
	}
	return callees
}
