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

package graphutil

import (
	"sort"

	"golang.org/x/tools/go/ssa"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// StronglyConnectedComponents returns the strongly connected components of the call graph, computed with Tarjan's
// algorithm. The order of SCCs is toposorted so that callees appear first: if the graph is a tree then the
// components are ordered from the leaves towards the root. Nodes without function (the root of the call graph) are
// omitted, and the functions of each component are sorted by name.
func StronglyConnectedComponents(cg CGraph) [][]*ssa.Function {
	var res [][]*ssa.Function
	for _, component := range topo.TarjanSCC(cg) {
		var fns []*ssa.Function
		for _, n := range component {
			if fn := functionOf(n); fn != nil {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			continue
		}
		sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })
		res = append(res, fns)
	}
	return res
}

// IsRecursive returns true if the functions of the component call each other, or the single function of the
// component calls itself
func IsRecursive(cg CGraph, component []*ssa.Function) bool {
	if len(component) > 1 {
		return true
	}
	if len(component) == 0 {
		return false
	}
	node := cg.Graph.Nodes[component[0]]
	return node != nil && cg.HasEdgeFromTo(int64(node.ID), int64(node.ID))
}

func functionOf(n graph.Node) *ssa.Function {
	if c, ok := n.(CNode); ok && c.Node != nil {
		return c.Node.Func
	}
	return nil
}
