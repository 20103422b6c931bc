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

	"github.com/yourbasic/graph"
	"golang.org/x/tools/go/ssa"
)

// FindAllElementaryCycles finds all elementary cycles of length at least two in the graph CGraph, as lists of node
// ids where the first and last ids are the same.
// This uses Donald B. Johnson's algorithm presented in
// "Finding All The Elementary Circuits of a Directed Graph", 1975
func FindAllElementaryCycles(cg CGraph) [][]int64 {
	s := &state{
		blocked: map[int64]bool{},
		blist:   map[int64]map[int64]bool{},
	}
	remaining := cg.Keys
	for len(remaining) > 0 {
		fg := Subgraph(cg, remaining)
		// the least node of the strong components of size >= 2 starts the next circuits
		start := int64(-1)
		var component []int
		for _, c := range graph.StrongComponents(fg) {
			if len(c) < 2 {
				continue
			}
			sort.Ints(c)
			if start < 0 || int64(c[0]) < start {
				start = int64(c[0])
				component = c
			}
		}
		if start < 0 {
			break
		}
		sub := Subgraph(cg, toIDs(component))
		s.stack = nil
		s.blocked = map[int64]bool{}
		s.blist = map[int64]map[int64]bool{}
		s.circuit(start, start, sub)

		var next []int64
		for _, k := range remaining {
			if k > start {
				next = append(next, k)
			}
		}
		remaining = next
	}
	return s.cycles
}

// FunctionCycles returns the elementary cycles of cg as lists of functions
func FunctionCycles(cg CGraph) [][]*ssa.Function {
	var res [][]*ssa.Function
	for _, cycle := range FindAllElementaryCycles(cg) {
		fns := make([]*ssa.Function, len(cycle))
		for i, id := range cycle {
			fns[i] = cg.IDMap[id].Node.Func
		}
		res = append(res, fns)
	}
	return res
}

func toIDs(nodes []int) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = int64(n)
	}
	return ids
}

type state struct {
	blocked map[int64]bool
	blist   map[int64]map[int64]bool
	stack   []int64
	cycles  [][]int64
}

func (s *state) unblock(u int64) {
	s.blocked[u] = false
	for w := range s.blist[u] {
		delete(s.blist[u], w)
		if s.blocked[w] {
			s.unblock(w)
		}
	}
}

func (s *state) circuit(v int64, start int64, g CGraph) bool {
	f := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true
	for _, w := range sortedKeys(g.Edges[v]) {
		if w == start {
			cycle := make([]int64, len(s.stack), len(s.stack)+1)
			copy(cycle, s.stack)
			s.cycles = append(s.cycles, append(cycle, w))
			f = true
		} else if !s.blocked[w] {
			if s.circuit(w, start, g) {
				f = true
			}
		}
	}

	if f {
		s.unblock(v)
	} else {
		for w := range g.Edges[v] {
			if s.blist[w] == nil {
				s.blist[w] = map[int64]bool{}
			}
			s.blist[w][v] = true
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return f
}
