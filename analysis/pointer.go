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
	"go/types"

	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// This file contains functions for running the pointer analysis on a program. The pointer analysis is implemented in
// the x/tools/go/pointer package, and is the baseline the type-flow analysis is compared against.

// DoPointerAnalysis runs the pointer analysis on the program p, marking every value in the functions filtered by
// functionFilter as potential value to query for aliasing.
//
// - p is the program to be analyzed
//
// - functionFilter determines whether to add the values of the function in the Queries of the result
//
// - buildCallGraph determines whether the analysis must also build the callgraph of the program
//
// If error == nil, every value of pointer-like type in the functions f such that functionFilter(f) is true will be in
// the Queries of the pointer.Result
func DoPointerAnalysis(p *ssa.Program, functionFilter func(*ssa.Function) bool, buildCallGraph bool) (*pointer.Result,
	error) {
	pCfg := &pointer.Config{
		Mains:           mainPackages(p),
		Reflection:      false,
		BuildCallGraph:  buildCallGraph,
		Queries:         make(map[ssa.Value]struct{}),
		IndirectQueries: make(map[ssa.Value]struct{}),
	}

	for function := range ssautil.AllFunctions(p) {
		if functionFilter(function) {
			for _, block := range function.Blocks {
				for _, instruction := range block.Instrs {
					addQuery(pCfg, instruction)
				}
			}
		}
	}

	return pointer.Analyze(pCfg)
}

// addQuery adds a query for the value defined by the instruction to the pointer configuration
func addQuery(cfg *pointer.Config, instruction ssa.Instruction) {
	v, ok := instruction.(ssa.Value)
	if !ok || v.Type() == nil {
		return
	}
	if _, isTuple := v.Type().(*types.Tuple); isTuple {
		return
	}
	if pointer.CanPoint(v.Type()) {
		cfg.AddQuery(v)
	}
}

// PointerLabels returns the number of distinct allocation labels v may point to in res, or -1 if v has not been
// queried
func PointerLabels(res *pointer.Result, v ssa.Value) int {
	ptr, ok := res.Queries[v]
	if !ok {
		return -1
	}
	return len(ptr.PointsTo().Labels())
}
