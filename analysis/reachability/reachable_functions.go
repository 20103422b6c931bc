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

package reachability

import (
	"go/types"

	"golang.org/x/tools/go/ssa"
)

// This file contains a syntactic reachability analysis: every function referenced by a reachable function is
// reachable, and converting a value to an interface makes the methods of the interface reachable on the type of the
// value. It over-approximates the reachable functions and serves as a baseline for the type-flow analysis.

func findInterfaceCallees(program *ssa.Program, interfaceType types.Type, v ssa.Value, action func(*ssa.Function)) {
	methodSet := program.MethodSets.MethodSet(v.Type())
	itf, ok := interfaceType.Underlying().(*types.Interface)
	if !ok {
		return
	}

	// the empty interface makes all methods reachable
	for i := 0; i < methodSet.Len(); i++ {
		selection := methodSet.At(i)
		if itf.NumMethods() == 0 || hasMethod(itf, selection.Obj().Name()) {
			if f := program.MethodValue(selection); f != nil {
				action(f)
			}
		}
	}
}

func hasMethod(itf *types.Interface, name string) bool {
	for i := 0; i < itf.NumMethods(); i++ {
		if itf.Method(i).Name() == name {
			return true
		}
	}
	return false
}

// findCallees discovers the functions referenced by f, and applies the given action to these
func findCallees(program *ssa.Program, f *ssa.Function, action func(*ssa.Function)) {
	for _, anon := range f.AnonFuncs {
		action(anon)
	}
	var operands []*ssa.Value
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if mi, ok := instr.(*ssa.MakeInterface); ok {
				findInterfaceCallees(program, mi.Type(), mi.X, action)
			}
			// functions called directly and functions whose address is taken
			operands = instr.Operands(operands[:0])
			for _, op := range operands {
				if op == nil {
					continue
				}
				if fn, ok := (*op).(*ssa.Function); ok {
					action(fn)
				}
			}
		}
	}
}

// FindReachable returns the functions reachable from roots syntactically
func FindReachable(program *ssa.Program, roots []*ssa.Function) map[*ssa.Function]bool {
	reachable := make(map[*ssa.Function]bool)
	frontier := append([]*ssa.Function{}, roots...)

	// compute the fixedpoint
	for len(frontier) != 0 {
		f := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if reachable[f] {
			continue
		}
		reachable[f] = true
		findCallees(program, f, func(fnext *ssa.Function) {
			if !reachable[fnext] {
				frontier = append(frontier, fnext)
			}
		})
	}

	return reachable
}
