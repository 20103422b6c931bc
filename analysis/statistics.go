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
	"fmt"
	"strings"

	"golang.org/x/tools/go/ssa"
)

// SsaStats are general statistics about the SSA representation of a set of functions
type SsaStats struct {
	NumberOfFunctions         uint
	NumberOfNonemptyFunctions uint
	NumberOfBlocks            uint
	NumberOfInstructions      uint
	// NumberOfClosures is the number of MakeClosure instructions
	NumberOfClosures uint
	// NumberOfStaticCalls counts the calls, go and defer instructions whose callee is a function
	NumberOfStaticCalls uint
	// NumberOfInvokes counts the calls of interface methods
	NumberOfInvokes uint
	// NumberOfDynamicCalls counts the calls of function values
	NumberOfDynamicCalls uint
}

func (s SsaStats) String() string {
	return fmt.Sprintf("%d functions (%d with body), %d blocks, %d instructions, %d closures, "+
		"%d static calls, %d interface calls, %d dynamic calls", s.NumberOfFunctions, s.NumberOfNonemptyFunctions,
		s.NumberOfBlocks, s.NumberOfInstructions, s.NumberOfClosures, s.NumberOfStaticCalls, s.NumberOfInvokes,
		s.NumberOfDynamicCalls)
}

// SSAStatistics returns general statistics about the SSA representation of the functions. Functions whose file
// is matched by one of the exclude paths are not counted (see IsExcluded).
func SSAStatistics(program *ssa.Program, functions map[*ssa.Function]bool, exclude []string) SsaStats {
	result := SsaStats{}

	for f := range functions {
		if IsExcluded(program, f, exclude) {
			continue
		}
		result.NumberOfFunctions++

		if len(f.Blocks) == 0 {
			continue
		}
		result.NumberOfNonemptyFunctions++
		for _, b := range f.Blocks {
			result.NumberOfBlocks++
			result.NumberOfInstructions += uint(len(b.Instrs))
			for _, i := range b.Instrs {
				switch instr := i.(type) {
				case *ssa.MakeClosure:
					result.NumberOfClosures++
				case ssa.CallInstruction:
					result.countCall(instr.Common())
				}
			}
		}
	}

	return result
}

func (s *SsaStats) countCall(c *ssa.CallCommon) {
	switch {
	case c.IsInvoke():
		s.NumberOfInvokes++
	case c.StaticCallee() != nil:
		s.NumberOfStaticCalls++
	default:
		if _, isBuiltin := c.Value.(*ssa.Builtin); !isBuiltin {
			s.NumberOfDynamicCalls++
		}
	}
}

// SiteStats classify the call sites of a call graph by number of callees
type SiteStats struct {
	Sites       int
	Unresolved  int // sites without callee
	Monomorphic int // sites with exactly one callee
	Polymorphic int // sites with more than one callee
	Callees     int // total number of callees over the sites
	MaxCallees  int
}

func (s SiteStats) String() string {
	return fmt.Sprintf("%d call sites: %d unresolved, %d monomorphic, %d polymorphic (max %d callees)",
		s.Sites, s.Unresolved, s.Monomorphic, s.Polymorphic, s.MaxCallees)
}

// CallSiteStatistics returns statistics on the number of callees of the call sites in callees. Only the sites of
// dynamic calls (interface method and function value calls) are counted.
func CallSiteStatistics(callees map[ssa.CallInstruction][]*ssa.Function) SiteStats {
	var s SiteStats
	for site, fns := range callees {
		if site.Common().StaticCallee() != nil {
			continue
		}
		s.Sites++
		switch n := len(fns); {
		case n == 0:
			s.Unresolved++
		case n == 1:
			s.Monomorphic++
		default:
			s.Polymorphic++
		}
		s.Callees += len(fns)
		if len(fns) > s.MaxCallees {
			s.MaxCallees = len(fns)
		}
	}
	return s
}

// IsExcluded returns true if the file of f is matched by one of the exclude paths. A path ending in .go must match the
// filename exactly, other paths match the files in the directory.
func IsExcluded(program *ssa.Program, f *ssa.Function, exclude []string) bool {
	if len(exclude) == 0 {
		return false
	}
	filename := program.Fset.Position(f.Pos()).Filename
	for _, e := range exclude {
		switch {
		case strings.HasSuffix(e, ".go"):
			if filename == e {
				return true
			}
		case strings.HasSuffix(e, "/"):
			if strings.HasPrefix(filename, e) {
				return true
			}
		default:
			if strings.HasPrefix(filename, e+"/") {
				return true
			}
		}
	}
	return false
}
