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

package frontend_test

import (
	"context"
	"go/types"
	"path"
	"runtime"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/frontend"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/internal/analysistest"
	"golang.org/x/tools/go/ssa"
)

func testDir(name string) string {
	_, filename, _, _ := runtime.Caller(0)
	return path.Join(path.Dir(filename), "../../testdata/src/typeflow", name)
}

type analyzedProgram struct {
	loaded   analysis.LoadedProgram
	program  *frontend.Program
	result   *typeflow.Result
	expected analysistest.Annotations
}

// analyze loads the test program in dir and runs the analysis. The context sensitivity of the config is overridden
// when sensitive is not nil.
func analyze(t *testing.T, dir string, sensitive *bool) analyzedProgram {
	loaded, cfg := analysistest.LoadTest(t, dir, []string{})
	if sensitive != nil {
		cfg.TypeFlow.ContextSensitive = *sensitive
	}
	logger := config.NewLogGroup(cfg)
	prog := loaded.Program
	roots := frontend.EntryPoints(prog, cfg, func(fn *ssa.Function) bool {
		return loaded.Directives.IsEntryPoint(prog.Fset, fn)
	})
	p, err := frontend.Lower(prog, roots, logger)
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	res, err := p.Analyze(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("analysis failed: %s", err)
	}
	expected, err := analysistest.GetAnnotations(dir)
	if err != nil {
		t.Fatalf("could not read annotations: %s", err)
	}
	return analyzedProgram{loaded: loaded, program: p, result: res, expected: expected}
}

// label returns the name used in the annotations for fn: its name, prefixed by the name of its receiver type
func label(fn *ssa.Function) string {
	recv := fn.Signature.Recv()
	if recv == nil {
		return fn.Name()
	}
	name := types.TypeString(recv.Type(), func(*types.Package) string { return "" })
	return strings.TrimPrefix(name, "*") + "." + fn.Name()
}

func checkCalls(t *testing.T, a analyzedProgram) {
	fset := a.loaded.Program.Fset
	actual := map[analysistest.LPos]map[string]bool{}
	for instr, callees := range a.program.CallSiteCallees(a.result) {
		pos := analysistest.RemoveColumn(fset.Position(instr.Pos()))
		if _, ok := actual[pos]; !ok {
			actual[pos] = map[string]bool{}
		}
		for _, callee := range callees {
			actual[pos][label(callee)] = true
		}
	}
	if len(a.expected.Calls) == 0 {
		t.Fatalf("no @Calls annotation found")
	}
	for pos, expected := range a.expected.Calls {
		got := analysistest.SetString(actual[pos])
		if want := analysistest.SetString(expected); got != want {
			t.Errorf("at %s: expected calls to {%s}, got {%s}", pos, want, got)
		}
	}
}

func TestCalls(t *testing.T) {
	insensitive, sensitive := false, true
	for _, dir := range []string{"calls", "closures", "entrypoints"} {
		for _, s := range []*bool{&insensitive, &sensitive} {
			dir, s := dir, s
			name := dir + "-insensitive"
			if *s {
				name = dir + "-sensitive"
			}
			t.Run(name, func(t *testing.T) {
				checkCalls(t, analyze(t, testDir(dir), s))
			})
		}
	}
}

func TestPointsTo(t *testing.T) {
	a := analyze(t, testDir("pointsto"), nil)
	fset := a.loaded.Program.Fset
	if len(a.expected.PointsTo) == 0 {
		t.Fatalf("no @PointsTo annotation found")
	}
	checked := map[analysistest.LPos]bool{}
	for instr := range a.program.CallSiteCallees(a.result) {
		callee := instr.Common().StaticCallee()
		if callee == nil || callee.Name() != "sink" {
			continue
		}
		pos := analysistest.RemoveColumn(fset.Position(instr.Pos()))
		expected, ok := a.expected.PointsTo[pos]
		if !ok {
			continue
		}
		checked[pos] = true
		state := a.program.PointsTo(a.result, instr.Parent(), instr.Common().Args[0])
		got := map[string]bool{}
		for _, o := range state.Objects() {
			if o.Kind != typeflow.AllocationObject {
				continue
			}
			if id, ok := a.expected.Allocs[analysistest.RemoveColumn(o.Site.Pos())]; ok {
				got[id] = true
			}
		}
		if analysistest.SetString(got) != analysistest.SetString(expected) {
			t.Errorf("at %s: expected points-to {%s}, got {%s} (%s)", pos, analysistest.SetString(expected),
				analysistest.SetString(got), state)
		}
	}
	for pos := range a.expected.PointsTo {
		if !checked[pos] {
			t.Errorf("at %s: sink call is not reachable", pos)
		}
	}
}

func TestEntryPoints(t *testing.T) {
	a := analyze(t, testDir("entrypoints"), nil)
	roots := map[string]bool{}
	for _, root := range a.result.Roots() {
		if fn := a.program.Function(root); fn != nil {
			roots[fn.Name()] = true
		}
	}
	for _, name := range []string{"main", "init", "HandleRequest", "Serve"} {
		if !roots[name] {
			t.Errorf("expected %s to be a root, roots are %v", name, roots)
		}
	}
	if roots["unused"] {
		t.Errorf("did not expect unused to be a root")
	}

	reachable := map[string]bool{}
	for fn := range a.program.ReachableFunctions(a.result) {
		reachable[fn.Name()] = true
	}
	for _, name := range []string{"respond", "log"} {
		if !reachable[name] {
			t.Errorf("expected %s to be reachable", name)
		}
	}
	if reachable["unused"] {
		t.Errorf("did not expect unused to be reachable")
	}
}

func TestReachableMethods(t *testing.T) {
	a := analyze(t, testDir("calls"), nil)
	reachable := map[string]bool{}
	for fn := range a.program.ReachableFunctions(a.result) {
		reachable[label(fn)] = true
	}
	for _, name := range []string{"main", "speak", "onlyDogs", "Dog.Speak", "Cat.Speak", "Kennel.Add",
		"Kennel.First"} {
		if !reachable[name] {
			t.Errorf("expected %s to be reachable", name)
		}
	}
	if reachable["Fish.Speak"] {
		t.Errorf("Fish is never allocated, Fish.Speak should not be reachable")
	}
}

func TestCallGraph(t *testing.T) {
	a := analyze(t, testDir("calls"), nil)
	cg := a.program.CallGraph(a.result)
	var mainFn, speakFn *ssa.Function
	for fn := range cg.Nodes {
		if fn == nil {
			continue
		}
		switch fn.Name() {
		case "main":
			mainFn = fn
		case "speak":
			speakFn = fn
		}
	}
	if mainFn == nil || speakFn == nil {
		t.Fatalf("expected main and speak in the call graph")
	}
	rootEdge := false
	for _, e := range cg.Root.Out {
		if e.Callee.Func == mainFn {
			rootEdge = true
		}
	}
	if !rootEdge {
		t.Errorf("expected an edge from the root to main")
	}
	callers := 0
	for _, e := range cg.Nodes[speakFn].In {
		if e.Caller.Func == mainFn && e.Site != nil {
			callers++
		}
	}
	if callers != 2 {
		t.Errorf("expected two calls from main to speak, got %d", callers)
	}
}

func TestDeterministicWorkers(t *testing.T) {
	loaded, cfg := analysistest.LoadTest(t, testDir("closures"), []string{})
	prog := loaded.Program
	roots := frontend.EntryPoints(prog, cfg, nil)
	count := func(workers int) int {
		cfg.TypeFlow.Workers = workers
		p, err := frontend.Lower(prog, roots, nil)
		if err != nil {
			t.Fatalf("lowering failed: %s", err)
		}
		res, err := p.Analyze(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("analysis failed: %s", err)
		}
		return len(p.ReachableFunctions(res))
	}
	if one, four := count(1), count(4); one != four {
		t.Errorf("expected the same number of reachable functions with 1 and 4 workers, got %d and %d", one, four)
	}
}
