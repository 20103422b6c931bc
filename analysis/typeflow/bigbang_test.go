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

package typeflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

func newTestConfig(t *testing.T, sensitive bool, opts ...func(*config.TypeFlowOptions)) *config.Config {
	t.Helper()
	cfg := config.NewDefault()
	cfg.TypeFlow.ContextSensitive = sensitive
	cfg.TypeFlow.Workers = 1
	// a test that does not terminate fails instead of hanging
	cfg.TypeFlow.Timeout = "30s"
	for _, opt := range opts {
		opt(&cfg.TypeFlow)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

func testLogger(cfg *config.Config) *config.LogGroup {
	logger := config.NewLogGroup(cfg)
	logger.SetAllOutput(io.Discard)
	return logger
}

func mustBuild(t *testing.T, b *universe.Builder) *universe.Universe {
	t.Helper()
	u, err := b.Build()
	if err != nil {
		t.Fatalf("could not build universe: %v", err)
	}
	return u
}

func runAnalysis(t *testing.T, u *universe.Universe, cfg *config.Config) *Result {
	t.Helper()
	res, err := Analyze(context.Background(), u, cfg, testLogger(cfg))
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	checkFixpoint(t, res)
	return res
}

// checkFixpoint checks properties that every result must satisfy: the states of the flows have not decreased since
// they were last processed, and resolving the call sites again does not change anything.
func checkFixpoint(t *testing.T, res *Result) {
	t.Helper()
	bb := res.bb
	for _, f := range res.Flows() {
		if err := bb.checkMonotonic(f, f.State()); err != nil {
			t.Errorf("flow lost objects: %v", err)
		}
		if s := f.sched.Load(); s != flowIdle {
			t.Errorf("flow %s is not idle after the fixpoint (%d)", f, s)
		}
	}
	for _, m := range res.ReachableMethods() {
		for _, inv := range res.Invokes(m) {
			before := inv.CalleesFlows()
			if err := inv.resolver.resolve(bb); err != nil {
				t.Fatalf("resolving %s again failed: %v", inv, err)
			}
			after := inv.CalleesFlows()
			if len(before) != len(after) {
				t.Errorf("resolving %s again linked new callees", inv)
				continue
			}
			for i := range before {
				if before[i] != after[i] {
					t.Errorf("resolving %s again changed its callees", inv)
				}
			}
		}
	}
	if n := bb.worklist.size(); n > 0 {
		t.Errorf("resolving call sites again scheduled %d flows", n)
	}
}

func typeNames(s *TypeState) []string {
	var names []string
	for _, t := range s.Types() {
		names = append(names, t.Name)
	}
	return names
}

func methodNames(ms []*universe.Method) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.String()
	}
	return fmt.Sprint(names)
}

func invokeAt(t *testing.T, res *Result, m *universe.Method, index int) []*InvokeFlow {
	t.Helper()
	var invs []*InvokeFlow
	for _, inv := range res.Invokes(m) {
		if inv.Instr().Index() == index {
			invs = append(invs, inv)
		}
	}
	if len(invs) == 0 {
		t.Fatalf("no call site at %s@%d", m, index)
	}
	return invs
}

// monomorphic: a single receiver object flows to three call sites of T.foo
func buildMonomorphic(b *universe.Builder) (main *universe.Method, foo *universe.Method) {
	tt := b.Class("T", nil)
	fooB := b.Method(tt, "foo", nil, nil)
	fooB.Return(universe.NoVar)
	mainB := b.StaticMethod(nil, "main", nil, nil)
	x := mainB.Alloc(tt)
	mainB.InvokeVirtual(fooB.Method(), x)
	y := mainB.NewVar()
	mainB.Move(y, x)
	mainB.InvokeVirtual(fooB.Method(), y)
	mainB.InvokeVirtual(fooB.Method(), x)
	b.AddRoot(mainB.Method())
	return mainB.Method(), fooB.Method()
}

func TestMonomorphicCallLinksOneClone(t *testing.T) {
	for _, sensitive := range []bool{false, true} {
		t.Run(fmt.Sprintf("sensitive=%v", sensitive), func(t *testing.T) {
			b := universe.NewBuilder()
			main, foo := buildMonomorphic(b)
			res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, sensitive))

			clones := res.Clones(foo)
			if len(clones) != 1 {
				t.Fatalf("expected one clone of foo, got %d", len(clones))
			}
			for _, inv := range res.Invokes(main) {
				linked := inv.CalleesFlows()
				if len(linked) != 1 || linked[0] != clones[0] {
					t.Errorf("%s should link exactly the clone of foo, got %v", inv, linked)
				}
			}
			recv := clones[0].Param(0)
			// feeding the same object again does not change anything
			if res.bb.addState(recv, recv.State()) {
				t.Errorf("adding the current state to a flow should not change it")
			}
			if recv.State().Size() != 1 {
				t.Errorf("expected one receiver object, got %s", recv.State())
			}
			if !res.IsReachable(foo) || len(res.ReachableMethods()) != 2 {
				t.Errorf("expected main and foo to be reachable, got %s", methodNames(res.ReachableMethods()))
			}
		})
	}
}

// polymorphic: objects of A and B flow into the same variable, which is the receiver of a call to the abstract T.m
func buildPolymorphic(b *universe.Builder) (main *universe.Method, ms map[string]*universe.Method, callIndex int) {
	tt := b.AbstractClass("T", nil)
	tm := b.AbstractMethod(tt, "m", nil, nil)
	ta := b.Class("A", tt)
	tb := b.Class("B", tt)
	tc := b.Class("C", tt) // does not implement m
	am := b.Method(ta, "m", nil, nil)
	bm := b.Method(tb, "m", nil, nil)

	mainB := b.StaticMethod(nil, "main", nil, nil)
	a := mainB.Alloc(ta)
	bv := mainB.Alloc(tb)
	c := mainB.Alloc(tc)
	x := mainB.NewVar()
	mainB.Move(x, a)
	mainB.Move(x, bv)
	mainB.Move(x, c)
	callIndex = len(mainB.Method().Body.Instrs)
	mainB.InvokeVirtual(tm, x)
	b.AddRoot(mainB.Method())
	return mainB.Method(), map[string]*universe.Method{"T.m": tm, "A.m": am.Method(), "B.m": bm.Method()}, callIndex
}

func TestPolymorphicCallLinksEachCalleeOnce(t *testing.T) {
	for _, sensitive := range []bool{false, true} {
		t.Run(fmt.Sprintf("sensitive=%v", sensitive), func(t *testing.T) {
			b := universe.NewBuilder()
			main, ms, idx := buildPolymorphic(b)
			res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, sensitive))

			inv := invokeAt(t, res, main, idx)[0]
			if got := methodNames(inv.Callees()); got != "[A.m B.m]" {
				t.Errorf("expected callees [A.m B.m], got %s", got)
			}
			if n := len(inv.CalleesFlows()); n != 2 {
				t.Errorf("expected 2 linked graphs, got %d", n)
			}
			if res.IsReachable(ms["T.m"]) {
				t.Errorf("the abstract method cannot be reachable")
			}
			// each callee only receives the objects of its own type
			for _, name := range []string{"A.m", "B.m"} {
				got := typeNames(res.PointsTo(ms[name], 0))
				if len(got) != 1 || got[0] != name[:1] {
					t.Errorf("receiver of %s should only contain objects of %s, got %v", name, name[:1], got)
				}
			}
			cg := res.CallGraph()
			site := CallSite{Caller: main, Index: idx}
			if got := methodNames(cg.Callees(site)); got != "[A.m B.m]" {
				t.Errorf("call graph has callees %s at %s", got, site)
			}
			if callers := cg.Callers(ms["A.m"]); len(callers) != 1 || callers[0] != site {
				t.Errorf("A.m should be called from %s only, got %v", site, callers)
			}
			if len(cg.Edges()) != 2 {
				t.Errorf("expected 2 call edges, got %d", len(cg.Edges()))
			}
		})
	}
}

func TestMergesAreNoted(t *testing.T) {
	b := universe.NewBuilder()
	buildPolymorphic(b)
	res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true))
	if res.Stats().Merges == 0 {
		t.Errorf("the sensitive policy should note the merges of the receiver variable")
	}
	for _, o := range res.Objects() {
		if o.Type.Name == "A" && !o.Merged() {
			t.Errorf("%s flowed into a merge", o)
		}
	}

	b = universe.NewBuilder()
	buildPolymorphic(b)
	res = runAnalysis(t, mustBuild(t, b), newTestConfig(t, false))
	if res.Stats().Merges != 0 {
		t.Errorf("the insensitive policy does not track merges")
	}
}

// identity: the same static method is called from two call sites with objects from two allocation sites
func buildIdentity(b *universe.Builder) (main *universe.Method, id *universe.Method, r1, r2 universe.Var) {
	ta := b.Class("A", nil)
	idB := b.StaticMethod(nil, "id", []*universe.Type{ta}, ta)
	idB.Return(idB.Param(0))
	mainB := b.StaticMethod(nil, "main", nil, nil)
	a1 := mainB.Alloc(ta)
	a2 := mainB.Alloc(ta)
	r1 = mainB.InvokeStatic(idB.Method(), a1)
	r2 = mainB.InvokeStatic(idB.Method(), a2)
	b.AddRoot(mainB.Method())
	return mainB.Method(), idB.Method(), r1, r2
}

func TestInsensitiveAnalyzesMethodsOnce(t *testing.T) {
	b := universe.NewBuilder()
	main, id, r1, r2 := buildIdentity(b)
	u := mustBuild(t, b)
	res := runAnalysis(t, u, newTestConfig(t, false))

	clones := res.Clones(id)
	if len(clones) != 1 || !clones[0].Context.IsEmpty() {
		t.Fatalf("expected one clone of id in the empty context, got %v", clones)
	}
	objs := res.Registry().ObjectsOfType(u.Type("A"))
	if len(objs) != 1 || !objs[0].IsSummary() {
		t.Errorf("all allocations should be represented by the summary object, got %v", objs)
	}
	if !res.PointsTo(main, r1).Equals(res.PointsTo(main, r2)) {
		t.Errorf("the results of both calls should be the same")
	}
	if res.Stats().Contexts != 1 {
		t.Errorf("only the empty context should be created, got %d", res.Stats().Contexts)
	}
}

func TestCallSiteSensitivitySeparatesCalls(t *testing.T) {
	b := universe.NewBuilder()
	main, id, r1, r2 := buildIdentity(b)
	res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true, func(o *config.TypeFlowOptions) {
		o.ContextKind = config.CallSiteContext
		o.MaxContextDepth = 1
	}))
	if n := len(res.Clones(id)); n != 2 {
		t.Errorf("expected one clone of id per call site, got %d", n)
	}
	p1, p2 := res.PointsTo(main, r1), res.PointsTo(main, r2)
	if p1.Size() != 1 || p2.Size() != 1 || p1.Equals(p2) {
		t.Errorf("each call should return its own object, got %s and %s", p1, p2)
	}
	for _, g := range res.Clones(id) {
		if g.Context.Len() != 1 || g.Context.Elements()[0].Kind != CallSiteElement {
			t.Errorf("unexpected context %s", g.Context)
		}
	}
}

func TestObjectSensitivityKeepsCallerContextForStaticCalls(t *testing.T) {
	b := universe.NewBuilder()
	main, id, r1, _ := buildIdentity(b)
	res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true))
	clones := res.Clones(id)
	if len(clones) != 1 || !clones[0].Context.IsEmpty() {
		t.Errorf("id should be analyzed in the context of main, got %v", clones)
	}
	if res.PointsTo(main, r1).Size() != 2 {
		t.Errorf("without distinct contexts both objects flow to both results")
	}
}

// factory: two receivers of F create objects of A with their own heap context, then foo is called on both objects
func buildFactory(b *universe.Builder) (main *universe.Method, foo *universe.Method, calls [2]int) {
	ta := b.Class("A", nil)
	fooB := b.Method(ta, "foo", nil, nil)
	tf := b.Class("F", nil)
	mk := b.Method(tf, "mk", nil, ta)
	mk.Return(mk.Alloc(ta))

	mainB := b.StaticMethod(nil, "main", nil, nil)
	f1 := mainB.Alloc(tf)
	f2 := mainB.Alloc(tf)
	a1 := mainB.InvokeVirtual(mk.Method(), f1)
	a2 := mainB.InvokeVirtual(mk.Method(), f2)
	calls[0] = len(mainB.Method().Body.Instrs)
	mainB.InvokeVirtual(fooB.Method(), a1)
	calls[1] = len(mainB.Method().Body.Instrs)
	mainB.InvokeVirtual(fooB.Method(), a2)
	b.AddRoot(mainB.Method())
	return mainB.Method(), fooB.Method(), calls
}

func TestTruncatedContextsShareClones(t *testing.T) {
	b := universe.NewBuilder()
	main, foo, calls := buildFactory(b)
	u := mustBuild(t, b)
	res := runAnalysis(t, u, newTestConfig(t, true, func(o *config.TypeFlowOptions) {
		o.MaxContextDepth = 1
		o.MaxHeapDepth = 1
	}))
	if n := len(res.Registry().ObjectsOfType(u.Type("A"))); n != 2 {
		t.Errorf("expected 2 objects of A (one per heap context), got %d", n)
	}
	clones := res.Clones(foo)
	if len(clones) != 1 {
		t.Fatalf("both receivers truncate to the same context, expected 1 clone, got %d", len(clones))
	}
	g1 := invokeAt(t, res, main, calls[0])[0].CalleesFlows()
	g2 := invokeAt(t, res, main, calls[1])[0].CalleesFlows()
	if len(g1) != 1 || len(g2) != 1 || g1[0] != g2[0] || g1[0] != clones[0] {
		t.Errorf("both call sites should link the same graph")
	}
	if res.PointsTo(foo, 0).Size() != 2 {
		t.Errorf("the shared clone receives both objects")
	}
}

func TestDeeperContextsSeparateClones(t *testing.T) {
	b := universe.NewBuilder()
	_, foo, _ := buildFactory(b)
	res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true, func(o *config.TypeFlowOptions) {
		o.MaxContextDepth = 2
		o.MaxHeapDepth = 1
	}))
	clones := res.Clones(foo)
	if len(clones) != 2 {
		t.Fatalf("expected one clone of foo per receiver, got %d", len(clones))
	}
	for _, g := range clones {
		if g.Context.Len() != 2 {
			t.Errorf("expected contexts of length 2, got %s", g.Context)
		}
		if g.Param(0).State().Size() != 1 {
			t.Errorf("each clone receives one object, got %s", g.Param(0).State())
		}
	}
}

// boxes: make allocates a Box and stores its argument in it. It is called twice with different values.
func buildBoxes(b *universe.Builder) (main *universe.Method, val *universe.Field, results [2]universe.Var) {
	obj := b.Class("Obj", nil)
	tx := b.Class("X", obj)
	ty := b.Class("Y", obj)
	box := b.Class("Box", nil)
	val = b.Field(box, "val", obj)

	mk := b.StaticMethod(nil, "make", []*universe.Type{obj}, box)
	bx := mk.Alloc(box)
	mk.Store(bx, val, mk.Param(0))
	mk.Return(bx)

	mainB := b.StaticMethod(nil, "main", nil, nil)
	x := mainB.Alloc(tx)
	y := mainB.Alloc(ty)
	results[0] = mainB.InvokeStatic(mk.Method(), x)
	results[1] = mainB.InvokeStatic(mk.Method(), y)
	b.AddRoot(mainB.Method())
	return mainB.Method(), val, results
}

func TestCollapsedAllocationsAreSound(t *testing.T) {
	for _, split := range []bool{true, false} {
		t.Run(fmt.Sprintf("split=%v", split), func(t *testing.T) {
			b := universe.NewBuilder()
			main, val, results := buildBoxes(b)
			u := mustBuild(t, b)
			res := runAnalysis(t, u, newTestConfig(t, true, func(o *config.TypeFlowOptions) {
				o.ContextKind = config.CallSiteContext
				o.MaxContextDepth = 1
				o.MaxHeapDepth = 1
				o.TypeTrackingBudget = 1
				o.SplitStores = split
			}))
			if res.Stats().Collapses != 1 {
				t.Errorf("expected one collapse, got %d", res.Stats().Collapses)
			}
			boxes := res.Registry().ObjectsOfType(u.Type("Box"))
			if len(boxes) != 2 {
				t.Fatalf("expected one precise Box and the summary, got %v", boxes)
			}
			var precise, summary *Object
			for _, o := range boxes {
				if o.IsSummary() {
					summary = o
				} else {
					precise = o
				}
			}
			if precise == nil || summary == nil {
				t.Fatalf("expected one precise Box and the summary, got %v", boxes)
			}

			all := Merge(res.PointsTo(main, results[0]), res.PointsTo(main, results[1]))
			if !all.Contains(precise) || !all.Contains(summary) {
				t.Errorf("the results should contain both boxes, got %s", all)
			}
			summaryField := res.FieldPointsTo(summary, val)
			if got := typeNames(summaryField); fmt.Sprint(got) != "[X Y]" {
				t.Errorf("the summary field should contain X and Y, got %v", got)
			}
			preciseField := res.FieldPointsTo(precise, val)
			if !summaryField.IsSupersetOf(preciseField) {
				t.Errorf("the summary field %s should contain the precise field %s", summaryField, preciseField)
			}
			if split && preciseField.Size() != 1 {
				t.Errorf("the split store of the precise box has one value, got %s", preciseField)
			}
			if !split && !preciseField.Equals(summaryField) {
				t.Errorf("unified stores share the summary store, got %s", preciseField)
			}
		})
	}
}

func TestFieldsStaticsAndArrays(t *testing.T) {
	b := universe.NewBuilder()
	base := b.AbstractClass("Base", nil)
	ta := b.Class("A", base)
	tb := b.Class("B", base)
	holder := b.Class("Holder", nil)
	f := b.Field(holder, "f", base)
	g := b.StaticField(nil, "G", base)

	reader := b.StaticMethod(nil, "read", nil, base)
	reader.Return(reader.LoadStatic(g))

	mainB := b.StaticMethod(nil, "main", nil, nil)
	arr := mainB.Alloc(b.ArrayOf(base))
	a := mainB.Alloc(ta)
	bv := mainB.Alloc(tb)
	mainB.StoreElem(arr, a)
	elem := mainB.LoadElem(arr)
	h := mainB.Alloc(holder)
	mainB.Store(h, f, bv)
	loaded := mainB.Load(h, f)
	mainB.StoreStatic(g, loaded)
	read := mainB.InvokeStatic(reader.Method())
	x := mainB.NewVar()
	mainB.Move(x, elem)
	mainB.Move(x, read)
	onlyA := mainB.Cast(x, ta)
	b.AddRoot(mainB.Method())
	main := mainB.Method()

	u := mustBuild(t, b)

	for _, sensitive := range []bool{false, true} {
		res := runAnalysis(t, u, newTestConfig(t, sensitive))
		checkFieldsStaticsAndArrays(t, res, main, [...]universe.Var{arr, elem, loaded, read, x, onlyA}, g)
	}
}

func checkFieldsStaticsAndArrays(t *testing.T, res *Result, main *universe.Method, vars [6]universe.Var,
	g *universe.Field) {
	arr, elem, loaded, read, x, onlyA := vars[0], vars[1], vars[2], vars[3], vars[4], vars[5]
	if got := typeNames(res.PointsTo(main, elem)); fmt.Sprint(got) != "[A]" {
		t.Errorf("array load should give A, got %v", got)
	}
	if got := typeNames(res.PointsTo(main, loaded)); fmt.Sprint(got) != "[B]" {
		t.Errorf("field load should give B, got %v", got)
	}
	if got := typeNames(res.StaticFieldPointsTo(g)); fmt.Sprint(got) != "[B]" {
		t.Errorf("static field should contain B, got %v", got)
	}
	if got := typeNames(res.PointsTo(main, read)); fmt.Sprint(got) != "[B]" {
		t.Errorf("value read from the static field should be B, got %v", got)
	}
	if got := typeNames(res.PointsTo(main, x)); fmt.Sprint(got) != "[A B]" {
		t.Errorf("merged variable should contain A and B, got %v", got)
	}
	if got := typeNames(res.PointsTo(main, onlyA)); fmt.Sprint(got) != "[A]" {
		t.Errorf("cast should filter out B, got %v", got)
	}
	arrays := res.PointsTo(main, arr).Objects()
	if len(arrays) != 1 || res.ElementsPointsTo(arrays[0]).Size() != 1 {
		t.Errorf("expected one array holding one object")
	}
}

func TestNativeAndSpecialCalls(t *testing.T) {
	b := universe.NewBuilder()
	base := b.Class("Base", nil)
	derived := b.Class("Derived", base)
	nat := b.NativeMethod(base, "native", nil, base)
	greet := b.Method(base, "greet", nil, nil)
	dgreet := b.Method(derived, "greet", nil, nil)
	superIdx := len(dgreet.Method().Body.Instrs)
	dgreet.InvokeSpecial(greet.Method(), dgreet.Param(0))

	mainB := b.StaticMethod(nil, "main", nil, nil)
	d := mainB.Alloc(derived)
	mainB.InvokeVirtual(greet.Method(), d)
	r := mainB.InvokeVirtual(nat, d)
	b.AddRoot(mainB.Method())
	u := mustBuild(t, b)

	res := runAnalysis(t, u, newTestConfig(t, true))
	if !res.IsReachable(nat) {
		t.Errorf("native methods are reachable when called")
	}
	if !res.PointsTo(mainB.Method(), r).IsEmpty() {
		t.Errorf("nothing flows out of a native method")
	}
	if got := methodNames(res.CallGraph().CalleesOf(mainB.Method())); got != "[Base.native Derived.greet]" {
		t.Errorf("unexpected callees of main %s", got)
	}
	inv := invokeAt(t, res, dgreet.Method(), superIdx)[0]
	if got := methodNames(inv.Callees()); got != "[Base.greet]" {
		t.Errorf("super call should call Base.greet, got %s", got)
	}
	if got := typeNames(res.PointsTo(greet.Method(), 0)); fmt.Sprint(got) != "[Derived]" {
		t.Errorf("Base.greet receives the Derived object, got %v", got)
	}
}

func TestRootParametersAreSeeded(t *testing.T) {
	b := universe.NewBuilder()
	itf := b.Interface("Handler")
	run := b.AbstractMethod(itf, "run", nil, nil)
	h1 := b.Class("H1", nil, itf)
	h2 := b.Class("H2", nil, itf)
	b.AbstractClass("H3", nil, itf)
	b.Method(h1, "run", nil, nil)
	b.Method(h2, "run", nil, nil)
	handle := b.StaticMethod(nil, "handle", []*universe.Type{itf}, nil)
	handle.InvokeVirtual(run, handle.Param(0))
	b.AddRoot(handle.Method())
	res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true))

	param := res.PointsTo(handle.Method(), 0)
	if got := typeNames(param); fmt.Sprint(got) != "[H1 H2]" {
		t.Errorf("root parameter should contain the concrete implementations, got %v", got)
	}
	for _, o := range param.Objects() {
		if !o.IsSummary() {
			t.Errorf("root parameters are seeded with summary objects, got %s", o)
		}
	}
	if got := methodNames(res.CallGraph().CalleesOf(handle.Method())); got != "[H1.run H2.run]" {
		t.Errorf("unexpected callees %s", got)
	}
}

func TestRecursionTerminates(t *testing.T) {
	for _, kind := range []string{config.ObjectContext, config.CallSiteContext} {
		t.Run(kind, func(t *testing.T) {
			b := universe.NewBuilder()
			node := b.Class("Node", nil)
			next := b.Field(node, "next", node)
			walk := b.Method(node, "walk", nil, nil)
			n := walk.Load(walk.Param(0), next)
			m := walk.Alloc(node)
			walk.Store(m, next, walk.Param(0))
			walk.InvokeVirtual(walk.Method(), m)
			walk.InvokeVirtual(walk.Method(), n)
			mainB := b.StaticMethod(nil, "main", nil, nil)
			mainB.InvokeVirtual(walk.Method(), mainB.Alloc(node))
			b.AddRoot(mainB.Method())

			res := runAnalysis(t, mustBuild(t, b), newTestConfig(t, true, func(o *config.TypeFlowOptions) {
				o.ContextKind = kind
				o.MaxContextDepth = 3
				o.TypeTrackingBudget = 0
				o.Workers = 4
			}))
			clones := res.Clones(walk.Method())
			if len(clones) == 0 {
				t.Fatalf("walk should be reachable")
			}
			for _, g := range clones {
				if g.Context.Len() > 3 {
					t.Errorf("context %s is longer than the maximum depth", g.Context)
				}
			}
		})
	}
}

func TestUnknownValues(t *testing.T) {
	build := func() (*universe.Universe, *universe.Method, universe.Var) {
		b := universe.NewBuilder()
		tt := b.Class("T", nil)
		f := b.Field(tt, "f", tt)
		foo := b.Method(tt, "foo", nil, nil)
		mainB := b.StaticMethod(nil, "main", nil, nil)
		u := mainB.Unknown()
		mainB.InvokeVirtual(foo.Method(), u)
		v := mainB.Load(u, f)
		mainB.Store(u, f, mainB.Alloc(tt))
		b.AddRoot(mainB.Method())
		return mustBuild(t, b), mainB.Method(), v
	}

	for _, sensitive := range []bool{false, true} {
		u, main, v := build()
		res := runAnalysis(t, u, newTestConfig(t, sensitive))
		diags := res.Diagnostics()
		if len(diags) != 3 {
			t.Fatalf("expected 3 diagnostics (call, load and store), got %v", diags)
		}
		for i, d := range diags {
			if d.Kind != IllegalUnknownUse || d.Method != main || d.Index != []int{1, 2, 4}[i] {
				t.Errorf("unexpected diagnostic %s", d)
			}
		}
		if res.IsReachable(u.Method("T.foo")) {
			t.Errorf("no method can be resolved on an unknown receiver")
		}
		if !res.PointsTo(main, v).IsUnknown() {
			t.Errorf("loading from an unknown value gives an unknown value")
		}
	}

	u, _, _ := build()
	res := runAnalysis(t, u, newTestConfig(t, true, func(o *config.TypeFlowOptions) {
		o.ReportUnknownUses = false
	}))
	if n := len(res.Diagnostics()); n != 0 {
		t.Errorf("expected no diagnostics, got %d", n)
	}
}

func TestNodeBudget(t *testing.T) {
	b := universe.NewBuilder()
	buildPolymorphic(b)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, true, func(o *config.TypeFlowOptions) { o.MaxFlowNodes = 9 })
	_, err := Analyze(context.Background(), u, cfg, testLogger(cfg))
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected a budget error, got %v", err)
	}
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Kind != NodeBudget {
		t.Fatalf("expected a node budget error, got %v", err)
	}
	if fe.Node != -1 {
		t.Errorf("a node budget error is not tied to a flow, got flow %d", fe.Node)
	}
}

func TestTimeBudget(t *testing.T) {
	b := universe.NewBuilder()
	buildPolymorphic(b)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, true)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := Analyze(ctx, u, cfg, testLogger(cfg))
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Kind != TimeBudget || !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected a time budget error, got %v", err)
	}
}

func TestCancelledAnalysis(t *testing.T) {
	b := universe.NewBuilder()
	buildPolymorphic(b)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Analyze(ctx, u, cfg, testLogger(cfg)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancellation error, got %v", err)
	}
}

func TestNoRoots(t *testing.T) {
	b := universe.NewBuilder()
	b.Class("T", nil)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, false)
	if _, err := Analyze(context.Background(), u, cfg, testLogger(cfg)); !errors.Is(err, ErrNoRoots) {
		t.Errorf("expected ErrNoRoots, got %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	b := universe.NewBuilder()
	main, _ := buildMonomorphic(b)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, false)
	bb, err := NewBigBang(u, cfg, testLogger(cfg))
	if err != nil {
		t.Fatalf("could not create analysis: %v", err)
	}
	bb.AddRootMethod(main)
	bb.AddRootMethod(main)
	res, err := bb.Run(context.Background())
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if len(res.Roots()) != 1 {
		t.Errorf("roots should be deduplicated, got %d", len(res.Roots()))
	}
	if _, err := bb.Run(context.Background()); err == nil {
		t.Errorf("an analysis cannot run twice")
	}
}

func TestMonotonicityViolation(t *testing.T) {
	b := universe.NewBuilder()
	buildMonomorphic(b)
	u := mustBuild(t, b)
	cfg := newTestConfig(t, false)
	bb, err := NewBigBang(u, cfg, testLogger(cfg))
	if err != nil {
		t.Fatalf("could not create analysis: %v", err)
	}
	f, err := bb.newFlow(LocalFlow, nil, "x")
	if err != nil {
		t.Fatalf("could not create flow: %v", err)
	}
	f.lastSize = 2
	err = bb.checkMonotonic(f, EmptyState())
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
	if bb.checkMonotonic(f, UnknownState()) != nil {
		t.Errorf("unknown is larger than any state")
	}
}

// buildShapes builds a program with n implementations of the Shape interface that link to each other through their
// fields, an array and a global.
func buildShapes(t *testing.T, n int) *universe.Universe {
	b := universe.NewBuilder()
	shape := b.Interface("Shape")
	next := b.AbstractMethod(shape, "next", nil, shape)
	var classes []*universe.Type
	var links []*universe.Field
	for i := 0; i < n; i++ {
		c := b.Class(fmt.Sprintf("S%d", i), nil, shape)
		classes = append(classes, c)
		links = append(links, b.Field(c, "link", shape))
	}
	for i, c := range classes {
		m := b.Method(c, "next", nil, shape)
		l := m.Load(m.Param(0), links[i])
		j := (i + 1) % n
		r := m.Alloc(classes[j])
		m.Store(r, links[j], m.Param(0))
		m.InvokeVirtual(next, l)
		m.Return(r)
	}
	global := b.StaticField(nil, "G", shape)
	mainB := b.StaticMethod(nil, "main", nil, nil)
	arr := mainB.Alloc(b.ArrayOf(shape))
	for _, c := range classes {
		mainB.StoreElem(arr, mainB.Alloc(c))
	}
	r := mainB.InvokeVirtual(next, mainB.LoadElem(arr))
	mainB.StoreStatic(global, r)
	mainB.InvokeVirtual(next, mainB.LoadStatic(global))
	b.AddRoot(mainB.Method())
	return mustBuild(t, b)
}

// describe returns a deterministic description of the result: the points-to sets of every variable and the call
// edges, with objects named by their site and context.
func describe(res *Result) []string {
	var lines []string
	for _, m := range res.ReachableMethods() {
		for _, g := range res.Clones(m) {
			for _, f := range g.Flows() {
				lines = append(lines, fmt.Sprintf("%s%s %s: %s", m, g.Context, f.label, f.State()))
			}
			for _, inv := range g.Invokes() {
				for _, c := range inv.CalleesFlows() {
					lines = append(lines, fmt.Sprintf("%s -> %s", inv, c))
				}
			}
		}
	}
	for _, e := range res.CallGraph().Edges() {
		lines = append(lines, fmt.Sprintf("%s -> %s", e.Site, e.Callee))
	}
	sort.Strings(lines)
	return lines
}

func TestParallelAnalysisIsDeterministic(t *testing.T) {
	configs := map[string]func(*config.TypeFlowOptions){
		"insensitive": func(o *config.TypeFlowOptions) { o.ContextSensitive = false },
		"object": func(o *config.TypeFlowOptions) {
			o.TypeTrackingBudget = 0
		},
		"callsite": func(o *config.TypeFlowOptions) {
			o.ContextKind = config.CallSiteContext
			o.TypeTrackingBudget = 0
		},
	}
	for name, opt := range configs {
		t.Run(name, func(t *testing.T) {
			serial := runAnalysis(t, buildShapes(t, 5), newTestConfig(t, true, opt))
			expected := describe(serial)
			for i := 0; i < 3; i++ {
				parallel := runAnalysis(t, buildShapes(t, 5), newTestConfig(t, true, opt,
					func(o *config.TypeFlowOptions) { o.Workers = 8 }))
				got := describe(parallel)
				if len(got) != len(expected) {
					t.Fatalf("parallel run %d has %d facts, serial has %d", i, len(got), len(expected))
				}
				for j := range got {
					if got[j] != expected[j] {
						t.Errorf("parallel run %d differs: %q != %q", i, got[j], expected[j])
						break
					}
				}
			}
			if serial.Stats().ReachableMethods != 6 {
				t.Errorf("expected main and the 5 implementations to be reachable, got %d",
					serial.Stats().ReachableMethods)
			}
		})
	}
}
