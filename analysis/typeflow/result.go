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
	"fmt"
	"go/token"
	"sort"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// Stats are statistics about an analysis run
type Stats struct {
	Duration         time.Duration
	Evaluations      int64
	Flows            int
	Clones           int64
	Contexts         int
	Objects          int
	Collapses        int
	Merges           int64
	ReachableMethods int
	CallEdges        int
	Diagnostics      int
}

func (s Stats) String() string {
	return fmt.Sprintf("duration: %s\nreachable methods: %d\ncall edges: %d\nclones: %d\ncontexts: %d\n"+
		"objects: %d\nsummary collapses: %d\nflows: %d\nevaluations: %d\nmerges: %d\ndiagnostics: %d",
		s.Duration, s.ReachableMethods, s.CallEdges, s.Clones, s.Contexts, s.Objects, s.Collapses, s.Flows,
		s.Evaluations, s.Merges, s.Diagnostics)
}

// Result gives access to the results of an analysis after the fixpoint is reached
type Result struct {
	bb        *BigBang
	stats     Stats
	reachable []*universe.Method
	callgraph *CallGraph
}

func newResult(bb *BigBang, duration time.Duration) *Result {
	r := &Result{bb: bb}
	bb.methods.Range(func(k, v any) bool {
		if v.(*MethodTypeFlow).NumClones() > 0 {
			r.reachable = append(r.reachable, k.(*universe.Method))
		}
		return true
	})
	sort.Slice(r.reachable, func(i, j int) bool { return r.reachable[i].ID < r.reachable[j].ID })
	r.callgraph = r.buildCallGraph()

	flows := bb.arena.all()
	var merges int64
	for _, f := range flows {
		merges += f.Merges()
	}
	r.stats = Stats{
		Duration:         duration,
		Evaluations:      bb.evaluations.Load(),
		Flows:            len(flows),
		Clones:           bb.clones.Load(),
		Contexts:         bb.registry.NumContexts(),
		Objects:          len(bb.registry.Objects()),
		Collapses:        bb.registry.Collapses(),
		Merges:           merges,
		ReachableMethods: len(r.reachable),
		CallEdges:        len(r.callgraph.Edges()),
		Diagnostics:      bb.diagnostics.Len(),
	}
	return r
}

// Universe returns the analyzed universe
func (r *Result) Universe() *universe.Universe { return r.bb.universe }

// Policy returns the policy used by the analysis
func (r *Result) Policy() Policy { return r.bb.policy }

// Registry returns the registry of the objects and contexts of the analysis
func (r *Result) Registry() *Registry { return r.bb.registry }

// Stats returns statistics about the analysis
func (r *Result) Stats() Stats { return r.stats }

// Roots returns the roots of the analysis
func (r *Result) Roots() []*universe.Method { return r.bb.roots }

// ReachableMethods returns the methods reachable from the roots, ordered by ID
func (r *Result) ReachableMethods() []*universe.Method { return r.reachable }

// IsReachable returns true if m is reachable from the roots
func (r *Result) IsReachable(m *universe.Method) bool {
	v, ok := r.bb.methods.Load(m)
	return ok && v.(*MethodTypeFlow).NumClones() > 0
}

// Clones returns the graphs of m, one per context m has been analyzed in
func (r *Result) Clones(m *universe.Method) []*MethodFlowsGraph {
	if v, ok := r.bb.methods.Load(m); ok {
		return v.(*MethodTypeFlow).Clones()
	}
	return nil
}

// Graph returns the graph of m in ctx, or nil if m has not been analyzed in ctx
func (r *Result) Graph(m *universe.Method, ctx *Context) *MethodFlowsGraph {
	if v, ok := r.bb.methods.Load(m); ok {
		return v.(*MethodTypeFlow).lookup(ctx)
	}
	return nil
}

// PointsTo returns the objects variable v of m may point to, in any context
func (r *Result) PointsTo(m *universe.Method, v universe.Var) *TypeState {
	s := EmptyState()
	for _, g := range r.Clones(m) {
		if f := g.Local(v); f != nil {
			s = Merge(s, f.State())
		}
	}
	return s
}

// ReturnPointsTo returns the objects m may return, in any context
func (r *Result) ReturnPointsTo(m *universe.Method) *TypeState {
	s := EmptyState()
	for _, g := range r.Clones(m) {
		if g.ret != nil {
			s = Merge(s, g.ret.State())
		}
	}
	return s
}

// FieldPointsTo returns the objects stored in field of o
func (r *Result) FieldPointsTo(o *Object, field *universe.Field) *TypeState {
	return r.bb.FieldState(o, field)
}

// ElementsPointsTo returns the objects stored in the elements of the array object o
func (r *Result) ElementsPointsTo(o *Object) *TypeState {
	return r.bb.ElementsState(o)
}

// StaticFieldPointsTo returns the objects stored in the static field f
func (r *Result) StaticFieldPointsTo(f *universe.Field) *TypeState {
	return r.bb.StaticFieldState(f)
}

// Objects returns all the objects created by the analysis, ordered by ID
func (r *Result) Objects() []*Object { return r.bb.registry.Objects() }

// Flows returns all the flows of the analysis, ordered by ID
func (r *Result) Flows() []*TypeFlow { return r.bb.arena.all() }

// Diagnostics returns the diagnostics reported during the analysis
func (r *Result) Diagnostics() []Diagnostic { return r.bb.diagnostics.All() }

// CallGraph returns the call graph computed by the analysis
func (r *Result) CallGraph() *CallGraph { return r.callgraph }

// Invokes returns the call sites of m, in every context
func (r *Result) Invokes(m *universe.Method) []*InvokeFlow {
	var res []*InvokeFlow
	for _, g := range r.Clones(m) {
		res = append(res, g.invokes...)
	}
	return res
}

// A CallSite is an invoke instruction of a method
type CallSite struct {
	Caller *universe.Method
	Index  int
}

func (s CallSite) String() string {
	return fmt.Sprintf("%s@%d", s.Caller, s.Index)
}

// Pos returns the position of the call site in the source
func (s CallSite) Pos() token.Position {
	return universe.AllocationSite{Method: s.Caller, Index: s.Index}.Pos()
}

// A CallEdge is a call from a call site to a callee
type CallEdge struct {
	Site   CallSite
	Callee *universe.Method
}

// A CloneEdge is a call from a call site in a caller graph to a callee graph
type CloneEdge struct {
	Caller *MethodFlowsGraph
	Index  int
	Callee *MethodFlowsGraph
}

// CallGraph is the call graph of the reachable methods, at the level of methods and at the level of their clones
type CallGraph struct {
	Roots      []*universe.Method
	sites      []CallSite
	callees    map[CallSite][]*universe.Method
	callers    map[*universe.Method][]CallSite
	cloneEdges []CloneEdge
}

func (r *Result) buildCallGraph() *CallGraph {
	cg := &CallGraph{
		Roots:   r.bb.roots,
		callees: map[CallSite][]*universe.Method{},
		callers: map[*universe.Method][]CallSite{},
	}
	for _, m := range r.reachable {
		byIndex := map[int]map[*universe.Method]bool{}
		for _, g := range r.Clones(m) {
			for _, inv := range g.invokes {
				idx := inv.instr.Index()
				if byIndex[idx] == nil {
					byIndex[idx] = map[*universe.Method]bool{}
				}
				for _, c := range inv.Callees() {
					byIndex[idx][c] = true
				}
				for _, cf := range inv.CalleesFlows() {
					cg.cloneEdges = append(cg.cloneEdges, CloneEdge{Caller: g, Index: idx, Callee: cf})
				}
			}
		}
		for idx, callees := range byIndex {
			site := CallSite{Caller: m, Index: idx}
			cg.sites = append(cg.sites, site)
			for c := range callees {
				cg.callees[site] = append(cg.callees[site], c)
				cg.callers[c] = append(cg.callers[c], site)
			}
			sort.Slice(cg.callees[site], func(i, j int) bool {
				return cg.callees[site][i].ID < cg.callees[site][j].ID
			})
		}
	}
	sort.Slice(cg.sites, func(i, j int) bool { return siteLess(cg.sites[i], cg.sites[j]) })
	for _, sites := range cg.callers {
		sort.Slice(sites, func(i, j int) bool { return siteLess(sites[i], sites[j]) })
	}
	return cg
}

func siteLess(a, b CallSite) bool {
	if a.Caller.ID != b.Caller.ID {
		return a.Caller.ID < b.Caller.ID
	}
	return a.Index < b.Index
}

// Sites returns the call sites of the reachable methods, including the sites without callees
func (cg *CallGraph) Sites() []CallSite { return cg.sites }

// Callees returns the methods called at site, ordered by ID
func (cg *CallGraph) Callees(site CallSite) []*universe.Method { return cg.callees[site] }

// Callers returns the call sites calling m
func (cg *CallGraph) Callers(m *universe.Method) []CallSite { return cg.callers[m] }

// CalleesOf returns the methods called by m at any of its call sites, ordered by ID
func (cg *CallGraph) CalleesOf(m *universe.Method) []*universe.Method {
	seen := map[*universe.Method]bool{}
	var res []*universe.Method
	for _, site := range cg.sites {
		if site.Caller != m {
			continue
		}
		for _, c := range cg.callees[site] {
			if !seen[c] {
				seen[c] = true
				res = append(res, c)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Edges returns all the call edges, ordered by call site and callee
func (cg *CallGraph) Edges() []CallEdge {
	var res []CallEdge
	for _, site := range cg.sites {
		for _, c := range cg.callees[site] {
			res = append(res, CallEdge{Site: site, Callee: c})
		}
	}
	return res
}

// CloneEdges returns the edges between the graphs of the methods
func (cg *CallGraph) CloneEdges() []CloneEdge { return cg.cloneEdges }
