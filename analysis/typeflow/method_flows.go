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
	"sort"
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// A MethodTypeFlow stores the flow graphs of a method: one graph per context the method is analyzed in. The graph
// of the empty context is the template used by the context-insensitive analysis.
type MethodTypeFlow struct {
	method    *universe.Method
	clones    sync.Map // *Context -> *cloneEntry
	numClones atomic.Int32
}

type cloneEntry struct {
	once  sync.Once
	graph *MethodFlowsGraph
	err   error
}

// Method returns the method whose graphs are stored
func (mtf *MethodTypeFlow) Method() *universe.Method { return mtf.method }

// NumClones returns the number of graphs created for the method
func (mtf *MethodTypeFlow) NumClones() int { return int(mtf.numClones.Load()) }

// Clones returns the graphs of the method, ordered by context
func (mtf *MethodTypeFlow) Clones() []*MethodFlowsGraph {
	var res []*MethodFlowsGraph
	mtf.clones.Range(func(_, v any) bool {
		if g := v.(*cloneEntry).graph; g != nil {
			res = append(res, g)
		}
		return true
	})
	sort.Slice(res, func(i, j int) bool { return res[i].Context.key < res[j].Context.key })
	return res
}

// lookup returns the graph of the method in ctx if it has been created
func (mtf *MethodTypeFlow) lookup(ctx *Context) *MethodFlowsGraph {
	if e, ok := mtf.clones.Load(ctx); ok {
		return e.(*cloneEntry).graph
	}
	return nil
}

// addContext returns the graph of the method in ctx, creating it if needed. The graph of a (method, context) pair
// is created exactly once: concurrent callers wait for the creation and get the same graph.
func (mtf *MethodTypeFlow) addContext(bb *BigBang, ctx *Context) (*MethodFlowsGraph, error) {
	e, _ := mtf.clones.LoadOrStore(ctx, &cloneEntry{})
	entry := e.(*cloneEntry)
	entry.once.Do(func() {
		entry.graph, entry.err = bb.instantiate(mtf.method, ctx)
		if entry.err == nil {
			mtf.numClones.Add(1)
			bb.clones.Add(1)
		}
	})
	return entry.graph, entry.err
}

// A MethodFlowsGraph is the flow graph of a method analyzed in one context.
type MethodFlowsGraph struct {
	Method  *universe.Method
	Context *Context

	// locals has one flow per variable of the body. The parameters are the first variables.
	locals []*TypeFlow
	ret    *TypeFlow

	invokes []*InvokeFlow
	flows   []*TypeFlow
}

// Param returns the flow of the i-th parameter (the receiver is parameter 0 of instance methods)
func (g *MethodFlowsGraph) Param(i int) *TypeFlow {
	if i < 0 || i >= g.Method.NumParams() || i >= len(g.locals) {
		return nil
	}
	return g.locals[i]
}

// Local returns the flow of variable v, or nil
func (g *MethodFlowsGraph) Local(v universe.Var) *TypeFlow {
	if v < 0 || int(v) >= len(g.locals) {
		return nil
	}
	return g.locals[v]
}

// Return returns the flow of the returned values, or nil if the method does not return a value
func (g *MethodFlowsGraph) Return() *TypeFlow { return g.ret }

// Invokes returns the call sites of the graph, in instruction order
func (g *MethodFlowsGraph) Invokes() []*InvokeFlow { return g.invokes }

// Flows returns all the flows created for the graph
func (g *MethodFlowsGraph) Flows() []*TypeFlow { return g.flows }

func (g *MethodFlowsGraph) String() string {
	return g.Method.String() + g.Context.String()
}

// methodTypeFlow returns the graph store of m
func (bb *BigBang) methodTypeFlow(m *universe.Method) *MethodTypeFlow {
	if v, ok := bb.methods.Load(m); ok {
		return v.(*MethodTypeFlow)
	}
	v, _ := bb.methods.LoadOrStore(m, &MethodTypeFlow{method: m})
	return v.(*MethodTypeFlow)
}

// instantiate creates the flow graph of m in ctx: one flow per variable, the return flow, and the flows of the
// instructions of the body, linked together.
//
//gocyclo:ignore
func (bb *BigBang) instantiate(m *universe.Method, ctx *Context) (*MethodFlowsGraph, error) {
	if m.MarkReachable() {
		bb.logger.Debugf("reachable: %s", m)
	}
	g := &MethodFlowsGraph{Method: m, Context: ctx}

	numVars := m.NumParams()
	if m.Body != nil && m.Body.NumVars > numVars {
		numVars = m.Body.NumVars
	}
	g.locals = make([]*TypeFlow, numVars)
	for i := range g.locals {
		kind := LocalFlow
		if i < m.NumParams() {
			kind = ParameterFlow
		}
		f, err := bb.newFlow(kind, g, universe.Var(i).String())
		if err != nil {
			return nil, err
		}
		g.locals[i] = f
	}
	if m.Return != nil {
		f, err := bb.newFlow(ReturnFlow, g, "return")
		if err != nil {
			return nil, err
		}
		g.ret = f
	}
	if m.Body == nil {
		return g, nil
	}

	heapCtx := bb.policy.ContextPolicy().HeapContext(ctx)
	for _, instr := range m.Body.Instrs {
		idx := instr.Index()
		label := fmt.Sprintf("%d", idx)
		switch i := instr.(type) {
		case *universe.Alloc:
			site := bb.policy.CreateAllocationSite(m, idx)
			obj := bb.policy.CreateHeapObject(i.Type, site, heapCtx)
			if err := bb.source(g, idx, label, SingletonState(obj), g.locals[i.Dst]); err != nil {
				return nil, err
			}
		case *universe.Const:
			obj := bb.policy.CreateConstantObject(i.Type, i.Value)
			if err := bb.source(g, idx, label, SingletonState(obj), g.locals[i.Dst]); err != nil {
				return nil, err
			}
		case *universe.Unknown:
			if err := bb.source(g, idx, label, UnknownState(), g.locals[i.Dst]); err != nil {
				return nil, err
			}
		case *universe.Move:
			bb.addUse(g.locals[i.Src], g.locals[i.Dst])
		case *universe.Cast:
			f, err := bb.newFlow(FilterFlow, g, label)
			if err != nil {
				return nil, err
			}
			f.index = idx
			f.declared = i.Type
			bb.addUse(f, g.locals[i.Dst])
			bb.addUse(g.locals[i.Src], f)
		case *universe.LoadField:
			if err := bb.access(g, LoadFlow, idx, i.Field, g.locals[i.Obj], g.locals[i.Dst]); err != nil {
				return nil, err
			}
		case *universe.StoreField:
			if err := bb.access(g, StoreFlow, idx, i.Field, g.locals[i.Obj], g.locals[i.Src]); err != nil {
				return nil, err
			}
		case *universe.LoadElem:
			if err := bb.access(g, LoadFlow, idx, elementsField, g.locals[i.Array], g.locals[i.Dst]); err != nil {
				return nil, err
			}
		case *universe.StoreElem:
			if err := bb.access(g, StoreFlow, idx, elementsField, g.locals[i.Array], g.locals[i.Src]); err != nil {
				return nil, err
			}
		case *universe.LoadStatic:
			sf, err := bb.staticFlow(i.Field)
			if err != nil {
				return nil, err
			}
			bb.addUse(sf, g.locals[i.Dst])
		case *universe.StoreStatic:
			sf, err := bb.staticFlow(i.Field)
			if err != nil {
				return nil, err
			}
			bb.addUse(g.locals[i.Src], sf)
		case *universe.Return:
			if i.Src != universe.NoVar && g.ret != nil {
				bb.addUse(g.locals[i.Src], g.ret)
			}
		case *universe.Invoke:
			inv, err := bb.newInvoke(g, i)
			if err != nil {
				return nil, err
			}
			g.invokes = append(g.invokes, inv)
		default:
			return nil, fmt.Errorf("unexpected instruction %T in %s", instr, m)
		}
	}
	return g, nil
}

// source creates a flow with a fixed state that flows into dst
func (bb *BigBang) source(g *MethodFlowsGraph, idx int, label string, state *TypeState, dst *TypeFlow) error {
	f, err := bb.newFlow(SourceFlow, g, label)
	if err != nil {
		return err
	}
	f.index = idx
	bb.addUse(f, dst)
	bb.addState(f, state)
	return nil
}

// access creates the load or store flow of a field or elements access. For loads, value is the flow receiving the
// loaded values; for stores, it is the flow of the stored values.
func (bb *BigBang) access(g *MethodFlowsGraph, kind FlowKind, idx int, field *universe.Field, object *TypeFlow,
	value *TypeFlow) error {
	f, err := bb.newFlow(kind, g, fmt.Sprintf("%d.%s", idx, field.Name))
	if err != nil {
		return err
	}
	f.index = idx
	f.field = field
	f.object = object
	if kind == LoadFlow {
		bb.addUse(f, value)
	} else {
		bb.addUse(value, f)
	}
	bb.addObserver(object, f)
	return nil
}
