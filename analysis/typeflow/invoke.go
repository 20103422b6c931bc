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

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// An InvokeFlow is a call site in a method graph. It is updated when the state of its receiver changes (or once, for
// static calls) and links the graphs of the callees it resolves to the caller's graph.
type InvokeFlow struct {
	flow   *TypeFlow
	instr  *universe.Invoke
	caller *MethodFlowsGraph
	site   universe.AllocationSite

	// actuals are the flows of the arguments, nil where the argument is NoVar
	actuals []*TypeFlow
	// actualReturn receives the returned values, nil if the result is not used
	actualReturn *TypeFlow

	resolver invokeResolver

	// linked is the set of callee graphs linked at this call site
	linked sync.Map // *MethodFlowsGraph -> struct{}

	mu      sync.Mutex
	callees map[*universe.Method]bool
}

// Kind returns the dispatch kind of the call
func (inv *InvokeFlow) Kind() universe.InvokeKind { return inv.instr.Kind }

// Instr returns the invoke instruction of the call site
func (inv *InvokeFlow) Instr() *universe.Invoke { return inv.instr }

// Caller returns the graph the call site belongs to
func (inv *InvokeFlow) Caller() *MethodFlowsGraph { return inv.caller }

// Site returns the call site
func (inv *InvokeFlow) Site() universe.AllocationSite { return inv.site }

// Flow returns the flow node of the call site
func (inv *InvokeFlow) Flow() *TypeFlow { return inv.flow }

// Receiver returns the flow of the receiver, nil for static calls
func (inv *InvokeFlow) Receiver() *TypeFlow {
	if inv.instr.Kind == universe.InvokeStatic || len(inv.actuals) == 0 {
		return nil
	}
	return inv.actuals[0]
}

// Callees returns the methods the call site resolved to, ordered by ID
func (inv *InvokeFlow) Callees() []*universe.Method {
	inv.mu.Lock()
	res := make([]*universe.Method, 0, len(inv.callees))
	for m := range inv.callees {
		res = append(res, m)
	}
	inv.mu.Unlock()
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// CalleesFlows returns the callee graphs linked at the call site
func (inv *InvokeFlow) CalleesFlows() []*MethodFlowsGraph {
	var res []*MethodFlowsGraph
	inv.linked.Range(func(k, _ any) bool {
		res = append(res, k.(*MethodFlowsGraph))
		return true
	})
	sort.Slice(res, func(i, j int) bool {
		if res[i].Method.ID != res[j].Method.ID {
			return res[i].Method.ID < res[j].Method.ID
		}
		return res[i].Context.key < res[j].Context.key
	})
	return res
}

func (inv *InvokeFlow) String() string {
	return fmt.Sprintf("%s in %s", inv.instr, inv.caller)
}

// newInvoke creates the flow of the call site instr in g. Static calls are scheduled once; other calls observe their
// receiver.
func (bb *BigBang) newInvoke(g *MethodFlowsGraph, instr *universe.Invoke) (*InvokeFlow, error) {
	f, err := bb.newFlow(InvokeFlowKind, g, fmt.Sprintf("%d.%s", instr.Index(), instr.Target.Name))
	if err != nil {
		return nil, err
	}
	f.index = instr.Index()
	inv := &InvokeFlow{
		flow:    f,
		instr:   instr,
		caller:  g,
		site:    bb.policy.CreateAllocationSite(g.Method, instr.Index()),
		actuals: make([]*TypeFlow, len(instr.Args)),
		callees: map[*universe.Method]bool{},
	}
	for i, a := range instr.Args {
		inv.actuals[i] = g.Local(a)
	}
	if instr.Dst != universe.NoVar {
		inv.actualReturn = g.Local(instr.Dst)
	}
	inv.resolver = bb.policy.newInvokeResolver(inv)
	f.invoke = inv

	if recv := inv.Receiver(); recv != nil {
		bb.addObserver(recv, f)
	} else if instr.Kind == universe.InvokeStatic {
		bb.schedule(f)
	}
	return inv, nil
}

// An invokeResolver implements the update of an invoke flow. There is one implementation per kind of call and per
// policy; all of them are idempotent: running them again on the same receiver state does not create new edges.
type invokeResolver interface {
	resolve(bb *BigBang) error
}

// target returns the method a call dispatches to for a receiver of type t, or nil if none can be found
func (inv *InvokeFlow) target(t *universe.Type) *universe.Method {
	if inv.instr.Kind == universe.InvokeSpecial {
		if inv.instr.Target.Abstract {
			return nil
		}
		return inv.instr.Target
	}
	return t.ResolveConcreteMethod(inv.instr.Target)
}

// link links callee to the call site if it has not been linked yet. The receiver is not linked: receiver objects
// are fed one at a time by the resolvers.
func (bb *BigBang) link(inv *InvokeFlow, callee *MethodFlowsGraph) {
	if _, loaded := inv.linked.LoadOrStore(callee, struct{}{}); loaded {
		return
	}
	inv.mu.Lock()
	newMethod := !inv.callees[callee.Method]
	inv.callees[callee.Method] = true
	inv.mu.Unlock()
	if newMethod && bb.logger.LogsDebug() {
		bb.logger.Debugf("call edge %s -> %s", inv, callee)
	}

	first := 0
	if inv.instr.Kind != universe.InvokeStatic {
		first = 1
	}
	for i := first; i < len(inv.actuals); i++ {
		if formal := callee.Param(i); inv.actuals[i] != nil && formal != nil {
			bb.addUse(inv.actuals[i], formal)
		}
	}
	if inv.actualReturn != nil && callee.ret != nil {
		bb.addUse(callee.ret, inv.actualReturn)
	}
}

func (bb *BigBang) reportUnknownReceiver(inv *InvokeFlow) {
	bb.reportUnknownUse(inv.flow, fmt.Sprintf("call to %s on an unknown receiver", inv.instr.Target))
}

// sensitiveInvokeResolver analyzes each callee in the context computed from each receiver object.
type sensitiveInvokeResolver struct {
	inv *InvokeFlow
}

func (r *sensitiveInvokeResolver) resolve(bb *BigBang) error {
	inv := r.inv
	receivers := inv.Receiver().State()
	if receivers.IsUnknown() {
		bb.reportUnknownReceiver(inv)
		return nil
	}
	contexts := bb.policy.ContextPolicy()
	it := receivers.TypesObjectsIterator()
	for it.HasNextType() {
		t := it.NextType()
		callee := inv.target(t)
		if callee == nil {
			it.SkipObjects(t)
			continue
		}
		mtf := bb.methodTypeFlow(callee)
		for it.HasNextObject(t) {
			o := it.NextObject(t)
			ctx := contexts.CalleeContext(o, inv.caller.Context, callee, inv.site)
			calleeFlows, err := mtf.addContext(bb, ctx)
			if err != nil {
				return err
			}
			bb.link(inv, calleeFlows)
			if recv := calleeFlows.Param(0); recv != nil {
				bb.addState(recv, SingletonState(o))
			}
		}
	}
	return nil
}

// insensitiveInvokeResolver analyzes each callee in the empty context. All the receiver objects of a type are fed
// to the callee at once.
type insensitiveInvokeResolver struct {
	inv *InvokeFlow
}

func (r *insensitiveInvokeResolver) resolve(bb *BigBang) error {
	inv := r.inv
	receivers := inv.Receiver().State()
	if receivers.IsUnknown() {
		bb.reportUnknownReceiver(inv)
		return nil
	}
	empty := bb.registry.EmptyContext()
	it := receivers.TypesObjectsIterator()
	for it.HasNextType() {
		t := it.NextType()
		callee := inv.target(t)
		var objects []*Object
		for it.HasNextObject(t) {
			objects = append(objects, it.NextObject(t))
		}
		if callee == nil {
			continue
		}
		calleeFlows, err := bb.methodTypeFlow(callee).addContext(bb, empty)
		if err != nil {
			return err
		}
		bb.link(inv, calleeFlows)
		if recv := calleeFlows.Param(0); recv != nil {
			bb.addState(recv, NewTypeState(objects...))
		}
	}
	return nil
}

// staticInvokeResolver links the unique target of a static call
type staticInvokeResolver struct {
	inv *InvokeFlow
}

func (r *staticInvokeResolver) resolve(bb *BigBang) error {
	inv := r.inv
	callee := inv.instr.Target
	if callee.Abstract {
		return nil
	}
	ctx := bb.policy.ContextPolicy().StaticCalleeContext(inv.caller.Context, callee, inv.site)
	calleeFlows, err := bb.methodTypeFlow(callee).addContext(bb, ctx)
	if err != nil {
		return err
	}
	bb.link(inv, calleeFlows)
	return nil
}
