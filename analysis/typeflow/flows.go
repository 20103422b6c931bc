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
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/container/intsets"
)

// NodeID identifies a flow in the arena of an analysis
type NodeID int

// FlowKind is the kind of a flow node. The set of kinds is closed and the engine switches on it to update flows.
type FlowKind int

const (
	// SourceFlow is the flow of an allocation, a constant or an unknown value
	SourceFlow FlowKind = iota
	// LocalFlow is the flow of a local variable
	LocalFlow
	// ParameterFlow is the flow of a formal parameter (including the receiver)
	ParameterFlow
	// ReturnFlow is the flow of the values returned by a method
	ReturnFlow
	// FilterFlow keeps the objects of its inputs that are subtypes of its declared type
	FilterFlow
	// FieldFlow holds the values stored in a field or in the elements of an object
	FieldFlow
	// StaticFieldFlow holds the values stored in a static field
	StaticFieldFlow
	// LoadFlow reads a field or the elements of the objects of another flow
	LoadFlow
	// StoreFlow writes its inputs to a field or the elements of the objects of another flow
	StoreFlow
	// InvokeFlowKind is the flow of a call site
	InvokeFlowKind
)

func (k FlowKind) String() string {
	switch k {
	case SourceFlow:
		return "source"
	case LocalFlow:
		return "local"
	case ParameterFlow:
		return "param"
	case ReturnFlow:
		return "return"
	case FilterFlow:
		return "filter"
	case FieldFlow:
		return "field"
	case StaticFieldFlow:
		return "static"
	case LoadFlow:
		return "load"
	case StoreFlow:
		return "store"
	case InvokeFlowKind:
		return "invoke"
	default:
		return fmt.Sprintf("flow(%d)", int(k))
	}
}

// elementsField is the pseudo-field of the elements of arrays
var elementsField = &universe.Field{ID: -1, Name: "[*]"}

// scheduling states of a flow
const (
	flowIdle int32 = iota
	flowQueued
	flowRunning
	flowDirty // running, and must run again
)

// A TypeFlow is a node of the type-flow graph. Its state only grows. When the state changes, it is pushed to the uses
// of the flow, and the observers of the flow are scheduled.
//
// The uses and observers are stored as node identifiers, and resolved through the arena of the analysis.
type TypeFlow struct {
	id    NodeID
	kind  FlowKind
	graph *MethodFlowsGraph
	label string
	// index is the instruction the flow was created for, or -1
	index int

	// declared is the type of filter flows
	declared *universe.Type
	// field is the accessed field of loads, stores and field flows (elementsField for array elements)
	field *universe.Field
	// object is the flow of the objects accessed by loads and stores
	object *TypeFlow
	// owner is the object of field flows
	owner *Object
	// invoke is set for invoke flows
	invoke *InvokeFlow

	state atomic.Pointer[TypeState]

	mu        sync.Mutex
	uses      intsets.Sparse
	observers intsets.Sparse
	numInputs atomic.Int32

	sched  atomic.Int32
	merges atomic.Int64

	// fields below are only accessed by the goroutine processing the flow
	lastSize int
	seen     intsets.Sparse
}

// ID returns the identifier of the flow in the arena
func (f *TypeFlow) ID() NodeID { return f.id }

// Kind returns the kind of the flow
func (f *TypeFlow) Kind() FlowKind { return f.kind }

// State returns the current state of the flow. After the analysis, it is the points-to set of the flow.
func (f *TypeFlow) State() *TypeState { return f.state.Load() }

// Graph returns the method graph the flow belongs to, or nil for field and static field flows
func (f *TypeFlow) Graph() *MethodFlowsGraph { return f.graph }

// Field returns the field accessed by load, store and field flows
func (f *TypeFlow) Field() *universe.Field { return f.field }

// Owner returns the object of a field flow
func (f *TypeFlow) Owner() *Object { return f.owner }

// Invoke returns the call site of an invoke flow, nil for other kinds
func (f *TypeFlow) Invoke() *InvokeFlow { return f.invoke }

// Merges returns the number of merges noted by the policy for this flow
func (f *TypeFlow) Merges() int64 { return f.merges.Load() }

// NumInputs returns the number of flows that have f as use
func (f *TypeFlow) NumInputs() int { return int(f.numInputs.Load()) }

// Uses returns the identifiers of the flows the state of f is pushed to
func (f *TypeFlow) Uses() []NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return toNodeIDs(&f.uses)
}

// Observers returns the identifiers of the flows that are scheduled when the state of f changes
func (f *TypeFlow) Observers() []NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return toNodeIDs(&f.observers)
}

func toNodeIDs(s *intsets.Sparse) []NodeID {
	ints := s.AppendTo(nil)
	res := make([]NodeID, len(ints))
	for i, x := range ints {
		res[i] = NodeID(x)
	}
	return res
}

func (f *TypeFlow) String() string {
	if f.graph != nil {
		return fmt.Sprintf("%s#%d(%s in %s%s)", f.kind, f.id, f.label, f.graph.Method, f.graph.Context)
	}
	return fmt.Sprintf("%s#%d(%s)", f.kind, f.id, f.label)
}

// flowArena owns all the flows of an analysis. Flows are never removed.
type flowArena struct {
	mu    sync.RWMutex
	nodes []*TypeFlow
	limit int
}

func (a *flowArena) add(f *TypeFlow) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && len(a.nodes) >= a.limit {
		return &FatalError{Kind: NodeBudget, Node: -1,
			Detail: fmt.Sprintf("cannot create %s: the analysis is limited to %d flows", f.label, a.limit)}
	}
	f.id = NodeID(len(a.nodes))
	a.nodes = append(a.nodes, f)
	return nil
}

func (a *flowArena) get(id NodeID) *TypeFlow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[id]
}

func (a *flowArena) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}

func (a *flowArena) all() []*TypeFlow {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]*TypeFlow, len(a.nodes))
	copy(res, a.nodes)
	return res
}

// newFlow creates a flow with an empty state and registers it in the arena
func (bb *BigBang) newFlow(kind FlowKind, graph *MethodFlowsGraph, label string) (*TypeFlow, error) {
	f := &TypeFlow{kind: kind, graph: graph, label: label, index: -1}
	f.state.Store(EmptyState())
	f.seen.Clear()
	if err := bb.arena.add(f); err != nil {
		return nil, err
	}
	if graph != nil {
		graph.flows = append(graph.flows, f)
	}
	return f, nil
}

// addState merges add into the state of f, and schedules f if its state changed. Returns true if the state changed.
func (bb *BigBang) addState(f *TypeFlow, add *TypeState) bool {
	if add == nil || add.IsEmpty() {
		return false
	}
	if f.kind == FilterFlow {
		add = add.Filter(func(o *Object) bool { return o.Type.IsSubtypeOf(f.declared) })
		if add.IsEmpty() {
			return false
		}
	}
	for {
		old := f.state.Load()
		merged := Merge(old, add)
		if merged == old {
			return false
		}
		if f.state.CompareAndSwap(old, merged) {
			break
		}
	}
	if f.numInputs.Load() > 1 && bb.policy.IsMergingEnabled() {
		bb.policy.NoteMerge(f, add)
	}
	bb.schedule(f)
	return true
}

// addUse adds the edge from -> to and pushes the current state of from to to.
func (bb *BigBang) addUse(from *TypeFlow, to *TypeFlow) {
	from.mu.Lock()
	added := from.uses.Insert(int(to.id))
	from.mu.Unlock()
	if added {
		to.numInputs.Add(1)
		bb.addState(to, from.State())
	}
}

// addObserver registers obs as an observer of f. The observer is scheduled once immediately so that it sees the
// current state of f.
func (bb *BigBang) addObserver(f *TypeFlow, obs *TypeFlow) {
	f.mu.Lock()
	added := f.observers.Insert(int(obs.id))
	f.mu.Unlock()
	if added {
		bb.schedule(obs)
	}
}

// schedule puts f in the work queue unless it is already queued. If f is being processed, it is marked dirty and the
// worker processing it will queue it again.
func (bb *BigBang) schedule(f *TypeFlow) {
	for {
		switch s := f.sched.Load(); s {
		case flowIdle:
			if f.sched.CompareAndSwap(flowIdle, flowQueued) {
				bb.worklist.push(f)
				return
			}
		case flowRunning:
			if f.sched.CompareAndSwap(flowRunning, flowDirty) {
				return
			}
		default:
			return
		}
	}
}

// process updates f from a snapshot of its state, pushes the snapshot to its uses and schedules its observers.
// Only one goroutine processes a given flow at a time.
func (bb *BigBang) process(f *TypeFlow) error {
	bb.evaluations.Add(1)
	snapshot := f.State()
	if err := bb.checkMonotonic(f, snapshot); err != nil {
		return err
	}
	if bb.logger.LogsTrace() {
		bb.logger.Tracef("update %s: %s", f, snapshot)
	}

	switch f.kind {
	case LoadFlow:
		if err := bb.updateLoad(f); err != nil {
			return err
		}
	case StoreFlow:
		if err := bb.updateStore(f); err != nil {
			return err
		}
	case InvokeFlowKind:
		if err := f.invoke.resolver.resolve(bb); err != nil {
			return err
		}
	}

	f.mu.Lock()
	uses := f.uses.AppendTo(nil)
	observers := f.observers.AppendTo(nil)
	f.mu.Unlock()

	if !snapshot.IsEmpty() {
		for _, id := range uses {
			bb.addState(bb.arena.get(NodeID(id)), snapshot)
		}
	}
	for _, id := range observers {
		bb.schedule(bb.arena.get(NodeID(id)))
	}
	return nil
}

func (bb *BigBang) checkMonotonic(f *TypeFlow, s *TypeState) error {
	size := s.Size()
	if s.IsUnknown() {
		size = int(^uint(0) >> 1)
	}
	if size < f.lastSize {
		return &FatalError{Kind: Monotonicity, Node: f.id,
			Detail: fmt.Sprintf("state of %s went from %d to %d objects", f, f.lastSize, size)}
	}
	f.lastSize = size
	return nil
}

// updateLoad links the stores of the objects accessed by the load to the load
func (bb *BigBang) updateLoad(f *TypeFlow) error {
	objects := f.object.State()
	if objects.IsUnknown() {
		bb.reportUnknownUse(f, fmt.Sprintf("load of %s from an unknown value", f.field.Name))
		bb.addState(f, UnknownState())
		return nil
	}
	for _, o := range objects.objects {
		if !f.seen.Insert(o.ID) {
			continue
		}
		store, err := bb.objectStore(o, f.field)
		if err != nil {
			return err
		}
		bb.addUse(store, f)
	}
	return nil
}

// updateStore links the store to the stores of the objects it writes to
func (bb *BigBang) updateStore(f *TypeFlow) error {
	objects := f.object.State()
	if objects.IsUnknown() {
		bb.reportUnknownUse(f, fmt.Sprintf("store of %s into an unknown value", f.field.Name))
		return nil
	}
	for _, o := range objects.objects {
		if !f.seen.Insert(o.ID) {
			continue
		}
		store, err := bb.objectStore(o, f.field)
		if err != nil {
			return err
		}
		bb.addUse(f, store)
	}
	return nil
}

func (bb *BigBang) reportUnknownUse(f *TypeFlow, msg string) {
	if !bb.opts.ReportUnknownUses || f.graph == nil {
		return
	}
	d := Diagnostic{Kind: IllegalUnknownUse, Method: f.graph.Method, Index: f.index, Message: msg}
	if f.index >= 0 && f.graph.Method.Body != nil && f.index < len(f.graph.Method.Body.Instrs) {
		d.Pos = f.graph.Method.Body.Instrs[f.index].Pos()
	}
	if bb.diagnostics.Report(d) {
		bb.logger.Warnf("%s", d)
	}
}
