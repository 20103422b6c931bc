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
	"strings"
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// ObjectKind is the kind of an abstract object
type ObjectKind int

const (
	// AllocationObject is the abstraction of the objects allocated at one site under one heap context
	AllocationObject ObjectKind = iota
	// SummaryObject is the unique, context-insensitive object of a type
	SummaryObject
	// ConstantObject wraps a constant value
	ConstantObject
)

func (k ObjectKind) String() string {
	switch k {
	case AllocationObject:
		return "alloc"
	case SummaryObject:
		return "summary"
	case ConstantObject:
		return "const"
	default:
		return fmt.Sprintf("object(%d)", int(k))
	}
}

// An Object is an abstract heap object. Objects are created and interned by a Registry: two objects are the same
// abstraction if and only if they are the same pointer.
type Object struct {
	// ID is unique in the registry that created the object
	ID   int
	Kind ObjectKind
	Type *universe.Type

	// Site is the allocation site of allocation objects, and universe.NoSite for the other kinds
	Site universe.AllocationSite

	// Context is the heap context of allocation objects, and the empty context for the other kinds
	Context *Context

	// Constant is the literal value of constant objects
	Constant string

	merged atomic.Bool

	// stores maps a storeKey to the flow holding the values stored in the field or elements of the object
	stores sync.Map
}

// IsSummary returns true if o is a summary object
func (o *Object) IsSummary() bool { return o.Kind == SummaryObject }

// Merged returns true if the policy noted that o flowed into a merge
func (o *Object) Merged() bool { return o.merged.Load() }

func (o *Object) String() string {
	switch o.Kind {
	case SummaryObject:
		return o.Type.Name + "#summary"
	case ConstantObject:
		return fmt.Sprintf("%s#%q", o.Type.Name, o.Constant)
	default:
		if o.Context.IsEmpty() {
			return fmt.Sprintf("%s#%s", o.Type.Name, o.Site)
		}
		return fmt.Sprintf("%s#%s%s", o.Type.Name, o.Site, o.Context)
	}
}

type allocationKey struct {
	t    *universe.Type
	site universe.AllocationSite
	ctx  *Context
}

type siteKey struct {
	t    *universe.Type
	site universe.AllocationSite
}

type constantKey struct {
	t     *universe.Type
	value string
}

// A Registry interns the contexts and abstract objects of one analysis run. All its methods are safe for concurrent
// use and return canonical instances: concurrent requests for the same key get the same pointer.
type Registry struct {
	contexts    sync.Map // string -> *Context
	numContexts atomic.Int32
	empty       *Context

	mu           sync.Mutex
	objects      []*Object
	allocations  map[allocationKey]*Object
	siteContexts map[siteKey]int
	constants    map[constantKey]*Object
	summaries    map[*universe.Type]*Object
	collapses    int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	r := &Registry{
		allocations:  map[allocationKey]*Object{},
		siteContexts: map[siteKey]int{},
		constants:    map[constantKey]*Object{},
		summaries:    map[*universe.Type]*Object{},
	}
	r.empty = r.Context(nil)
	return r
}

// EmptyContext returns the canonical empty context
func (r *Registry) EmptyContext() *Context { return r.empty }

// Context returns the canonical context with the given elements. The slice is not retained.
func (r *Registry) Context(elements []ContextElement) *Context {
	key := contextKey(elements)
	if c, ok := r.contexts.Load(key); ok {
		return c.(*Context)
	}
	c := &Context{elements: append([]ContextElement(nil), elements...), key: key}
	actual, loaded := r.contexts.LoadOrStore(key, c)
	if !loaded {
		r.numContexts.Add(1)
	}
	return actual.(*Context)
}

// NumContexts returns the number of distinct contexts created
func (r *Registry) NumContexts() int { return int(r.numContexts.Load()) }

// newObject must be called with r.mu held
func (r *Registry) newObject(kind ObjectKind, t *universe.Type, site universe.AllocationSite, ctx *Context,
	value string) *Object {
	o := &Object{
		ID:       len(r.objects),
		Kind:     kind,
		Type:     t,
		Site:     site,
		Context:  ctx,
		Constant: value,
	}
	r.objects = append(r.objects, o)
	t.MarkInstantiated()
	return o
}

// Summary returns the summary object of t
func (r *Registry) Summary(t *universe.Type) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked(t)
}

func (r *Registry) summaryLocked(t *universe.Type) *Object {
	if o, ok := r.summaries[t]; ok {
		return o
	}
	o := r.newObject(SummaryObject, t, universe.NoSite, r.empty, "")
	r.summaries[t] = o
	return o
}

// Allocation returns the allocation object for (t, site, ctx). If budget > 0 and the site already has budget
// distinct contexts for t, the summary object of t is returned instead and collapsed is true.
func (r *Registry) Allocation(t *universe.Type, site universe.AllocationSite, ctx *Context,
	budget int) (obj *Object, collapsed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := allocationKey{t, site, ctx}
	if o, ok := r.allocations[key]; ok {
		return o, false
	}
	sk := siteKey{t, site}
	if budget > 0 && r.siteContexts[sk] >= budget {
		r.collapses++
		return r.summaryLocked(t), true
	}
	r.siteContexts[sk]++
	o := r.newObject(AllocationObject, t, site, ctx, "")
	r.allocations[key] = o
	return o, false
}

// Constant returns the constant object for the value of type t
func (r *Registry) Constant(t *universe.Type, value string) *Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := constantKey{t, value}
	if o, ok := r.constants[key]; ok {
		return o
	}
	o := r.newObject(ConstantObject, t, universe.NoSite, r.empty, value)
	r.constants[key] = o
	return o
}

// Objects returns all the objects created, ordered by ID
func (r *Registry) Objects() []*Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Object, len(r.objects))
	copy(res, r.objects)
	return res
}

// ObjectsOfType returns the objects of type t, ordered by ID
func (r *Registry) ObjectsOfType(t *universe.Type) []*Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*Object
	for _, o := range r.objects {
		if o.Type == t {
			res = append(res, o)
		}
	}
	return res
}

// Collapses returns the number of allocations that were collapsed to a summary object because of the budget
func (r *Registry) Collapses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collapses
}

// ObjectsString returns a description of all objects, one per line, sorted by name. Used in logs and reports.
func (r *Registry) ObjectsString() string {
	objs := r.Objects()
	lines := make([]string, len(objs))
	for i, o := range objs {
		lines[i] = fmt.Sprintf("%s (%s)", o, o.Kind)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
