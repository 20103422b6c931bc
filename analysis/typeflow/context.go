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
	"strconv"
	"strings"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// ContextElementKind distinguishes the two kinds of context elements
type ContextElementKind int

const (
	// AllocationElement is the allocation site of a receiver (object sensitivity)
	AllocationElement ContextElementKind = iota
	// CallSiteElement is a call site (call-site sensitivity)
	CallSiteElement
)

// A ContextElement is one element of a Context: either an allocation site or a call site
type ContextElement struct {
	Kind ContextElementKind
	Site universe.AllocationSite
}

func (e ContextElement) String() string {
	if e.Kind == CallSiteElement {
		return "call:" + e.Site.String()
	}
	return "new:" + e.Site.String()
}

// A Context is a bounded sequence of context elements, oldest first. Contexts are interned by a Registry, so equal
// contexts are the same pointer and can be used as map keys.
type Context struct {
	elements []ContextElement
	key      string
}

// IsEmpty returns true if the context has no elements
func (c *Context) IsEmpty() bool { return c == nil || len(c.elements) == 0 }

// Len returns the number of elements of the context
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.elements)
}

// Elements returns a copy of the elements of the context, oldest first
func (c *Context) Elements() []ContextElement {
	return append([]ContextElement(nil), c.elements...)
}

func (c *Context) String() string {
	if c.IsEmpty() {
		return "[]"
	}
	parts := make([]string, len(c.elements))
	for i, e := range c.elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func contextKey(elements []ContextElement) string {
	var b strings.Builder
	for _, e := range elements {
		if e.Kind == CallSiteElement {
			b.WriteByte('c')
		} else {
			b.WriteByte('a')
		}
		if e.Site.Method != nil {
			b.WriteString(strconv.Itoa(e.Site.Method.ID))
		}
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(e.Site.Index))
		b.WriteByte(';')
	}
	return b.String()
}

// lastN returns the n most recent elements of elements
func lastN(elements []ContextElement, n int) []ContextElement {
	if n <= 0 {
		return nil
	}
	if len(elements) > n {
		return elements[len(elements)-n:]
	}
	return elements
}

func appendTruncated(prefix []ContextElement, e ContextElement, n int) []ContextElement {
	elements := make([]ContextElement, 0, len(prefix)+1)
	elements = append(elements, prefix...)
	elements = append(elements, e)
	return lastN(elements, n)
}

// A ContextPolicy computes the contexts of methods and allocated objects. The contexts returned are canonical:
// equal inputs produce the same pointer.
type ContextPolicy interface {
	Name() string

	// CalleeContext returns the context in which callee is analyzed when invoked on receiver at site, from a caller
	// analyzed in caller.
	CalleeContext(receiver *Object, caller *Context, callee *universe.Method, site universe.AllocationSite) *Context

	// StaticCalleeContext returns the context of callee when invoked without a receiver
	StaticCalleeContext(caller *Context, callee *universe.Method, site universe.AllocationSite) *Context

	// HeapContext returns the context of the objects allocated by a method analyzed in ctx
	HeapContext(ctx *Context) *Context
}

// NewContextPolicy returns the context policy of the given kind ("object" or "callsite"). The depth bounds the length of
// method contexts, and heapDepth bounds the length of object contexts.
func NewContextPolicy(r *Registry, kind string, depth int, heapDepth int) (ContextPolicy, error) {
	switch kind {
	case "object", "":
		return &objectContextPolicy{registry: r, depth: depth, heapDepth: heapDepth}, nil
	case "callsite":
		return &callSiteContextPolicy{registry: r, depth: depth, heapDepth: heapDepth}, nil
	default:
		return nil, fmt.Errorf("unknown context policy %q", kind)
	}
}

// insensitiveContextPolicy analyzes every method in the empty context
type insensitiveContextPolicy struct {
	registry *Registry
}

func (p *insensitiveContextPolicy) Name() string { return "insensitive" }

func (p *insensitiveContextPolicy) CalleeContext(*Object, *Context, *universe.Method,
	universe.AllocationSite) *Context {
	return p.registry.EmptyContext()
}

func (p *insensitiveContextPolicy) StaticCalleeContext(*Context, *universe.Method, universe.AllocationSite) *Context {
	return p.registry.EmptyContext()
}

func (p *insensitiveContextPolicy) HeapContext(*Context) *Context {
	return p.registry.EmptyContext()
}

// objectContextPolicy implements object sensitivity: the context of a method is the receiver's heap context followed
// by the receiver's allocation site. Static calls keep the caller's context.
type objectContextPolicy struct {
	registry  *Registry
	depth     int
	heapDepth int
}

func (p *objectContextPolicy) Name() string {
	return fmt.Sprintf("%d-object-sensitive+%d-heap", p.depth, p.heapDepth)
}

func (p *objectContextPolicy) CalleeContext(receiver *Object, _ *Context, _ *universe.Method,
	_ universe.AllocationSite) *Context {
	if receiver == nil || receiver.Kind != AllocationObject {
		// summaries and constants do not have an allocation site to distinguish them
		return p.registry.EmptyContext()
	}
	e := ContextElement{Kind: AllocationElement, Site: receiver.Site}
	return p.registry.Context(appendTruncated(receiver.Context.elements, e, p.depth))
}

func (p *objectContextPolicy) StaticCalleeContext(caller *Context, _ *universe.Method,
	_ universe.AllocationSite) *Context {
	return caller
}

func (p *objectContextPolicy) HeapContext(ctx *Context) *Context {
	if ctx.Len() <= p.heapDepth {
		return ctx
	}
	return p.registry.Context(lastN(ctx.elements, p.heapDepth))
}

// callSiteContextPolicy implements call-string sensitivity: the context of a method is the list of the most recent
// call sites leading to it.
type callSiteContextPolicy struct {
	registry  *Registry
	depth     int
	heapDepth int
}

func (p *callSiteContextPolicy) Name() string {
	return fmt.Sprintf("%d-call-site-sensitive+%d-heap", p.depth, p.heapDepth)
}

func (p *callSiteContextPolicy) CalleeContext(_ *Object, caller *Context, callee *universe.Method,
	site universe.AllocationSite) *Context {
	return p.StaticCalleeContext(caller, callee, site)
}

func (p *callSiteContextPolicy) StaticCalleeContext(caller *Context, _ *universe.Method,
	site universe.AllocationSite) *Context {
	e := ContextElement{Kind: CallSiteElement, Site: site}
	return p.registry.Context(appendTruncated(caller.elements, e, p.depth))
}

func (p *callSiteContextPolicy) HeapContext(ctx *Context) *Context {
	if ctx.Len() <= p.heapDepth {
		return ctx
	}
	return p.registry.Context(lastN(ctx.elements, p.heapDepth))
}
