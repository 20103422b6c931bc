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
	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// StoreKind is the kind of storage used for the fields and array elements of an object
type StoreKind int

const (
	// UnifiedStore shares one store per field among all the objects of a type: the store of the summary object
	UnifiedStore StoreKind = iota
	// SplitStore gives each object its own store. Writes are forwarded to the summary object's store.
	SplitStore
)

func (k StoreKind) String() string {
	if k == SplitStore {
		return "split"
	}
	return "unified"
}

// A Policy decides how precisely objects, stores and invocations are analyzed. Exactly one policy is used during an
// analysis run, and the engine consults it every time it creates an object, a store or an invoke flow.
//
// The set of policies is closed: see NewPolicy.
type Policy interface {
	// Name returns a short description of the policy
	Name() string

	// ContextPolicy returns the policy computing method and heap contexts
	ContextPolicy() ContextPolicy

	// IsContextSensitiveAllocation returns true if the allocations of t in a method analyzed in ctx are distinguished
	// by their site and context. When false, they are represented by the summary object of t.
	IsContextSensitiveAllocation(t *universe.Type, ctx *Context) bool

	// NeedsConstantCache returns true if constants are interned per (type, value)
	NeedsConstantCache() bool

	// IsSummaryObject returns true if o represents all the objects of its type
	IsSummaryObject(o *Object) bool

	// IsMergingEnabled returns true if the policy keeps track of merges
	IsMergingEnabled() bool

	// NoteMerge is called when the state of flow grows and flow has several inputs. It must not change the state
	// of the flow.
	NoteMerge(flow *TypeFlow, added *TypeState)

	// NoteMergeObjects records that the objects have been merged with other values
	NoteMergeObjects(objs ...*Object)

	// CreateAllocationSite returns the canonical allocation site of the instruction at index in m
	CreateAllocationSite(m *universe.Method, index int) universe.AllocationSite

	// CreateHeapObject returns the object representing an allocation of t at site in a method analyzed in ctx
	CreateHeapObject(t *universe.Type, site universe.AllocationSite, ctx *Context) *Object

	// CreateConstantObject returns the object representing the constant value of type t
	CreateConstantObject(t *universe.Type, value string) *Object

	// StoreKind returns the kind of stores used for the fields and elements of o
	StoreKind(o *Object) StoreKind

	newInvokeResolver(inv *InvokeFlow) invokeResolver
}

// NewPolicy returns the policy selected by the type-flow options: the context-sensitive policy when
// opts.ContextSensitive is set, otherwise the context-insensitive one.
func NewPolicy(opts config.TypeFlowOptions, r *Registry, logger *config.LogGroup) (Policy, error) {
	if !opts.ContextSensitive {
		return &insensitivePolicy{
			registry: r,
			contexts: &insensitiveContextPolicy{registry: r},
		}, nil
	}
	cp, err := NewContextPolicy(r, opts.ContextKind, opts.MaxContextDepth, opts.HeapDepth())
	if err != nil {
		return nil, err
	}
	return &sensitivePolicy{
		registry: r,
		contexts: cp,
		opts:     opts,
		logger:   logger,
	}, nil
}

// sensitivePolicy tracks allocations per (site, heap context) until the budget of the site is exhausted, uses split
// stores when enabled, and resolves virtual calls with one callee clone per receiver context.
type sensitivePolicy struct {
	registry *Registry
	contexts ContextPolicy
	opts     config.TypeFlowOptions
	logger   *config.LogGroup
}

func (p *sensitivePolicy) Name() string {
	return "context-sensitive(" + p.contexts.Name() + ")"
}

func (p *sensitivePolicy) ContextPolicy() ContextPolicy { return p.contexts }

func (p *sensitivePolicy) IsContextSensitiveAllocation(t *universe.Type, _ *Context) bool {
	return !t.Abstract && p.opts.IsTrackedType(t.Name)
}

func (p *sensitivePolicy) NeedsConstantCache() bool { return true }

func (p *sensitivePolicy) IsSummaryObject(o *Object) bool { return o.Kind == SummaryObject }

func (p *sensitivePolicy) IsMergingEnabled() bool { return true }

func (p *sensitivePolicy) NoteMerge(flow *TypeFlow, added *TypeState) {
	flow.merges.Add(1)
	if added != nil {
		p.NoteMergeObjects(added.objects...)
	}
}

func (p *sensitivePolicy) NoteMergeObjects(objs ...*Object) {
	for _, o := range objs {
		if !o.merged.Load() {
			o.merged.Store(true)
		}
	}
}

func (p *sensitivePolicy) CreateAllocationSite(m *universe.Method, index int) universe.AllocationSite {
	return universe.AllocationSite{Method: m, Index: index}
}

func (p *sensitivePolicy) CreateHeapObject(t *universe.Type, site universe.AllocationSite, ctx *Context) *Object {
	if !p.IsContextSensitiveAllocation(t, ctx) {
		return p.registry.Summary(t)
	}
	o, collapsed := p.registry.Allocation(t, site, ctx, p.opts.TypeTrackingBudget)
	if collapsed && p.logger.LogsDebug() {
		p.logger.Debugf("allocation of %s at %s in %s collapsed to the summary object", t, site, ctx)
	}
	return o
}

func (p *sensitivePolicy) CreateConstantObject(t *universe.Type, value string) *Object {
	if !p.opts.IsTrackedType(t.Name) {
		return p.registry.Summary(t)
	}
	return p.registry.Constant(t, value)
}

func (p *sensitivePolicy) StoreKind(o *Object) StoreKind {
	if p.opts.SplitStores && o.Kind != SummaryObject {
		return SplitStore
	}
	return UnifiedStore
}

func (p *sensitivePolicy) newInvokeResolver(inv *InvokeFlow) invokeResolver {
	if inv.Kind() == universe.InvokeStatic {
		return &staticInvokeResolver{inv: inv}
	}
	return &sensitiveInvokeResolver{inv: inv}
}

// insensitivePolicy represents every object of a type by its summary object and analyzes each method once.
type insensitivePolicy struct {
	registry *Registry
	contexts ContextPolicy
}

func (p *insensitivePolicy) Name() string { return "context-insensitive" }

func (p *insensitivePolicy) ContextPolicy() ContextPolicy { return p.contexts }

func (p *insensitivePolicy) IsContextSensitiveAllocation(*universe.Type, *Context) bool { return false }

func (p *insensitivePolicy) NeedsConstantCache() bool { return false }

func (p *insensitivePolicy) IsSummaryObject(o *Object) bool { return o.Kind == SummaryObject }

func (p *insensitivePolicy) IsMergingEnabled() bool { return false }

func (p *insensitivePolicy) NoteMerge(*TypeFlow, *TypeState) {}

func (p *insensitivePolicy) NoteMergeObjects(...*Object) {}

func (p *insensitivePolicy) CreateAllocationSite(m *universe.Method, index int) universe.AllocationSite {
	return universe.AllocationSite{Method: m, Index: index}
}

func (p *insensitivePolicy) CreateHeapObject(t *universe.Type, _ universe.AllocationSite, _ *Context) *Object {
	return p.registry.Summary(t)
}

func (p *insensitivePolicy) CreateConstantObject(t *universe.Type, _ string) *Object {
	return p.registry.Summary(t)
}

func (p *insensitivePolicy) StoreKind(*Object) StoreKind { return UnifiedStore }

func (p *insensitivePolicy) newInvokeResolver(inv *InvokeFlow) invokeResolver {
	if inv.Kind() == universe.InvokeStatic {
		return &staticInvokeResolver{inv: inv}
	}
	return &insensitiveInvokeResolver{inv: inv}
}
