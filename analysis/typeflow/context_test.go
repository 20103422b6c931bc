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
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

func testSites(n int) []universe.AllocationSite {
	b := universe.NewBuilder()
	m := b.StaticMethod(nil, "f", nil, nil)
	var sites []universe.AllocationSite
	for i := 0; i < n; i++ {
		sites = append(sites, universe.AllocationSite{Method: m.Method(), Index: i})
	}
	return sites
}

func TestContextCanonical(t *testing.T) {
	r := NewRegistry()
	sites := testSites(2)
	e0 := ContextElement{Kind: AllocationElement, Site: sites[0]}
	e1 := ContextElement{Kind: CallSiteElement, Site: sites[1]}

	c1 := r.Context([]ContextElement{e0, e1})
	c2 := r.Context([]ContextElement{e0, e1})
	if c1 != c2 {
		t.Errorf("equal contexts should be the same pointer")
	}
	if r.Context([]ContextElement{e1, e0}) == c1 {
		t.Errorf("the order of elements matters")
	}
	// the kind of element is part of the identity
	if r.Context([]ContextElement{{Kind: CallSiteElement, Site: sites[0]}, e1}) == c1 {
		t.Errorf("an allocation element and a call site element with the same site are different")
	}
	if r.Context(nil) != r.EmptyContext() || !r.EmptyContext().IsEmpty() {
		t.Errorf("the empty context should be canonical")
	}
	if r.NumContexts() != 4 {
		t.Errorf("expected 4 distinct contexts, got %d", r.NumContexts())
	}
}

func TestObjectContextPolicyTruncation(t *testing.T) {
	r := NewRegistry()
	b := universe.NewBuilder()
	ta := b.Class("A", nil)
	sites := testSites(4)

	p, err := NewContextPolicy(r, "object", 2, 1)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	heap := r.Context([]ContextElement{
		{Kind: AllocationElement, Site: sites[0]},
		{Kind: AllocationElement, Site: sites[1]},
	})
	o, _ := r.Allocation(ta, sites[2], heap, 0)
	ctx := p.CalleeContext(o, r.EmptyContext(), nil, sites[3])
	// the most recent elements win
	want := r.Context([]ContextElement{
		{Kind: AllocationElement, Site: sites[1]},
		{Kind: AllocationElement, Site: sites[2]},
	})
	if ctx != want {
		t.Errorf("expected callee context %s, got %s", want, ctx)
	}
	if h := p.HeapContext(ctx); h.Len() != 1 || h.Elements()[0].Site != sites[2] {
		t.Errorf("heap context should keep the last element, got %s", h)
	}

	if c := p.CalleeContext(r.Summary(ta), ctx, nil, sites[3]); c != r.EmptyContext() {
		t.Errorf("calls on summary objects should be analyzed in the empty context, got %s", c)
	}
	if c := p.StaticCalleeContext(ctx, nil, sites[3]); c != ctx {
		t.Errorf("static calls should keep the caller context, got %s", c)
	}
}

func TestCallSiteContextPolicy(t *testing.T) {
	r := NewRegistry()
	sites := testSites(3)
	p, err := NewContextPolicy(r, "callsite", 2, 0)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	c := r.EmptyContext()
	for _, s := range sites {
		c = p.StaticCalleeContext(c, nil, s)
	}
	if c.Len() != 2 {
		t.Fatalf("context should be truncated to 2 elements, got %s", c)
	}
	els := c.Elements()
	if els[0].Site != sites[1] || els[1].Site != sites[2] || els[0].Kind != CallSiteElement {
		t.Errorf("unexpected context %s", c)
	}
	if p.HeapContext(c) != r.EmptyContext() {
		t.Errorf("heap depth 0 should give the empty heap context")
	}
	if p.CalleeContext(nil, r.EmptyContext(), nil, sites[0]) != p.StaticCalleeContext(r.EmptyContext(), nil, sites[0]) {
		t.Errorf("call-site sensitivity ignores the receiver")
	}
}

func TestUnknownContextPolicy(t *testing.T) {
	if _, err := NewContextPolicy(NewRegistry(), "type", 1, 1); err == nil {
		t.Errorf("expected an error for an unknown kind of context")
	}
}

func TestZeroDepthIsInsensitive(t *testing.T) {
	r := NewRegistry()
	b := universe.NewBuilder()
	ta := b.Class("A", nil)
	sites := testSites(2)
	p, _ := NewContextPolicy(r, "object", 0, 0)
	o, _ := r.Allocation(ta, sites[0], r.EmptyContext(), 0)
	if c := p.CalleeContext(o, r.EmptyContext(), nil, sites[1]); c != r.EmptyContext() {
		t.Errorf("depth 0 should always give the empty context, got %s", c)
	}
}
