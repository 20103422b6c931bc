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
	"sync"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// storeEntry is created once per (object, field) or static field. The flow is created by the first goroutine that
// needs it; the others wait on the once.
type storeEntry struct {
	once sync.Once
	flow *TypeFlow
	err  error
}

// objectStore returns the flow holding the values of field in o. The policy decides whether o has its own store
// (split) or uses the store of the summary object of its type (unified). Split stores forward every value written to
// them to the summary object's store, so the summary store always contains the values of all the objects of the type.
func (bb *BigBang) objectStore(o *Object, field *universe.Field) (*TypeFlow, error) {
	if bb.policy.StoreKind(o) == UnifiedStore && !bb.policy.IsSummaryObject(o) {
		o = bb.registry.Summary(o.Type)
	}
	e, _ := o.stores.LoadOrStore(field, &storeEntry{})
	entry := e.(*storeEntry)
	entry.once.Do(func() {
		entry.flow, entry.err = bb.newStore(o, field)
	})
	return entry.flow, entry.err
}

func (bb *BigBang) newStore(o *Object, field *universe.Field) (*TypeFlow, error) {
	flow, err := bb.newFlow(FieldFlow, nil, o.String()+"."+field.Name)
	if err != nil {
		return nil, err
	}
	flow.field = field
	flow.owner = o
	if bb.policy.IsSummaryObject(o) {
		return flow, nil
	}
	summaryStore, err := bb.objectStore(bb.registry.Summary(o.Type), field)
	if err != nil {
		return nil, err
	}
	bb.addUse(flow, summaryStore)
	return flow, nil
}

// staticFlow returns the flow of the static field f
func (bb *BigBang) staticFlow(f *universe.Field) (*TypeFlow, error) {
	e, _ := bb.statics.LoadOrStore(f, &storeEntry{})
	entry := e.(*storeEntry)
	entry.once.Do(func() {
		var flow *TypeFlow
		flow, entry.err = bb.newFlow(StaticFieldFlow, nil, f.String())
		if entry.err == nil {
			flow.field = f
			entry.flow = flow
		}
	})
	return entry.flow, entry.err
}

// FieldState returns the values stored in field of o. For unified stores, this is the state of the store of the
// summary object of the type of o.
func (bb *BigBang) FieldState(o *Object, field *universe.Field) *TypeState {
	if bb.policy.StoreKind(o) == UnifiedStore && !bb.policy.IsSummaryObject(o) {
		o = bb.registry.Summary(o.Type)
	}
	if e, ok := o.stores.Load(field); ok {
		if flow := e.(*storeEntry).flow; flow != nil {
			return flow.State()
		}
	}
	return EmptyState()
}

// ElementsState returns the values stored in the elements of the array object o
func (bb *BigBang) ElementsState(o *Object) *TypeState {
	return bb.FieldState(o, elementsField)
}

// StaticFieldState returns the values stored in the static field f
func (bb *BigBang) StaticFieldState(f *universe.Field) *TypeState {
	if e, ok := bb.statics.Load(f); ok {
		if flow := e.(*storeEntry).flow; flow != nil {
			return flow.State()
		}
	}
	return EmptyState()
}
