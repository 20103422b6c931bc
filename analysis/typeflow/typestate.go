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
	"sort"
	"strings"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/container/intsets"
)

// A TypeState is an immutable set of abstract objects, ordered by type and then by object. The unknown state is the
// top of the lattice: it absorbs every other state.
//
// TypeStates are never modified after construction and can be shared between goroutines without synchronization.
// They must be manipulated through pointers.
type TypeState struct {
	unknown bool
	// objects sorted by (Type.ID, ID), without duplicates
	objects []*Object
	// ids contains the ID of every object in objects
	ids      intsets.Sparse
	numTypes int
}

var (
	emptyState   = &TypeState{}
	unknownState = &TypeState{unknown: true}
)

func init() {
	// an uninitialized intsets.Sparse initializes itself lazily on reads, which would race between readers
	emptyState.ids.Clear()
	unknownState.ids.Clear()
}

// EmptyState returns the empty type state
func EmptyState() *TypeState { return emptyState }

// UnknownState returns the state of values the analysis cannot reason about
func UnknownState() *TypeState { return unknownState }

// SingletonState returns the state containing only o
func SingletonState(o *Object) *TypeState {
	s := &TypeState{objects: []*Object{o}, numTypes: 1}
	s.ids.Insert(o.ID)
	return s
}

// NewTypeState returns the state containing the objects objs. The slice is not retained.
func NewTypeState(objs ...*Object) *TypeState {
	if len(objs) == 0 {
		return emptyState
	}
	sorted := make([]*Object, len(objs))
	copy(sorted, objs)
	sort.Slice(sorted, func(i, j int) bool { return objectLess(sorted[i], sorted[j]) })
	return newSortedState(dedupSorted(sorted))
}

// newSortedState takes ownership of objs, which must be sorted and without duplicates
func newSortedState(objs []*Object) *TypeState {
	if len(objs) == 0 {
		return emptyState
	}
	s := &TypeState{objects: objs}
	var last *universe.Type
	for _, o := range objs {
		s.ids.Insert(o.ID)
		if o.Type != last {
			s.numTypes++
			last = o.Type
		}
	}
	return s
}

func objectLess(a, b *Object) bool {
	if a.Type.ID != b.Type.ID {
		return a.Type.ID < b.Type.ID
	}
	return a.ID < b.ID
}

func dedupSorted(objs []*Object) []*Object {
	if len(objs) < 2 {
		return objs
	}
	j := 1
	for i := 1; i < len(objs); i++ {
		if objs[i] != objs[j-1] {
			objs[j] = objs[i]
			j++
		}
	}
	return objs[:j]
}

// IsUnknown returns true if s is the unknown state
func (s *TypeState) IsUnknown() bool { return s.unknown }

// IsEmpty returns true if s contains no object and is not unknown
func (s *TypeState) IsEmpty() bool { return !s.unknown && len(s.objects) == 0 }

// Size returns the number of objects in s. The unknown state has size 0.
func (s *TypeState) Size() int { return len(s.objects) }

// NumTypes returns the number of distinct types of the objects of s
func (s *TypeState) NumTypes() int { return s.numTypes }

// Contains returns true if o is in s
func (s *TypeState) Contains(o *Object) bool {
	return o != nil && s.ids.Has(o.ID)
}

// ContainsType returns true if some object of s has type t
func (s *TypeState) ContainsType(t *universe.Type) bool {
	i := sort.Search(len(s.objects), func(i int) bool { return s.objects[i].Type.ID >= t.ID })
	return i < len(s.objects) && s.objects[i].Type == t
}

// Objects returns the objects of s, ordered by type
func (s *TypeState) Objects() []*Object {
	res := make([]*Object, len(s.objects))
	copy(res, s.objects)
	return res
}

// Types returns the distinct types of the objects of s, ordered by ID
func (s *TypeState) Types() []*universe.Type {
	res := make([]*universe.Type, 0, s.numTypes)
	for _, o := range s.objects {
		if len(res) == 0 || res[len(res)-1] != o.Type {
			res = append(res, o.Type)
		}
	}
	return res
}

// ObjectsOfType returns the objects of s of type t
func (s *TypeState) ObjectsOfType(t *universe.Type) []*Object {
	i := sort.Search(len(s.objects), func(i int) bool { return s.objects[i].Type.ID >= t.ID })
	j := i
	for j < len(s.objects) && s.objects[j].Type == t {
		j++
	}
	res := make([]*Object, j-i)
	copy(res, s.objects[i:j])
	return res
}

// IsSupersetOf returns true if every object of other is in s. The unknown state is a superset of every state.
func (s *TypeState) IsSupersetOf(other *TypeState) bool {
	if s.unknown {
		return true
	}
	if other.unknown {
		return false
	}
	if len(other.objects) == 0 {
		return true
	}
	if len(other.objects) > len(s.objects) {
		return false
	}
	return other.ids.SubsetOf(&s.ids)
}

// Equals returns true if s and other contain the same objects
func (s *TypeState) Equals(other *TypeState) bool {
	if s == other {
		return true
	}
	if s.unknown || other.unknown {
		return s.unknown == other.unknown
	}
	return len(s.objects) == len(other.objects) && s.ids.Equals(&other.ids)
}

// Merge returns the union of a and b. When one of the states contains the other, that state is returned unchanged:
// callers can test whether a merge changed a state by comparing pointers.
func Merge(a, b *TypeState) *TypeState {
	switch {
	case a.unknown:
		return a
	case b.unknown:
		return b
	case a.IsSupersetOf(b):
		return a
	case b.IsSupersetOf(a):
		return b
	}
	merged := make([]*Object, 0, len(a.objects)+len(b.objects))
	i, j := 0, 0
	for i < len(a.objects) && j < len(b.objects) {
		x, y := a.objects[i], b.objects[j]
		switch {
		case x == y:
			merged = append(merged, x)
			i++
			j++
		case objectLess(x, y):
			merged = append(merged, x)
			i++
		default:
			merged = append(merged, y)
			j++
		}
	}
	merged = append(merged, a.objects[i:]...)
	merged = append(merged, b.objects[j:]...)
	return newSortedState(merged)
}

// Filter returns the state containing the objects of s that satisfy keep. The unknown state is returned unchanged:
// filtering cannot make an unknown value known.
func (s *TypeState) Filter(keep func(o *Object) bool) *TypeState {
	if s.unknown {
		return s
	}
	var res []*Object
	for _, o := range s.objects {
		if keep(o) {
			res = append(res, o)
		}
	}
	if len(res) == len(s.objects) {
		return s
	}
	return newSortedState(res)
}

func (s *TypeState) String() string {
	if s.unknown {
		return "{unknown}"
	}
	var b strings.Builder
	b.WriteString("{")
	for i, o := range s.objects {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.String())
	}
	b.WriteString("}")
	return b.String()
}

// TypesObjectsIterator iterates over the types of a state and, for each type, over the objects of that type.
//
// Usage:
//
//	it := state.TypesObjectsIterator()
//	for it.HasNextType() {
//		t := it.NextType()
//		for it.HasNextObject(t) {
//			o := it.NextObject(t)
//		}
//	}
//
// Moving to the next type is only allowed once all the objects of the current type have been visited. The iterator
// cannot be restarted: get a new iterator from the state instead.
type TypesObjectsIterator struct {
	objects []*Object
	next    int
	current *universe.Type
}

// TypesObjectsIterator returns a fresh iterator over s
func (s *TypeState) TypesObjectsIterator() *TypesObjectsIterator {
	return &TypesObjectsIterator{objects: s.objects}
}

// HasNextType returns true if there is another type to visit
func (it *TypesObjectsIterator) HasNextType() bool {
	return it.next < len(it.objects)
}

// NextType moves to the next type. It panics if objects of the current type have not been visited.
func (it *TypesObjectsIterator) NextType() *universe.Type {
	if it.current != nil && it.next < len(it.objects) && it.objects[it.next].Type == it.current {
		panic("typeflow: NextType called before visiting all objects of " + it.current.Name)
	}
	if it.next >= len(it.objects) {
		panic("typeflow: NextType called on a completed iterator")
	}
	it.current = it.objects[it.next].Type
	return it.current
}

// HasNextObject returns true if there is another object of type t to visit
func (it *TypesObjectsIterator) HasNextObject(t *universe.Type) bool {
	return t == it.current && it.next < len(it.objects) && it.objects[it.next].Type == t
}

// NextObject returns the next object of type t
func (it *TypesObjectsIterator) NextObject(t *universe.Type) *Object {
	if !it.HasNextObject(t) {
		panic("typeflow: no more objects of type " + t.Name)
	}
	o := it.objects[it.next]
	it.next++
	return o
}

// SkipObjects visits all the remaining objects of type t
func (it *TypesObjectsIterator) SkipObjects(t *universe.Type) {
	for it.HasNextObject(t) {
		it.next++
	}
}
