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

// Package universe defines the closed-world program model consumed by the type-flow analysis: types with their
// hierarchy, methods with instruction-level bodies, and fields. A universe is produced by a front-end (see the
// frontend package for Go programs, or the Builder for hand-made programs) and is never mutated after Build, except
// for the reachability and instantiation flags the analysis accumulates.
package universe

import (
	"fmt"
	"go/token"
	"sort"
	"sync/atomic"
)

// TypeKind distinguishes the different kinds of types in the universe.
type TypeKind int

const (
	// Class is a concrete or abstract type that can have instances and declares methods and fields.
	Class TypeKind = iota
	// Interface is a type that only declares abstract methods.
	Interface
	// Array is a type whose instances have a single element slot.
	Array
	// Closure is the type of a function value; its only method is the function body.
	Closure
	// Basic is a type without methods or fields (numbers, strings, ...)
	Basic
)

func (k TypeKind) String() string {
	switch k {
	case Class:
		return "class"
	case Interface:
		return "interface"
	case Array:
		return "array"
	case Closure:
		return "closure"
	case Basic:
		return "basic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// A Type is an abstract type of the program.
type Type struct {
	// ID is unique among all types of a universe
	ID int

	// Name is the fully qualified name of the type
	Name string

	Kind TypeKind

	// Super is the parent in the single inheritance hierarchy (nil if none)
	Super *Type

	// Interfaces lists the interfaces the type implements directly
	Interfaces []*Type

	// Abstract is true when the type cannot be instantiated
	Abstract bool

	// Elem is the element type of arrays. It may be nil for arrays of non-tracked values.
	Elem *Type

	// Fields declared by the type (instance and static)
	Fields []*Field

	methods map[string]*Method

	instantiated atomic.Bool
}

func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	return t.Name
}

// IsArray returns true if t is an array type
func (t *Type) IsArray() bool { return t.Kind == Array }

// IsInterface returns true if t is an interface type
func (t *Type) IsInterface() bool { return t.Kind == Interface }

// DeclaredMethod returns the method named name declared directly in t, or nil.
func (t *Type) DeclaredMethod(name string) *Method {
	return t.methods[name]
}

// Methods returns the methods declared in t, ordered by name.
func (t *Type) Methods() []*Method {
	ms := make([]*Method, 0, len(t.methods))
	for _, m := range t.methods {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return ms
}

// ResolveConcreteMethod returns the method that a virtual invocation of target dispatches to when the receiver has
// dynamic type t. The lookup uses single-dispatch override resolution: the closest declaration of a method with
// the same name along the super chain wins. Returns nil when no method is found, or when the closest declaration
// is abstract.
func (t *Type) ResolveConcreteMethod(target *Method) *Method {
	if target == nil {
		return nil
	}
	for cur := t; cur != nil; cur = cur.Super {
		if m, ok := cur.methods[target.Name]; ok {
			if m.Abstract {
				return nil
			}
			return m
		}
	}
	return nil
}

// IsSubtypeOf returns true if a value of type t can be assigned to a location of declared type other.
func (t *Type) IsSubtypeOf(other *Type) bool {
	if t == nil || other == nil {
		return false
	}
	if t == other {
		return true
	}
	if t.Super != nil && t.Super.IsSubtypeOf(other) {
		return true
	}
	for _, itf := range t.Interfaces {
		if itf.IsSubtypeOf(other) {
			return true
		}
	}
	return false
}

// FieldByName returns the field named name declared in t or one of its super types, or nil.
func (t *Type) FieldByName(name string) *Field {
	for cur := t; cur != nil; cur = cur.Super {
		for _, f := range cur.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// MarkInstantiated records that an object of type t was created by the analysis. Returns true the first time.
func (t *Type) MarkInstantiated() bool {
	return t.instantiated.CompareAndSwap(false, true)
}

// IsInstantiated returns true if some object of type t has been created by the analysis
func (t *Type) IsInstantiated() bool {
	return t.instantiated.Load()
}

// A Method is a method or function of the program. Instance methods have their receiver as parameter 0.
type Method struct {
	// ID is unique among all methods of a universe
	ID int

	// Name is the selector of the method. Virtual dispatch matches methods by name.
	Name string

	// Declaring is the type declaring the method. Nil for functions outside of any type.
	Declaring *Type

	// Abstract methods have no body and cannot be invoked directly
	Abstract bool

	// Static methods have no receiver
	Static bool

	// ParamTypes are the declared types of the parameters, including the receiver at index 0 for instance methods.
	// An entry may be nil when the parameter does not carry references.
	ParamTypes []*Type

	// Return is the declared type of the returned value, or nil.
	Return *Type

	// Body is nil for abstract methods and methods whose implementation is not available
	Body *Body

	Pos token.Position

	reachable atomic.Bool
}

func (m *Method) String() string {
	if m == nil {
		return "<nil method>"
	}
	if m.Declaring == nil {
		return m.Name
	}
	return m.Declaring.Name + "." + m.Name
}

// HasReceiver returns true if the method takes a receiver as parameter 0
func (m *Method) HasReceiver() bool { return !m.Static }

// NumParams returns the number of parameters, counting the receiver
func (m *Method) NumParams() int { return len(m.ParamTypes) }

// MarkReachable marks the method as reachable. Returns true if the method was not reachable before.
func (m *Method) MarkReachable() bool {
	return m.reachable.CompareAndSwap(false, true)
}

// IsReachable returns true if the analysis has found m reachable
func (m *Method) IsReachable() bool {
	return m.reachable.Load()
}

// A Field is an instance or static field. Arrays do not declare fields; their elements are accessed with the
// element instructions.
type Field struct {
	ID        int
	Name      string
	Declaring *Type
	Type      *Type
	Static    bool
}

func (f *Field) String() string {
	if f == nil {
		return "<nil field>"
	}
	if f.Declaring == nil {
		return f.Name
	}
	return f.Declaring.Name + "." + f.Name
}

// Universe contains all the program elements of a closed-world program.
type Universe struct {
	Types   []*Type
	Methods []*Method
	Fields  []*Field

	// Roots are the entry points registered by the front-end
	Roots []*Method

	typesByName   map[string]*Type
	methodsByName map[string]*Method
}

// Type returns the type with the given name, or nil
func (u *Universe) Type(name string) *Type {
	return u.typesByName[name]
}

// Method returns the method with the given qualified name (see Method.String), or nil
func (u *Universe) Method(name string) *Method {
	return u.methodsByName[name]
}

// ReachableMethods returns all the methods that have been marked reachable, ordered by ID.
func (u *Universe) ReachableMethods() []*Method {
	var res []*Method
	for _, m := range u.Methods {
		if m.IsReachable() {
			res = append(res, m)
		}
	}
	return res
}

// Subtypes returns all types of the universe that are subtypes of t (including t), ordered by ID.
func (u *Universe) Subtypes(t *Type) []*Type {
	var res []*Type
	for _, s := range u.Types {
		if s.IsSubtypeOf(t) {
			res = append(res, s)
		}
	}
	return res
}

// AllocationSite identifies a program point that creates an object: the method and the index of the instruction
// in its body. Allocation sites are comparable values and two sites for the same instruction are equal.
type AllocationSite struct {
	Method *Method
	Index  int
}

// NoSite is the site of objects that are not created by an instruction (summary objects, injected roots)
var NoSite = AllocationSite{}

func (s AllocationSite) String() string {
	if s.Method == nil {
		return "<no site>"
	}
	return fmt.Sprintf("%s@%d", s.Method.String(), s.Index)
}

// Pos returns the source position of the allocation site, if any
func (s AllocationSite) Pos() token.Position {
	if s.Method == nil || s.Method.Body == nil || s.Index < 0 || s.Index >= len(s.Method.Body.Instrs) {
		return token.Position{}
	}
	return s.Method.Body.Instrs[s.Index].Pos()
}
