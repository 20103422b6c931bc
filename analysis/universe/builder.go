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

package universe

import (
	"errors"
	"fmt"
	"go/token"
)

// A Builder creates the elements of a universe. All elements receive stable IDs in creation order.
// A Builder is not safe for concurrent use.
type Builder struct {
	types   []*Type
	methods []*Method
	fields  []*Field
	roots   []*Method
	arrays  map[*Type]*Type
	byName  map[string]*Type
	bodies  []*MethodBuilder
	errs    []error
	built   bool
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{
		arrays: map[*Type]*Type{},
		byName: map[string]*Type{},
	}
}

// NewType creates a type. If a type with the same name already exists, it is returned unchanged.
func (b *Builder) NewType(name string, kind TypeKind, super *Type, interfaces ...*Type) *Type {
	if t, ok := b.byName[name]; ok {
		return t
	}
	t := &Type{
		ID:         len(b.types),
		Name:       name,
		Kind:       kind,
		Super:      super,
		Interfaces: interfaces,
		Abstract:   kind == Interface,
		methods:    map[string]*Method{},
	}
	b.types = append(b.types, t)
	b.byName[name] = t
	return t
}

// Class creates a concrete class
func (b *Builder) Class(name string, super *Type, interfaces ...*Type) *Type {
	return b.NewType(name, Class, super, interfaces...)
}

// AbstractClass creates a class that cannot be instantiated
func (b *Builder) AbstractClass(name string, super *Type, interfaces ...*Type) *Type {
	t := b.NewType(name, Class, super, interfaces...)
	t.Abstract = true
	return t
}

// Interface creates an interface type extending the provided interfaces
func (b *Builder) Interface(name string, extends ...*Type) *Type {
	return b.NewType(name, Interface, nil, extends...)
}

// LookupType returns the type named name, or nil
func (b *Builder) LookupType(name string) *Type {
	return b.byName[name]
}

// ArrayOf returns the array type with element type elem. Array types are cached per element type.
func (b *Builder) ArrayOf(elem *Type) *Type {
	if t, ok := b.arrays[elem]; ok {
		return t
	}
	t := b.NewType(elem.String()+"[]", Array, nil)
	t.Elem = elem
	b.arrays[elem] = t
	return t
}

// AddInterface records that t implements itf
func (b *Builder) AddInterface(t *Type, itf *Type) {
	for _, x := range t.Interfaces {
		if x == itf {
			return
		}
	}
	t.Interfaces = append(t.Interfaces, itf)
}

// Field creates an instance field of t
func (b *Builder) Field(t *Type, name string, fieldType *Type) *Field {
	if f := t.FieldByName(name); f != nil && f.Declaring == t {
		return f
	}
	f := &Field{ID: len(b.fields), Name: name, Declaring: t, Type: fieldType}
	b.fields = append(b.fields, f)
	t.Fields = append(t.Fields, f)
	return f
}

// StaticField creates a static field. The owner may be nil for global variables.
func (b *Builder) StaticField(owner *Type, name string, fieldType *Type) *Field {
	f := &Field{ID: len(b.fields), Name: name, Declaring: owner, Type: fieldType, Static: true}
	b.fields = append(b.fields, f)
	if owner != nil {
		owner.Fields = append(owner.Fields, f)
	}
	return f
}

func (b *Builder) newMethod(owner *Type, name string, static bool, abstract bool, params []*Type,
	ret *Type) *Method {
	var allParams []*Type
	if !static {
		allParams = append(allParams, owner)
	}
	allParams = append(allParams, params...)
	m := &Method{
		ID:         len(b.methods),
		Name:       name,
		Declaring:  owner,
		Abstract:   abstract,
		Static:     static,
		ParamTypes: allParams,
		Return:     ret,
	}
	b.methods = append(b.methods, m)
	if owner != nil {
		if prev, ok := owner.methods[name]; ok {
			b.errs = append(b.errs, fmt.Errorf("method %s redeclared (previous id %d)", m, prev.ID))
		}
		owner.methods[name] = m
	}
	return m
}

// AbstractMethod declares an abstract instance method of t. params do not include the receiver.
func (b *Builder) AbstractMethod(t *Type, name string, params []*Type, ret *Type) *Method {
	return b.newMethod(t, name, false, true, params, ret)
}

// NativeMethod declares a concrete instance method without body. Calls to it link the parameters but nothing
// flows out of it.
func (b *Builder) NativeMethod(t *Type, name string, params []*Type, ret *Type) *Method {
	return b.newMethod(t, name, false, false, params, ret)
}

// Method declares a concrete instance method of t and returns a builder for its body. params do not include the
// receiver, which is variable 0 of the body.
func (b *Builder) Method(t *Type, name string, params []*Type, ret *Type) *MethodBuilder {
	m := b.newMethod(t, name, false, false, params, ret)
	return b.body(m)
}

// StaticMethod declares a static method (owner may be nil) and returns a builder for its body.
func (b *Builder) StaticMethod(owner *Type, name string, params []*Type, ret *Type) *MethodBuilder {
	m := b.newMethod(owner, name, true, false, params, ret)
	return b.body(m)
}

// AddRoot registers m as an entry point of the universe
func (b *Builder) AddRoot(m *Method) {
	b.roots = append(b.roots, m)
}

func (b *Builder) body(m *Method) *MethodBuilder {
	m.Body = &Body{NumVars: m.NumParams()}
	mb := &MethodBuilder{builder: b, method: m}
	b.bodies = append(b.bodies, mb)
	return mb
}

// Build validates all the method bodies and returns the universe. The builder cannot be used after Build.
func (b *Builder) Build() (*Universe, error) {
	if b.built {
		return nil, fmt.Errorf("builder already used")
	}
	b.built = true
	errs := append([]error{}, b.errs...)
	for _, mb := range b.bodies {
		errs = append(errs, validateBody(mb.method)...)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid universe: %w", errors.Join(errs...))
	}
	u := &Universe{
		Types:         b.types,
		Methods:       b.methods,
		Fields:        b.fields,
		Roots:         b.roots,
		typesByName:   b.byName,
		methodsByName: make(map[string]*Method, len(b.methods)),
	}
	for _, m := range b.methods {
		u.methodsByName[m.String()] = m
	}
	return u, nil
}

func validateBody(m *Method) []error {
	var errs []error
	body := m.Body
	checkVar := func(instr Instruction, v Var, allowNone bool) {
		if v == NoVar && allowNone {
			return
		}
		if v < 0 || int(v) >= body.NumVars {
			errs = append(errs, fmt.Errorf("%s: instruction %d (%s) uses out of range variable %s",
				m, instr.Index(), instr, v))
		}
	}
	for _, instr := range body.Instrs {
		if d := Defs(instr); d != NoVar {
			checkVar(instr, d, false)
		}
		for _, u := range Uses(instr) {
			_, isInvoke := instr.(*Invoke)
			checkVar(instr, u, isInvoke)
		}
		switch i := instr.(type) {
		case *Invoke:
			if i.Target == nil {
				errs = append(errs, fmt.Errorf("%s: invoke %d has no target", m, i.Index()))
				continue
			}
			if len(i.Args) != i.Target.NumParams() {
				errs = append(errs, fmt.Errorf("%s: invoke %d of %s has %d arguments, expected %d", m,
					i.Index(), i.Target, len(i.Args), i.Target.NumParams()))
			}
			if (i.Kind == InvokeStatic) != i.Target.Static {
				errs = append(errs, fmt.Errorf("%s: invoke %d has kind %s but target %s static=%v", m,
					i.Index(), i.Kind, i.Target, i.Target.Static))
			}
		case *LoadField:
			if i.Field == nil || i.Field.Static {
				errs = append(errs, fmt.Errorf("%s: load %d needs an instance field", m, i.Index()))
			}
		case *StoreField:
			if i.Field == nil || i.Field.Static {
				errs = append(errs, fmt.Errorf("%s: store %d needs an instance field", m, i.Index()))
			}
		case *LoadStatic:
			if i.Field == nil || !i.Field.Static {
				errs = append(errs, fmt.Errorf("%s: static load %d needs a static field", m, i.Index()))
			}
		case *StoreStatic:
			if i.Field == nil || !i.Field.Static {
				errs = append(errs, fmt.Errorf("%s: static store %d needs a static field", m, i.Index()))
			}
		case *Alloc:
			if i.Type == nil || i.Type.Abstract {
				errs = append(errs, fmt.Errorf("%s: allocation %d of abstract or nil type %s", m, i.Index(),
					i.Type))
			}
		}
	}
	return errs
}

// A MethodBuilder emits the instructions of one method body.
type MethodBuilder struct {
	builder *Builder
	method  *Method
	pos     token.Position
}

// Method returns the method being built
func (mb *MethodBuilder) Method() *Method { return mb.method }

// Param returns the variable of parameter i (the receiver is parameter 0 of instance methods)
func (mb *MethodBuilder) Param(i int) Var { return Var(i) }

// NewVar allocates a fresh variable
func (mb *MethodBuilder) NewVar() Var {
	v := Var(mb.method.Body.NumVars)
	mb.method.Body.NumVars++
	return v
}

// At sets the source position of the next emitted instructions
func (mb *MethodBuilder) At(pos token.Position) *MethodBuilder {
	mb.pos = pos
	return mb
}

// Emit appends instr to the body and returns its index
func (mb *MethodBuilder) Emit(instr Instruction) int {
	idx := len(mb.method.Body.Instrs)
	instr.setIndex(idx, mb.pos)
	mb.method.Body.Instrs = append(mb.method.Body.Instrs, instr)
	return idx
}

// Alloc emits an allocation and returns the variable holding the new object
func (mb *MethodBuilder) Alloc(t *Type) Var {
	v := mb.NewVar()
	mb.Emit(&Alloc{Dst: v, Type: t})
	return v
}

// Const emits a constant and returns the variable holding it
func (mb *MethodBuilder) Const(t *Type, value string) Var {
	v := mb.NewVar()
	mb.Emit(&Const{Dst: v, Type: t, Value: value})
	return v
}

// Move emits dst = src
func (mb *MethodBuilder) Move(dst Var, src Var) {
	mb.Emit(&Move{Dst: dst, Src: src})
}

// Cast emits a cast of src to t and returns the result variable
func (mb *MethodBuilder) Cast(src Var, t *Type) Var {
	v := mb.NewVar()
	mb.Emit(&Cast{Dst: v, Src: src, Type: t})
	return v
}

// Load emits a field load and returns the result variable
func (mb *MethodBuilder) Load(obj Var, f *Field) Var {
	v := mb.NewVar()
	mb.Emit(&LoadField{Dst: v, Obj: obj, Field: f})
	return v
}

// Store emits obj.f = src
func (mb *MethodBuilder) Store(obj Var, f *Field, src Var) {
	mb.Emit(&StoreField{Obj: obj, Field: f, Src: src})
}

// LoadStatic emits a static field load and returns the result variable
func (mb *MethodBuilder) LoadStatic(f *Field) Var {
	v := mb.NewVar()
	mb.Emit(&LoadStatic{Dst: v, Field: f})
	return v
}

// StoreStatic emits f = src for a static field f
func (mb *MethodBuilder) StoreStatic(f *Field, src Var) {
	mb.Emit(&StoreStatic{Field: f, Src: src})
}

// LoadElem emits an array element load and returns the result variable
func (mb *MethodBuilder) LoadElem(array Var) Var {
	v := mb.NewVar()
	mb.Emit(&LoadElem{Dst: v, Array: array})
	return v
}

// StoreElem emits array[*] = src
func (mb *MethodBuilder) StoreElem(array Var, src Var) {
	mb.Emit(&StoreElem{Array: array, Src: src})
}

func (mb *MethodBuilder) invoke(kind InvokeKind, target *Method, args []Var) Var {
	dst := NoVar
	if target.Return != nil {
		dst = mb.NewVar()
	}
	mb.Emit(&Invoke{Kind: kind, Target: target, Args: args, Dst: dst})
	return dst
}

// InvokeStatic emits a static call and returns the variable holding the result (NoVar if target returns nothing)
func (mb *MethodBuilder) InvokeStatic(target *Method, args ...Var) Var {
	return mb.invoke(InvokeStatic, target, args)
}

// InvokeSpecial emits a non-virtual instance call on receiver
func (mb *MethodBuilder) InvokeSpecial(target *Method, receiver Var, args ...Var) Var {
	return mb.invoke(InvokeSpecial, target, append([]Var{receiver}, args...))
}

// InvokeVirtual emits a virtual call dispatched on receiver
func (mb *MethodBuilder) InvokeVirtual(target *Method, receiver Var, args ...Var) Var {
	return mb.invoke(InvokeVirtual, target, append([]Var{receiver}, args...))
}

// Return emits a return of src (NoVar for void returns)
func (mb *MethodBuilder) Return(src Var) {
	mb.Emit(&Return{Src: src})
}

// Unknown emits the definition of a value the analysis cannot reason about
func (mb *MethodBuilder) Unknown() Var {
	v := mb.NewVar()
	mb.Emit(&Unknown{Dst: v})
	return v
}
