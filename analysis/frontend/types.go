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

package frontend

import (
	"fmt"
	"go/types"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/go/ssa"
)

// callMethod is the name of the method invoked when a function value is called
const callMethod = "$call"

// tracked returns true if values of type t can hold references to objects. Values of other types are not
// represented in the universe.
func tracked(t types.Type) bool {
	switch t := t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Map, *types.Chan, *types.Slice, *types.Signature:
		return true
	case *types.Basic:
		return t.Kind() == types.UnsafePointer
	case *types.Struct:
		for i := 0; i < t.NumFields(); i++ {
			if tracked(t.Field(i).Type()) {
				return true
			}
		}
	case *types.Array:
		return tracked(t.Elem())
	case *types.Tuple:
		for i := 0; i < t.Len(); i++ {
			if tracked(t.At(i).Type()) {
				return true
			}
		}
	}
	return false
}

func isPointer(t types.Type) bool {
	_, ok := t.Underlying().(*types.Pointer)
	return ok
}

// typeName returns a fresh name for the universe type of t. Distinct Go types can have the same string (types
// declared in different function bodies), in which case the name gets a numeric suffix.
func (l *lowering) typeName(prefix string, t types.Type) string {
	name := prefix + types.TypeString(t, nil)
	if l.builder.LookupType(name) == nil {
		return name
	}
	for i := 1; ; i++ {
		alt := fmt.Sprintf("%s#%d", name, i)
		if l.builder.LookupType(alt) == nil {
			return alt
		}
	}
}

// objectType returns the class of the objects whose dynamic Go type is t. The methods of the class are declared
// when the class is created, and their bodies are queued for lowering.
func (l *lowering) objectType(t types.Type) *universe.Type {
	if ut, ok := l.types.At(t).(*universe.Type); ok {
		return ut
	}
	kind := universe.Class
	switch t.Underlying().(type) {
	case *types.Slice, *types.Array:
		kind = universe.Array
	}
	ut := l.builder.NewType(l.typeName("", t), kind, nil)
	l.types.Set(t, ut)
	l.concrete = append(l.concrete, goType{t, ut})

	mset := l.prog.MethodSets.MethodSet(t)
	for i := 0; i < mset.Len(); i++ {
		fn := l.prog.MethodValue(mset.At(i))
		if fn == nil {
			continue
		}
		l.method(fn)
	}
	return ut
}

// interfaceType returns the universe interface of the Go interface type t
func (l *lowering) interfaceType(t types.Type) *universe.Type {
	if ut, ok := l.types.At(t).(*universe.Type); ok {
		return ut
	}
	ut := l.builder.Interface(l.typeName("", t))
	l.types.Set(t, ut)
	l.interfaces = append(l.interfaces, goType{t, ut})

	itf := t.Underlying().(*types.Interface)
	for i := 0; i < itf.NumMethods(); i++ {
		m := itf.Method(i)
		sig := m.Type().(*types.Signature)
		l.builder.AbstractMethod(ut, m.Id(), l.paramTypes(sig.Params()), l.returnType(sig.Results()))
	}
	return ut
}

// signatureType returns the interface implemented by all the function values with signature sig. The receiver of
// sig is ignored.
func (l *lowering) signatureType(sig *types.Signature) *universe.Type {
	key := types.NewSignatureType(nil, nil, nil, sig.Params(), sig.Results(), sig.Variadic())
	if ut, ok := l.signatures.At(key).(*universe.Type); ok {
		return ut
	}
	ut := l.builder.Interface(l.typeName("$sig ", key))
	l.signatures.Set(key, ut)
	l.builder.AbstractMethod(ut, callMethod, l.paramTypes(sig.Params()), l.returnType(sig.Results()))
	return ut
}

// closureType returns the closure type of fn. Closures of anonymous functions with free variables have one field per
// free variable; other functions used as values are constant objects of their closure type.
func (l *lowering) closureType(fn *ssa.Function) *universe.Type {
	if ut, ok := l.closures[fn]; ok {
		return ut
	}
	ut := l.builder.NewType("closure "+fn.String(), universe.Closure, nil)
	l.closures[fn] = ut
	l.builder.AddInterface(ut, l.signatureType(fn.Signature))
	for _, fv := range fn.FreeVars {
		l.builder.Field(ut, fv.Name(), l.declaredType(fv.Type()))
	}
	return ut
}

// declaredType returns the universe type used as the declared type of a parameter or result of type t, or nil when
// values of type t are not objects of the universe.
func (l *lowering) declaredType(t types.Type) *universe.Type {
	switch t.Underlying().(type) {
	case *types.Interface:
		return l.interfaceType(t)
	case *types.Signature:
		return l.signatureType(t.Underlying().(*types.Signature))
	case *types.Pointer, *types.Map, *types.Chan, *types.Slice:
		return l.objectType(t)
	}
	return nil
}

func (l *lowering) paramTypes(params *types.Tuple) []*universe.Type {
	res := make([]*universe.Type, params.Len())
	for i := range res {
		res[i] = l.declaredType(params.At(i).Type())
	}
	return res
}

// returnType returns the declared return type of a method with results. Methods without tracked results have no
// return type. Other results that are not objects (tuples, struct values) are declared as the empty interface.
func (l *lowering) returnType(results *types.Tuple) *universe.Type {
	if !tracked(results) {
		return nil
	}
	if results.Len() == 1 {
		if ut := l.declaredType(results.At(0).Type()); ut != nil {
			return ut
		}
	}
	return l.interfaceType(types.NewInterfaceType(nil, nil).Complete())
}

// addImplementations records the interfaces implemented by every class. It must run after all the types have been
// created.
func (l *lowering) addImplementations() {
	for _, c := range l.concrete {
		for _, i := range l.interfaces {
			if types.Implements(c.goType, i.goType.Underlying().(*types.Interface)) {
				l.builder.AddInterface(c.universeType, i.universeType)
			}
		}
	}
}

type goType struct {
	goType       types.Type
	universeType *universe.Type
}
