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
	"fmt"
	"go/token"
	"strings"
)

// Var is a local variable of a method body. The parameters of a method are the variables 0 to NumParams()-1.
type Var int

// NoVar is used where an instruction does not define or use a variable (e.g. the result of a void call)
const NoVar Var = -1

func (v Var) String() string {
	if v == NoVar {
		return "_"
	}
	return fmt.Sprintf("v%d", int(v))
}

// Body is the instruction list of a method. Instructions are not ordered by control flow: the analysis is
// flow-insensitive, so only the set of instructions matters.
type Body struct {
	NumVars int
	Instrs  []Instruction
}

// An Instruction is one of the instruction types defined in this file. The set of instructions is closed.
type Instruction interface {
	// Index is the position of the instruction in the body. It identifies allocation sites and call sites.
	Index() int
	// Pos is the source position of the instruction (may be invalid)
	Pos() token.Position
	String() string

	setIndex(i int, pos token.Position)
}

type instrBase struct {
	index int
	pos   token.Position
}

func (b *instrBase) Index() int          { return b.index }
func (b *instrBase) Pos() token.Position { return b.pos }
func (b *instrBase) setIndex(i int, pos token.Position) {
	b.index = i
	if !b.pos.IsValid() {
		b.pos = pos
	}
}

// Alloc creates a new object of type Type in Dst
type Alloc struct {
	instrBase
	Dst  Var
	Type *Type
}

// Const loads a constant object (a boxed literal) of type Type in Dst
type Const struct {
	instrBase
	Dst   Var
	Type  *Type
	Value string
}

// Move copies Src into Dst. Several moves into the same destination merge their values.
type Move struct {
	instrBase
	Dst Var
	Src Var
}

// Cast copies the values of Src that are subtypes of Type into Dst
type Cast struct {
	instrBase
	Dst  Var
	Src  Var
	Type *Type
}

// LoadField loads Obj.Field into Dst
type LoadField struct {
	instrBase
	Dst   Var
	Obj   Var
	Field *Field
}

// StoreField stores Src into Obj.Field
type StoreField struct {
	instrBase
	Obj   Var
	Field *Field
	Src   Var
}

// LoadStatic loads the static field Field into Dst
type LoadStatic struct {
	instrBase
	Dst   Var
	Field *Field
}

// StoreStatic stores Src into the static field Field
type StoreStatic struct {
	instrBase
	Field *Field
	Src   Var
}

// LoadElem loads any element of the array Array into Dst
type LoadElem struct {
	instrBase
	Dst   Var
	Array Var
}

// StoreElem stores Src into some element of the array Array
type StoreElem struct {
	instrBase
	Array Var
	Src   Var
}

// InvokeKind is the dispatch kind of an invocation
type InvokeKind int

const (
	// InvokeStatic calls a method without receiver
	InvokeStatic InvokeKind = iota
	// InvokeSpecial calls a fixed instance method (no dispatch on the receiver's type)
	InvokeSpecial
	// InvokeVirtual dispatches on the dynamic type of the receiver (virtual and interface calls)
	InvokeVirtual
)

func (k InvokeKind) String() string {
	switch k {
	case InvokeStatic:
		return "static"
	case InvokeSpecial:
		return "special"
	case InvokeVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("invoke(%d)", int(k))
	}
}

// Invoke calls Target with Args. For special and virtual calls, Args[0] is the receiver.
// The returned value is stored in Dst (NoVar if unused).
type Invoke struct {
	instrBase
	Kind   InvokeKind
	Target *Method
	Args   []Var
	Dst    Var
}

// Receiver returns the receiver variable of the call, or NoVar for static calls
func (i *Invoke) Receiver() Var {
	if i.Kind == InvokeStatic || len(i.Args) == 0 {
		return NoVar
	}
	return i.Args[0]
}

// Return returns Src (NoVar for void returns)
type Return struct {
	instrBase
	Src Var
}

// Unknown defines Dst as a value the analysis cannot reason about (e.g. produced by native code)
type Unknown struct {
	instrBase
	Dst Var
}

func (i *Alloc) String() string { return fmt.Sprintf("%s = new %s", i.Dst, i.Type) }
func (i *Const) String() string { return fmt.Sprintf("%s = const %s %q", i.Dst, i.Type, i.Value) }
func (i *Move) String() string  { return fmt.Sprintf("%s = %s", i.Dst, i.Src) }
func (i *Cast) String() string  { return fmt.Sprintf("%s = (%s) %s", i.Dst, i.Type, i.Src) }
func (i *LoadField) String() string {
	return fmt.Sprintf("%s = %s.%s", i.Dst, i.Obj, i.Field.Name)
}
func (i *StoreField) String() string {
	return fmt.Sprintf("%s.%s = %s", i.Obj, i.Field.Name, i.Src)
}
func (i *LoadStatic) String() string  { return fmt.Sprintf("%s = %s", i.Dst, i.Field) }
func (i *StoreStatic) String() string { return fmt.Sprintf("%s = %s", i.Field, i.Src) }
func (i *LoadElem) String() string    { return fmt.Sprintf("%s = %s[*]", i.Dst, i.Array) }
func (i *StoreElem) String() string   { return fmt.Sprintf("%s[*] = %s", i.Array, i.Src) }
func (i *Invoke) String() string {
	args := make([]string, len(i.Args))
	for k, a := range i.Args {
		args[k] = a.String()
	}
	return fmt.Sprintf("%s = invoke-%s %s(%s)", i.Dst, i.Kind, i.Target, strings.Join(args, ", "))
}
func (i *Return) String() string  { return fmt.Sprintf("return %s", i.Src) }
func (i *Unknown) String() string { return fmt.Sprintf("%s = unknown", i.Dst) }

// Defs returns the variable defined by the instruction, or NoVar
func Defs(instr Instruction) Var {
	switch i := instr.(type) {
	case *Alloc:
		return i.Dst
	case *Const:
		return i.Dst
	case *Move:
		return i.Dst
	case *Cast:
		return i.Dst
	case *LoadField:
		return i.Dst
	case *LoadStatic:
		return i.Dst
	case *LoadElem:
		return i.Dst
	case *Invoke:
		return i.Dst
	case *Unknown:
		return i.Dst
	}
	return NoVar
}

// Uses returns the variables used by the instruction
func Uses(instr Instruction) []Var {
	switch i := instr.(type) {
	case *Move:
		return []Var{i.Src}
	case *Cast:
		return []Var{i.Src}
	case *LoadField:
		return []Var{i.Obj}
	case *StoreField:
		return []Var{i.Obj, i.Src}
	case *StoreStatic:
		return []Var{i.Src}
	case *LoadElem:
		return []Var{i.Array}
	case *StoreElem:
		return []Var{i.Array, i.Src}
	case *Invoke:
		return i.Args
	case *Return:
		if i.Src != NoVar {
			return []Var{i.Src}
		}
	}
	return nil
}
