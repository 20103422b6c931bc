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
	"go/token"
	"go/types"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/types/typeutil"
)

// lowering holds the state of the translation of an SSA program into a universe. Functions are lowered on demand:
// declaring a method queues its body, and lowering a body declares the methods and types it references.
type lowering struct {
	prog    *ssa.Program
	builder *universe.Builder
	logger  *config.LogGroup

	// types maps Go types to their class (concrete types) or interface (interface types)
	types typeutil.Map
	// signatures maps receiver-less signatures to the interface of the function values of that signature
	signatures typeutil.Map
	closures   map[*ssa.Function]*universe.Type
	concrete   []goType
	interfaces []goType

	methods   map[*ssa.Function]*universe.Method
	functions map[*universe.Method]*ssa.Function
	sites     map[universe.AllocationSite]ssa.CallInstruction
	values    map[*ssa.Function]map[ssa.Value]universe.Var
	pending   []pendingBody

	diagnostics []typeflow.Diagnostic

	// pseudo-fields of the Go memory model
	keys        *universe.Field
	valuesField *universe.Field
	contents    *universe.Field

	// panicType is the type of the cell holding panicking values
	panicType *universe.Type
}

type pendingBody struct {
	fn *ssa.Function
	mb *universe.MethodBuilder
	// thunk is true for the $call methods of functions without free variables
	thunk bool
}

func newLowering(prog *ssa.Program, logger *config.LogGroup) *lowering {
	b := universe.NewBuilder()
	memory := b.AbstractClass("$memory", nil)
	l := &lowering{
		prog:        prog,
		builder:     b,
		logger:      logger,
		closures:    map[*ssa.Function]*universe.Type{},
		methods:     map[*ssa.Function]*universe.Method{},
		functions:   map[*universe.Method]*ssa.Function{},
		sites:       map[universe.AllocationSite]ssa.CallInstruction{},
		values:      map[*ssa.Function]map[ssa.Value]universe.Var{},
		keys:        b.Field(memory, "keys", nil),
		valuesField: b.Field(memory, "values", nil),
		contents:    b.Field(memory, "contents", nil),
		panicType:   b.Class("$panic", nil),
	}
	l.types.SetHasher(typeutil.MakeHasher())
	l.signatures.SetHasher(typeutil.MakeHasher())
	return l
}

// selector returns the name used for dispatch of the method fn
func selector(fn *ssa.Function) string {
	if obj := fn.Object(); obj != nil {
		return obj.Id()
	}
	return fn.Name()
}

// method returns the universe method of fn, declaring it if needed. Functions with free variables are the $call
// method of their closure type, functions with a receiver are instance methods of the class of the receiver type,
// and other functions are static methods.
func (l *lowering) method(fn *ssa.Function) *universe.Method {
	if m, ok := l.methods[fn]; ok {
		return m
	}
	sig := fn.Signature
	ret := l.returnType(sig.Results())
	params := l.paramTypes(sig.Params())
	var mb *universe.MethodBuilder
	switch {
	case len(fn.FreeVars) > 0:
		owner := l.closureType(fn)
		if m := owner.DeclaredMethod(callMethod); m != nil {
			l.methods[fn] = m
			return m
		}
		mb = l.builder.Method(owner, callMethod, params, ret)
	case sig.Recv() != nil:
		owner := l.objectType(sig.Recv().Type())
		// declaring the owner declares its method set, which may include fn
		if m, ok := l.methods[fn]; ok {
			return m
		}
		if m := owner.DeclaredMethod(selector(fn)); m != nil {
			l.methods[fn] = m
			return m
		}
		mb = l.builder.Method(owner, selector(fn), params, ret)
	default:
		mb = l.builder.StaticMethod(nil, fn.String(), params, ret)
	}
	m := mb.Method()
	m.Pos = l.prog.Fset.Position(fn.Pos())
	l.methods[fn] = m
	l.functions[m] = fn
	l.pending = append(l.pending, pendingBody{fn: fn, mb: mb})
	return m
}

// funcValueType returns the closure type of the values of function fn, which must not have free variables. The
// $call method of the type calls fn.
func (l *lowering) funcValueType(fn *ssa.Function) *universe.Type {
	ut := l.closureType(fn)
	if ut.DeclaredMethod(callMethod) != nil {
		return ut
	}
	sig := fn.Signature
	mb := l.builder.Method(ut, callMethod, l.paramTypes(sig.Params()), l.returnType(sig.Results()))
	mb.Method().Pos = l.prog.Fset.Position(fn.Pos())
	l.functions[mb.Method()] = fn
	l.pending = append(l.pending, pendingBody{fn: fn, mb: mb, thunk: true})
	return ut
}

func (l *lowering) unsupported(m *universe.Method, index int, pos token.Position, format string, args ...any) {
	d := typeflow.Diagnostic{
		Kind:    typeflow.Unsupported,
		Method:  m,
		Index:   index,
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	}
	l.logger.Debugf("%s", d)
	l.diagnostics = append(l.diagnostics, d)
}

// lowerAll lowers the queued bodies until no new method is declared
func (l *lowering) lowerAll() {
	for len(l.pending) > 0 {
		pb := l.pending[0]
		l.pending = l.pending[1:]
		if pb.thunk {
			l.lowerThunk(pb)
		} else {
			b := &bodyLowering{lowering: l, fn: pb.fn, mb: pb.mb, vars: map[ssa.Value]universe.Var{}}
			b.lower()
			l.values[pb.fn] = b.vars
		}
	}
}

// lowerThunk emits the body of the $call method of a function value: a static call of the function
func (l *lowering) lowerThunk(pb pendingBody) {
	mb := pb.mb
	target := l.method(pb.fn)
	if !target.Static {
		l.unsupported(mb.Method(), -1, mb.Method().Pos, "method %s used as a function value", pb.fn)
		return
	}
	args := make([]universe.Var, target.NumParams())
	for i := range args {
		args[i] = mb.Param(i + 1)
	}
	if ret := mb.InvokeStatic(target, args...); ret != universe.NoVar {
		mb.Return(ret)
	}
}

// bodyLowering translates the body of one function
type bodyLowering struct {
	*lowering
	fn *ssa.Function
	mb *universe.MethodBuilder
	// vars maps the SSA values of the function to their variable. Values of untracked types have no variable.
	vars map[ssa.Value]universe.Var
	// panicCell is the constant cell of panicking values, or NoVar before its first use
	panicCell universe.Var
}

func (b *bodyLowering) lower() {
	m := b.mb.Method()
	b.panicCell = universe.NoVar
	if b.fn.Blocks == nil {
		if m.Return != nil {
			v := b.mb.At(m.Pos).Unknown()
			b.unsupported(m, len(m.Body.Instrs)-1, m.Pos, "no body for %s", b.fn)
			b.mb.Return(v)
		}
		return
	}

	offset := 0
	if len(b.fn.FreeVars) > 0 {
		offset = 1
		closure := b.closureType(b.fn)
		for _, fv := range b.fn.FreeVars {
			if tracked(fv.Type()) {
				b.vars[fv] = b.mb.Load(b.mb.Param(0), closure.FieldByName(fv.Name()))
			}
		}
	}
	for i, p := range b.fn.Params {
		if !tracked(p.Type()) {
			continue
		}
		v := b.mb.Param(i + offset)
		if i == 0 && b.fn.Signature.Recv() != nil && !isPointer(p.Type()) {
			// value receivers are passed in a box
			v = b.mb.LoadElem(v)
		}
		b.vars[p] = v
	}

	for _, block := range b.fn.Blocks {
		for _, instr := range block.Instrs {
			if v, ok := instr.(ssa.Value); ok && tracked(v.Type()) {
				b.vars[v] = b.mb.NewVar()
			}
		}
	}
	for _, block := range b.fn.Blocks {
		for _, instr := range block.Instrs {
			b.mb.At(b.prog.Fset.Position(instr.Pos()))
			b.instruction(instr)
		}
	}
}

// value returns the variable of v. Functions and globals are constants of the universe, emitted at their first use.
// Returns false for nil constants and values of untracked types.
func (b *bodyLowering) value(v ssa.Value) (universe.Var, bool) {
	if x, ok := b.vars[v]; ok {
		return x, true
	}
	switch v := v.(type) {
	case *ssa.Function:
		x := b.mb.Const(b.funcValueType(v), v.String())
		b.vars[v] = x
		return x, true
	case *ssa.Global:
		x := b.mb.Const(b.objectType(v.Type()), v.String())
		b.vars[v] = x
		return x, true
	}
	return universe.NoVar, false
}

// move emits dst = src if dst is tracked and src has a value
func (b *bodyLowering) move(dst ssa.Value, src ssa.Value) {
	d, ok := b.vars[dst]
	if !ok {
		return
	}
	if s, ok := b.value(src); ok {
		b.mb.Move(d, s)
	}
}

func (b *bodyLowering) load(dst ssa.Value, obj ssa.Value, field *universe.Field) {
	d, ok := b.vars[dst]
	if !ok {
		return
	}
	if o, ok := b.value(obj); ok {
		b.mb.Emit(&universe.LoadField{Dst: d, Obj: o, Field: field})
	}
}

func (b *bodyLowering) store(obj ssa.Value, field *universe.Field, src ssa.Value) {
	if !tracked(src.Type()) {
		return
	}
	o, ok1 := b.value(obj)
	s, ok2 := b.value(src)
	if ok1 && ok2 {
		b.mb.Store(o, field, s)
	}
}

func (b *bodyLowering) alloc(v ssa.Value) {
	b.mb.Emit(&universe.Alloc{Dst: b.vars[v], Type: b.objectType(v.Type())})
}

func (b *bodyLowering) unknown(v ssa.Value, format string, args ...any) {
	d, ok := b.vars[v]
	if !ok {
		return
	}
	idx := b.mb.Emit(&universe.Unknown{Dst: d})
	b.unsupported(b.mb.Method(), idx, b.prog.Fset.Position(v.Pos()), format, args...)
}

func (b *bodyLowering) getPanicCell() universe.Var {
	if b.panicCell == universe.NoVar {
		b.panicCell = b.mb.Const(b.panicType, "panic")
	}
	return b.panicCell
}

//gocyclo:ignore
func (b *bodyLowering) instruction(instr ssa.Instruction) {
	switch i := instr.(type) {
	case *ssa.Alloc:
		b.alloc(i)
	case *ssa.MakeMap:
		b.alloc(i)
	case *ssa.MakeChan:
		b.alloc(i)
	case *ssa.MakeSlice:
		b.alloc(i)
	case *ssa.MakeClosure:
		fn := i.Fn.(*ssa.Function)
		b.method(fn)
		closure := b.closureType(fn)
		dst := b.vars[i]
		b.mb.Emit(&universe.Alloc{Dst: dst, Type: closure})
		for k, binding := range i.Bindings {
			if x, ok := b.value(binding); ok && tracked(binding.Type()) {
				b.mb.Store(dst, closure.FieldByName(fn.FreeVars[k].Name()), x)
			}
		}
	case *ssa.MakeInterface:
		b.makeInterface(i)
	case *ssa.Phi:
		for _, e := range i.Edges {
			b.move(i, e)
		}
	case *ssa.UnOp:
		switch i.Op {
		case token.MUL:
			if d, ok := b.vars[i]; ok {
				if x, ok := b.value(i.X); ok {
					b.mb.Emit(&universe.LoadElem{Dst: d, Array: x})
				}
			}
		case token.ARROW:
			b.load(i, i.X, b.contents)
		}
	case *ssa.Store:
		if !tracked(i.Val.Type()) {
			return
		}
		addr, ok1 := b.value(i.Addr)
		val, ok2 := b.value(i.Val)
		if ok1 && ok2 {
			b.mb.StoreElem(addr, val)
		}
	case *ssa.FieldAddr:
		b.move(i, i.X)
	case *ssa.IndexAddr:
		b.move(i, i.X)
	case *ssa.Field:
		b.move(i, i.X)
	case *ssa.Index:
		b.move(i, i.X)
	case *ssa.Extract:
		b.move(i, i.Tuple)
	case *ssa.ChangeInterface:
		b.move(i, i.X)
	case *ssa.ChangeType:
		b.move(i, i.X)
	case *ssa.Slice:
		b.move(i, i.X)
	case *ssa.SliceToArrayPointer:
		b.move(i, i.X)
	case *ssa.Range:
		b.move(i, i.X)
	case *ssa.Convert:
		b.convert(i)
	case *ssa.TypeAssert:
		b.typeAssert(i)
	case *ssa.Lookup:
		if _, isMap := i.X.Type().Underlying().(*types.Map); isMap {
			b.load(i, i.X, b.valuesField)
		}
	case *ssa.MapUpdate:
		b.store(i.Map, b.keys, i.Key)
		b.store(i.Map, b.valuesField, i.Value)
	case *ssa.Next:
		if !i.IsString {
			b.load(i, i.Iter, b.keys)
			b.load(i, i.Iter, b.valuesField)
		}
	case *ssa.Send:
		b.store(i.Chan, b.contents, i.X)
	case *ssa.Select:
		for _, state := range i.States {
			if state.Dir == types.SendOnly {
				b.store(state.Chan, b.contents, state.Send)
			} else {
				b.load(i, state.Chan, b.contents)
			}
		}
	case *ssa.Call:
		dst, ok := b.vars[i]
		if !ok {
			dst = universe.NoVar
		}
		b.call(i.Common(), dst, i)
	case *ssa.Go:
		b.call(i.Common(), universe.NoVar, i)
	case *ssa.Defer:
		b.call(i.Common(), universe.NoVar, i)
	case *ssa.Return:
		for _, r := range i.Results {
			if x, ok := b.value(r); ok && tracked(r.Type()) {
				b.mb.Return(x)
			}
		}
	case *ssa.Panic:
		if x, ok := b.value(i.X); ok {
			b.mb.StoreElem(b.getPanicCell(), x)
		}
	case *ssa.BinOp, *ssa.If, *ssa.Jump, *ssa.RunDefers, *ssa.DebugRef:
		// nothing flows
	default:
		if v, ok := instr.(ssa.Value); ok {
			b.unknown(v, "unsupported instruction %s", instr)
		}
	}
}

// makeInterface converts a concrete value to an interface. Pointers are objects and are not converted, other values
// are boxed in an object of their type.
func (b *bodyLowering) makeInterface(i *ssa.MakeInterface) {
	dst := b.vars[i]
	if isPointer(i.X.Type()) {
		b.move(i, i.X)
		return
	}
	box := b.objectType(i.X.Type())
	if c, ok := i.X.(*ssa.Const); ok {
		value := "nil"
		if c.Value != nil {
			value = c.Value.ExactString()
		}
		b.mb.Emit(&universe.Const{Dst: dst, Type: box, Value: value})
		return
	}
	b.mb.Emit(&universe.Alloc{Dst: dst, Type: box})
	if x, ok := b.value(i.X); ok {
		b.mb.StoreElem(dst, x)
	}
}

func (b *bodyLowering) convert(i *ssa.Convert) {
	if _, ok := b.vars[i]; !ok {
		return
	}
	if _, ok := b.value(i.X); ok {
		b.move(i, i.X)
		return
	}
	if _, isSlice := i.Type().Underlying().(*types.Slice); isSlice {
		// string to byte or rune slice
		b.alloc(i)
		return
	}
	b.unknown(i, "conversion of %s to %s", i.X.Type(), i.Type())
}

// typeAssert filters the values of the operand by the asserted type. Assertions to a non-pointer concrete type
// unbox the value.
func (b *bodyLowering) typeAssert(i *ssa.TypeAssert) {
	d, ok := b.vars[i]
	if !ok {
		return
	}
	x, ok := b.value(i.X)
	if !ok {
		return
	}
	asserted := i.AssertedType
	switch {
	case types.IsInterface(asserted):
		b.mb.Emit(&universe.Cast{Dst: d, Src: x, Type: b.interfaceType(asserted)})
	case isPointer(asserted):
		b.mb.Emit(&universe.Cast{Dst: d, Src: x, Type: b.objectType(asserted)})
	default:
		box := b.mb.Cast(x, b.objectType(asserted))
		b.mb.Emit(&universe.LoadElem{Dst: d, Array: box})
	}
}

func (b *bodyLowering) args(values []ssa.Value) []universe.Var {
	res := make([]universe.Var, len(values))
	for k, v := range values {
		res[k] = universe.NoVar
		if tracked(v.Type()) {
			if x, ok := b.value(v); ok {
				res[k] = x
			}
		}
	}
	return res
}

// receiver returns the receiver argument of a call of a method with receiver type recvType. Values are boxed.
func (b *bodyLowering) receiver(recvType types.Type, arg ssa.Value) (universe.Var, bool) {
	if isPointer(recvType) {
		return b.value(arg)
	}
	box := b.mb.Alloc(b.objectType(recvType))
	if x, ok := b.value(arg); ok && tracked(arg.Type()) {
		b.mb.StoreElem(box, x)
	}
	return box, true
}

func (b *bodyLowering) call(c *ssa.CallCommon, dst universe.Var, instr ssa.CallInstruction) {
	if c.IsInvoke() {
		recv, ok := b.value(c.Value)
		if !ok {
			return
		}
		target := b.interfaceType(c.Value.Type()).DeclaredMethod(c.Method.Id())
		b.invoke(universe.InvokeVirtual, target, append([]universe.Var{recv}, b.args(c.Args)...), dst, instr)
		return
	}
	switch callee := c.Value.(type) {
	case *ssa.Builtin:
		b.builtin(callee, c.Args, dst)
	case *ssa.Function:
		target := b.method(callee)
		if callee.Signature.Recv() == nil {
			b.invoke(universe.InvokeStatic, target, b.args(c.Args), dst, instr)
			return
		}
		recv, ok := b.receiver(callee.Signature.Recv().Type(), c.Args[0])
		if !ok {
			return
		}
		b.invoke(universe.InvokeSpecial, target, append([]universe.Var{recv}, b.args(c.Args[1:])...), dst, instr)
	case *ssa.MakeClosure:
		target := b.method(callee.Fn.(*ssa.Function))
		recv, _ := b.value(callee)
		b.invoke(universe.InvokeSpecial, target, append([]universe.Var{recv}, b.args(c.Args)...), dst, instr)
	default:
		recv, ok := b.value(c.Value)
		if !ok {
			return
		}
		target := b.signatureType(c.Signature()).DeclaredMethod(callMethod)
		b.invoke(universe.InvokeVirtual, target, append([]universe.Var{recv}, b.args(c.Args)...), dst, instr)
	}
}

func (b *bodyLowering) invoke(kind universe.InvokeKind, target *universe.Method, args []universe.Var,
	dst universe.Var, instr ssa.CallInstruction) {
	if target.Return == nil {
		dst = universe.NoVar
	}
	idx := b.mb.Emit(&universe.Invoke{Kind: kind, Target: target, Args: args, Dst: dst})
	b.sites[universe.AllocationSite{Method: b.mb.Method(), Index: idx}] = instr
}

func (b *bodyLowering) builtin(fn *ssa.Builtin, args []ssa.Value, dst universe.Var) {
	switch fn.Name() {
	case "append":
		if dst == universe.NoVar {
			return
		}
		b.mb.Emit(&universe.Alloc{Dst: dst, Type: b.objectType(args[0].Type())})
		if s, ok := b.value(args[0]); ok {
			b.mb.Move(dst, s)
		}
		if !tracked(sliceElem(args[0].Type())) {
			return
		}
		for _, a := range args {
			if x, ok := b.value(a); ok {
				b.mb.StoreElem(dst, b.mb.LoadElem(x))
			}
		}
	case "copy":
		if !tracked(sliceElem(args[0].Type())) {
			return
		}
		d, ok1 := b.value(args[0])
		s, ok2 := b.value(args[1])
		if ok1 && ok2 {
			b.mb.StoreElem(d, b.mb.LoadElem(s))
		}
	case "recover":
		if dst != universe.NoVar {
			b.mb.Emit(&universe.LoadElem{Dst: dst, Array: b.getPanicCell()})
		}
	case "ssa:wrapnilchk":
		if dst != universe.NoVar {
			if x, ok := b.value(args[0]); ok {
				b.mb.Move(dst, x)
			}
		}
	}
}

func sliceElem(t types.Type) types.Type {
	if s, ok := t.Underlying().(*types.Slice); ok {
		return s.Elem()
	}
	return types.Typ[types.Invalid]
}
