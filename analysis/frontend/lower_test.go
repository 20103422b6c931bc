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
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

const lowerSource = `package p

type T struct{ next *T }

type Cat struct{ owner *T }

func (c Cat) Owner() *T { return c.owner }

type Owned interface{ Owner() *T }

func ext() *T

func use(o Owned) *T { return o.Owner() }

func A() interface{} {
	type L struct{ p *T }
	return L{}
}

func B() interface{} {
	type L struct{ p *T }
	return L{}
}

func Main() {
	t := &T{}
	k := 1
	f := func() int { return k }
	f()
	use(Cat{owner: t})
	ext()
	A()
	B()
}
`

func buildPackage(t *testing.T, src string) *ssa.Package {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("could not parse source: %s", err)
	}
	pkg, _, err := ssautil.BuildPackage(&types.Config{}, fset, types.NewPackage("p", ""), []*ast.File{f},
		ssa.BuilderMode(0))
	if err != nil {
		t.Fatalf("could not build package: %s", err)
	}
	return pkg
}

func lowerMain(t *testing.T) (*ssa.Package, *Program) {
	pkg := buildPackage(t, lowerSource)
	p, err := Lower(pkg.Prog, []*ssa.Function{pkg.Func("Main")}, nil)
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	return pkg, p
}

func TestLowerTypes(t *testing.T) {
	_, p := lowerMain(t)
	u := p.Universe

	cat := u.Type("p.Cat")
	if cat == nil || cat.Kind != universe.Class {
		t.Fatalf("expected class p.Cat, got %v", cat)
	}
	if owned := u.Type("p.Owned"); owned == nil || !cat.IsSubtypeOf(owned) {
		t.Errorf("expected p.Cat to implement p.Owned")
	}

	closure := u.Type("closure p.Main$1")
	if closure == nil || closure.Kind != universe.Closure {
		t.Fatalf("expected closure type of p.Main$1, got %v", closure)
	}
	if closure.FieldByName("k") == nil {
		t.Errorf("expected a field for the free variable k in %s", closure)
	}
	sig := u.Type("$sig func() int")
	if sig == nil || sig.DeclaredMethod(callMethod) == nil {
		t.Fatalf("expected signature interface with a %s method", callMethod)
	}
	if !closure.IsSubtypeOf(sig) {
		t.Errorf("expected %s to implement %s", closure, sig)
	}

	if u.Type("p.L") == nil || u.Type("p.L#1") == nil {
		t.Errorf("expected the two local types L to get distinct names")
	}
}

func TestLowerValueReceiver(t *testing.T) {
	_, p := lowerMain(t)
	owner := p.Universe.Type("p.Cat").DeclaredMethod("Owner")
	if owner == nil || owner.Body == nil {
		t.Fatalf("expected p.Cat to declare Owner with a body")
	}
	if _, ok := owner.Body.Instrs[0].(*universe.LoadElem); !ok {
		t.Errorf("expected the value receiver to be unboxed first, got %s", owner.Body.Instrs[0])
	}
}

func TestLowerExternal(t *testing.T) {
	pkg, p := lowerMain(t)
	ext := p.Method(pkg.Func("ext"))
	if ext == nil {
		t.Fatalf("expected ext to be lowered")
	}
	if p.Function(ext) != pkg.Func("ext") {
		t.Errorf("expected ext to map back to its function")
	}
	found := false
	for _, d := range p.Diagnostics {
		if d.Kind == typeflow.Unsupported && d.Method == ext && strings.Contains(d.Message, "no body") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unsupported diagnostic for ext, got %v", p.Diagnostics)
	}
}

func TestLowerRoots(t *testing.T) {
	pkg, p := lowerMain(t)
	roots := p.Universe.Roots
	if len(roots) != 1 || p.Function(roots[0]) != pkg.Func("Main") {
		t.Errorf("expected p.Main as the only root, got %v", roots)
	}
	// unused functions are not lowered
	for _, fn := range p.Functions() {
		if fn.Name() == "init" {
			t.Errorf("did not expect init to be lowered")
		}
	}
}

func TestLowerValues(t *testing.T) {
	pkg, p := lowerMain(t)
	main := pkg.Func("Main")
	var alloc *ssa.Alloc
	for _, block := range main.Blocks {
		for _, instr := range block.Instrs {
			if a, ok := instr.(*ssa.Alloc); ok && types.TypeString(a.Type(), nil) == "*p.T" {
				alloc = a
			}
		}
	}
	if alloc == nil {
		t.Fatalf("expected an allocation of p.T in %s", main)
	}
	if _, ok := p.Var(main, alloc); !ok {
		t.Fatalf("expected a variable for %s", alloc.Name())
	}

	cfg := config.NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid default config: %s", err)
	}
	res, err := p.Analyze(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("analysis failed: %s", err)
	}
	pts := p.PointsTo(res, main, alloc)
	if pts.IsEmpty() || pts.Types()[0].Name != "*p.T" {
		t.Errorf("expected %s to point to an object of type *p.T, got %v", alloc.Name(), pts)
	}
}
