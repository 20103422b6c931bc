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
	"fmt"
	"sort"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"github.com/awslabs/ar-go-typeflow/analysis/universe"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Program is a Go program lowered into a universe. It maps the methods of the universe back to the SSA functions
// they come from.
type Program struct {
	SSA      *ssa.Program
	Universe *universe.Universe

	// Diagnostics are the program constructs the lowering could not model
	Diagnostics []typeflow.Diagnostic

	methods   map[*ssa.Function]*universe.Method
	functions map[*universe.Method]*ssa.Function
	sites     map[universe.AllocationSite]ssa.CallInstruction
	values    map[*ssa.Function]map[ssa.Value]universe.Var
}

// Lower lowers the functions of prog that are reachable from roots, and the methods of every type they use, into
// a universe whose roots are the methods of roots.
func Lower(prog *ssa.Program, roots []*ssa.Function, logger *config.LogGroup) (*Program, error) {
	if logger == nil {
		logger = config.NewLogGroup(config.NewDefault())
	}
	start := time.Now()
	l := newLowering(prog, logger)
	for _, root := range roots {
		l.builder.AddRoot(l.method(root))
	}
	l.lowerAll()
	l.addImplementations()
	u, err := l.builder.Build()
	if err != nil {
		return nil, fmt.Errorf("lowering produced an invalid universe: %w", err)
	}
	logger.Infof("Lowered %d functions into %d methods and %d types (%.2f s)", len(l.methods), len(u.Methods),
		len(u.Types), time.Since(start).Seconds())
	if len(l.diagnostics) > 0 {
		logger.Debugf("%d constructs could not be lowered", len(l.diagnostics))
	}
	return &Program{
		SSA:         prog,
		Universe:    u,
		Diagnostics: l.diagnostics,
		methods:     l.methods,
		functions:   l.functions,
		sites:       l.sites,
		values:      l.values,
	}, nil
}

// Method returns the universe method of fn, or nil if fn has not been lowered
func (p *Program) Method(fn *ssa.Function) *universe.Method {
	return p.methods[fn]
}

// Function returns the function m has been lowered from. The $call method of a function value returns the
// function. Returns nil for methods that are not Go functions.
func (p *Program) Function(m *universe.Method) *ssa.Function {
	return p.functions[m]
}

// CallInstruction returns the SSA call instruction of the call site in the universe, or nil if the site has not
// been lowered from a call instruction (e.g. the calls in the $call method of function values)
func (p *Program) CallInstruction(site universe.AllocationSite) ssa.CallInstruction {
	return p.sites[site]
}

// Var returns the variable of the value v of function fn in the body of the method of fn. Returns false if v is
// not represented in the universe: values of types that cannot hold references, or nil constants.
func (p *Program) Var(fn *ssa.Function, v ssa.Value) (universe.Var, bool) {
	x, ok := p.values[fn][v]
	return x, ok
}

// PointsTo returns the objects the value v of function fn may point to in res, in any context
func (p *Program) PointsTo(res *typeflow.Result, fn *ssa.Function, v ssa.Value) *typeflow.TypeState {
	m := p.methods[fn]
	x, ok := p.Var(fn, v)
	if m == nil || !ok {
		return typeflow.EmptyState()
	}
	return res.PointsTo(m, x)
}

// Functions returns the lowered functions, ordered by the ID of their method
func (p *Program) Functions() []*ssa.Function {
	var ms []*universe.Method
	for m := range p.functions {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
	seen := map[*ssa.Function]bool{}
	var res []*ssa.Function
	for _, m := range ms {
		if fn := p.functions[m]; !seen[fn] {
			seen[fn] = true
			res = append(res, fn)
		}
	}
	return res
}

// Analyze runs the type-flow analysis from the roots of the program. The lowering diagnostics are reported in the
// diagnostics of the result.
func (p *Program) Analyze(ctx context.Context, cfg *config.Config, logger *config.LogGroup) (*typeflow.Result,
	error) {
	bb, err := typeflow.NewBigBang(p.Universe, cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, d := range p.Diagnostics {
		bb.Diagnostics().Report(d)
	}
	for _, root := range p.Universe.Roots {
		bb.AddRootMethod(root)
	}
	return bb.Run(ctx)
}

// ReachableFunctions returns the functions whose method is reachable in res
func (p *Program) ReachableFunctions(res *typeflow.Result) map[*ssa.Function]bool {
	reachable := map[*ssa.Function]bool{}
	for _, m := range res.ReachableMethods() {
		if fn := p.functions[m]; fn != nil {
			reachable[fn] = true
		}
	}
	return reachable
}

// EntryPoints returns the roots of the analysis of prog: the main and init functions of the main packages, the
// functions matching an entrypoint of the config, and the functions for which isEntryPoint returns true (when
// isEntryPoint is not nil). The result is ordered by function name.
func EntryPoints(prog *ssa.Program, cfg *config.Config, isEntryPoint func(*ssa.Function) bool) []*ssa.Function {
	roots := map[*ssa.Function]bool{}
	for _, pkg := range ssautil.MainPackages(prog.AllPackages()) {
		for _, name := range []string{"init", "main"} {
			if fn := pkg.Func(name); fn != nil {
				roots[fn] = true
			}
		}
	}
	if len(cfg.EntryPoints) > 0 || isEntryPoint != nil {
		for fn := range ssautil.AllFunctions(prog) {
			if fn.Pkg == nil || fn.Synthetic != "" {
				continue
			}
			if cfg.IsEntryPoint(codeIdentifier(fn)) || (isEntryPoint != nil && isEntryPoint(fn)) {
				roots[fn] = true
			}
		}
	}
	res := make([]*ssa.Function, 0, len(roots))
	for fn := range roots {
		res = append(res, fn)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].String() < res[j].String() })
	return res
}

// codeIdentifier returns the code identifier of a function, used to match the entrypoints of the config
func codeIdentifier(fn *ssa.Function) config.CodeIdentifier {
	cid := config.CodeIdentifier{Package: fn.Pkg.Pkg.Path(), Method: fn.Name()}
	if recv := fn.Signature.Recv(); recv != nil {
		cid.Receiver = recv.Type().String()
	}
	return cid
}
