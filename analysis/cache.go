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

package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/frontend"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/pointer"
	"golang.org/x/tools/go/ssa"
)

// Cache holds information that might need to be used during program analysis, and the results of the analyses that
// have been run on the program. It is shared by the tools so that each analysis runs at most once.
type Cache struct {
	// The logger used during the analysis
	Logger *config.LogGroup

	// The configuration file for the analysis
	Config *config.Config

	// The program to be analyzed. It should be a complete buildable program (e.g. loaded by LoadProgram).
	Program *ssa.Program

	// Directives are the typeflow directives found in the source of the program
	Directives Directives

	// Lowered is the program lowered for the type-flow analysis. It is nil until RunTypeFlow has been called.
	Lowered *frontend.Program

	// Result is the result of the type-flow analysis. It is nil until RunTypeFlow has been called.
	Result *typeflow.Result

	// The result of a pointer analysis.
	PointerAnalysis *pointer.Result

	callgraphs map[CallgraphAnalysisMode]*callgraph.Graph
}

// NewCache returns a properly initialized cache
func NewCache(lp LoadedProgram, l *config.LogGroup, c *config.Config) *Cache {
	if l == nil {
		l = config.NewLogGroup(c)
	}
	return &Cache{
		Logger:     l,
		Config:     c,
		Program:    lp.Program,
		Directives: lp.Directives,
		callgraphs: map[CallgraphAnalysisMode]*callgraph.Graph{},
	}
}

// EntryPoints returns the roots of the type-flow analysis: the main and init functions of the main packages, the
// functions matching the entrypoints of the config and the functions marked with an entrypoint directive.
func (c *Cache) EntryPoints() []*ssa.Function {
	return frontend.EntryPoints(c.Program, c.Config, func(fn *ssa.Function) bool {
		return c.Directives.IsEntryPoint(c.Program.Fset, fn)
	})
}

// RunTypeFlow lowers the program and runs the type-flow analysis from the entry points. The result is stored in the
// cache, and subsequent calls return it.
func (c *Cache) RunTypeFlow(ctx context.Context) (*typeflow.Result, error) {
	if c.Result != nil {
		return c.Result, nil
	}
	roots := c.EntryPoints()
	c.Logger.Infof("Lowering program from %d entry points ...", len(roots))
	lowered, err := frontend.Lower(c.Program, roots, c.Logger)
	if err != nil {
		return nil, err
	}
	c.Lowered = lowered
	start := time.Now()
	res, err := lowered.Analyze(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("type-flow analysis failed: %w", err)
	}
	c.Logger.Infof("Type-flow analysis done (%.2f s): %s", time.Since(start).Seconds(), res.Stats())
	c.Result = res
	return res, nil
}

// RunPointerAnalysis runs the pointer analysis with queries for the values of the functions matching filter, if it
// has not been run before.
func (c *Cache) RunPointerAnalysis(filter func(*ssa.Function) bool) (*pointer.Result, error) {
	if c.PointerAnalysis != nil {
		return c.PointerAnalysis, nil
	}
	start := time.Now()
	c.Logger.Infof("Running pointer analysis ...")
	res, err := DoPointerAnalysis(c.Program, filter, true)
	if err != nil {
		return nil, fmt.Errorf("pointer analysis failed: %w", err)
	}
	c.Logger.Infof("Pointer analysis done (%.2f s)", time.Since(start).Seconds())
	c.PointerAnalysis = res
	c.callgraphs[PointerAnalysis] = res.CallGraph
	return res, nil
}

// Callgraph returns the call graph of the program computed with mode. The type-flow call graph uses the entry
// points of the cache, including the directives.
func (c *Cache) Callgraph(ctx context.Context, mode CallgraphAnalysisMode) (*callgraph.Graph, error) {
	if cg, ok := c.callgraphs[mode]; ok {
		return cg, nil
	}
	var cg *callgraph.Graph
	var err error
	switch mode {
	case TypeFlowAnalysis:
		var res *typeflow.Result
		res, err = c.RunTypeFlow(ctx)
		if err == nil {
			cg = c.Lowered.CallGraph(res)
		}
	case PointerAnalysis:
		var res *pointer.Result
		res, err = c.RunPointerAnalysis(func(*ssa.Function) bool { return false })
		if err == nil {
			cg = res.CallGraph
		}
	default:
		start := time.Now()
		cg, err = mode.ComputeCallgraph(c.Program, c.Config)
		c.Logger.Debugf("%s call graph computed (%.2f s)", mode, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	c.callgraphs[mode] = cg
	return cg, nil
}
