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

// Package compare implements the compare sub-command, comparing the functions the type-flow analysis finds
// reachable with the other call graph analyses.
package compare

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/reachability"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
	"github.com/awslabs/ar-go-typeflow/internal/formatutil"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/ssa"
)

// Flags represents the parsed flags for the compare sub-command.
type Flags struct {
	tools.CommonFlags
	modes    string
	list     bool
	binary   string
	pointsTo bool
}

// NewFlags creates parsed compare sub-command flags for args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("compare")
	modes := flags.FlagSet.String("analyses", "static,cha,rta,vta,pointer",
		"comma separated list of the analyses to compare with typeflow")
	list := flags.FlagSet.Bool("list", false, "list the functions with the analyses that find them reachable")
	binary := flags.FlagSet.String("binary", "", "output of go tool nm on the executable, to compare with its symbols")
	pointsTo := flags.FlagSet.Bool("pointsto", false, "compare the points-to set sizes with the pointer analysis")
	tools.SetUsage(flags.FlagSet, usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, modes: *modes, list: *list, binary: *binary, pointsTo: *pointsTo}, nil
}

const usage = `Compare the functions reachable according to the type-flow analysis and other call graph analyses.

Usage:
  typeflow compare [options] package...
  typeflow compare [options] source.go

Examples:
% typeflow compare -analyses cha,rta main.go
% go build -o main main.go && go tool nm main > main.nm && typeflow compare -list -binary main.nm main.go
`

// A Column is the set of functions one analysis finds reachable
type Column struct {
	Name      string
	Reachable map[string]bool
	Sites     analysis.SiteStats
	Duration  time.Duration
}

// Comparison is the comparison of several analyses of one program. The first column is the type-flow analysis.
type Comparison struct {
	Columns []Column
}

// Compare computes the reachable functions of the program of cache according to the type-flow analysis, the modes
// and the syntactic reachability.
func Compare(ctx context.Context, cache *analysis.Cache, modes []analysis.CallgraphAnalysisMode) (Comparison, error) {
	var c Comparison
	for _, mode := range append([]analysis.CallgraphAnalysisMode{analysis.TypeFlowAnalysis}, modes...) {
		if mode == analysis.TypeFlowAnalysis && len(c.Columns) > 0 {
			continue
		}
		start := time.Now()
		cg, err := cache.Callgraph(ctx, mode)
		if err != nil {
			return c, fmt.Errorf("could not compute %s call graph: %w", mode, err)
		}
		reachable := analysis.ReachableFromRoot(cg, cache.Program, cache.Config)
		c.Columns = append(c.Columns, Column{
			Name:      mode.String(),
			Reachable: funcNames(reachable),
			Sites:     analysis.CallSiteStatistics(siteCallees(cg, reachable)),
			Duration:  time.Since(start),
		})
	}
	start := time.Now()
	syntactic := reachability.FindReachable(cache.Program, cache.EntryPoints())
	c.Columns = append(c.Columns, Column{
		Name:      "syntactic",
		Reachable: funcNames(syntactic),
		Duration:  time.Since(start),
	})
	return c, nil
}

// AddSymbols adds a column with the symbols of a binary
func (c *Comparison) AddSymbols(symbols map[string]bool) {
	c.Columns = append(c.Columns, Column{Name: "binary", Reachable: symbols})
}

// WriteSummary writes the number of reachable functions of each column, relative to the type-flow analysis
func (c Comparison) WriteSummary(w io.Writer) {
	base := len(c.Columns[0].Reachable)
	fmt.Fprintf(w, "%-10s %10s %8s %10s %12s %10s\n", "analysis", "functions", "ratio", "dyn. sites", "avg callees",
		"time")
	for _, col := range c.Columns {
		avg := "-"
		if n := col.Sites.Monomorphic + col.Sites.Polymorphic; n > 0 {
			avg = fmt.Sprintf("%.2f", float64(col.Sites.Callees)/float64(n))
		}
		fmt.Fprintf(w, "%-10s %10d %8s %10d %12s %10s\n", col.Name, len(col.Reachable),
			formatutil.Percent(len(col.Reachable), base), col.Sites.Sites, avg, col.Duration.Round(time.Millisecond))
	}
}

// WriteList writes one line per function, with an X in the column of each analysis that finds it reachable
func (c Comparison) WriteList(w io.Writer) {
	all := map[string]bool{}
	for _, col := range c.Columns {
		for f := range col.Reachable {
			all[f] = true
		}
	}
	sorted := make([]string, 0, len(all))
	for f := range all {
		sorted = append(sorted, f)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return stripLeadingAsterisk(sorted[i]) < stripLeadingAsterisk(sorted[j])
	})
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	fmt.Fprintf(w, "# %s\n", strings.Join(names, " "))
	for _, f := range sorted {
		var b strings.Builder
		for _, col := range c.Columns {
			b.WriteRune(ch(col.Reachable[f]))
			b.WriteRune(' ')
		}
		fmt.Fprintf(w, "%s%s\n", b.String(), f)
	}
	fmt.Fprintf(w, "%d total functions\n", len(all))
}

// Run runs the comparison with flags
func Run(flags Flags) error {
	var modes []analysis.CallgraphAnalysisMode
	for _, name := range strings.Split(flags.modes, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		mode, err := analysis.ParseCallgraphMode(name)
		if err != nil {
			return err
		}
		modes = append(modes, mode)
	}
	cache, err := tools.LoadCache(flags.CommonFlags)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if flags.pointsTo {
		// the pointer analysis must run with the queries before its call graph is computed
		res, err := cache.RunTypeFlow(ctx)
		if err != nil {
			return err
		}
		reachable := cache.Lowered.ReachableFunctions(res)
		if _, err := cache.RunPointerAnalysis(func(f *ssa.Function) bool { return reachable[f] }); err != nil {
			return err
		}
	}
	fmt.Fprintln(os.Stderr, formatutil.Faint("Computing call graphs"))
	c, err := Compare(ctx, cache, modes)
	if err != nil {
		return err
	}
	if flags.binary != "" {
		symbols, err := readNMFile(flags.binary)
		if err != nil {
			return err
		}
		cache.Logger.Infof("Read %d text symbols from binary", len(symbols))
		c.AddSymbols(symbols)
	}
	if flags.list {
		c.WriteList(os.Stdout)
	}
	c.WriteSummary(os.Stdout)
	if flags.pointsTo {
		return comparePointsTo(cache, os.Stdout)
	}
	return nil
}

// comparePointsTo compares the sizes of the points-to sets of the values of the reachable functions computed by the
// type-flow analysis and the pointer analysis. Both analyses must have been run.
func comparePointsTo(cache *analysis.Cache, w io.Writer) error {
	reachable := cache.Lowered.ReachableFunctions(cache.Result)
	ptr := cache.PointerAnalysis
	var values, smaller, larger, typeflowTotal, pointerTotal int
	for fn := range reachable {
		for _, b := range fn.Blocks {
			for _, instr := range b.Instrs {
				v, ok := instr.(ssa.Value)
				if !ok {
					continue
				}
				labels := analysis.PointerLabels(ptr, v)
				if _, lowered := cache.Lowered.Var(fn, v); labels < 0 || !lowered {
					continue
				}
				size := cache.Lowered.PointsTo(cache.Result, fn, v).Size()
				values++
				typeflowTotal += size
				pointerTotal += labels
				if size < labels {
					smaller++
				} else if size > labels {
					larger++
				}
			}
		}
	}
	fmt.Fprintf(w, "%d values: typeflow %d objects, pointer %d labels; typeflow smaller on %d, larger on %d\n",
		values, typeflowTotal, pointerTotal, smaller, larger)
	return nil
}

func funcNames(funcs map[*ssa.Function]bool) map[string]bool {
	names := make(map[string]bool, len(funcs))
	for f := range funcs {
		names[stripParens(f.String())] = true
	}
	return names
}

// siteCallees returns the callees of the call sites of the reachable functions in cg
func siteCallees(cg *callgraph.Graph, reachable map[*ssa.Function]bool) map[ssa.CallInstruction][]*ssa.Function {
	callees := map[ssa.CallInstruction][]*ssa.Function{}
	for fn, node := range cg.Nodes {
		if fn == nil || !reachable[fn] {
			continue
		}
		for _, e := range node.Out {
			if e.Site != nil && e.Callee.Func != nil {
				callees[e.Site] = append(callees[e.Site], e.Callee.Func)
			}
		}
	}
	return callees
}

func ch(c bool) rune {
	if c {
		return 'X'
	}
	return ' '
}
