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

// Package pointsto implements the pointsto sub-command, printing the callees the type-flow analysis resolves at
// each call site.
package pointsto

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
	"github.com/awslabs/ar-go-typeflow/internal/formatutil"
	"golang.org/x/tools/go/ssa"
)

// Flags represents the parsed flags for the pointsto sub-command.
type Flags struct {
	tools.CommonFlags
	all bool
}

// NewFlags creates parsed pointsto sub-command flags for args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("pointsto")
	all := flags.FlagSet.Bool("all", false, "also print the call sites with a static callee")
	tools.SetUsage(flags.FlagSet, usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, all: *all}, nil
}

const usage = `Print the functions called at the dynamic call sites of your Go program, and the diagnostics of the analysis.

Usage:
  typeflow pointsto [options] package...
  typeflow pointsto [options] source.go

Examples:
% typeflow pointsto -context-sensitive -depth 2 main.go
`

// Run runs the type-flow analysis with flags and prints the callees of each call site.
func Run(flags Flags) error {
	cache, err := tools.LoadCache(flags.CommonFlags)
	if err != nil {
		return err
	}
	res, err := cache.RunTypeFlow(context.Background())
	if err != nil {
		return err
	}
	callees := cache.Lowered.CallSiteCallees(res)
	WriteCallees(os.Stdout, cache.Program, callees, flags.all)

	diagnostics := res.Diagnostics()
	if len(diagnostics) > 0 && !cache.Config.SilenceWarn {
		fmt.Fprintf(os.Stdout, "%s\n", formatutil.Bold(fmt.Sprintf("%d diagnostics:", len(diagnostics))))
		for _, d := range diagnostics {
			fmt.Fprintf(os.Stdout, "  %s\n", formatutil.Yellow(formatutil.SanitizeRepr(d)))
		}
	}
	fmt.Fprintf(os.Stdout, "%s\n", analysis.CallSiteStatistics(callees))
	return nil
}

// WriteCallees writes one line per call site with the callees of the site, ordered by position. Sites with a static
// callee are skipped unless all is true.
func WriteCallees(w io.Writer, prog *ssa.Program, callees map[ssa.CallInstruction][]*ssa.Function, all bool) {
	type line struct {
		pos  string
		text string
	}
	var lines []line
	for instr, fns := range callees {
		if !all && instr.Common().StaticCallee() != nil {
			continue
		}
		names := make([]string, 0, len(fns))
		for _, fn := range fns {
			names = append(names, fn.String())
		}
		sort.Strings(names)
		target := formatutil.Red("<none>")
		if len(names) > 0 {
			target = formatutil.Green(strings.Join(names, ", "))
		}
		pos := prog.Fset.Position(instr.Pos()).String()
		lines = append(lines, line{
			pos: pos,
			text: fmt.Sprintf("%s %s: %s -> %s", formatutil.Faint(pos), instr.Parent().String(),
				formatutil.Sanitize(instr.Common().String()), target),
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].pos != lines[j].pos {
			return lines[i].pos < lines[j].pos
		}
		return lines[i].text < lines[j].text
	})
	for _, l := range lines {
		fmt.Fprintln(w, l.text)
	}
}
