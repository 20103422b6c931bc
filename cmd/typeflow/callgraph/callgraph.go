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

// Package callgraph implements the callgraph sub-command, writing call graphs in the Graphviz format.
package callgraph

import (
	"context"
	"fmt"
	"os"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/render"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
)

// Flags represents the parsed flags for the callgraph sub-command.
type Flags struct {
	tools.CommonFlags
	out       string
	clones    bool
	mode      string
	ssaOutput string
}

// NewFlags creates parsed callgraph sub-command flags for args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("callgraph")
	out := flags.FlagSet.String("out", "", "output file for the graph (standard output when empty)")
	clones := flags.FlagSet.Bool("clones", false, "write the graph of the clones of the methods instead")
	mode := flags.FlagSet.String("analysis", "typeflow", "call graph analysis: typeflow, pointer, static, cha, rta or vta")
	ssaOutput := flags.FlagSet.String("ssaout", "", "output directory for the SSA and lowered form of the functions")
	tools.SetUsage(flags.FlagSet, usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, out: *out, clones: *clones, mode: *mode, ssaOutput: *ssaOutput}, nil
}

const usage = `Write the call graph of your Go program in the Graphviz format.

Usage:
  typeflow callgraph [options] package...
  typeflow callgraph [options] source.go

Examples:
% typeflow callgraph -out callgraph.dot main.go
% typeflow callgraph -clones -context-sensitive -out clones.dot main.go
`

// Run computes the call graph of the program with flags and writes it.
func Run(flags Flags) error {
	mode, err := analysis.ParseCallgraphMode(flags.mode)
	if err != nil {
		return err
	}
	if flags.clones && mode != analysis.TypeFlowAnalysis {
		return fmt.Errorf("-clones requires the typeflow analysis")
	}
	cache, err := tools.LoadCache(flags.CommonFlags)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if flags.ssaOutput != "" {
		if _, err := cache.RunTypeFlow(ctx); err != nil {
			return err
		}
		if err := render.OutputPackages(cache.Lowered, flags.ssaOutput); err != nil {
			return fmt.Errorf("could not write ssa: %w", err)
		}
	}

	if flags.clones {
		res, err := cache.RunTypeFlow(ctx)
		if err != nil {
			return err
		}
		if flags.out == "" {
			return render.WriteCloneGraphviz(res, os.Stdout)
		}
		return render.CloneGraphvizToFile(res, flags.out)
	}

	cg, err := cache.Callgraph(ctx, mode)
	if err != nil {
		return err
	}
	if flags.out == "" {
		return render.WriteGraphviz(cache.Config, cg, os.Stdout)
	}
	if err := render.GraphvizToFile(cache.Config, cg, flags.out); err != nil {
		return err
	}
	cache.Logger.Infof("Call graph written in %s", flags.out)
	return nil
}
