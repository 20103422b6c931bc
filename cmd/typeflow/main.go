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

package main

import (
	"fmt"
	"os"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/callgraph"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/compare"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/pointsto"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/reachability"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/stats"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
)

const usage = `Typeflow: whole-program type-flow analysis for Go
Usage:
  typeflow [tool] [options] <Go file path(s)>
Tools:
  - pointsto: prints the functions called at each dynamic call site, and the diagnostics of the analysis
  - reachability: prints the functions that are reachable in the program
  - callgraph: writes the call graph, or the graph of the method clones, in the Graphviz format
  - compare: compares the reachable functions with the other call graph analyses
  - stats: prints statistics of the analysis and the recursive functions
Common options:
  -config, -verbose, -build-tags, -context-sensitive, -depth, -workers
Examples:
  Print the callees: typeflow pointsto -context-sensitive main.go
  Compare with RTA: typeflow compare -analyses rta --config=config.yaml main.go`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(2)
	}

	// hardcode help flag
	if snd := os.Args[1]; snd == "-help" || snd == "--help" {
		fmt.Println(usage)
		return
	}

	// hardcode version flag
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(analysis.Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "pointsto":
		flags, err := pointsto.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := pointsto.Run(flags); err != nil {
			errExit(err)
		}
	case "reachability":
		flags, err := reachability.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := reachability.Run(flags); err != nil {
			errExit(err)
		}
	case "callgraph":
		flags, err := callgraph.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := callgraph.Run(flags); err != nil {
			errExit(err)
		}
	case "compare":
		flags, err := compare.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := compare.Run(flags); err != nil {
			errExit(err)
		}
	case "stats":
		flags, err := stats.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := stats.Run(flags); err != nil {
			errExit(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected command: %v\n", cmd)
		fmt.Fprintf(os.Stderr, "usage:\n%s\n", usage)
		os.Exit(2)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := tools.HintForError(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(2)
}
