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

// Package reachability implements the reachability sub-command.
package reachability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awslabs/ar-go-typeflow/analysis/reachability"
	"github.com/awslabs/ar-go-typeflow/cmd/typeflow/tools"
	"github.com/awslabs/ar-go-typeflow/internal/formatutil"
)

// Flags represents the parsed flags for the reachability sub-command.
type Flags struct {
	tools.CommonFlags
	outputJSON bool
}

// NewFlags creates parsed reachability sub-command flags for args.
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("reachability")
	outputJSON := flags.FlagSet.Bool("json", false, "output results as JSON")
	tools.SetUsage(flags.FlagSet, usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: common, outputJSON: *outputJSON}, nil
}

const usage = `Find all the reachable functions in your Go program.

Usage:
  typeflow reachability package...
  typeflow reachability source.go
  typeflow reachability source1.go source2.go

prefix with GOOS and/or GOARCH to analyze a different architecture:
  GOOS=windows GOARCH=amd64 typeflow reachability main_windows.go

Use the -help flag to display the options.

Examples:
% typeflow reachability -json hello.go
`

// Run runs the reachability analysis with flags. The functions are printed in reverse topological order of the
// call graph, callees first. When the config asks for reachability reports, the JSON report is also written in the
// reports directory.
func Run(flags Flags) error {
	cache, err := tools.LoadCache(flags.CommonFlags)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, formatutil.Faint("Analyzing")+"\n")
	res, err := cache.RunTypeFlow(context.Background())
	if err != nil {
		return err
	}
	report := reachability.NewReport(cache.Lowered, res, cache.Config)
	if err := report.Write(os.Stdout, flags.outputJSON); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	if cache.Config.ReportReachability && cache.Config.ReportsDir != "" {
		filename := filepath.Join(cache.Config.ReportsDir, "reachable-functions.json")
		f, err := os.Create(filename)
		if err != nil {
			return fmt.Errorf("could not create report file: %w", err)
		}
		defer f.Close()
		if err := report.Write(f, true); err != nil {
			return fmt.Errorf("could not write report: %w", err)
		}
		cache.Logger.Infof("Reachability report written in %s", filename)
	}
	return nil
}
