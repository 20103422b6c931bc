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

// Package tools contains utility types and functions for the typeflow tool frontends.
package tools

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"golang.org/x/tools/go/buildutil"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
)

// UnparsedCommonFlags represents an unparsed CLI sub-command flags.
type UnparsedCommonFlags struct {
	FlagSet          *flag.FlagSet
	ConfigPath       *string
	Verbose          *bool
	BuildTags        *[]string
	ContextSensitive *bool
	Depth            *int
	Workers          *int
}

// NewUnparsedCommonFlags returns an unparsed flag set with a given name.
// This is useful for creating sub-commands that have the common flags
// but need other flags in addition.
func NewUnparsedCommonFlags(name string) UnparsedCommonFlags {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := cmd.String("config", "", "config file path for analysis")
	verbose := cmd.Bool("verbose", false, "verbose printing on standard output")
	var tags []string
	cmd.Var((*buildutil.TagsFlag)(&tags), "build-tags", buildutil.TagsFlagDoc)
	sensitive := cmd.Bool("context-sensitive", false, "run the context-sensitive analysis (overrides the config)")
	depth := cmd.Int("depth", -1, "maximum context depth (overrides the config)")
	workers := cmd.Int("workers", 0, "number of workers of the analysis (overrides the config)")
	return UnparsedCommonFlags{
		FlagSet:          cmd,
		ConfigPath:       configPath,
		Verbose:          verbose,
		BuildTags:        &tags,
		ContextSensitive: sensitive,
		Depth:            depth,
		Workers:          workers,
	}
}

// Parse parses args and returns the parsed common flags
func (u UnparsedCommonFlags) Parse(args []string) (CommonFlags, error) {
	if err := u.FlagSet.Parse(args); err != nil {
		return CommonFlags{}, fmt.Errorf("failed to parse command %s with args %v: %v", u.FlagSet.Name(), args, err)
	}
	flags := CommonFlags{
		FlagSet:    u.FlagSet,
		ConfigPath: *u.ConfigPath,
		Verbose:    *u.Verbose,
		BuildTags:  *u.BuildTags,
		Depth:      *u.Depth,
		Workers:    *u.Workers,
	}
	u.FlagSet.Visit(func(f *flag.Flag) {
		if f.Name == "context-sensitive" {
			flags.ContextSensitive = u.ContextSensitive
		}
	})
	return flags, nil
}

// CommonFlags represents a parsed CLI sub-command flags.
// E.g., for the command `typeflow pointsto ...`, "pointsto" is the sub-command.
type CommonFlags struct {
	FlagSet    *flag.FlagSet
	ConfigPath string
	Verbose    bool
	BuildTags  []string
	// ContextSensitive is nil when the flag has not been set
	ContextSensitive *bool
	// Depth is negative when the flag has not been set
	Depth int
	// Workers is zero when the flag has not been set
	Workers int
}

// NewCommonFlags returns a parsed flag set with a given name.
// Returns an error if args are invalid.
// Prints cmdUsage along with flag docs as the --help message.
func NewCommonFlags(name string, args []string, cmdUsage string) (CommonFlags, error) {
	flags := NewUnparsedCommonFlags(name)
	SetUsage(flags.FlagSet, cmdUsage)
	return flags.Parse(args)
}

// SetUsage sets cmd's usage (for --help flag) to output the string cmdUsage
// followed by each flag's documentation.
func SetUsage(cmd *flag.FlagSet, cmdUsage string) {
	cmd.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n", cmdUsage)
		fmt.Fprintf(os.Stderr, "Options:\n")
		cmd.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  %s: %s (default: %q)\n", f.Name, f.Usage, f.DefValue)
		})
	}
}

// LoadConfig loads the config file of the flags, or the default config when no file has been given, and applies
// the overrides of the command line.
func (f CommonFlags) LoadConfig() (*config.Config, error) {
	config.SetGlobalConfig(f.ConfigPath)
	cfg, err := config.LoadGlobal()
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %v", f.ConfigPath, err)
	}
	if f.Verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if f.ContextSensitive != nil {
		cfg.TypeFlow.ContextSensitive = *f.ContextSensitive
	}
	if f.Depth >= 0 {
		cfg.TypeFlow.MaxContextDepth = f.Depth
		if cfg.TypeFlow.MaxHeapDepth > f.Depth {
			cfg.TypeFlow.MaxHeapDepth = f.Depth
		}
	}
	if f.Workers > 0 {
		cfg.TypeFlow.Workers = f.Workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// PackagesConfig returns the configuration used to load the packages, with the build tags of the flags
func (f CommonFlags) PackagesConfig() *packages.Config {
	pcfg := &packages.Config{Mode: analysis.PkgLoadMode}
	if len(f.BuildTags) > 0 {
		pcfg.BuildFlags = []string{"-tags=" + strings.Join(f.BuildTags, ",")}
	}
	return pcfg
}

// LoadCache loads the config and the program designated by the arguments of the flags, and returns a cache for the
// analyses of the program.
func LoadCache(f CommonFlags) (*analysis.Cache, error) {
	cfg, err := f.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogGroup(cfg)
	if len(f.FlagSet.Args()) == 0 {
		return nil, fmt.Errorf("could not load program: no package or file to analyze")
	}
	logger.Infof("Reading sources")
	program, err := analysis.LoadProgram(f.PackagesConfig(), "", ssa.InstantiateGenerics, f.FlagSet.Args())
	if err != nil {
		return nil, fmt.Errorf("could not load program: %w", err)
	}
	return analysis.NewCache(program, logger, cfg), nil
}

// ExcludePaths represents filepaths to exclude.
type ExcludePaths []string

func (e *ExcludePaths) String() string {
	if e == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", []string(*e))
}

// Set adds value to e.
// This method satisfies the flag.Value interface.
func (e *ExcludePaths) Set(value string) error {
	*e = append(*e, value)
	return nil
}

// Absolute returns the paths of e relative to the current working directory made absolute
func (e ExcludePaths) Absolute() []string {
	result := make([]string, 0, len(e))
	for _, s := range e {
		if abs, err := filepath.Abs(s); err == nil {
			result = append(result, abs)
		} else {
			result = append(result, s)
		}
	}
	return result
}
