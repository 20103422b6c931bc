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

package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/awslabs/ar-go-typeflow/internal/funcutil"
	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	if configFile == "" {
		return NewDefault(), nil
	}
	return Load(configFile)
}

// Config contains the options of the tools and the settings of the type-flow analysis.
// To add elements to a config file, add fields to this struct.
// If some field is not defined in the config file, it will have its default value (see NewDefault).
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options

	sourceFile string

	// if the PkgFilter is specified
	pkgFilterRegex *regexp.Regexp

	// TypeFlow contains the settings of the type-flow analysis engine
	TypeFlow TypeFlowOptions `yaml:"typeflow"`

	// EntryPoints lists additional functions to use as roots of the analysis, on top of the main and init functions
	// of the main packages.
	EntryPoints []CodeIdentifier `yaml:"entrypoints"`
}

// Options are the general options of the tools
type Options struct {
	// ReportsDir is the directory where all the reports will be stored. If the yaml config file this config struct has
	// been loaded from does not specify a ReportsDir but sets a Report* option to true, then ReportsDir will be created
	// next to the config file.
	ReportsDir string `yaml:"reports-dir"`

	// PkgFilter restricts the reports to the functions whose package match the filter
	PkgFilter string `yaml:"pkg-filter"`

	// ReportReachability can be set to true to write the reachable functions in the reports directory
	ReportReachability bool `yaml:"report-reachability"`

	// Loglevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// Suppress warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// TypeFlowOptions are the settings of the type-flow analysis. They are read once when the analysis starts and are not
// modified afterwards.
type TypeFlowOptions struct {
	// ContextSensitive enables the context-sensitive analysis policy. When false, every allocation of a type is
	// represented by the type's summary object and every method has a single flow graph.
	ContextSensitive bool `yaml:"context-sensitive"`

	// ContextKind is either "object" (object sensitivity, the default) or "callsite" (call-string sensitivity)
	ContextKind string `yaml:"context-kind"`

	// MaxContextDepth is the maximum length of a method context
	MaxContextDepth int `yaml:"max-context-depth"`

	// MaxHeapDepth is the maximum length of the context of an allocated object. A negative value means
	// MaxContextDepth - 1.
	MaxHeapDepth int `yaml:"max-heap-depth"`

	// TypeTrackingBudget is the maximum number of distinct contexts per (type, allocation site) before allocations
	// at that site collapse to the summary object. A value <= 0 means unbounded.
	TypeTrackingBudget int `yaml:"type-tracking-budget"`

	// SplitStores enables per-object field and array stores for context-sensitive objects
	SplitStores bool `yaml:"split-stores"`

	// TrackTypes is a list of regexes. When non-empty, only the types whose name matches one of the regexes are
	// tracked context-sensitively.
	TrackTypes []string `yaml:"track-types"`

	// Workers is the number of goroutines processing the work queue. Defaults to the number of CPUs.
	Workers int `yaml:"workers"`

	// MaxFlowNodes is a budget on the total number of flow nodes. Exceeding it aborts the analysis. 0 means no limit.
	MaxFlowNodes int `yaml:"max-flow-nodes"`

	// Timeout is a duration (e.g. "30s") after which the analysis is aborted. Empty means no timeout.
	Timeout string `yaml:"timeout"`

	// ReportUnknownUses controls whether uses of unknown values as receivers are reported as diagnostics
	ReportUnknownUses bool `yaml:"report-unknown-uses"`

	timeout          time.Duration
	trackTypesRegexs []*regexp.Regexp
}

const (
	// ObjectContext selects object sensitivity
	ObjectContext = "object"
	// CallSiteContext selects call-site sensitivity
	CallSiteContext = "callsite"
)

// NewDefault returns a default config.
func NewDefault() *Config {
	return &Config{
		sourceFile: "",
		Options: Options{
			ReportsDir:         "",
			PkgFilter:          "",
			ReportReachability: false,
			LogLevel:           int(InfoLevel),
			SilenceWarn:        false,
		},
		TypeFlow: TypeFlowOptions{
			ContextSensitive:   false,
			ContextKind:        ObjectContext,
			MaxContextDepth:    DefaultMaxContextDepth,
			MaxHeapDepth:       -1,
			TypeTrackingBudget: DefaultTypeTrackingBudget,
			SplitStores:        true,
			Workers:            runtime.NumCPU(),
			MaxFlowNodes:       0,
			ReportUnknownUses:  true,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return LoadFromBytes(filename, b)
}

// LoadFromBytes parses the configuration in b. The filename is used to resolve relative paths.
func LoadFromBytes(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	cfg.sourceFile = filename

	if cfg.ReportReachability {
		if err := setReportsDir(cfg, filename); err != nil {
			return nil, err
		}
	}

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.PkgFilter != "" {
		r, err := regexp.Compile(cfg.PkgFilter)
		if err == nil {
			cfg.pkgFilterRegex = r
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.EntryPoints = funcutil.Map(cfg.EntryPoints, CompileRegexes)
	return cfg, nil
}

// Validate checks the type-flow settings and computes the private fields derived from them. Validate must be called
// when a config is modified after being loaded.
func (c *Config) Validate() error {
	var errs []error
	tf := &c.TypeFlow
	if tf.ContextKind == "" {
		tf.ContextKind = ObjectContext
	}
	if tf.ContextKind != ObjectContext && tf.ContextKind != CallSiteContext {
		errs = append(errs, fmt.Errorf("unknown context-kind %q (expected %q or %q)",
			tf.ContextKind, ObjectContext, CallSiteContext))
	}
	if tf.MaxContextDepth < 0 {
		errs = append(errs, fmt.Errorf("max-context-depth must be positive, got %d", tf.MaxContextDepth))
	}
	if tf.MaxHeapDepth > tf.MaxContextDepth {
		errs = append(errs, fmt.Errorf("max-heap-depth (%d) cannot be larger than max-context-depth (%d)",
			tf.MaxHeapDepth, tf.MaxContextDepth))
	}
	if tf.MaxFlowNodes < 0 {
		errs = append(errs, fmt.Errorf("max-flow-nodes must be positive, got %d", tf.MaxFlowNodes))
	}
	if tf.Workers <= 0 {
		tf.Workers = runtime.NumCPU()
	}
	tf.timeout = 0
	if tf.Timeout != "" {
		d, err := time.ParseDuration(tf.Timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid timeout: %w", err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("timeout must be positive, got %s", tf.Timeout))
		} else {
			tf.timeout = d
		}
	}
	tf.trackTypesRegexs = nil
	for _, s := range tf.TrackTypes {
		r, err := regexp.Compile(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid track-types regex %q: %w", s, err))
			continue
		}
		tf.trackTypesRegexs = append(tf.trackTypesRegexs, r)
	}
	return errors.Join(errs...)
}

func setReportsDir(c *Config, filename string) error {
	if c.ReportsDir == "" {
		tmpdir, err := os.MkdirTemp(path.Dir(filename), "*-report")
		if err != nil {
			return fmt.Errorf("could not create temp dir for reports")
		}
		c.ReportsDir = tmpdir
	} else {
		err := os.Mkdir(c.ReportsDir, 0750)
		if err != nil {
			if !os.IsExist(err) {
				return fmt.Errorf("could not create directory %s", c.ReportsDir)
			}
		}
	}
	return nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	return path.Join(path.Dir(c.sourceFile), filename)
}

// MatchPkgFilter returns true if the package name pkgname matches the package filter set in the config file. If no
// package filter has been set in the config file, the regex will match anything and return true. This function safely
// considers the case where a filter has been specified by the user, but it could not be compiled to a regex. The safe
// case is to check whether the package filter string is a prefix of the pkgname
func (c Config) MatchPkgFilter(pkgname string) bool {
	if c.pkgFilterRegex != nil {
		return c.pkgFilterRegex.MatchString(pkgname)
	} else if c.PkgFilter != "" {
		return strings.HasPrefix(pkgname, c.PkgFilter)
	} else {
		return true
	}
}

// IsEntryPoint returns true if the code identifier matches one of the entry points of the config
func (c Config) IsEntryPoint(cid CodeIdentifier) bool {
	return ExistsCid(c.EntryPoints, cid.equalOnNonEmptyFields)
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// HeapDepth returns the maximum length of the context of allocated objects
func (tf TypeFlowOptions) HeapDepth() int {
	if tf.MaxHeapDepth < 0 {
		if tf.MaxContextDepth > 0 {
			return tf.MaxContextDepth - 1
		}
		return 0
	}
	return tf.MaxHeapDepth
}

// TimeoutDuration returns the parsed timeout, 0 if none was set. Only valid after Validate.
func (tf TypeFlowOptions) TimeoutDuration() time.Duration {
	return tf.timeout
}

// IsTrackedType returns true if the type named typeName should be tracked context-sensitively. All types are tracked
// when no track-types filter has been specified.
func (tf TypeFlowOptions) IsTrackedType(typeName string) bool {
	if len(tf.TrackTypes) == 0 {
		return true
	}
	return funcutil.Exists(tf.trackTypesRegexs, func(r *regexp.Regexp) bool { return r.MatchString(typeName) })
}
