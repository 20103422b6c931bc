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

package tools

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis/config"
	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
)

func TestHintForError(t *testing.T) {
	tests := []struct {
		err  error
		hint string
	}{
		{errors.New("could not load program:\n -: named files must be .go files: -v"),
			"all command line flags should be before the path"},
		{errors.New("could not load program: errors found, exiting"),
			"you have provided the right arguments"},
		{fmt.Errorf("type-flow analysis failed: %w", typeflow.ErrNoRoots), "needs an entry point"},
		{fmt.Errorf("type-flow analysis failed: %w", &typeflow.FatalError{Kind: typeflow.NodeBudget, Node: -1}),
			"max-flow-nodes"},
		{errors.New("something else"), ""},
	}
	for _, test := range tests {
		hint := HintForError(test.err)
		if test.hint == "" && hint != "" {
			t.Errorf("expected no hint for %q, got %q", test.err, hint)
		}
		if !strings.Contains(hint, test.hint) {
			t.Errorf("hint for %q is %q, expected it to contain %q", test.err, hint, test.hint)
		}
	}
}

func TestCommonFlagsOverrides(t *testing.T) {
	flags, err := NewUnparsedCommonFlags("test").Parse([]string{"-context-sensitive", "-depth", "3", "-workers", "2",
		"-build-tags", "linux integration", "main.go"})
	if err != nil {
		t.Fatalf("failed to parse flags: %s", err)
	}
	if flags.ContextSensitive == nil || !*flags.ContextSensitive {
		t.Errorf("expected -context-sensitive to be set")
	}
	if got := strings.Join(flags.BuildTags, ","); got != "linux,integration" {
		t.Errorf("expected build tags linux,integration, got %s", got)
	}
	if got := flags.PackagesConfig().BuildFlags; len(got) != 1 || got[0] != "-tags=linux,integration" {
		t.Errorf("unexpected build flags %v", got)
	}
	if args := flags.FlagSet.Args(); len(args) != 1 || args[0] != "main.go" {
		t.Errorf("unexpected arguments %v", args)
	}
	cfg, err := flags.LoadConfig()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	if !cfg.TypeFlow.ContextSensitive || cfg.TypeFlow.MaxContextDepth != 3 || cfg.TypeFlow.Workers != 2 {
		t.Errorf("flags not applied to config: %+v", cfg.TypeFlow)
	}
}

func TestCommonFlagsDefaults(t *testing.T) {
	flags, err := NewUnparsedCommonFlags("test").Parse([]string{"main.go"})
	if err != nil {
		t.Fatalf("failed to parse flags: %s", err)
	}
	if flags.ContextSensitive != nil {
		t.Errorf("-context-sensitive should not be set")
	}
	cfg, err := flags.LoadConfig()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	def := config.NewDefault()
	if cfg.TypeFlow.ContextSensitive != def.TypeFlow.ContextSensitive ||
		cfg.TypeFlow.MaxContextDepth != def.TypeFlow.MaxContextDepth {
		t.Errorf("config should not be modified without flags: %+v", cfg.TypeFlow)
	}
	if len(flags.PackagesConfig().BuildFlags) != 0 {
		t.Errorf("expected no build flags")
	}
}

func TestLoadCacheWithoutArguments(t *testing.T) {
	flags, err := NewUnparsedCommonFlags("test").Parse(nil)
	if err != nil {
		t.Fatalf("failed to parse flags: %s", err)
	}
	if _, err := LoadCache(flags); err == nil || HintForError(err) == "" {
		t.Errorf("expected a load error with a hint, got %v", err)
	}
}
