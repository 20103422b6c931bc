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
	"regexp"

	"github.com/awslabs/ar-go-typeflow/analysis/typeflow"
)

// Captures errors happening before any analysis starts (program could not load)
var regexCouldNotLoad = regexp.MustCompile("could not load program")

// Captures the kind of error that happen when you put a flag at the end instead of go files
var namedFilesMustBeGoFiles = regexp.MustCompile("-: named files must be .go files: -(\\w)")

// HintForError looks for specific errors and returns some other message that might help the user resolve the
// problem.
func HintForError(err error) string {
	switch {
	case errors.Is(err, typeflow.ErrNoRoots):
		return "the analysis needs an entry point; the path should lead to a main package, or the config should " +
			"list entrypoints"
	case errors.Is(err, typeflow.ErrBudgetExceeded):
		return "increase max-flow-nodes or timeout in the config, or lower the context depth with -depth"
	}
	errMsg := err.Error()
	if regexCouldNotLoad.MatchString(errMsg) {
		if namedFilesMustBeGoFiles.MatchString(errMsg) {
			return "all command line flags should be before the path to the Go files to analyze"
		}
		return "make sure you have provided the right arguments for an analyzer to load a Go program"
	}
	return ""
}
