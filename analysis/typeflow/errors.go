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

package typeflow

import (
	"errors"
	"fmt"
)

var (
	// ErrBudgetExceeded is returned when the analysis exceeds its node or time budget
	ErrBudgetExceeded = errors.New("analysis budget exceeded")

	// ErrInvariantViolation is returned when the engine detects a broken internal invariant, such as the state of a
	// flow losing objects
	ErrInvariantViolation = errors.New("analysis invariant violated")

	// ErrNoRoots is returned when the analysis is started without any root method
	ErrNoRoots = errors.New("no root methods")
)

// FatalKind is the kind of a fatal analysis error
type FatalKind int

const (
	// NodeBudget means the maximum number of flow nodes was reached
	NodeBudget FatalKind = iota
	// TimeBudget means the analysis did not reach a fixpoint before its timeout
	TimeBudget
	// Monotonicity means the state of a flow decreased
	Monotonicity
)

func (k FatalKind) String() string {
	switch k {
	case NodeBudget:
		return "node budget"
	case TimeBudget:
		return "time budget"
	case Monotonicity:
		return "monotonicity"
	default:
		return fmt.Sprintf("fatal(%d)", int(k))
	}
}

// A FatalError aborts the whole analysis. Fatal errors are never retried: they indicate a configuration problem or a
// bug in the engine.
type FatalError struct {
	Kind FatalKind
	// Node is the flow being processed when the error occurred, or -1
	Node   NodeID
	Detail string
}

func (e *FatalError) Error() string {
	if e.Node >= 0 {
		return fmt.Sprintf("fatal %s error at flow %d: %s", e.Kind, e.Node, e.Detail)
	}
	return fmt.Sprintf("fatal %s error: %s", e.Kind, e.Detail)
}

// Unwrap returns the sentinel error of the kind of e
func (e *FatalError) Unwrap() error {
	if e.Kind == Monotonicity {
		return ErrInvariantViolation
	}
	return ErrBudgetExceeded
}
