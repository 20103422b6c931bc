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
	"fmt"
	"go/token"
	"sort"
	"sync"

	"github.com/awslabs/ar-go-typeflow/analysis/universe"
)

// DiagnosticKind is the kind of a diagnostic
type DiagnosticKind int

const (
	// IllegalUnknownUse is reported when an unknown value is used where the analysis needs to know the objects, for
	// example as the receiver of a call
	IllegalUnknownUse DiagnosticKind = iota
	// Unsupported is reported by front-ends for program constructs they cannot model
	Unsupported
)

func (k DiagnosticKind) String() string {
	switch k {
	case IllegalUnknownUse:
		return "illegal-unknown-use"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// A Diagnostic is a non-fatal problem attached to an instruction of a method
type Diagnostic struct {
	Kind   DiagnosticKind
	Method *universe.Method
	// Index is the index of the instruction in the method body, or -1
	Index   int
	Pos     token.Position
	Message string
}

func (d Diagnostic) String() string {
	if d.Pos.IsValid() {
		return fmt.Sprintf("%s: [%s] %s: %s", d.Pos, d.Kind, d.Method, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Method, d.Message)
}

type diagnosticKey struct {
	kind   DiagnosticKind
	method *universe.Method
	index  int
}

// Diagnostics is the sink of the diagnostics of an analysis. It is safe for concurrent use. A diagnostic is recorded
// once per (kind, method, instruction).
type Diagnostics struct {
	mu   sync.Mutex
	list []Diagnostic
	seen map[diagnosticKey]bool
}

// NewDiagnostics returns an empty sink
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{seen: map[diagnosticKey]bool{}}
}

// Report records d. Returns false if an equivalent diagnostic was already recorded.
func (ds *Diagnostics) Report(d Diagnostic) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	key := diagnosticKey{d.Kind, d.Method, d.Index}
	if ds.seen[key] {
		return false
	}
	ds.seen[key] = true
	ds.list = append(ds.list, d)
	return true
}

// Len returns the number of diagnostics recorded
func (ds *Diagnostics) Len() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.list)
}

// All returns the diagnostics ordered by method and instruction
func (ds *Diagnostics) All() []Diagnostic {
	ds.mu.Lock()
	res := make([]Diagnostic, len(ds.list))
	copy(res, ds.list)
	ds.mu.Unlock()
	sort.Slice(res, func(i, j int) bool {
		mi, mj := methodID(res[i].Method), methodID(res[j].Method)
		if mi != mj {
			return mi < mj
		}
		if res[i].Index != res[j].Index {
			return res[i].Index < res[j].Index
		}
		return res[i].Kind < res[j].Kind
	})
	return res
}

func methodID(m *universe.Method) int {
	if m == nil {
		return -1
	}
	return m.ID
}
