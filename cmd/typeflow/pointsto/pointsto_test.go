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

package pointsto

import (
	"bytes"
	"context"
	"path"
	"runtime"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-typeflow/analysis"
	"github.com/awslabs/ar-go-typeflow/internal/analysistest"
)

func TestWriteCallees(t *testing.T) {
	_, filename, _, _ := runtime.Caller(0)
	dir := path.Join(path.Dir(filename), "../../../testdata/src/typeflow/calls")
	lp, cfg := analysistest.LoadTest(t, dir, []string{})
	cache := analysis.NewCache(lp, nil, cfg)
	res, err := cache.RunTypeFlow(context.Background())
	if err != nil {
		t.Fatalf("analysis failed: %s", err)
	}
	callees := cache.Lowered.CallSiteCallees(res)

	var dynamic, all bytes.Buffer
	WriteCallees(&dynamic, cache.Program, callees, false)
	WriteCallees(&all, cache.Program, callees, true)
	if strings.Count(all.String(), "\n") <= strings.Count(dynamic.String(), "\n") {
		t.Errorf("static call sites should only be written with all:\n%s", all.String())
	}
	found := false
	for _, line := range strings.Split(dynamic.String(), "\n") {
		if strings.Contains(line, "command-line-arguments.speak:") {
			found = true
			if !strings.Contains(line, "(*command-line-arguments.Dog).Speak") ||
				!strings.Contains(line, "command-line-arguments.Cat).Speak") {
				t.Errorf("expected Dog.Speak and Cat.Speak in %q", line)
			}
			if strings.Contains(line, "Fish") {
				t.Errorf("unexpected callee in %q", line)
			}
		}
	}
	if !found {
		t.Errorf("no call site in speak:\n%s", dynamic.String())
	}
}
