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
	"bytes"
	"strings"
	"testing"
)

func TestLogGroupLevels(t *testing.T) {
	tests := []struct {
		level    LogLevel
		silence  bool
		expected []string
		dropped  []string
	}{
		{InfoLevel, false, []string{"[ERROR] e", "[WARN] w", "[INFO] i"}, []string{"[DEBUG]", "[TRACE]"}},
		{InfoLevel, true, []string{"[ERROR] e", "[INFO] i"}, []string{"[WARN]", "[DEBUG]"}},
		{TraceLevel, false, []string{"[DEBUG] d", "[TRACE] t"}, nil},
		{ErrLevel, false, []string{"[ERROR] e"}, []string{"[WARN]", "[INFO]"}},
	}
	for _, test := range tests {
		t.Run(test.level.String(), func(t *testing.T) {
			cfg := NewDefault()
			cfg.LogLevel = int(test.level)
			cfg.SilenceWarn = test.silence
			l := NewLogGroup(cfg)
			var b bytes.Buffer
			l.SetAllOutput(&b)
			l.SetAllFlags(0)
			l.Errorf("e")
			l.Warnf("w")
			l.Infof("i")
			l.Debugf("d")
			l.Tracef("t")
			for _, s := range test.expected {
				if !strings.Contains(b.String(), s) {
					t.Errorf("expected %q in output %q", s, b.String())
				}
			}
			for _, s := range test.dropped {
				if strings.Contains(b.String(), s) {
					t.Errorf("unexpected %q in output %q", s, b.String())
				}
			}
			if l.LogsDebug() != (test.level >= DebugLevel) || l.LogsTrace() != (test.level >= TraceLevel) {
				t.Errorf("wrong predicates for level %s", test.level)
			}
		})
	}
}
