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

package funcutil

import (
	"strconv"
	"testing"

	"golang.org/x/exp/slices"
)

func TestMap(t *testing.T) {
	if got := Map([]int{1, 2, 3}, strconv.Itoa); !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("Map returned %v", got)
	}
	if got := Map(nil, strconv.Itoa); len(got) != 0 {
		t.Errorf("Map of nil returned %v", got)
	}
}

func TestExists(t *testing.T) {
	even := func(x int) bool { return x%2 == 0 }
	if !Exists([]int{1, 3, 4}, even) {
		t.Errorf("4 is even")
	}
	if Exists([]int{1, 3, 5}, even) {
		t.Errorf("no element is even")
	}
}

func TestSetToOrderedSlice(t *testing.T) {
	set := map[string]bool{"c": true, "a": true, "b": false, "d": true}
	if got := SetToOrderedSlice(set); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Errorf("SetToOrderedSlice returned %v", got)
	}
}
