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

package main

type T struct {
	v int
}

func newT(x int) *T {
	return &T{v: x}
}

func apply(f func(int) *T, x int) *T {
	return f(x) // @Calls(newT, main$1)
}

func worker(f func(int) *T) {
	f(0) // @Calls(main$1)
}

func cleanup() {
	println("done")
}

func compose(f func() int) func() int {
	return func() int {
		return f() + 1 // @Calls(main$3)
	}
}

func main() {
	k := 3
	g := func(x int) *T {
		return &T{v: x + k}
	}
	apply(newT, 1) // @Calls(apply)
	apply(g, 2)    // @Calls(apply)

	h := func() {
		println("h")
	}
	h() // @Calls(main$2)

	defer cleanup() // @Calls(cleanup)
	go worker(g)    // @Calls(worker)

	c := compose(func() int { return k })
	c() // @Calls(compose$1)
}
