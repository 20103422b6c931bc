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

/*
Package frontend lowers Go programs in SSA form into the universe consumed by the type-flow analysis.

The lowering is flow-insensitive and field-insensitive for Go memory:

  - every Go type that is used as a dynamic value becomes a universe class. Pointer types *T are the types of the
    objects allocated by new(T) and &T{}; any other type T is the type of the boxes created when a T value is
    converted to an interface. The methods of a class are the methods of the Go method set of the type.
  - the content of an addressable cell (pointer target, slice or array element, struct field, global variable,
    boxed value) is the element store of the object. Struct fields are not distinguished.
  - maps have the fields "keys" and "values", channels the field "contents".
  - a function used as a value is a constant object of a closure type whose "$call" method calls the function. A
    closure created by MakeClosure is an allocation of a closure type with one field per free variable, and its
    "$call" method is the body of the anonymous function.
  - an interface type is an interface of the universe with one abstract method per method of the interface, and a
    function signature used in indirect calls is an interface with the abstract method "$call".

Calls through interfaces and function values are virtual invocations. Calls of static callees are static
invocations, or special invocations when the callee has a receiver.

Values the lowering cannot model (assembly functions returning pointers, integer to pointer conversions) are unknown
values of the analysis, and an Unsupported diagnostic is recorded for each.
*/
package frontend
