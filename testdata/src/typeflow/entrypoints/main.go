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

type Request struct {
	path string
}

type Response struct {
	body string
}

func respond(r *Request) *Response {
	return &Response{body: r.path}
}

// HandleRequest is a root of the analysis because it matches an entrypoint of the config
func HandleRequest() *Response {
	return respond(&Request{path: "/"}) // @Calls(respond)
}

//typeflow:entrypoint
func Serve() {
	log("serving") // @Calls(log)
}

func log(msg string) {
	println(msg)
}

func unused() {
	log("unused")
}

func main() {
}
