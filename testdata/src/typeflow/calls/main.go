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

type Animal interface {
	Speak() string
}

type Dog struct {
	name string
}

func (d *Dog) Speak() string {
	return d.name
}

type Cat struct{}

func (c Cat) Speak() string {
	return "meow"
}

// Fish is never allocated: its method is never called
type Fish struct{}

func (f *Fish) Speak() string {
	return "..."
}

type Kennel struct {
	animals []Animal
}

func (k *Kennel) Add(a Animal) {
	k.animals = append(k.animals, a)
}

func (k *Kennel) First() Animal {
	return k.animals[0]
}

func speak(a Animal) string {
	return a.Speak() // @Calls(Dog.Speak, Cat.Speak)
}

func onlyDogs(a Animal) string {
	if _, ok := a.(*Dog); ok {
		return a.Speak() // @Calls(Dog.Speak)
	}
	return ""
}

func main() {
	d := &Dog{name: "rex"}
	speak(d)     // @Calls(speak)
	speak(Cat{}) // @Calls(speak)
	onlyDogs(d)  // @Calls(onlyDogs)

	var a Animal = d
	a.Speak() // @Calls(Dog.Speak)
	d.Speak() // @Calls(Dog.Speak)

	k := &Kennel{}
	k.Add(Cat{})     // @Calls(Kennel.Add)
	k.First().Speak() // @Calls(Kennel.First, Cat.Speak)
}
