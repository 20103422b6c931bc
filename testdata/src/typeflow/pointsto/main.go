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

type Item struct {
	id int
}

type Box struct {
	item interface{}
}

func wrap(x interface{}) *Box {
	return &Box{item: x}
}

func sink(x interface{}) {}

type Getter interface {
	Get() *Item
}

type holder struct {
	it *Item
}

func (h *holder) Get() *Item {
	return h.it
}

func main() {
	a := &Item{id: 1} // @Alloc(a)
	b := &Item{id: 2} // @Alloc(b)
	boxA := wrap(a)
	boxB := wrap(b)
	sink(boxA.item) // @PointsTo(a)
	sink(boxB.item) // @PointsTo(b)

	c := &Item{id: 3} // @Alloc(c)
	m := map[string]*Item{}
	m["c"] = c
	sink(m["c"]) // @PointsTo(c)

	d := &Item{id: 4} // @Alloc(d)
	s := []*Item{d}
	sink(s[0]) // @PointsTo(d)

	e := &Item{id: 5} // @Alloc(e)
	ch := make(chan *Item, 1)
	ch <- e
	sink(<-ch) // @PointsTo(e)

	f := &Item{id: 6} // @Alloc(f)
	get := func() *Item {
		return f
	}
	sink(get()) // @PointsTo(f)

	var g Getter = &holder{it: a}
	sink(g.Get()) // @PointsTo(a)

	var v interface{} = b
	if it, ok := v.(*Item); ok {
		sink(it) // @PointsTo(b)
	}
}
