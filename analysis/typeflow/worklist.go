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

import "sync"

// worklist is an unbounded FIFO queue of flows shared by the workers. pending counts the flows that are queued or
// being processed: the fixpoint is reached when it drops to zero.
type worklist struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*TypeFlow
	head    int
	pending int
	closed  bool
}

func newWorklist() *worklist {
	w := &worklist{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worklist) push(f *TypeFlow) {
	w.mu.Lock()
	w.queue = append(w.queue, f)
	w.pending++
	w.mu.Unlock()
	w.cond.Signal()
}

// pop waits for a flow to process. It returns false when the fixpoint is reached or the worklist is closed.
func (w *worklist) pop() (*TypeFlow, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.head == len(w.queue) && w.pending > 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed || w.head == len(w.queue) {
		return nil, false
	}
	f := w.queue[w.head]
	w.queue[w.head] = nil
	w.head++
	if w.head == len(w.queue) {
		w.queue = w.queue[:0]
		w.head = 0
	}
	return f, true
}

// done must be called once for every flow returned by pop, after the flow has been processed
func (w *worklist) done() {
	w.mu.Lock()
	w.pending--
	finished := w.pending == 0
	w.mu.Unlock()
	if finished {
		w.cond.Broadcast()
	}
}

// close wakes up all the workers and makes them stop
func (w *worklist) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *worklist) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) - w.head
}

// finished returns true if all the flows pushed have been processed
func (w *worklist) finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending == 0
}
