// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package par runs independent work items concurrently.
package par

import "sync"

// Work is a set of items processed in parallel, at most once each. Items
// must be valid map keys.
type Work[T comparable] struct {
	f       func(T)
	running int

	mu      sync.Mutex
	added   map[T]bool
	todo    []T
	wait    sync.Cond
	waiting int
}

// Add adds item to the set unless it was added before. It may be called
// from within the function passed to Do.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.added == nil {
		w.added = make(map[T]bool)
	}
	if w.added[item] {
		return
	}
	w.added[item] = true
	w.todo = append(w.todo, item)
	if w.waiting > 0 {
		w.wait.Signal()
	}
}

// Do calls f for every item in the set with at most n calls running at
// once, and returns once the set is drained. Items are started in the
// order they were added. Do must be called at most once.
func (w *Work[T]) Do(n int, f func(item T)) {
	if n < 1 {
		panic("par: Work.Do with n < 1")
	}
	if w.running > 0 {
		panic("par: Work.Do called twice")
	}
	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner()
		}()
	}
	w.runner()
	wg.Wait()
}

// runner processes items until the set is empty and every runner waits.
func (w *Work[T]) runner() {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}
		item := w.todo[0]
		w.todo = w.todo[1:]
		w.mu.Unlock()

		w.f(item)
	}
}

// Map calls f(i) for i in [0, len) with at most n calls at once and
// returns the results in index order.
func Map[R any](n, length int, f func(i int) R) []R {
	out := make([]R, length)
	if length == 0 {
		return out
	}
	var w Work[int]
	for i := range length {
		w.Add(i)
	}
	w.Do(min(n, length), func(i int) { out[i] = f(i) })
	return out
}
