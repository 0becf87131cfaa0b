/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package timerwheel drives the keepalive and idle-timeout deadlines
// requires each worker's event loop to track. It is a
// binary min-heap ordered by deadline — the same container/heap
// approach the pack's protohackers job-queue example uses for its
// priority queue — rather than a classic hashed timing wheel: a worker
// carries at most a few thousand live deadlines, for which a heap's
// O(log n) insert/reschedule is simpler and plenty fast, and it gives
// an exact "next deadline" for the reactor's poll timeout without
// bucket-width rounding.
package timerwheel

import (
	"container/heap"
	"time"
)

// Kind distinguishes the two standing per-session deadlines the worker
// tracks (: keepalive ticks and idle timeouts).
type Kind uint8

const (
	Idle Kind = iota
	Keepalive
)

type key struct {
	slot uint32
	kind Kind
}

type item struct {
	key      key
	deadline time.Time
	index    int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Wheel schedules (slot, kind) deadlines for one worker.
type Wheel struct {
	h     itemHeap
	byKey map[key]*item
}

func New() *Wheel {
	return &Wheel{byKey: make(map[key]*item)}
}

// Set schedules or reschedules the deadline for (slot, kind).
func (w *Wheel) Set(slot uint32, kind Kind, deadline time.Time) {
	k := key{slot, kind}
	if it, ok := w.byKey[k]; ok {
		it.deadline = deadline
		heap.Fix(&w.h, it.index)
		return
	}
	it := &item{key: k, deadline: deadline}
	heap.Push(&w.h, it)
	w.byKey[k] = it
}

// Cancel removes any scheduled deadline for (slot, kind), e.g. on
// session destruction so a dead slot's reused successor never fires a
// stale timer.
func (w *Wheel) Cancel(slot uint32, kind Kind) {
	k := key{slot, kind}
	it, ok := w.byKey[k]
	if !ok {
		return
	}
	heap.Remove(&w.h, it.index)
	delete(w.byKey, k)
}

// CancelSlot removes every deadline registered for slot, regardless of
// kind — used when a session is destroyed.
func (w *Wheel) CancelSlot(slot uint32) {
	w.Cancel(slot, Idle)
	w.Cancel(slot, Keepalive)
}

// NextDeadline returns the earliest pending deadline, if any. The
// worker event loop uses this to compute its reactor poll timeout.
func (w *Wheel) NextDeadline() (time.Time, bool) {
	if len(w.h) == 0 {
		return time.Time{}, false
	}
	return w.h[0].deadline, true
}

// Expired pops and returns every (slot, kind) whose deadline is at or
// before now.
func (w *Wheel) Expired(now time.Time) []struct {
	Slot uint32
	Kind Kind
} {
	var out []struct {
		Slot uint32
		Kind Kind
	}
	for len(w.h) > 0 && !w.h[0].deadline.After(now) {
		it := heap.Pop(&w.h).(*item)
		delete(w.byKey, it.key)
		out = append(out, struct {
			Slot uint32
			Kind Kind
		}{it.key.slot, it.key.kind})
	}
	return out
}
