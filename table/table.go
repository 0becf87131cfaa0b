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

// Package table implements the per-worker session table: a slot array
// addressed by free list, with seq-checked lookup so a stale sid from a
// reused slot resolves to "not found" instead of someone else's session.
//
// The table is owned by exactly one worker goroutine and is never
// accessed concurrently — the invariant that a session is touched
// only on its worker's thread extends to the table that holds it, so
// this package does no internal locking. Cross-thread callers go through
// the worker's task queue instead (see package worker).
package table

import "github.com/nabbar/netmux/sid"

// Session is the minimal shape the table needs from a session: its slot
// and the seq it was registered under. The session package's concrete
// type embeds this.
type Session interface {
	Slot() uint32
	Seq() uint32
}

type slotEntry[S Session] struct {
	seq     uint32
	session S
	used    bool
}

// Table is a fixed-capacity slot table for one worker.
type Table[S Session] struct {
	worker   uint8
	slots    []slotEntry[S]
	freeList []uint32
	count    int
}

// New builds a table with room for capacity sessions, owned by worker.
// Every slot starts at seq 1, never 0: seq 0 is reserved so a sid
// encoding slot 0 on worker 0 is never indistinguishable from
// sid.Invalid.
func New[S Session](worker uint8, capacity int) *Table[S] {
	t := &Table[S]{
		worker:   worker,
		slots:    make([]slotEntry[S], capacity),
		freeList: make([]uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		t.freeList[i] = uint32(capacity - 1 - i)
		t.slots[i].seq = 1
	}
	return t
}

// Cap returns the table's fixed capacity.
func (t *Table[S]) Cap() int { return len(t.slots) }

// Len returns the number of sessions currently registered.
func (t *Table[S]) Len() int { return t.count }

// Full reports whether the table has no free slot left.
func (t *Table[S]) Full() bool { return len(t.freeList) == 0 }

// Reserve allocates a slot and returns it along with the seq the caller
// must encode into the new sid. It does not yet store a session — call
// Put once the session object exists, mirroring the two-phase
// registration the acceptor/connector/associator perform (allocate a
// sid before the user's listen/connect callback runs, then store the
// session only if that callback accepts it).
func (t *Table[S]) Reserve() (slot uint32, seq uint32, ok bool) {
	n := len(t.freeList)
	if n == 0 {
		return 0, 0, false
	}
	slot = t.freeList[n-1]
	t.freeList = t.freeList[:n-1]
	seq = t.slots[slot].seq
	return slot, seq, true
}

// Put stores a session in a slot previously returned by Reserve.
func (t *Table[S]) Put(slot uint32, s S) {
	t.slots[slot].session = s
	t.slots[slot].used = true
	t.count++
}

// Abort releases a slot reserved via Reserve without ever Put-ing a
// session into it (the registration callback rejected the session).
func (t *Table[S]) Abort(slot uint32) {
	t.freeList = append(t.freeList, slot)
}

// Lookup resolves a sid to its session. It fails cleanly — without
// error — when the encoded seq disagrees with the slot's current seq,
// or the slot is unused: stale/foreign sids are a benign miss, not an
// error,
func (t *Table[S]) Lookup(id sid.ID) (s S, ok bool) {
	worker, slot, seq := sid.Decode(id)
	if worker != t.worker || int(slot) >= len(t.slots) {
		return s, false
	}
	e := &t.slots[slot]
	if !e.used || e.seq != seq {
		return s, false
	}
	return e.session, true
}

// Remove frees slot, bumps its seq so any outstanding sid referencing it
// becomes unresolvable, and returns the slot to the free list.
func (t *Table[S]) Remove(slot uint32) {
	e := &t.slots[slot]
	if !e.used {
		return
	}
	var zero S
	e.session = zero
	e.used = false
	e.seq = sid.NextSeq(e.seq)
	t.count--
	t.freeList = append(t.freeList, slot)
}

// Each calls fn for every live session in the table, in slot order. fn
// must not call Remove/Put on the table being iterated.
func (t *Table[S]) Each(fn func(s S)) {
	for i := range t.slots {
		if t.slots[i].used {
			fn(t.slots[i].session)
		}
	}
}
