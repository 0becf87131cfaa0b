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

// Package sid implements the 64-bit session-id encoding: the leaf
// dependency of the network layer. A sid packs the owning worker index,
// a per-worker slot index, and a generation counter (seq) into one
// opaque uint64 so the dispatch facade can route any command to its
// target worker without a global lookup table.
package sid

const (
	// WorkerBits is the width of the worker-index field — up to 256
	// network threads (indices 0 through 255).
	WorkerBits = 8
	// SlotBits is the width of the per-worker slot-index field.
	SlotBits = 32
	// SeqBits is the width of the generation counter. A slot's seq
	// wraps modulo 1<<SeqBits; wraparound is acceptable since ids are
	// never persisted across process restarts.
	SeqBits = 64 - WorkerBits - SlotBits

	MaxWorker = 1<<WorkerBits - 1
	MaxSlot   = 1<<SlotBits - 1
	MaxSeq    = 1<<SeqBits - 1

	slotShift   = SeqBits
	workerShift = SeqBits + SlotBits
)

// ID is the opaque 64-bit session handle (the sid_t).
type ID uint64

// Invalid is the zero value, never issued by Encode: every table slot
// starts at seq 1 and NextSeq never wraps back to 0, so a live sid's
// seq field is always nonzero regardless of its worker/slot. That
// keeps a zero-valued ID field detectable as "no session" in code that
// forgets to check an ok/err return.
const Invalid ID = 0

// Encode packs worker, slot and seq into a sid. Callers must ensure
// worker <= MaxWorker, slot <= MaxSlot, seq <= MaxSeq; Encode masks
// silently rather than panicking, since seq in particular is expected
// to wrap.
func Encode(worker uint8, slot uint32, seq uint32) ID {
	w := uint64(worker) & MaxWorker
	s := uint64(slot) & MaxSlot
	g := uint64(seq) & MaxSeq
	return ID(w<<workerShift | s<<slotShift | g)
}

// Decode unpacks a sid into its worker, slot and seq components.
func Decode(id ID) (worker uint8, slot uint32, seq uint32) {
	v := uint64(id)
	worker = uint8((v >> workerShift) & MaxWorker)
	slot = uint32((v >> slotShift) & MaxSlot)
	seq = uint32(v & MaxSeq)
	return
}

// Worker extracts only the worker index, the hot path the dispatch
// facade uses to route a command in O(1).
func Worker(id ID) uint8 {
	return uint8((uint64(id) >> workerShift) & MaxWorker)
}

// NextSeq bumps a generation counter modulo its bit width, per the
// free-list reuse rule: slot reuse after overflow is acceptable because
// ids are not persisted across restarts. The result skips 0: seq 0 is
// reserved so that Encode can never produce Invalid for a live session.
func NextSeq(seq uint32) uint32 {
	n := (seq + 1) & MaxSeq
	if n == 0 {
		n = 1
	}
	return n
}
