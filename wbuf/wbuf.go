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

// Package wbuf implements the per-session outgoing write buffer: a FIFO
// of byte segments with ownership tracking, coalesced
// into gather writes where the underlying connection supports
// scatter-gather I/O.
//
// Append's owns flag is the Go analogue of an isfree argument to a
// C-style send call: when owns is true the caller's slice is kept
// as-is (the caller must not mutate it again); when false the bytes
// are copied immediately so the caller's buffer stays theirs to reuse.
package wbuf

import (
	"io"
	"net"

	"github.com/sagernet/sing/common/bufio"
)

// segment is one queued write (the write segment). Go's GC makes
// isfree/owns irrelevant to memory reclamation, but it still governs
// whether Append copies: a caller that passed owns=false must get its
// buffer back untouched by the time Append returns.
type segment struct {
	data []byte
	off  int
}

func (s *segment) remaining() []byte { return s.data[s.off:] }
func (s *segment) done() bool        { return s.off >= len(s.data) }

// Buffer is a FIFO of pending write segments for one session.
type Buffer struct {
	segs []segment
	size int
	max  int // 0 = unbounded
}

// New builds an unbounded buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewSized builds a buffer that rejects Append once Pending would
// exceed max bytes (the per-session counterpart to config.WriteQueueSize).
// max <= 0 means unbounded, same as New.
func NewSized(max int) *Buffer {
	return &Buffer{max: max}
}

// Append enqueues data. If owns is true the slice is retained directly;
// if false, the bytes are copied before being queued so the caller's
// buffer remains theirs. Append reports false without queuing anything
// if doing so would push Pending past the buffer's configured max —
// the caller (session.Send) turns that into a backpressure error
// instead of growing the queue without bound.
func (b *Buffer) Append(data []byte, owns bool) bool {
	if len(data) == 0 {
		return true
	}
	if b.max > 0 && b.size+len(data) > b.max {
		return false
	}
	buf := data
	if !owns {
		buf = make([]byte, len(data))
		copy(buf, data)
	}
	b.segs = append(b.segs, segment{data: buf})
	b.size += len(buf)
	return true
}

// Empty reports whether there is nothing left to send.
func (b *Buffer) Empty() bool { return len(b.segs) == 0 }

// Pending returns the total number of unsent bytes across all segments.
func (b *Buffer) Pending() int { return b.size }

// Flush writes the queue to the connection, blocking until the
// connection has accepted it or the write fails, using a single gather
// write when the
// connection exposes a vectorised writer (the same mechanism the
// pack's smux example uses in its sendLoop), falling back to
// sequential net.Buffers.WriteTo otherwise. Fully-sent segments are
// dropped from the queue; a partially sent segment's offset advances.
func (b *Buffer) Flush(conn net.Conn) (n int, err error) {
	if len(b.segs) == 0 {
		return 0, nil
	}

	vec := make([][]byte, 0, len(b.segs))
	for i := range b.segs {
		vec = append(vec, b.segs[i].remaining())
	}

	var written int
	if bw, ok := bufio.CreateVectorisedWriter(conn); ok {
		written, err = bufio.WriteVectorised(bw, vec)
	} else {
		written, err = writeSequential(conn, vec)
	}

	n = written
	b.consume(written)
	return n, err
}

func writeSequential(w io.Writer, vec [][]byte) (int, error) {
	buffers := net.Buffers(append([][]byte(nil), vec...))
	total, err := buffers.WriteTo(w)
	return int(total), err
}

// consume drops fully-written segments and advances the offset of a
// partially-written one.
func (b *Buffer) consume(n int) {
	i := 0
	for i < len(b.segs) && n > 0 {
		seg := &b.segs[i]
		rem := len(seg.remaining())
		if n >= rem {
			n -= rem
			b.size -= rem
			i++
		} else {
			seg.off += n
			b.size -= n
			n = 0
		}
	}
	b.segs = b.segs[i:]
}

// Discard drops all pending segments without sending them (used on
// session destruction: owned segments are released,
// non-owned segments are simply forgotten — in Go both cases reduce to
// dropping the reference).
func (b *Buffer) Discard() {
	b.segs = nil
	b.size = 0
}
