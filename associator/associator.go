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

// Package associator implements: adopt an externally
// obtained connection into the layer. Unlike accept/connect, there is
// no socket-level work to do here at all — the descriptor already
// exists — so the package is a thin, stateless wrapper that just picks
// a destination worker and enqueues the AssociatedCallback task.
package associator

import (
	"net"
	"sync/atomic"

	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/worker"
)

// Callback is the user-supplied associate callback:
// (ctx, iocontext, conn, sid) -> rc. A negative rc destroys the
// session without ever installing it into the reactor.
type Callback func(ctx, ioctx interface{}, conn net.Conn, id uint64) int32

// Associator round-robins adopted descriptors across a fixed worker
// pool.
type Associator struct {
	workers []*worker.Worker
	next    uint64
}

// Wire builds an Associator over workers.
func Wire(workers []*worker.Worker) *Associator {
	return &Associator{workers: workers}
}

// Associate adopts conn into the layer, The session's
// service vtable is left unset — the caller's callback must install
// one via set_service before any data can flow.
func (a *Associator) Associate(conn net.Conn, cb Callback, ctx interface{}) {
	idx := atomic.AddUint64(&a.next, 1) % uint64(len(a.workers))
	w := a.workers[idx]

	t := task.Task{
		Kind: task.AssociatedCallback,
		Associated: &task.AssociatedPayload{
			Conn: conn,
			Cb:   cb,
			Ctx:  ctx,
		},
	}
	if !w.Submit(t) {
		_ = conn.Close()
	}
}
