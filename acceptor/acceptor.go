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

// Package acceptor binds one host:port, accepts connections, and
// distributes each one round-robin to a worker. Go's net.Listener.Accept
// already blocks the way a reactor's bound acceptor descriptor would, so
// the accept loop is just one goroutine feeding AcceptedCallback tasks
// into the worker pool, without needing a literal shared reactor thread
// for it.
package acceptor

import (
	"net"
	"strconv"
	"sync/atomic"

	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/worker"
)

// Callback is the user-supplied listen callback:
// (ctx, iocontext, sid, host, port) -> rc. A negative rc destroys the
// session before start() is invoked.
type Callback func(ctx, ioctx interface{}, id uint64, host string, port uint16) int32

// Acceptor owns one bound listener and round-robins accepted
// connections across a fixed worker pool.
type Acceptor struct {
	ln      net.Listener
	workers []*worker.Worker
	next    uint64

	cb  Callback
	ctx interface{}

	log logger.Logger

	closing chan struct{}
	done    chan struct{}
}

// Listen binds addr and returns an Acceptor; call Serve to start
// accepting. workers must be non-empty.
func Listen(addr string, workers []*worker.Worker, cb Callback, ctx interface{}, log logger.Logger) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Acceptor{
		ln:      ln,
		workers: workers,
		cb:      cb,
		ctx:     ctx,
		log:     log.WithFields(logger.Fields{"component": "acceptor", "addr": addr}),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Addr returns the bound local address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Serve runs the accept loop until Close is called. Intended to run in
// its own goroutine.
func (a *Acceptor) Serve() {
	defer close(a.done)
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			select {
			case <-a.closing:
				return
			default:
				a.log.Warn("accept error: " + err.Error())
				continue
			}
		}
		a.dispatch(conn)
	}
}

// dispatch implements step 1-2: pick a destination worker
// round-robin and enqueue an AcceptedCallback task carrying the fd and
// peer address. A full or closing worker queue means the connection is
// dropped — the task's implicit recycle is simply closing the socket.
func (a *Acceptor) dispatch(conn net.Conn) {
	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		_ = conn.Close()
		return
	}
	port64, _ := strconv.ParseUint(portStr, 10, 16)

	idx := atomic.AddUint64(&a.next, 1) % uint64(len(a.workers))
	w := a.workers[idx]

	t := task.Task{
		Kind: task.AcceptedCallback,
		Accepted: &task.AcceptedPayload{
			Conn: conn,
			Host: host,
			Port: uint16(port64),
			Cb:   a.cb,
			Ctx:  a.ctx,
		},
	}
	if !w.Submit(t) {
		a.log.Warn("worker queue rejected accepted connection from " + conn.RemoteAddr().String())
		_ = conn.Close()
	}
}

// Close stops the accept loop and closes the listener; it does not
// wait for Serve to return (callers select on Done()). Calling it again
// after the first time only re-closes the listener.
func (a *Acceptor) Close() error {
	select {
	case <-a.closing:
	default:
		close(a.closing)
	}
	return a.ln.Close()
}

// Done is closed once Serve has returned.
func (a *Acceptor) Done() <-chan struct{} { return a.done }
