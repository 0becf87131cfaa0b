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

// Package connector runs nonblocking outbound connects with a
// per-attempt deadline, handed off to a worker on completion, plus the
// reconnect loop a connected-origin session's Error callback can
// trigger by returning 0. Go's net.DialTimeout already does the
// nonblocking-connect-with-deadline dance that would otherwise need a
// syscall-level state machine, so the package's job is purely the
// worker handoff around it.
package connector

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/session"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/worker"
)

// Callback is the user-supplied connect callback:
// (ctx, iocontext, result, host, port, sid) -> rc. result is 0 on
// success; a non-zero result carries a sentinel sid.
type Callback func(ctx, ioctx interface{}, result int32, host string, port uint16, id uint64) int32

// Connector issues outbound connects across a fixed worker pool and
// drives the reconnect contract for sessions it originated.
type Connector struct {
	workers []*worker.Worker
	next    uint64
	timeout time.Duration
	log     logger.Logger
}

// Wire builds a Connector over workers (indexed by Worker.Index(), so
// the slice must be dense and ordered by index) and installs the
// reconnect hook on each one.
func Wire(workers []*worker.Worker, defaultTimeout time.Duration, log logger.Logger) *Connector {
	if log == nil {
		log = logger.Discard()
	}
	c := &Connector{
		workers: workers,
		timeout: defaultTimeout,
		log:     log.WithFields(logger.Fields{"component": "connector"}),
	}
	for _, w := range workers {
		w.SetReconnect(c.reconnect)
	}
	return c
}

// Connect issues a nonblocking connect to host:port with the given
// per-attempt timeout (falling back to the connector default when
// timeoutSeconds <= 0), then hands the outcome to a round-robin worker
// exactly as describes.
func (c *Connector) Connect(host string, port uint16, timeoutSeconds int, cb Callback, ctx interface{}) {
	idx := atomic.AddUint64(&c.next, 1) % uint64(len(c.workers))
	w := c.workers[idx]

	d := c.timeout
	if timeoutSeconds > 0 {
		d = time.Duration(timeoutSeconds) * time.Second
	}

	go func() {
		addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
		conn, err := net.DialTimeout("tcp", addr, d)
		result := int32(0)
		if err != nil {
			result = -1
			c.log.Debug("connect failed to " + addr + ": " + err.Error())
		}
		w.Submit(task.Task{
			Kind: task.ConnectedCallback,
			Connected: &task.ConnectedPayload{
				Conn:   conn,
				Result: result,
				Host:   host,
				Port:   port,
				Cb:     cb,
				Ctx:    ctx,
			},
		})
	}()
}

// reconnect is the worker-installed hook 's "attempt
// reconnect" contract. It runs on the owning worker's thread (called
// from onServiceError), so the blocking dial itself is pushed to its
// own goroutine; completion is handed back to the same worker via
// ReconnectTask to keep session mutation single-threaded.
func (c *Connector) reconnect(s *session.Session) {
	w := c.workers[s.Worker()]
	host, port := s.RemoteHost(), s.RemotePort()
	d := c.timeout

	go func() {
		addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
		conn, err := net.DialTimeout("tcp", addr, d)
		if err != nil {
			c.log.Debug("reconnect failed to " + addr + ": " + err.Error())
		}
		w.Submit(w.ReconnectTask(s, conn, err))
	}()
}
