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

// Package worker implements one network thread: the reactor event loop,
// the session table it owns, the cross-thread task queue it drains, and
// the timer wheel driving keepalive/idle callbacks. Go has no portable
// raw epoll/kqueue handle to expose, so the reactor's readiness
// notifications are realized with one reader
// goroutine per connection feeding a single wakeup channel — the
// worker goroutine itself is still the only place session state is
// mutated, preserving the single-threaded-per-session guarantee
// without any per-session lock.
package worker

import (
	"strconv"
	"sync"
	"time"

	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/session"
	"github.com/nabbar/netmux/sid"
	"github.com/nabbar/netmux/table"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/timerwheel"
)

// readEvent is what a per-connection reader goroutine posts to its
// worker — the Go stand-in for an OS readiness notification.
type readEvent struct {
	slot uint32
	seq  uint32
	data []byte
	err  error
}

// Worker is one I/O thread.
type Worker struct {
	cfg   Config
	log   logger.Logger
	table *table.Table[*session.Session]
	wheel *timerwheel.Wheel

	tasks   chan task.Task
	wake    chan readEvent
	closing chan struct{}
	done    chan struct{}
	stopSig chan struct{}
	stopOne sync.Once

	// bySlot mirrors the table's live sessions for O(1) slot -> session
	// lookups that don't carry a sid (e.g. timer wheel callbacks, which
	// key on slot alone because the seq isn't worth re-deriving there).
	bySlot map[uint32]*session.Session

	ioctx        interface{}
	transform    func(interface{}, []byte) []byte
	transformCtx interface{}

	// reconnect, if set, is invoked in place of a terminal shutdown for
	// Connected-origin sessions whose service Error callback returns 0
	// (its "attempt reconnect" contract). Wired by the
	// connector, which alone knows how to redial host:port.
	reconnect func(s *session.Session)

	stopped bool
}

// New builds a worker. Run must be called (typically in its own
// goroutine) to start the event loop.
func New(cfg Config) *Worker {
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithFields(logger.Fields{"component": "worker", "worker": cfg.Index})

	queueSize := cfg.TaskQueue
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &Worker{
		cfg:     cfg,
		log:     log,
		table:   table.New[*session.Session](cfg.Index, cfg.Capacity),
		wheel:   timerwheel.New(),
		tasks:   make(chan task.Task, queueSize),
		wake:    make(chan readEvent, queueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		stopSig: make(chan struct{}),
		bySlot:  make(map[uint32]*session.Session),
	}
}

func (w *Worker) Index() uint8 { return w.cfg.Index }

// SetIOContext stores the per-thread context set once before any
// listen/connect.
func (w *Worker) SetIOContext(ctx interface{}) { w.ioctx = ctx }

func (w *Worker) IOContext() interface{} { return w.ioctx }

// SetTransform installs the layer-wide pre-send hook.
func (w *Worker) SetTransform(fn func(interface{}, []byte) []byte, ctx interface{}) {
	w.transform = fn
	w.transformCtx = ctx
}

// SetReconnect installs the connector's redial hook, invoked in place
// of a terminal destroy for connected-origin sessions. Must be called
// before Run.
func (w *Worker) SetReconnect(fn func(s *session.Session)) { w.reconnect = fn }

// Available reports the table's free-slot count. The acceptor's
// round-robin does not consult it: a full worker is discovered when its
// registration task fails.
func (w *Worker) Available() int { return w.table.Cap() - w.table.Len() }

// Submit enqueues a task for this worker from any goroutine. It never
// blocks indefinitely: if the queue is full or the worker is shutting
// down, it returns false so the caller can invoke the task's recycle
// hook (QueueRejected).
func (w *Worker) Submit(t task.Task) bool {
	select {
	case <-w.closing:
		return false
	default:
	}
	select {
	case w.tasks <- t:
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.TaskQueueDepth.WithLabelValues(strconv.Itoa(int(w.cfg.Index))).Set(float64(len(w.tasks)))
		}
		return true
	case <-w.closing:
		return false
	default:
		return false
	}
}

// Lookup resolves a sid against this worker's table.
func (w *Worker) Lookup(id sid.ID) (*session.Session, bool) {
	return w.table.Lookup(id)
}

// Each iterates every live session on this worker. Only safe on the
// worker goroutine, like the table it reads.
func (w *Worker) Each(fn func(*session.Session)) { w.table.Each(fn) }

// Full reports whether this worker's session table has no room left.
func (w *Worker) Full() bool { return w.table.Full() }

// Stop quiesces the worker: reads keep draining from
// the kernel (so peers see a live socket and pending replies can still
// flush) but bytes no longer reach Process. Safe to call more than once
// and from any goroutine.
func (w *Worker) Stop() {
	w.stopOne.Do(func() { close(w.stopSig) })
}

// Close signals the event loop to drain remaining tasks and exit; it
// does not wait for Run to return (callers select on Done()).
func (w *Worker) Close() { close(w.closing) }

// Done is closed once the event loop has fully exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run is the reactor event loop It must be called
// from the goroutine that is to act as this worker's single thread.
func (w *Worker) Run() {
	defer close(w.done)

	const idleTick = 200 * time.Millisecond

	// stopSig is read through a local variable that gets nilled out
	// after it first fires: a closed channel is always ready, so
	// leaving w.stopSig directly in the select would re-run handleStop
	// on every single loop iteration once Stop is called.
	stopSig := w.stopSig

	for {
		timeout := idleTick
		if d, ok := w.wheel.NextDeadline(); ok {
			if until := time.Until(d); until < timeout {
				if until < 0 {
					until = 0
				}
				timeout = until
			}
		}
		timer := time.NewTimer(timeout)

		select {
		case <-w.closing:
			timer.Stop()
			w.drainOnClose()
			return

		case <-stopSig:
			timer.Stop()
			w.handleStop()
			stopSig = nil

		case ev := <-w.wake:
			timer.Stop()
			w.handleReadEvent(ev)

		case t := <-w.tasks:
			timer.Stop()
			w.handleTask(t)
			w.drainTasksBounded()

		case <-timer.C:
		}

		w.tick(time.Now())
	}
}

// handleStop freezes Process dispatch on every live session: reads and
// flushes keep happening so in-flight replies still reach their peers,
// but no more bytes reach a service.
func (w *Worker) handleStop() {
	w.stopped = true
	w.table.Each(func(s *session.Session) { s.Stop() })
}

// drainTasksBounded processes additional already-queued tasks without
// blocking, capped so a burst of cross-thread submissions cannot starve
// the read path ( step 4).
func (w *Worker) drainTasksBounded() {
	const maxPerIteration = 256
	for i := 0; i < maxPerIteration; i++ {
		select {
		case t := <-w.tasks:
			w.handleTask(t)
		default:
			return
		}
	}
}

// drainOnClose runs once on destroy: handles every task still queued,
// then shuts down every remaining session with way=1 and stops their
// reader goroutines by closing the underlying connections.
func (w *Worker) drainOnClose() {
drain:
	for {
		select {
		case t := <-w.tasks:
			w.handleTask(t)
		default:
			break drain
		}
	}
	var live []*session.Session
	w.table.Each(func(s *session.Session) { live = append(live, s) })
	for _, s := range live {
		w.finalize(s, session.WayInvoluntary)
	}
}

func (w *Worker) tick(now time.Time) {
	for _, due := range w.wheel.Expired(now) {
		s, ok := w.bySlot[due.Slot]
		if !ok {
			continue
		}
		switch due.Kind {
		case timerwheel.Idle:
			w.onIdleTimeout(s)
		case timerwheel.Keepalive:
			w.onKeepalive(s)
		}
	}
	w.flushSweep()
}
