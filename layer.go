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

// Package netmux is the dispatch facade: a stateless
// router sitting above a fixed pool of worker goroutines, encoding the
// target worker directly into every session id so commands route in
// O(1) without a global lookup table.
package netmux

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nabbar/netmux/acceptor"
	"github.com/nabbar/netmux/admission"
	"github.com/nabbar/netmux/associator"
	"github.com/nabbar/netmux/config"
	"github.com/nabbar/netmux/connector"
	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/metrics"
	"github.com/nabbar/netmux/neterr"
	"github.com/nabbar/netmux/sid"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/worker"
)

// Layer is the opaque handle 's `create`/`destroy` pair.
type Layer struct {
	mu sync.Mutex

	workers    []*worker.Worker
	acceptors  []*acceptor.Acceptor
	connector  *connector.Connector
	associator *associator.Associator
	admission  *admission.Gate
	metrics    *metrics.Collectors
	log        logger.Logger

	stopped   bool
	destroyed bool
}

// Create builds a layer with cfg.NThreads worker goroutines, already
// running, and wires the connector's reconnect hook across them. reg
// may be nil to skip Prometheus registration.
func Create(cfg config.Config, reg prometheus.Registerer, log logger.Logger) (*Layer, error) {
	if cfg.NThreads < 1 {
		return nil, errors.New("netmux: nThreads must be >= 1")
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithFields(logger.Fields{"component": "layer"})

	m := metrics.New(reg)
	gate := admission.New(cfg.NClients)

	// defaultCapacity bounds a worker's session table when no NClients
	// cap is configured — large enough for any realistic single-worker
	// share, small enough not to allocate a multi-gigabyte slot array
	// per worker (the table is sized to sid's full slot-bit width
	// otherwise, which is far more slots than any real deployment runs).
	const defaultCapacity = 1 << 16

	perWorkerCap := defaultCapacity
	if cfg.NClients > 0 {
		perWorkerCap = (cfg.NClients + cfg.NThreads - 1) / cfg.NThreads
	}

	workers := make([]*worker.Worker, cfg.NThreads)
	for i := 0; i < cfg.NThreads; i++ {
		w := worker.New(worker.Config{
			Index:           uint8(i),
			Capacity:        perWorkerCap,
			TaskQueue:       cfg.TaskQueueSize,
			Realtime:        cfg.Realtime,
			DefaultIdle:     cfg.ConnIdleTimeout.Time(),
			DefaultKA:       cfg.KeepaliveInterval.Time(),
			Admission:       gate,
			Metrics:         m,
			Log:             log,
			WriteQueueBytes: cfg.WriteQueueSize,
		})
		workers[i] = w
		go w.Run()
	}

	l := &Layer{
		workers:    workers,
		connector:  connector.Wire(workers, cfg.ConnectTimeout.Time(), log),
		associator: associator.Wire(workers),
		admission:  gate,
		metrics:    m,
		log:        log,
	}
	return l, nil
}

// New is an alias for Create, the idiomatic Go constructor name
// alongside `create`.
func New(cfg config.Config, reg prometheus.Registerer, log logger.Logger) (*Layer, error) {
	return Create(cfg, reg, log)
}

// SetIOContext installs one per-thread context per worker, in worker
// index order. Must be called before any Listen/Connect/Associate.
func (l *Layer) SetIOContext(ctxs []interface{}) error {
	if len(ctxs) != len(l.workers) {
		return errors.New("netmux: SetIOContext count must equal nThreads")
	}
	for i, w := range l.workers {
		w.SetIOContext(ctxs[i])
	}
	return nil
}

// SetTransform installs the layer-wide pre-send hook on every worker.
func (l *Layer) SetTransform(fn func(ctx interface{}, buf []byte) []byte, ctx interface{}) {
	for _, w := range l.workers {
		w.SetTransform(fn, ctx)
	}
}

// Listen binds host:port and starts accepting, round-robining new
// connections across the worker pool.
func (l *Layer) Listen(host string, port uint16, cb acceptor.Callback, ctx interface{}) error {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	a, err := acceptor.Listen(addr, l.workers, cb, ctx, l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.acceptors = append(l.acceptors, a)
	l.mu.Unlock()
	go a.Serve()
	return nil
}

// Connect issues a nonblocking outbound connect.
func (l *Layer) Connect(host string, port uint16, timeoutSeconds int, cb connector.Callback, ctx interface{}) {
	l.connector.Connect(host, port, timeoutSeconds, cb, ctx)
}

// Associate adopts an externally obtained connection.
func (l *Layer) Associate(conn net.Conn, cb associator.Callback, ctx interface{}) {
	l.associator.Associate(conn, cb, ctx)
}

// SetTimeout sets a session's idle timeout. Intended to be called from
// a service callback running on the session's owning worker, but safe
// from any thread: the request is routed through that worker's task
// queue either way.
func (l *Layer) SetTimeout(id uint64, seconds int) error {
	return l.route(sid.ID(id), task.Task{
		Kind:       task.SetTimeout,
		SetTimeout: &task.SetTimeoutPayload{Seconds: seconds},
	})
}

// SetKeepalive sets a session's keepalive interval.
func (l *Layer) SetKeepalive(id uint64, seconds int) error {
	return l.route(sid.ID(id), task.Task{
		Kind:  task.SetKeepalive,
		SetKA: &task.SetKeepalivePayload{Seconds: seconds},
	})
}

// SetService installs a session's service vtable and context. Typically
// called from inside a Listen/Connect/Associate callback, which already
// runs on the session's owning worker.
func (l *Layer) SetService(id uint64, svc Service, ctx interface{}) error {
	return l.route(sid.ID(id), task.Task{
		Kind:       task.SetService,
		SetService: &task.SetServicePayload{Service: svc, Context: ctx},
	})
}

// Send enqueues data for transmission on one session.
func (l *Layer) Send(id uint64, data []byte, owns bool) error {
	return l.route(sid.ID(id), task.Task{
		Kind: task.Send,
		Send: &task.SendPayload{Data: data, Owns: owns},
	})
}

// Broadcast sends data to an explicit set of sessions, which may span
// any number of workers; each worker receives one Broadcast task
// carrying only the sids it owns.
func (l *Layer) Broadcast(ids []uint64, data []byte) error {
	byWorker := make(map[uint8][]sid.ID)
	for _, raw := range ids {
		id := sid.ID(raw)
		byWorker[sid.Worker(id)] = append(byWorker[sid.Worker(id)], id)
	}
	var firstErr error
	for w, targets := range byWorker {
		if int(w) >= len(l.workers) {
			continue
		}
		ok := l.workers[w].Submit(task.Task{
			Kind:      task.Broadcast,
			Broadcast: &task.BroadcastPayload{Data: data, Targets: targets},
		})
		if !ok && firstErr == nil {
			firstErr = neterr.QueueRejected
		}
	}
	return firstErr
}

// Broadcast2 sends data to every live session on every worker
// (its `broadcast2`).
func (l *Layer) Broadcast2(data []byte) error {
	var firstErr error
	for _, w := range l.workers {
		ok := w.Submit(task.Task{
			Kind:      task.Broadcast,
			Broadcast: &task.BroadcastPayload{Data: data},
		})
		if !ok && firstErr == nil {
			firstErr = neterr.QueueRejected
		}
	}
	return firstErr
}

// Shutdown requests a graceful, application-initiated shutdown
// (way=0) of one session.
func (l *Layer) Shutdown(id uint64) error {
	return l.route(sid.ID(id), task.Task{Kind: task.Shutdown})
}

// Shutdowns requests shutdown of every listed session.
func (l *Layer) Shutdowns(ids []uint64) error {
	var firstErr error
	for _, id := range ids {
		if err := l.Shutdown(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Perform delivers an opaque cross-thread payload to one session's
// service.Perform callback. recycle, if non-nil, is
// invoked with (typ, data) if the task cannot be enqueued.
func (l *Layer) Perform(id uint64, typ int32, data interface{}, recycle func(typ int32, data interface{})) error {
	return l.route(sid.ID(id), task.Task{
		Kind: task.UserPerform,
		Perform: &task.UserPerformPayload{
			Type: typ, Data: data, Recycle: recycle,
		},
	})
}

// Perform2 runs fn(iocontext, data) once on every worker. clone, if
// non-nil, builds each worker's own copy of data; if nil, every worker
// receives the same value.
func (l *Layer) Perform2(data interface{}, clone func(interface{}) interface{}, fn func(ioctx interface{}, data interface{})) error {
	var firstErr error
	for _, w := range l.workers {
		d := data
		if clone != nil {
			d = clone(data)
		}
		ok := w.Submit(task.Task{
			Kind: task.IolayerPerform,
			LayerPerform: &task.IolayerPerformPayload{
				Data: d, Fn: fn,
			},
		})
		if !ok && firstErr == nil {
			firstErr = neterr.QueueRejected
		}
	}
	return firstErr
}

// Stop quiesces the layer: the acceptor(s) stop accepting, but every
// worker keeps draining reads and flushing writes so in-flight replies
// can still be delivered. Layer has no call that undoes Stop; Destroy
// is safe to call after it.
func (l *Layer) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	accs := append([]*acceptor.Acceptor(nil), l.acceptors...)
	l.mu.Unlock()

	for _, a := range accs {
		_ = a.Close()
	}
	for _, w := range l.workers {
		w.Stop()
	}
}

// Destroy is the terminal phase: it stops accepting,
// shuts down every remaining session with way=1, and waits for every
// worker goroutine to exit.
func (l *Layer) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	accs := append([]*acceptor.Acceptor(nil), l.acceptors...)
	l.mu.Unlock()

	for _, a := range accs {
		_ = a.Close()
	}
	for _, w := range l.workers {
		w.Close()
	}
	for _, w := range l.workers {
		<-w.Done()
	}
}

// route resolves id's owning worker and submits t. It returns NotFound
// when the sid's worker index is outside the pool and QueueRejected
// when the worker refuses the task. A stale sid whose worker index is
// in range is not detected here: the task is queued and the owning
// worker drops it, so the call returns nil. Either failure leaks t's
// payload unless recycle is run, so a UserPerform task that never
// reaches a worker gets its Recycle hook invoked here — the same
// cleanup the worker itself runs when the target session has already
// gone away.
func (l *Layer) route(id sid.ID, t task.Task) error {
	w := sid.Worker(id)
	if int(w) >= len(l.workers) {
		recyclePerform(t)
		return neterr.NotFound
	}
	t.Target = id
	if !l.workers[w].Submit(t) {
		recyclePerform(t)
		return neterr.QueueRejected
	}
	return nil
}

// recyclePerform runs a UserPerform task's Recycle hook, if any. Safe
// to call for any task kind — non-UserPerform tasks carry a nil
// Perform payload and are a no-op.
func recyclePerform(t task.Task) {
	if t.Perform != nil && t.Perform.Recycle != nil {
		t.Perform.Recycle(t.Perform.Type, t.Perform.Data)
	}
}

