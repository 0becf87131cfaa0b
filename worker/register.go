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

package worker

import (
	"io"
	"net"
	"strconv"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/nabbar/netmux/session"
	"github.com/nabbar/netmux/sid"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/timerwheel"
)

func (w *Worker) newTraceID() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return ""
	}
	return id
}

// transformFn adapts the worker's installed transform hook (if any) to
// the per-byte-slice signature session.Send expects.
func (w *Worker) transformFn() func([]byte) []byte {
	if w.transform == nil {
		return nil
	}
	return func(buf []byte) []byte { return w.transform(w.transformCtx, buf) }
}

// register takes an admission ticket, reserves a slot and builds the
// session. It does not store it in the table, the slot index or the
// timer wheel, and does not start reading yet — callers still need to
// decide (via their own registration callback) whether to keep the
// session before commit does all of that.
func (w *Worker) register(conn net.Conn, host string, port uint16, origin session.Origin) (*session.Session, bool) {
	if w.cfg.Admission != nil && !w.cfg.Admission.TryAcquire() {
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.Overflows.Inc()
		}
		return nil, false
	}
	slot, seq, ok := w.table.Reserve()
	if !ok {
		if w.cfg.Admission != nil {
			w.cfg.Admission.Release()
		}
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.Overflows.Inc()
		}
		return nil, false
	}
	id := sid.Encode(w.cfg.Index, slot, seq)
	s := session.New(id, slot, seq, w.cfg.Index, conn, host, port, origin, w.newTraceID(), w.log, w.cfg.WriteQueueBytes)
	return s, true
}

// commit finishes registration after the user callback accepted the
// session: stores it in the table/bySlot index, schedules its standing
// timers off the worker defaults, and starts its reader goroutine.
func (w *Worker) commit(s *session.Session) {
	w.table.Put(s.Slot(), s)
	w.bySlot[s.Slot()] = s
	s.SetIOContext(w.ioctx)
	if w.stopped {
		s.Stop()
	}

	if w.cfg.DefaultIdle > 0 {
		s.SetIdleTimeout(w.cfg.DefaultIdle)
	}
	if w.cfg.DefaultKA > 0 {
		s.SetKeepalive(w.cfg.DefaultKA)
	}
	w.scheduleIdle(s)
	w.scheduleKeepalive(s)

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.OpenSessions.WithLabelValues(strconv.Itoa(int(w.cfg.Index))).Inc()
	}

	w.spawnReader(s)
}

// abort releases a reserved slot (and its admission ticket) when the
// user's registration callback rejects the session.
func (w *Worker) abort(slot uint32) {
	w.table.Abort(slot)
	if w.cfg.Admission != nil {
		w.cfg.Admission.Release()
	}
}

// registerAccepted runs the accepted-session registration sequence: a
// negative listen callback destroys the session before start() is ever
// called; a negative start() destroys it right after.
func (w *Worker) registerAccepted(p *task.AcceptedPayload) {
	s, ok := w.register(p.Conn, p.Host, p.Port, session.OriginAccepted)
	if !ok {
		_ = p.Conn.Close()
		return
	}
	if p.Cb != nil {
		if rc := p.Cb(p.Ctx, w.ioctx, uint64(s.ID()), p.Host, p.Port); rc < 0 {
			w.abort(s.Slot())
			_ = p.Conn.Close()
			return
		}
	}
	w.commit(s)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.Accepts.Inc()
	}
	if rc := s.CallStart(); rc < 0 {
		w.finalize(s, session.WayInvoluntary)
	}
}

// registerConnected runs the connected-session registration sequence,
// analogous to registerAccepted but the callback signature carries the
// nonblocking connect's result code. A failed connect attempt
// (p.Result != 0) never reaches the table at all — the callback runs
// with a sentinel sid of 0.
func (w *Worker) registerConnected(p *task.ConnectedPayload) {
	if p.Result != 0 || p.Conn == nil {
		if p.Cb != nil {
			p.Cb(p.Ctx, w.ioctx, p.Result, p.Host, p.Port, uint64(sid.Invalid))
		}
		return
	}
	s, ok := w.register(p.Conn, p.Host, p.Port, session.OriginConnected)
	if !ok {
		_ = p.Conn.Close()
		if p.Cb != nil {
			p.Cb(p.Ctx, w.ioctx, -1, p.Host, p.Port, uint64(sid.Invalid))
		}
		return
	}
	if p.Cb != nil {
		if rc := p.Cb(p.Ctx, w.ioctx, 0, p.Host, p.Port, uint64(s.ID())); rc < 0 {
			w.abort(s.Slot())
			_ = p.Conn.Close()
			return
		}
	}
	s.MarkConnected()
	w.commit(s)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.Connects.Inc()
	}
	if rc := s.CallStart(); rc < 0 {
		w.finalize(s, session.WayInvoluntary)
	}
}

// registerAssociated runs the associated-session registration
// sequence: the service vtable is deliberately left unset here — the
// caller's associate callback must install one via set_service before
// any data can flow.
func (w *Worker) registerAssociated(p *task.AssociatedPayload) {
	s, ok := w.register(p.Conn, "", 0, session.OriginAssociated)
	if !ok {
		_ = p.Conn.Close()
		return
	}
	if p.Cb != nil {
		if rc := p.Cb(p.Ctx, w.ioctx, p.Conn, uint64(s.ID())); rc < 0 {
			w.abort(s.Slot())
			_ = p.Conn.Close()
			return
		}
	}
	w.commit(s)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.Associates.Inc()
	}
}

// handleTask dispatches one cross-thread command routed to this
// worker.
func (w *Worker) handleTask(t task.Task) {
	switch t.Kind {
	case task.Send:
		s, ok := w.table.Lookup(t.Target)
		if !ok || t.Send == nil {
			return
		}
		if err := s.Send(t.Send.Data, t.Send.Owns, w.transformFn()); err != nil {
			w.log.Debug("send rejected: " + err.Error())
			return
		}
		w.attemptFlush(s)

	case task.Broadcast:
		if t.Broadcast == nil {
			return
		}
		if len(t.Broadcast.Targets) == 0 {
			w.table.Each(func(s *session.Session) {
				if err := s.Send(t.Broadcast.Data, false, w.transformFn()); err == nil {
					w.attemptFlush(s)
				}
			})
			return
		}
		for _, id := range t.Broadcast.Targets {
			if s, ok := w.table.Lookup(id); ok {
				if err := s.Send(t.Broadcast.Data, false, w.transformFn()); err == nil {
					w.attemptFlush(s)
				}
			}
		}

	case task.Shutdown:
		s, ok := w.table.Lookup(t.Target)
		if !ok {
			return
		}
		if s.BeginShutdown() {
			w.finalize(s, session.WayRequested)
		}

	case task.SetTimeout:
		s, ok := w.table.Lookup(t.Target)
		if !ok || t.SetTimeout == nil {
			return
		}
		s.SetIdleTimeout(time.Duration(t.SetTimeout.Seconds) * time.Second)
		w.scheduleIdle(s)

	case task.SetKeepalive:
		s, ok := w.table.Lookup(t.Target)
		if !ok || t.SetKA == nil {
			return
		}
		s.SetKeepalive(time.Duration(t.SetKA.Seconds) * time.Second)
		w.scheduleKeepalive(s)

	case task.SetService:
		s, ok := w.table.Lookup(t.Target)
		if !ok || t.SetService == nil {
			return
		}
		s.SetService(t.SetService.Service, t.SetService.Context)

	case task.UserPerform:
		s, ok := w.table.Lookup(t.Target)
		if !ok {
			if t.Perform != nil && t.Perform.Recycle != nil {
				t.Perform.Recycle(t.Perform.Type, t.Perform.Data)
			}
			return
		}
		if t.Perform != nil {
			s.CallPerform(t.Perform.Type, t.Perform.Data)
		}

	case task.AcceptedCallback:
		if t.Accepted != nil {
			w.registerAccepted(t.Accepted)
		}

	case task.ConnectedCallback:
		if t.Connected != nil {
			w.registerConnected(t.Connected)
		}

	case task.AssociatedCallback:
		if t.Associated != nil {
			w.registerAssociated(t.Associated)
		}

	case task.IolayerPerform:
		if t.LayerPerform != nil && t.LayerPerform.Fn != nil {
			t.LayerPerform.Fn(w.ioctx, t.LayerPerform.Data)
		}
	}
}

// spawnReader is the Go stand-in for registering a descriptor with the
// reactor: one goroutine per connection blocks in Read and forwards
// each chunk (or terminal error) to the worker's wakeup channel. All
// session-state mutation still happens back on the worker goroutine
// that drains w.wake — this goroutine only moves bytes.
func (w *Worker) spawnReader(s *session.Session) {
	go func() {
		buf := make([]byte, w.cfg.readBuf())
		slot, seq := s.Slot(), s.Seq()
		for {
			n, err := s.Conn().Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case w.wake <- readEvent{slot: slot, seq: seq, data: chunk}:
				case <-w.closing:
					return
				}
			}
			if err != nil {
				select {
				case w.wake <- readEvent{slot: slot, seq: seq, err: err}:
				case <-w.closing:
				}
				return
			}
		}
	}()
}

// handleReadEvent processes one chunk (or terminal error) posted by a
// session's reader goroutine. The slot/seq pair is re-checked against
// the live table entry so bytes from a connection whose session has
// already been finalized (and whose slot may have been reused) are
// discarded rather than misrouted.
func (w *Worker) handleReadEvent(ev readEvent) {
	s, ok := w.bySlot[ev.slot]
	if !ok || s.Seq() != ev.seq {
		return
	}

	if ev.err != nil {
		if ev.err == io.EOF {
			w.onServiceError(s, 0)
		} else {
			w.onServiceError(s, -1)
		}
		return
	}

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.BytesRecv.Add(float64(len(ev.data)))
	}
	w.scheduleIdle(s)

	rc, hadErr := s.Feed(ev.data)
	if hadErr {
		w.onServiceError(s, rc)
		return
	}
	w.attemptFlush(s)
}

// ReconnectTask builds the task the connector submits back to s's
// owning worker once a redial attempt completes — success or failure.
// Running the completion on the worker goroutine (rather than the
// connector's dialing goroutine) keeps session mutation single-threaded,
// even though the blocking dial itself necessarily runs elsewhere.
func (w *Worker) ReconnectTask(s *session.Session, conn net.Conn, err error) task.Task {
	return task.Task{
		Kind: task.IolayerPerform,
		LayerPerform: &task.IolayerPerformPayload{
			Fn: func(ioctx interface{}, data interface{}) {
				w.completeReconnect(s, conn, err)
			},
		},
	}
}

// completeReconnect resumes a session that the connector redialed. If
// the session was already finalized while the redial was in flight
// (e.g. an application-requested shutdown arrived first) the fresh
// descriptor is simply closed.
func (w *Worker) completeReconnect(s *session.Session, conn net.Conn, err error) {
	if _, live := w.bySlot[s.Slot()]; !live {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil || conn == nil {
		w.finalize(s, session.WayInvoluntary)
		return
	}
	s.Rebind(conn)
	s.MarkConnected()
	w.scheduleIdle(s)
	w.scheduleKeepalive(s)
	w.spawnReader(s)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.Connects.Inc()
	}
}

// onServiceError implements its asymmetric error policy:
// connected-origin sessions whose Error callback returns 0 are handed
// to the reconnect hook instead of being destroyed; every other case
// is a terminal, involuntary shutdown.
func (w *Worker) onServiceError(s *session.Session, rc int32) {
	cbRC := s.CallError(rc)
	if s.Origin() == session.OriginConnected && cbRC == 0 && w.reconnect != nil {
		w.wheel.CancelSlot(s.Slot())
		_ = s.Conn().Close()
		w.reconnect(s)
		return
	}
	w.finalize(s, session.WayInvoluntary)
}

// onIdleTimeout implements its idle-timeout contract: a
// negative return kills the session with way=1, a non-negative return
// just rearms the timer for another full period.
func (w *Worker) onIdleTimeout(s *session.Session) {
	if rc := s.CallTimeout(); rc < 0 {
		w.finalize(s, session.WayInvoluntary)
		return
	}
	w.scheduleIdle(s)
}

// onKeepalive implements its keepalive contract.
func (w *Worker) onKeepalive(s *session.Session) {
	if rc := s.CallKeepalive(); rc < 0 {
		w.finalize(s, session.WayInvoluntary)
		return
	}
	w.scheduleKeepalive(s)
}

func (w *Worker) scheduleIdle(s *session.Session) {
	if s.IdleTimeout() <= 0 {
		w.wheel.Cancel(s.Slot(), timerwheel.Idle)
		return
	}
	w.wheel.Set(s.Slot(), timerwheel.Idle, time.Now().Add(s.IdleTimeout()))
}

func (w *Worker) scheduleKeepalive(s *session.Session) {
	if s.KeepaliveInterval() <= 0 {
		w.wheel.Cancel(s.Slot(), timerwheel.Keepalive)
		return
	}
	w.wheel.Set(s.Slot(), timerwheel.Keepalive, time.Now().Add(s.KeepaliveInterval()))
}

// attemptFlush writes a session's pending bytes to the wire; the write
// blocks the worker until the connection has taken them all or
// failed. A Draining session that
// fully drains here completes its requested shutdown;
// a write error is always an involuntary destroy, regardless of why
// the session was draining.
func (w *Worker) attemptFlush(s *session.Session) {
	if s.WriteBufferEmpty() {
		return
	}
	n, err := s.Flush()
	if w.cfg.Metrics != nil && n > 0 {
		w.cfg.Metrics.BytesSent.Add(float64(n))
	}
	if err != nil {
		w.finalize(s, session.WayInvoluntary)
		return
	}
	if s.State() == session.Dead {
		w.finalize(s, session.WayRequested)
	}
}

// flushSweep retries every still-draining session once per tick, so a
// shutdown whose first flush attempt only partially drained the
// buffer eventually completes even without another Send arriving to
// trigger attemptFlush.
func (w *Worker) flushSweep() {
	var draining []*session.Session
	w.table.Each(func(s *session.Session) {
		if s.State() == session.Draining {
			draining = append(draining, s)
		}
	})
	for _, s := range draining {
		w.attemptFlush(s)
	}
}

// finalize is the single path to session destruction: it calls
// shutdown(way) exactly once, releases the slot, cancels standing
// timers, closes the descriptor and returns the admission ticket.
func (w *Worker) finalize(s *session.Session, way session.Way) {
	if _, live := w.bySlot[s.Slot()]; !live {
		return
	}
	s.CallShutdown(way)
	s.Kill()
	w.wheel.CancelSlot(s.Slot())
	delete(w.bySlot, s.Slot())
	w.table.Remove(s.Slot())
	_ = s.Conn().Close()

	if w.cfg.Admission != nil {
		w.cfg.Admission.Release()
	}
	if w.cfg.Metrics != nil {
		m := w.cfg.Metrics
		m.OpenSessions.WithLabelValues(strconv.Itoa(int(w.cfg.Index))).Dec()
		m.Shutdowns.WithLabelValues(strconv.Itoa(int(way))).Inc()
	}
}
