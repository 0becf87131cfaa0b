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

// Package session implements the session finite-state machine and its
// interaction with the outgoing write buffer.
// A Session is owned by exactly one worker goroutine for its entire
// lifetime; nothing in this package takes a lock, because nothing
// outside the owning worker is ever allowed to touch it directly — all
// external requests arrive as task.Task values routed through the
// worker's queue (see package worker).
package session

import (
	"net"
	"time"

	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/sid"
	"github.com/nabbar/netmux/task"
	"github.com/nabbar/netmux/wbuf"
)

// State is one of the four session states
type State int32

const (
	Connecting State = iota
	Alive
	Draining
	Dead
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Alive:
		return "alive"
	case Draining:
		return "draining"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Origin records how a session was registered: only connected sessions
// get a reconnect-on-error contract, since only they have a known
// host:port to redial; accepted and associated sessions do not.
type Origin uint8

const (
	OriginAccepted Origin = iota
	OriginConnected
	OriginAssociated
)

// Way is the shutdown-reason code passed to Service.Shutdown.
type Way int32

const (
	// WayRequested is way=0: application-initiated shutdown/perform path.
	WayRequested Way = 0
	// WayInvoluntary is way=1: peer close, error, or timeout.
	WayInvoluntary Way = 1
)

// Session is one connection's full state, pinned to one worker.
type Session struct {
	id     sid.ID
	slot   uint32
	seq    uint32
	worker uint8

	conn       net.Conn
	remoteHost string
	remotePort uint16
	origin     Origin
	traceID    string

	svc    task.Service
	svcCtx interface{}
	ioctx  interface{}

	wb *wbuf.Buffer

	state          State
	shutdownCalled bool

	idleTimeout    time.Duration
	keepalive      time.Duration
	lastRecv       time.Time
	lastSend       time.Time
	connectStarted time.Time

	// stopped freezes Process dispatch stop(): bytes
	// still arrive and are still drained from the socket, but are
	// discarded instead of reaching the service.
	stopped bool

	rolling []byte

	log logger.Logger
}

// New constructs a session in the given initial state, bound to slot
// in the owning worker's table. writeQueueBytes bounds the per-session
// pending-write queue (config.WriteQueueSize); 0 leaves it unbounded.
func New(id sid.ID, slot, seq uint32, worker uint8, conn net.Conn, host string, port uint16, origin Origin, traceID string, log logger.Logger, writeQueueBytes int) *Session {
	st := Alive
	if origin == OriginConnected {
		st = Connecting
	}
	return &Session{
		id:         id,
		slot:       slot,
		seq:        seq,
		worker:     worker,
		conn:       conn,
		remoteHost: host,
		remotePort: port,
		origin:     origin,
		traceID:    traceID,
		wb:         wbuf.NewSized(writeQueueBytes),
		state:      st,
		lastRecv:   time.Now(),
		log:        log,
	}
}

func (s *Session) ID() sid.ID     { return s.id }
func (s *Session) Slot() uint32   { return s.slot }
func (s *Session) Seq() uint32    { return s.seq }
func (s *Session) Worker() uint8  { return s.worker }
func (s *Session) State() State   { return s.state }
func (s *Session) Conn() net.Conn { return s.conn }
func (s *Session) Origin() Origin { return s.origin }
func (s *Session) TraceID() string { return s.traceID }
func (s *Session) RemoteHost() string { return s.remoteHost }
func (s *Session) RemotePort() uint16 { return s.remotePort }
func (s *Session) IsDead() bool   { return s.state == Dead }
func (s *Session) IsAlive() bool  { return s.state == Alive }

// SetService installs the per-session service vtable. There is no
// layer-wide default service: until one is installed, received bytes
// stay buffered without reaching Process and the Call* helpers return
// their no-service values.
func (s *Session) SetService(svc task.Service, ctx interface{}) {
	s.svc = svc
	s.svcCtx = ctx
}

// SetIOContext stashes the worker's per-thread context on the session.
// Service callbacks receive only svcCtx, not this value.
func (s *Session) SetIOContext(ioctx interface{}) { s.ioctx = ioctx }

func (s *Session) SetIdleTimeout(d time.Duration)   { s.idleTimeout = d }
func (s *Session) SetKeepalive(d time.Duration)     { s.keepalive = d }
func (s *Session) IdleTimeout() time.Duration       { return s.idleTimeout }
func (s *Session) KeepaliveInterval() time.Duration { return s.keepalive }
func (s *Session) LastRecv() time.Time              { return s.lastRecv }

// Stop freezes Process dispatch: subsequent Feed calls
// still drain socket bytes but will not invoke the service.
func (s *Session) Stop() { s.stopped = true }

// MarkConnected transitions Connecting -> Alive on a successful
// nonblocking connect.
func (s *Session) MarkConnected() {
	if s.state == Connecting {
		s.state = Alive
	}
}

// Rebind swaps the underlying connection and returns the session to
// Connecting, discarding any half-read bytes from the previous
// descriptor. Used by the connector's reconnect path:
// a connected-origin session whose error callback returns 0 keeps its
// sid and service, but gets a fresh socket.
func (s *Session) Rebind(conn net.Conn) {
	s.conn = conn
	s.state = Connecting
	s.rolling = nil
	s.stopped = false
}

// BeginShutdown transitions toward Dead: immediately if the write
// buffer is empty, or to Draining if bytes are still queued. Returns
// true if the session went straight to Dead.
func (s *Session) BeginShutdown() bool {
	if s.state == Dead {
		return true
	}
	if s.wb.Empty() {
		s.state = Dead
		return true
	}
	s.state = Draining
	return false
}

// Kill forces the session straight to Dead regardless of pending
// writes (forced destroy, unrecoverable error, idle timeout, peer
// close).
func (s *Session) Kill() {
	s.state = Dead
	s.wb.Discard()
}

// Send enqueues data for transmission, honoring the Draining/Dead
// append rules: Draining rejects new appends, Dead drops them; both
// return an error. The service's own Transform runs first if a service is
// installed, then layerTransform (the per-layer hook set via
// SetTransform), so a per-session rewrite always sees the raw bytes
// and a layer-wide rewrite always sees the per-session result.
func (s *Session) Send(data []byte, owns bool, layerTransform func([]byte) []byte) error {
	switch s.state {
	case Draining:
		return errSessionDraining
	case Dead:
		return errSessionDead
	}
	// A transform returns its input untouched or a fresh allocation; only
	// a fresh allocation becomes the layer's to keep without copying.
	if s.svc != nil {
		out := s.svc.Transform(s.svcCtx, data)
		if len(out) != len(data) || (len(out) > 0 && &out[0] != &data[0]) {
			owns = true
		}
		data = out
	}
	if layerTransform != nil {
		out := layerTransform(data)
		if len(out) != len(data) || (len(out) > 0 && &out[0] != &data[0]) {
			owns = true
		}
		data = out
	}
	if !s.wb.Append(data, owns) {
		return errSessionBackpressure
	}
	s.lastSend = time.Now()
	return nil
}

// Flush writes the pending write buffer to the connection, blocking
// until the connection has accepted it or the write fails, and
// transitions Draining -> Dead once the buffer empties after a
// requested shutdown.
func (s *Session) Flush() (n int, err error) {
	n, err = s.wb.Flush(s.conn)
	if s.state == Draining && s.wb.Empty() {
		s.state = Dead
	}
	return n, err
}

func (s *Session) WriteBufferEmpty() bool { return s.wb.Empty() }
func (s *Session) WriteBufferPending() int { return s.wb.Pending() }

// Feed appends newly read bytes to the session's rolling buffer and
// repeatedly invokes the service's Process callback:
// a return < 0 means error, 0 means need-more-data (remainder stays
// buffered), and a positive n means n bytes were consumed. While
// stopped, bytes are discarded without being buffered or reaching
// Process.
func (s *Session) Feed(data []byte) (errRC int32, hadError bool) {
	s.lastRecv = time.Now()
	if s.stopped {
		return 0, false
	}
	if len(s.rolling) == 0 {
		s.rolling = append([]byte(nil), data...)
	} else {
		s.rolling = append(s.rolling, data...)
	}

	for len(s.rolling) > 0 {
		var rc int32
		if s.svc != nil {
			rc = s.svc.Process(s.svcCtx, s.rolling)
		}
		if rc < 0 {
			return rc, true
		}
		if rc == 0 {
			break
		}
		if int(rc) > len(s.rolling) {
			rc = int32(len(s.rolling))
		}
		s.rolling = s.rolling[rc:]
	}
	if len(s.rolling) == 0 {
		s.rolling = nil
	}
	return 0, false
}

// CallShutdown invokes the service's Shutdown exactly once, per
//
func (s *Session) CallShutdown(way Way) {
	if s.shutdownCalled {
		return
	}
	s.shutdownCalled = true
	if s.svc != nil {
		s.svc.Shutdown(s.svcCtx, int32(way))
	}
}

func (s *Session) CallStart() int32 {
	if s.svc == nil {
		return 0
	}
	return s.svc.Start(s.svcCtx)
}

func (s *Session) CallKeepalive() int32 {
	if s.svc == nil {
		return 0
	}
	return s.svc.Keepalive(s.svcCtx)
}

func (s *Session) CallTimeout() int32 {
	if s.svc == nil {
		return 0
	}
	return s.svc.Timeout(s.svcCtx)
}

func (s *Session) CallError(rc int32) int32 {
	if s.svc == nil {
		return -1
	}
	return s.svc.Error(s.svcCtx, rc)
}

func (s *Session) CallPerform(typ int32, payload interface{}) int32 {
	if s.svc == nil {
		return -1
	}
	return s.svc.Perform(s.svcCtx, typ, payload)
}

