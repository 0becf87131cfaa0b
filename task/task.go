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

// Package task defines the cross-thread command envelope delivered
// through a worker's task queue: every asynchronous
// request — send, shutdown, broadcast, a user perform, or a new-session
// registration from the acceptor/connector/associator — is one Task
// value enqueued by whichever goroutine issued the call and dequeued
// only by the target session's owning worker.
package task

import (
	"net"

	"github.com/nabbar/netmux/sid"
)

// Type tags the kind of request a Task carries.
type Type uint8

const (
	Send Type = iota
	Broadcast
	Shutdown
	SetTimeout
	SetKeepalive
	SetService
	UserPerform
	AcceptedCallback
	ConnectedCallback
	AssociatedCallback
	IolayerPerform
)

func (t Type) String() string {
	switch t {
	case Send:
		return "send"
	case Broadcast:
		return "broadcast"
	case Shutdown:
		return "shutdown"
	case SetTimeout:
		return "set-timeout"
	case SetKeepalive:
		return "set-keepalive"
	case SetService:
		return "set-service"
	case UserPerform:
		return "user-perform"
	case AcceptedCallback:
		return "accepted-callback"
	case ConnectedCallback:
		return "connected-callback"
	case AssociatedCallback:
		return "associated-callback"
	case IolayerPerform:
		return "iolayer-perform"
	default:
		return "unknown"
	}
}

// Task is a tagged cross-thread command. At most one of the payload
// pointer fields is meaningful, selected by Kind; this is the Go idiom for a
// tagged union of (type code, opaque pointer) — a closed set of
// payload structs instead of an unsafe pointer cast.
type Task struct {
	Kind Type
	// Target is the session a routed task (Send, Shutdown, SetTimeout,
	// SetKeepalive, SetService, UserPerform) addresses. Broadcast,
	// IolayerPerform and the registration callbacks are unaddressed —
	// they either fan out to many sessions or create one.
	Target sid.ID

	Send        *SendPayload
	Broadcast   *BroadcastPayload
	Shutdown    *ShutdownPayload
	SetTimeout  *SetTimeoutPayload
	SetKA       *SetKeepalivePayload
	SetService  *SetServicePayload
	Perform     *UserPerformPayload
	Accepted    *AcceptedPayload
	Connected   *ConnectedPayload
	Associated  *AssociatedPayload
	LayerPerform *IolayerPerformPayload
}

type SendPayload struct {
	Data []byte
	Owns bool
}

// BroadcastPayload carries data destined for either an explicit set of
// sids (broadcast) or every session on the worker (broadcast2, Targets
// left nil).
type BroadcastPayload struct {
	Data    []byte
	Targets []sid.ID
}

type ShutdownPayload struct{}

type SetTimeoutPayload struct{ Seconds int }

type SetKeepalivePayload struct{ Seconds int }

// Service is satisfied by netmux.Service; kept as an interface here so
// package task has no import-cycle dependency on the facade package.
type Service interface {
	Start(ctx interface{}) int32
	Process(ctx interface{}, buf []byte) int32
	Transform(ctx interface{}, buf []byte) []byte
	Keepalive(ctx interface{}) int32
	Timeout(ctx interface{}) int32
	Error(ctx interface{}, rc int32) int32
	Perform(ctx interface{}, typ int32, payload interface{}) int32
	Shutdown(ctx interface{}, way int32)
}

type SetServicePayload struct {
	Service Service
	Context interface{}
}

// UserPerformPayload is the iolayer_perform task: an opaque type code
// and payload the service's Perform callback will receive, plus a
// Recycle hook invoked instead if the enqueue is rejected.
type UserPerformPayload struct {
	Type    int32
	Data    interface{}
	Recycle func(typ int32, data interface{})
}

// AcceptedPayload carries a freshly accepted connection to its
// destination worker.
type AcceptedPayload struct {
	Conn net.Conn
	Host string
	Port uint16
	Cb   func(ctx, ioctx interface{}, id uint64, host string, port uint16) int32
	Ctx  interface{}
}

// ConnectedPayload carries the outcome of a nonblocking connect.
// Result is 0 on success, non-zero on failure; Conn is nil on failure.
type ConnectedPayload struct {
	Conn   net.Conn
	Result int32
	Host   string
	Port   uint16
	Cb     func(ctx, ioctx interface{}, result int32, host string, port uint16, id uint64) int32
	Ctx    interface{}
}

// AssociatedPayload carries an externally obtained descriptor to be
// adopted.
type AssociatedPayload struct {
	Conn net.Conn
	Cb   func(ctx, ioctx interface{}, conn net.Conn, id uint64) int32
	Ctx  interface{}
}

// IolayerPerformPayload is the perform2 task: cloned once per worker
// and run with that worker's io-context.
type IolayerPerformPayload struct {
	Data interface{}
	Fn   func(ioctx interface{}, data interface{})
}
