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

package netmux

import "github.com/nabbar/netmux/task"

// Service is the per-session callback vtable: the eight
// upcalls the layer invokes on a session's owning worker goroutine.
// Implementations MUST NOT block — see its suspension-points
// invariant.
type Service interface {
	// Start is invoked once a session is fully registered (after the
	// listen/connect/associate callback accepted it). A negative
	// return destroys the session immediately.
	Start(ctx interface{}) int32
	// Process is invoked repeatedly with the session's unconsumed
	// rolling buffer. It returns the number of bytes consumed (0 means
	// need-more-data), or a negative value to signal an error.
	Process(ctx interface{}, buf []byte) int32
	// Transform is the per-send hook: given outgoing bytes, it returns
	// either the same slice untouched or a freshly allocated one the
	// layer now owns.
	Transform(ctx interface{}, buf []byte) []byte
	// Keepalive fires when the session's keepalive interval elapses.
	// A negative return destroys the session.
	Keepalive(ctx interface{}) int32
	// Timeout fires when the session's idle timeout elapses. A
	// negative return destroys the session with way=1; non-negative
	// resets the idle timer.
	Timeout(ctx interface{}) int32
	// Error is invoked on I/O or Process failure. For connected-origin
	// sessions a return of 0 triggers reconnect instead of destroy.
	Error(ctx interface{}, rc int32) int32
	// Perform delivers a cross-thread UserPerform task's payload.
	Perform(ctx interface{}, typ int32, payload interface{}) int32
	// Shutdown is invoked exactly once, on entry to Dead.
	Shutdown(ctx interface{}, way int32)
}

var _ task.Service = Service(nil)

// ServiceFuncs adapts bare closures into a Service, the Service
// equivalent of http.HandlerFunc: set only the callbacks a given
// session type actually needs, and every unset field gets the
// harmless zero-value default documented per field below.
type ServiceFuncs struct {
	StartFunc     func(ctx interface{}) int32
	ProcessFunc   func(ctx interface{}, buf []byte) int32
	TransformFunc func(ctx interface{}, buf []byte) []byte
	KeepaliveFunc func(ctx interface{}) int32
	TimeoutFunc   func(ctx interface{}) int32
	ErrorFunc     func(ctx interface{}, rc int32) int32
	PerformFunc   func(ctx interface{}, typ int32, payload interface{}) int32
	ShutdownFunc  func(ctx interface{}, way int32)
}

// Start calls StartFunc if set, else returns 0 (accept unconditionally).
func (f ServiceFuncs) Start(ctx interface{}) int32 {
	if f.StartFunc == nil {
		return 0
	}
	return f.StartFunc(ctx)
}

// Process calls ProcessFunc if set, else consumes and discards
// everything handed to it (a safe default for write-only sessions).
func (f ServiceFuncs) Process(ctx interface{}, buf []byte) int32 {
	if f.ProcessFunc == nil {
		return int32(len(buf))
	}
	return f.ProcessFunc(ctx, buf)
}

// Transform calls TransformFunc if set, else passes bytes through
// unchanged.
func (f ServiceFuncs) Transform(ctx interface{}, buf []byte) []byte {
	if f.TransformFunc == nil {
		return buf
	}
	return f.TransformFunc(ctx, buf)
}

// Keepalive calls KeepaliveFunc if set, else returns 0 (no-op tick).
func (f ServiceFuncs) Keepalive(ctx interface{}) int32 {
	if f.KeepaliveFunc == nil {
		return 0
	}
	return f.KeepaliveFunc(ctx)
}

// Timeout calls TimeoutFunc if set, else returns -1 (destroy on idle
// by default — the safer default for a bare-bones service).
func (f ServiceFuncs) Timeout(ctx interface{}) int32 {
	if f.TimeoutFunc == nil {
		return -1
	}
	return f.TimeoutFunc(ctx)
}

// Error calls ErrorFunc if set, else returns -1 (destroy, never
// reconnect, by default).
func (f ServiceFuncs) Error(ctx interface{}, rc int32) int32 {
	if f.ErrorFunc == nil {
		return -1
	}
	return f.ErrorFunc(ctx, rc)
}

// Perform calls PerformFunc if set, else returns -1 (unhandled).
func (f ServiceFuncs) Perform(ctx interface{}, typ int32, payload interface{}) int32 {
	if f.PerformFunc == nil {
		return -1
	}
	return f.PerformFunc(ctx, typ, payload)
}

// Shutdown calls ShutdownFunc if set; otherwise it is a no-op.
func (f ServiceFuncs) Shutdown(ctx interface{}, way int32) {
	if f.ShutdownFunc != nil {
		f.ShutdownFunc(ctx, way)
	}
}

var _ Service = ServiceFuncs{}
