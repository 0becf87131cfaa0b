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

// Package neterr defines the error-kind taxonomy of the network layer.
//
// Kinds are sentinel values, not types: callers compare with errors.Is,
// and a Kind carries a code without dragging in stack-trace or
// i18n machinery — this layer's errors are session-local events, not a
// cross-package error bus.
package neterr

import "fmt"

// Kind identifies one of the error categories from the network layer's
// error-handling design.
type Kind uint8

const (
	// KindNotFound means a sid resolved to no live session.
	KindNotFound Kind = iota + 1
	// KindOverflow means the per-worker or global session cap was reached.
	KindOverflow
	// KindQueueRejected means a task queue refused an enqueue (closed or full).
	KindQueueRejected
	// KindIOError means a read/write/connect syscall failed.
	KindIOError
	// KindTimeout means an idle timeout expired.
	KindTimeout
	// KindInvariantViolation means a per-session setter was called off-thread.
	KindInvariantViolation
	// KindInvalidAddress means listen/connect/associate received a bad address.
	KindInvalidAddress
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindOverflow:
		return "overflow"
	case KindQueueRejected:
		return "queue-rejected"
	case KindIOError:
		return "io-error"
	case KindTimeout:
		return "timeout"
	case KindInvariantViolation:
		return "invariant-violation"
	case KindInvalidAddress:
		return "invalid-address"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with context. Its Is method matches the bare Kind
// sentinel so errors.Is(err, neterr.NotFound) works whether or not the
// error carries extra context, and Unwrap exposes the underlying cause.
type Error struct {
	kind Kind
	msg  string
	// cause is the underlying OS/library error, if any (e.g. the errno
	// behind an IOError).
	cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// Is lets errors.Is(err, neterr.NotFound) etc. match regardless of the
// message or wrapped cause.
func (e *Error) Is(target error) bool {
	if t, ok := target.(sentinel); ok {
		return e.kind == t.kind
	}
	return false
}

// sentinel is a bare Kind usable as an errors.Is target.
type sentinel struct{ kind Kind }

func (s sentinel) Error() string { return s.kind.String() }

var (
	NotFound            error = sentinel{KindNotFound}
	Overflow            error = sentinel{KindOverflow}
	QueueRejected       error = sentinel{KindQueueRejected}
	IOError             error = sentinel{KindIOError}
	Timeout             error = sentinel{KindTimeout}
	InvariantViolation  error = sentinel{KindInvariantViolation}
	InvalidAddress      error = sentinel{KindInvalidAddress}
)
