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

// Package logger is a thin structured-logging facade over logrus,
// covering what the network layer needs: leveled logging with per-call-site
// fields, so every worker/session/acceptor log line carries its sid,
// worker index, and component name without each caller formatting a
// prefix by hand.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging interface used throughout netmux.
type Logger interface {
	WithFields(f Fields) Logger
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	SetLevel(lvl logrus.Level)
}

type entry struct {
	l *logrus.Logger
	f Fields
}

// New builds a Logger writing to out (os.Stderr if nil) at the given level.
func New(out io.Writer, lvl logrus.Level) Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &entry{l: l, f: NewFields()}
}

// Discard returns a Logger that drops everything — the zero-config
// default for components created without an explicit logger.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &entry{l: l, f: NewFields()}
}

func (e *entry) WithFields(f Fields) Logger {
	return &entry{l: e.l, f: e.f.Merge(f)}
}

func (e *entry) SetLevel(lvl logrus.Level) { e.l.SetLevel(lvl) }

func (e *entry) Debug(msg string) { e.l.WithFields(e.f.Logrus()).Debug(msg) }
func (e *entry) Info(msg string)  { e.l.WithFields(e.f.Logrus()).Info(msg) }
func (e *entry) Warn(msg string)  { e.l.WithFields(e.f.Logrus()).Warn(msg) }
func (e *entry) Error(msg string) { e.l.WithFields(e.f.Logrus()).Error(msg) }
