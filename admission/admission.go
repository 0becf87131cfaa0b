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

// Package admission enforces the network layer's global nclients
// budget: nclients/nthreads caps each worker's per-slot share, and this
// gate additionally caps the layer as a whole. It wraps
// golang.org/x/sync/semaphore.Weighted, sized to nclients and acquired
// once per registered session.
package admission

import (
	"golang.org/x/sync/semaphore"
)

// Gate admits up to a fixed number of concurrently live sessions across
// the whole layer.
type Gate struct {
	sem *semaphore.Weighted
}

// New builds a Gate admitting up to n concurrent sessions. n <= 0 means
// unbounded (no admission control beyond each worker's own table cap).
func New(n int) *Gate {
	if n <= 0 {
		return &Gate{}
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n))}
}

// TryAcquire admits one session, returning false immediately if the
// layer is already at capacity (the Overflow condition).
func (g *Gate) TryAcquire() bool {
	if g == nil || g.sem == nil {
		return true
	}
	return g.sem.TryAcquire(1)
}

// Release returns one admission slot, called on session destruction.
func (g *Gate) Release() {
	if g == nil || g.sem == nil {
		return
	}
	g.sem.Release(1)
}
