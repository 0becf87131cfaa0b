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

package admission

import "testing"

func TestUnboundedGateAlwaysAdmits(t *testing.T) {
	g := New(0)
	for i := 0; i < 100; i++ {
		if !g.TryAcquire() {
			t.Fatal("unbounded gate refused an acquire")
		}
	}
}

func TestBoundedGateRefusesPastCapacity(t *testing.T) {
	g := New(2)
	if !g.TryAcquire() || !g.TryAcquire() {
		t.Fatal("gate refused within its capacity")
	}
	if g.TryAcquire() {
		t.Fatal("gate admitted past its capacity")
	}
}

func TestReleaseFreesASlot(t *testing.T) {
	g := New(1)
	if !g.TryAcquire() {
		t.Fatal("gate refused its only slot")
	}
	if g.TryAcquire() {
		t.Fatal("gate admitted a second concurrent session at capacity 1")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("gate refused to re-admit after Release")
	}
}

func TestNilGateIsAlwaysPermissive(t *testing.T) {
	var g *Gate
	if !g.TryAcquire() {
		t.Fatal("nil gate refused an acquire")
	}
	g.Release() // must not panic
}
