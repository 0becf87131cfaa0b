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
	"time"

	"github.com/nabbar/netmux/admission"
	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/metrics"
)

// Config bundles what the dispatch facade passes down when it creates
// a worker — nothing here is per-session, only per-thread.
type Config struct {
	Index        uint8
	Capacity int // per-worker session table size
	TaskQueue int // bounded task-channel depth
	Realtime     bool
	DefaultIdle  time.Duration
	DefaultKA    time.Duration
	Admission    *admission.Gate
	Metrics      *metrics.Collectors
	Log          logger.Logger
	ReadBufBytes int
	// WriteQueueBytes bounds each session's pending-write queue
	// (config.WriteQueueSize); 0 leaves it unbounded.
	WriteQueueBytes int
}

func (c Config) readBuf() int {
	if c.ReadBufBytes > 0 {
		return c.ReadBufBytes
	}
	return 32 * 1024
}
