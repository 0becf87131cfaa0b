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

// Package metrics exposes the network layer's Prometheus collectors:
// open-session gauges, byte counters, task-queue depth, and
// registration/shutdown counters, registered against a
// caller-supplied prometheus.Registerer (spec_full ambient stack).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors holds every metric the layer updates. It has no methods
// of its own; worker code checks for a nil *Collectors before touching
// a collector, so a nil value disables metrics.
type Collectors struct {
	OpenSessions   *prometheus.GaugeVec
	TaskQueueDepth *prometheus.GaugeVec
	BytesRecv      prometheus.Counter
	BytesSent      prometheus.Counter
	Accepts        prometheus.Counter
	Connects       prometheus.Counter
	Associates     prometheus.Counter
	Overflows      prometheus.Counter
	Shutdowns      *prometheus.CounterVec
}

// New builds and, if reg is non-nil, registers the layer's collectors.
// Passing a nil reg yields working-but-unregistered collectors, useful
// in tests that don't care about exposition.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		OpenSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netmux", Name: "open_sessions",
			Help: "Live sessions per worker.",
		}, []string{"worker"}),
		TaskQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netmux", Name: "task_queue_depth",
			Help: "Pending tasks per worker queue.",
		}, []string{"worker"}),
		BytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "bytes_received_total",
			Help: "Total bytes read from all sessions.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "bytes_sent_total",
			Help: "Total bytes written to all sessions.",
		}),
		Accepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "accepts_total",
			Help: "Total accepted connections.",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "connects_total",
			Help: "Total successful outbound connects.",
		}),
		Associates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "associates_total",
			Help: "Total associated descriptors.",
		}),
		Overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netmux", Name: "overflows_total",
			Help: "Total registrations rejected for capacity.",
		}),
		Shutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netmux", Name: "shutdowns_total",
			Help: "Total session shutdowns, labelled by way (0=requested,1=involuntary).",
		}, []string{"way"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.OpenSessions, c.TaskQueueDepth, c.BytesRecv, c.BytesSent,
			c.Accepts, c.Connects, c.Associates, c.Overflows, c.Shutdowns,
		)
	}
	return c
}
