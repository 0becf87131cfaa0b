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

package netmux_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/netmux"
	"github.com/nabbar/netmux/config"
)

var _ = Describe("[TC-E2E] Cross-thread perform", func() {
	It("[TC-E2E-002] delivers perform on the session's own worker, strictly after the in-flight process call returns", func() {
		cfg := config.Default()
		cfg.NThreads = 4
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		var processReturned atomic.Bool
		var performSawProcessReturned atomic.Bool
		var performRC atomic.Int32
		var serverID atomic.Uint64
		enteredProcess := make(chan struct{})

		host, port := getTestAddress()
		err = layer.Listen(host, port, func(ctx, ioctx interface{}, id uint64, h string, p uint16) int32 {
			serverID.Store(id)
			svc := &netmux.ServiceFuncs{
				ProcessFunc: func(ctx interface{}, buf []byte) int32 {
					close(enteredProcess)
					time.Sleep(150 * time.Millisecond)
					processReturned.Store(true)
					return int32(len(buf))
				},
				PerformFunc: func(ctx interface{}, typ int32, payload interface{}) int32 {
					performSawProcessReturned.Store(processReturned.Load())
					performRC.Store(1)
					return 0
				},
			}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			return 0
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		conn := dial(host, port)
		defer func() { _ = conn.Close() }()

		_, err = conn.Write([]byte("x"))
		Expect(err).ToNot(HaveOccurred())

		<-enteredProcess
		eventually(time.Second, func() bool { return serverID.Load() != 0 })

		// Submitted from this test goroutine, which is not the session's
		// owning worker — exactly the "non-worker thread" the scenario calls for.
		Expect(layer.Perform(serverID.Load(), 7, "P", nil)).To(Succeed())

		eventually(2*time.Second, func() bool { return performRC.Load() == 1 })
		Expect(performSawProcessReturned.Load()).To(BeTrue())
	})
})
