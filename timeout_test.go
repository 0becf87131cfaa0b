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

var _ = Describe("[TC-E2E] Idle timeout", func() {
	It("[TC-E2E-004] fires in [2s, 2s+eps] after the last byte and a -1 return kills the session with way=1", func() {
		cfg := config.Default()
		cfg.NThreads = 1
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		var serverID atomic.Uint64
		var lastByteAt atomic.Int64
		var timeoutAt atomic.Int64
		var shutdownWay atomic.Int32
		shutdownWay.Store(-2)

		host, port := getTestAddress()
		err = layer.Listen(host, port, func(ctx, ioctx interface{}, id uint64, h string, p uint16) int32 {
			serverID.Store(id)
			svc := &netmux.ServiceFuncs{
				ProcessFunc: func(ctx interface{}, buf []byte) int32 {
					return int32(len(buf))
				},
				TimeoutFunc: func(ctx interface{}) int32 {
					timeoutAt.Store(time.Now().UnixNano())
					return -1
				},
				ShutdownFunc: func(ctx interface{}, way int32) {
					shutdownWay.Store(way)
				},
			}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			Expect(layer.SetTimeout(id, 2)).To(Succeed())
			return 0
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		conn := dial(host, port)
		defer func() { _ = conn.Close() }()

		lastByteAt.Store(time.Now().UnixNano())
		_, err = conn.Write([]byte("x"))
		Expect(err).ToNot(HaveOccurred())

		eventually(4*time.Second, func() bool { return timeoutAt.Load() != 0 })
		elapsed := time.Duration(timeoutAt.Load() - lastByteAt.Load())
		Expect(elapsed).To(BeNumerically(">=", 2*time.Second))
		Expect(elapsed).To(BeNumerically("<", 3*time.Second))

		eventually(2*time.Second, func() bool { return shutdownWay.Load() == 1 })
	})
})
