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

var _ = Describe("[TC-E2E] Keepalive", func() {
	It("[TC-E2E-003] fires at >=1s cadence and a -1 return kills the session with way=1", func() {
		cfg := config.Default()
		cfg.NThreads = 1
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		var serverID atomic.Uint64
		var firstFire, secondFire atomic.Int64
		var fireCount atomic.Int32
		var shutdownWay atomic.Int32
		shutdownWay.Store(-2)

		host, port := getTestAddress()
		err = layer.Listen(host, port, func(ctx, ioctx interface{}, id uint64, h string, p uint16) int32 {
			serverID.Store(id)
			svc := &netmux.ServiceFuncs{
				KeepaliveFunc: func(ctx interface{}) int32 {
					n := fireCount.Add(1)
					now := time.Now().UnixNano()
					if n == 1 {
						firstFire.Store(now)
						return 0
					}
					secondFire.Store(now)
					return -1
				},
				ShutdownFunc: func(ctx interface{}, way int32) {
					shutdownWay.Store(way)
				},
			}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			Expect(layer.SetKeepalive(id, 1)).To(Succeed())
			return 0
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		conn := dial(host, port)
		defer func() { _ = conn.Close() }()

		eventually(4*time.Second, func() bool { return fireCount.Load() >= 2 })
		Expect(time.Duration(secondFire.Load() - firstFire.Load())).To(BeNumerically(">=", 900*time.Millisecond))

		eventually(2*time.Second, func() bool { return shutdownWay.Load() == 1 })
	})
})
