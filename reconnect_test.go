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
	"net"
	"strconv"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/netmux"
	"github.com/nabbar/netmux/config"
)

var _ = Describe("[TC-E2E] Reconnect", func() {
	It("[TC-E2E-005] redials the same host:port when error() returns 0 on a connected-origin session", func() {
		host, port := getTestAddress()

		var acceptCount atomic.Int32
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
		Expect(err).ToNot(HaveOccurred())
		defer func() { _ = ln.Close() }()

		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				acceptCount.Add(1)
				_ = conn.Close()
			}
		}()

		cfg := config.Default()
		cfg.NThreads = 1
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		var connectCallbacks atomic.Int32
		errorCalls := make(chan struct{}, 16)

		layer.Connect(host, port, 2, func(ctx, ioctx interface{}, result int32, h string, p uint16, id uint64) int32 {
			connectCallbacks.Add(1)
			if result != 0 {
				return -1
			}
			svc := &netmux.ServiceFuncs{
				ErrorFunc: func(ctx interface{}, rc int32) int32 {
					select {
					case errorCalls <- struct{}{}:
					default:
					}
					return 0
				},
			}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			return 0
		}, nil)

		eventually(3*time.Second, func() bool { return acceptCount.Load() >= 1 })
		Expect(connectCallbacks.Load()).To(BeNumerically("==", 1))
		<-errorCalls
		// Reconnect resumes the existing session in place rather than
		// re-running the original connect callback — the listener
		// accepting a second time is the observable proof the layer
		// redialed host:port.
		eventually(3*time.Second, func() bool { return acceptCount.Load() >= 2 })
	})
})

