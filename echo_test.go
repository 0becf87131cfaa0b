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

var _ = Describe("[TC-E2E] Echo", func() {
	It("[TC-E2E-001] echoes a 5-byte payload and shuts down the server session with way=0", func() {
		cfg := config.Default()
		cfg.NThreads = 1
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		var serverWay atomic.Int32
		serverWay.Store(-2)

		var serverID atomic.Uint64

		err = layer.Listen("127.0.0.1", 17001, func(ctx, ioctx interface{}, id uint64, host string, port uint16) int32 {
			serverID.Store(id)
			svc := &netmux.ServiceFuncs{
				ProcessFunc: func(ctx interface{}, buf []byte) int32 {
					_ = layer.Send(id, append([]byte(nil), buf...), true)
					return int32(len(buf))
				},
				ShutdownFunc: func(ctx interface{}, way int32) {
					serverWay.Store(way)
				},
			}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			return 0
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		conn := dial("127.0.0.1", 17001)
		defer func() { _ = conn.Close() }()

		_, err = conn.Write([]byte("hello"))
		Expect(err).ToNot(HaveOccurred())

		reply := make([]byte, 5)
		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, err = conn.Read(reply)
		Expect(err).ToNot(HaveOccurred())
		Expect(reply).To(Equal([]byte("hello")))

		eventually(2*time.Second, func() bool { return serverID.Load() != 0 })
		Expect(layer.Shutdown(serverID.Load())).To(Succeed())

		eventually(2*time.Second, func() bool { return serverWay.Load() == 0 })
	})
})
