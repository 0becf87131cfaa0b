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
	"bytes"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/netmux"
	"github.com/nabbar/netmux/config"
)

var _ = Describe("[TC-E2E] Broadcast fanout", func() {
	It("[TC-E2E-006] delivers 32 bytes to every one of 1000 sessions across 4 workers, exactly once each", func() {
		const sessionCount = 1000
		const payloadSize = 32

		cfg := config.Default()
		cfg.NThreads = 4
		layer, err := netmux.Create(cfg, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		defer layer.Destroy()

		host, port := getTestAddress()
		var registered atomic.Int32

		err = layer.Listen(host, port, func(ctx, ioctx interface{}, id uint64, h string, p uint16) int32 {
			svc := &netmux.ServiceFuncs{}
			Expect(layer.SetService(id, svc, nil)).To(Succeed())
			registered.Add(1)
			return 0
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		conns := make([]net.Conn, sessionCount)
		for i := 0; i < sessionCount; i++ {
			conns[i] = dial(host, port)
		}
		defer func() {
			for _, c := range conns {
				_ = c.Close()
			}
		}()

		eventually(5*time.Second, func() bool { return registered.Load() == sessionCount })

		payload := bytes.Repeat([]byte{0xAB}, payloadSize)
		Expect(layer.Broadcast2(payload)).To(Succeed())

		var wg sync.WaitGroup
		results := make([][]byte, sessionCount)
		errs := make([]error, sessionCount)
		wg.Add(sessionCount)
		for i := range conns {
			go func(i int) {
				defer wg.Done()
				buf := make([]byte, payloadSize)
				_ = conns[i].SetReadDeadline(time.Now().Add(5 * time.Second))
				_, err := io.ReadFull(conns[i], buf)
				results[i] = buf
				errs[i] = err
			}(i)
		}
		wg.Wait()

		for i := 0; i < sessionCount; i++ {
			Expect(errs[i]).ToNot(HaveOccurred(), "connection %d", i)
			Expect(results[i]).To(Equal(payload), "connection %d", i)
		}

		// Exactly once: nothing further should arrive within a short window.
		extra := make([]byte, 1)
		for i := 0; i < 5; i++ {
			_ = conns[i].SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			_, err := conns[i].Read(extra)
			Expect(err).To(HaveOccurred())
		}
	})
})
