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

package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabbar/netmux/logger"
	"github.com/nabbar/netmux/sid"
	"github.com/nabbar/netmux/task"
)

type stubService struct {
	processed   [][]byte
	processRC   int32
	needMore    bool
	shutdownWay []int32
	errorRC     int32
}

func (s *stubService) Start(ctx interface{}) int32 { return 0 }
func (s *stubService) Process(ctx interface{}, buf []byte) int32 {
	s.processed = append(s.processed, append([]byte(nil), buf...))
	if s.needMore {
		return 0
	}
	if s.processRC != 0 {
		return s.processRC
	}
	return int32(len(buf))
}
func (s *stubService) Transform(ctx interface{}, buf []byte) []byte    { return buf }
func (s *stubService) Keepalive(ctx interface{}) int32                 { return 0 }
func (s *stubService) Timeout(ctx interface{}) int32                   { return -1 }
func (s *stubService) Error(ctx interface{}, rc int32) int32           { s.errorRC = rc; return -1 }
func (s *stubService) Perform(ctx interface{}, typ int32, p interface{}) int32 { return 0 }
func (s *stubService) Shutdown(ctx interface{}, way int32)             { s.shutdownWay = append(s.shutdownWay, way) }

var _ task.Service = (*stubService)(nil)

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	id := sid.Encode(0, 1, 0)
	s := New(id, 1, 0, 0, server, "127.0.0.1", 9000, OriginAccepted, "trace-1", logger.Discard(), 0)
	return s, client
}

func TestFeedConsumesAndReturnsToAlive(t *testing.T) {
	s, _ := newTestSession(t)
	svc := &stubService{}
	s.SetService(svc, nil)

	rc, hadErr := s.Feed([]byte("hello"))
	require.False(t, hadErr)
	require.Equal(t, int32(0), rc)
	require.Len(t, svc.processed, 1)
	require.Equal(t, "hello", string(svc.processed[0]))
	require.Equal(t, Alive, s.State())
}

func TestFeedNeedsMoreDataBuffers(t *testing.T) {
	s, _ := newTestSession(t)
	svc := &stubService{needMore: true}
	s.SetService(svc, nil)

	rc, hadErr := s.Feed([]byte("ab"))
	require.False(t, hadErr)
	require.Equal(t, int32(0), rc)
	require.NotEmpty(t, s.rolling)
}

func TestFeedWhileStoppedDiscardsSilently(t *testing.T) {
	s, _ := newTestSession(t)
	svc := &stubService{}
	s.SetService(svc, nil)
	s.Stop()

	rc, hadErr := s.Feed([]byte("hello"))
	require.False(t, hadErr)
	require.Equal(t, int32(0), rc)
	require.Empty(t, svc.processed)
}

func TestSendRejectedWhenDrainingOrDead(t *testing.T) {
	s, _ := newTestSession(t)
	s.wb.Append([]byte("pending"), true)
	require.False(t, s.BeginShutdown()) // goes to Draining, buffer non-empty

	err := s.Send([]byte("more"), true, nil)
	require.Error(t, err)

	s.Kill()
	err = s.Send([]byte("more"), true, nil)
	require.Error(t, err)
}

func TestBeginShutdownGoesStraightToDeadWhenBufferEmpty(t *testing.T) {
	s, _ := newTestSession(t)
	require.True(t, s.BeginShutdown())
	require.Equal(t, Dead, s.State())
}

func TestCallShutdownFiresExactlyOnce(t *testing.T) {
	s, _ := newTestSession(t)
	svc := &stubService{}
	s.SetService(svc, nil)

	s.CallShutdown(WayRequested)
	s.CallShutdown(WayInvoluntary)

	require.Len(t, svc.shutdownWay, 1)
	require.Equal(t, int32(WayRequested), svc.shutdownWay[0])
}

func TestFlushTransitionsDrainingToDeadOnceEmpty(t *testing.T) {
	s, peer := newTestSession(t)
	s.wb.Append([]byte("x"), true)
	s.BeginShutdown()
	require.Equal(t, Draining, s.State())

	readDone := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = peer.Read(buf)
		close(readDone)
	}()

	_, err := s.Flush()
	require.NoError(t, err)

	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("peer never observed the flushed byte")
	}
	require.Equal(t, Dead, s.State())
}
