//go:build linux

package transport_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/internal/transport"
	"github.com/momentics/hioload-worker/protocol"
	"github.com/momentics/hioload-worker/reactor"
)

func newLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func socketpair(t *testing.T) (local, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func run(t *testing.T, l *reactor.Loop) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		l.Stop()
		t.Fatal("loop did not return")
	}
}

func frame(t *testing.T, tag byte, content string) []byte {
	t.Helper()
	b, err := protocol.AppendFrame(nil, tag, []byte(content), 0)
	require.NoError(t, err)
	return b
}

func TestConsumer_FramesThenEOF(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)

	var got []string
	var closes []error
	c, err := transport.NewConsumer(l, fd, transport.ConsumerConfig{ReadSize: 8},
		func(f protocol.Frame) { got = append(got, string(f.Body)) },
		func(cause error) { closes = append(closes, cause) })
	require.NoError(t, err)
	assert.Equal(t, api.EndpointOpen, c.State())
	assert.Equal(t, api.RoleConsumer, c.Role())

	stream := append(frame(t, protocol.TagJSON, "one"), frame(t, protocol.TagJSON, "two-is-longer-than-eight")...)
	go func() {
		for i := 0; i < len(stream); i += 5 {
			end := min(i+5, len(stream))
			_, _ = unix.Write(peer, stream[i:end])
			time.Sleep(time.Millisecond)
		}
		_ = unix.Close(peer)
	}()

	run(t, l)
	assert.Equal(t, []string{"one", "two-is-longer-than-eight"}, got)
	require.Len(t, closes, 1)
	assert.NoError(t, closes[0])
	assert.Equal(t, api.EndpointClosed, c.State())
	assert.Equal(t, uint64(2), c.FramesRead())
	assert.Equal(t, uint64(len(stream)), c.BytesRead())

	c.Close()
	assert.Len(t, closes, 1)
}

func TestConsumer_OversizedFrameCloses(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)
	defer unix.Close(peer)

	var got int
	var closes []error
	_, err := transport.NewConsumer(l, fd, transport.ConsumerConfig{MaxFrameBody: 8},
		func(protocol.Frame) { got++ },
		func(cause error) { closes = append(closes, cause) })
	require.NoError(t, err)

	_, err = unix.Write(peer, frame(t, protocol.TagJSON, "ok"))
	require.NoError(t, err)
	_, err = unix.Write(peer, frame(t, protocol.TagJSON, "way too long"))
	require.NoError(t, err)

	run(t, l)
	assert.Equal(t, 1, got)
	require.Len(t, closes, 1)
	assert.ErrorIs(t, closes[0], api.ErrFrameTooLarge)
}

func TestConsumer_HandlerMayClose(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)
	defer unix.Close(peer)

	var c *transport.Consumer
	var got, closes int
	c, err := transport.NewConsumer(l, fd, transport.ConsumerConfig{},
		func(protocol.Frame) {
			got++
			c.Close()
		},
		func(error) { closes++ })
	require.NoError(t, err)

	_, err = unix.Write(peer, append(frame(t, protocol.TagJSON, "a"), frame(t, protocol.TagJSON, "b")...))
	require.NoError(t, err)

	run(t, l)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, closes)
}

func TestProducer_WriteAndClose(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)
	defer unix.Close(peer)

	closes := 0
	p, err := transport.NewProducer(l, fd, zerolog.Nop(), func(cause error) {
		assert.NoError(t, cause)
		closes++
	})
	require.NoError(t, err)
	assert.Equal(t, api.RoleProducer, p.Role())

	require.NoError(t, p.Write([]byte("hello")))
	assert.Zero(t, p.Pending())
	buf := make([]byte, 16)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	p.Close()
	p.Close()
	assert.Equal(t, 1, closes)
	assert.Equal(t, api.EndpointClosed, p.State())
	assert.ErrorIs(t, p.Write([]byte("late")), api.ErrTransportClosed)
}

func TestProducer_QueuesAndFlushesInOrder(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)
	require.NoError(t, unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	p, err := transport.NewProducer(l, fd, zerolog.Nop(), nil)
	require.NoError(t, err)

	var want bytes.Buffer
	for i := 0; i < 64; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 8*1024)
		want.Write(chunk)
		require.NoError(t, p.Write(chunk))
	}
	require.Positive(t, p.Pending())

	received := make(chan []byte, 1)
	go func() {
		var got bytes.Buffer
		buf := make([]byte, 32*1024)
		for got.Len() < want.Len() {
			n, err := unix.Read(peer, buf)
			if err != nil {
				break
			}
			got.Write(buf[:n])
		}
		_ = unix.Close(peer)
		received <- got.Bytes()
		_ = l.Post(p.Close)
	}()

	run(t, l)
	assert.True(t, bytes.Equal(want.Bytes(), <-received))
	assert.Zero(t, p.Pending())
	assert.Equal(t, uint64(want.Len()), p.BytesWritten())
}

func TestProducer_PeerHangupCloses(t *testing.T) {
	l := newLoop(t)
	fd, peer := socketpair(t)

	var closes []error
	p, err := transport.NewProducer(l, fd, zerolog.Nop(), func(cause error) { closes = append(closes, cause) })
	require.NoError(t, err)
	require.NoError(t, unix.Close(peer))

	run(t, l)
	require.Len(t, closes, 1)
	assert.Error(t, closes[0])
	assert.ErrorIs(t, p.Write([]byte("x")), api.ErrTransportClosed)
}
