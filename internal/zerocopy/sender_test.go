package zerocopy_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

// connectedUDPFd returns a raw, connected UDP socket fd (duplicated from a
// net.UDPConn) so the zero-copy Sender's non zero-copy fallback path can be
// exercised with unix.Send/unix.Recvmsg directly, without CGO or elevated
// privileges.
func connectedUDPFd(t *testing.T) (fd int, local *net.UDPConn, remote *net.UDPConn) {
	t.Helper()

	remote, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	local, err = net.DialUDP("udp4", nil, remote.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	sc, err := local.SyscallConn()
	require.NoError(t, err)

	var dupFd int
	err = sc.Control(func(fd uintptr) {
		dupFd, err = unix.Dup(int(fd))
	})
	require.NoError(t, err)
	require.NoError(t, err)

	require.NoError(t, unix.SetNonblock(dupFd, true))

	return dupFd, local, remote
}

func TestSenderFlushNonZeroCopyReleasesImmediately(t *testing.T) {
	fd, local, remote := connectedUDPFd(t)
	defer unix.Close(fd)
	defer local.Close()
	defer remote.Close()

	pool, err := buffer.NewPool(2, 2)
	require.NoError(t, err)
	q := zerocopy.NewQueue(1 << 20)
	s := zerocopy.NewSender(fd, q, false)

	b, err := pool.Acquire()
	require.NoError(t, err)
	b.SetLen(5)
	copy(b.Bytes(), []byte("hello"))
	require.True(t, q.Enqueue(b, 0, 5))
	b.Release() // ingress's own reference; the queue still holds one

	require.NoError(t, s.Flush(time.Now(), false))

	require.EqualValues(t, 0, b.RefCount(), "non zero-copy send releases the buffer synchronously")
	require.EqualValues(t, 1, s.Stats().Sent)
	require.EqualValues(t, 0, q.Stats().QueueBytes)

	rbuf := make([]byte, 16)
	remote.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := remote.ReadFromUDP(rbuf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(rbuf[:n]))
}

func TestShouldFlushOnBatchSizeOrTimeout(t *testing.T) {
	fd, local, remote := connectedUDPFd(t)
	defer unix.Close(fd)
	defer local.Close()
	defer remote.Close()

	q := zerocopy.NewQueue(1 << 20)
	s := zerocopy.NewSender(fd, q, false)

	require.False(t, s.ShouldFlush(0, time.Now()))
	require.True(t, s.ShouldFlush(zerocopy.BatchMax, time.Now()))
	require.False(t, s.ShouldFlush(1, time.Now()))
	require.True(t, s.ShouldFlush(1, time.Now().Add(zerocopy.BatchFlushTimeout+time.Millisecond)))
}
