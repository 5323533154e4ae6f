package status_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/buffer"
	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/status"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

func TestBuilderRendersPoolAndUptime(t *testing.T) {
	pool, err := buffer.NewPool(4, 16)
	require.NoError(t, err)

	start := time.Now().Add(-5 * time.Second)
	b := &status.Builder{WorkerPID: 4242, StartedAt: start, Pool: pool, LogRing: status.NewRingBuffer(8)}
	b.LogRing.Push("worker started")

	snap := b.Build(nil, nil, start.Add(5*time.Second))
	require.Equal(t, 4242, snap.WorkerPID)
	require.InDelta(t, 5.0, snap.Uptime, 0.01)
	require.Equal(t, 4, snap.Pool.Total)
	require.Equal(t, []string{"worker started"}, snap.LogRing)
}

func TestBuilderAggregatesSenderCounters(t *testing.T) {
	pool, err := buffer.NewPool(1, 1)
	require.NoError(t, err)
	b := &status.Builder{WorkerPID: 1, StartedAt: time.Now(), Pool: pool}

	q := zerocopy.NewQueue(1 << 20)
	s1 := zerocopy.NewSender(-1, q, false)
	s2 := zerocopy.NewSender(-1, q, false)

	snap := b.Build([]*zerocopy.Sender{s1, s2}, nil, time.Now())
	require.Equal(t, int64(0), snap.SendTotal)
}

func TestBuilderRendersClientRows(t *testing.T) {
	pool, err := buffer.NewPool(1, 1)
	require.NoError(t, err)
	b := &status.Builder{WorkerPID: 1, StartedAt: time.Now(), Pool: pool}

	svc := service.NewMulticastUDP("news", net.ParseIP("239.1.1.1"), 5004)
	q := zerocopy.NewQueue(1 << 20)
	c := client.New(7, 1, &net.TCPAddr{IP: net.ParseIP("10.0.0.9"), Port: 51000}, svc, q)
	c.RecordSent(1500)

	snap := b.Build(nil, []*client.Client{c}, time.Now())
	require.Len(t, snap.Clients, 1)
	row := snap.Clients[0]
	require.Equal(t, uint64(7), row.ID)
	require.Equal(t, "news", row.Service)
	require.Equal(t, int64(1500), row.BytesSent)
	require.Equal(t, "10.0.0.9:51000", row.Remote)
}
