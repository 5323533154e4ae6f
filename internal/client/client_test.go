package client_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/client"
	"github.com/stackia/rtp2httpd/internal/service"
	"github.com/stackia/rtp2httpd/internal/zerocopy"
)

func newTestClient() *client.Client {
	svc := service.NewMulticastUDP("test", net.IPv4(239, 0, 0, 1), 5000)
	q := zerocopy.NewQueue(1 << 20)
	return client.New(1, 100, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}, svc, q)
}

func TestStateTransitionsTrackSince(t *testing.T) {
	c := newTestClient()
	t0 := time.Now()
	c.SetState(1, t0)
	require.Equal(t, client.State(1), c.State())

	later := t0.Add(50 * time.Millisecond)
	require.GreaterOrEqual(t, c.StateSince(later), 40*time.Millisecond)
}

func TestBandwidthSampling(t *testing.T) {
	c := newTestClient()
	t0 := time.Now()

	c.RecordSent(125_000) // 1 Mbit
	c.SampleBandwidth(t0.Add(time.Second))

	require.Greater(t, c.BandwidthBitsPerSec(), 0.0)
}

func TestTombstone(t *testing.T) {
	c := newTestClient()
	require.False(t, c.Tombstoned())
	c.Tombstone()
	require.True(t, c.Tombstoned())
}

func TestRefreshSlowReflectsQueue(t *testing.T) {
	c := newTestClient()
	require.False(t, c.Slow())
	// An empty queue is below its byte cap: neither slow nor saturated.
	require.False(t, c.RefreshSlow(15e9, 0))
}
