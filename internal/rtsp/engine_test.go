package rtsp_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/rtsp"
)

func testEngine(t *testing.T) *rtsp.Engine {
	t.Helper()
	u, err := url.Parse("rtsp://10.0.0.5:554/live/ch1")
	require.NoError(t, err)
	return rtsp.NewEngine(u, rtsp.TransportInterleaved, "", 0, nil)
}

func TestEngineHappyPathToPlaying(t *testing.T) {
	e := testEngine(t)
	now := time.Now()

	e.OnConnected(now)
	require.Equal(t, rtsp.StateConnected, e.State())

	_, _, _, err := e.DescribeRequest(url.Values{}, "Player/1.0", now)
	require.NoError(t, err)
	require.Equal(t, rtsp.StateDescribeSent, e.State())

	require.NoError(t, e.OnDescribeResponse(200, now))
	require.Equal(t, rtsp.StateDescribed, e.State())

	e.SetupRequest(now)
	require.NoError(t, e.OnSetupResponse(200, "12345", now))
	require.Equal(t, rtsp.StateSetup, e.State())

	e.PlayRequest(now)
	require.NoError(t, e.OnPlayResponse(200, now))
	require.Equal(t, rtsp.StatePlaying, e.State())
}

func TestDescribeRequestRewritesPlayseek(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	e.OnConnected(now)

	q := url.Values{"playseek": {"20240101120000-20240101130000"}}
	_, reqURL, _, err := e.DescribeRequest(q, "Player/1.0 TZ/UTC+8", now)
	require.NoError(t, err)
	require.Contains(t, reqURL, "playseek=20240101040000-20240101050000")
}

func TestSetupResponseFailureEntersError(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	e.OnConnected(now)
	e.DescribeRequest(url.Values{}, "Player/1.0", now)
	e.OnDescribeResponse(200, now)
	e.SetupRequest(now)

	err := e.OnSetupResponse(454, "", now)
	require.Error(t, err)
	require.Equal(t, rtsp.StateError, e.State())
}

func TestReconnectResumesFromSetupWhenSessionHeld(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	e.OnConnected(now)
	e.DescribeRequest(url.Values{}, "Player/1.0", now)
	e.OnDescribeResponse(200, now)
	e.SetupRequest(now)
	e.OnSetupResponse(200, "sess-1", now)
	e.PlayRequest(now)
	e.OnPlayResponse(200, now)

	e.OnKeepaliveTimeout(now)
	require.Equal(t, rtsp.StateReconnecting, e.State())
	require.True(t, e.ResumeFromSetup())

	e.AbandonSession()
	require.False(t, e.ResumeFromSetup())
}
