package httpfront_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/httpfront"
)

func TestParseRouteRTPWithFCC(t *testing.T) {
	q := url.Values{"fcc": {"10.255.14.152:15970"}, "fcc-type": {"telecom"}}
	r, err := httpfront.ParseRoute("/rtp/239.253.64.120:5140", q, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteRTP, r.Kind)
	require.Equal(t, "239.253.64.120", r.MulticastAddr.String())
	require.Equal(t, 5140, r.MulticastPort)
	require.Equal(t, "10.255.14.152:15970", r.FCCServer)
}

func TestParseRouteUDP(t *testing.T) {
	r, err := httpfront.ParseRoute("/udp/239.0.0.1:1234", url.Values{}, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteUDP, r.Kind)
}

func TestParseRouteRTSP(t *testing.T) {
	q := url.Values{"playseek": {"20240101120000-20240101130000"}}
	r, err := httpfront.ParseRoute("/rtsp/10.0.0.5:554/live/ch1", q, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteRTSP, r.Kind)
	require.Equal(t, "10.0.0.5", r.Host)
	require.Equal(t, 554, r.Port)
	require.Equal(t, "/live/ch1", r.Path)
}

func TestParseRouteHTTPProxy(t *testing.T) {
	r, err := httpfront.ParseRoute("/http/cdn.example.com:8080/live/ch2.m3u8", url.Values{}, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteHTTPProxy, r.Kind)
	require.Equal(t, "cdn.example.com", r.ProxyHost)
	require.Equal(t, 8080, r.ProxyPort)
	require.Equal(t, "/live/ch2.m3u8", r.ProxyPath)
}

func TestParseRouteNamedServiceAndStaticAndPlaylist(t *testing.T) {
	r, err := httpfront.ParseRoute("/channel1", url.Values{}, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteNamedService, r.Kind)
	require.Equal(t, "channel1", r.Name)

	r, err = httpfront.ParseRoute("/status", url.Values{}, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RouteStatic, r.Kind)

	r, err = httpfront.ParseRoute("/playlist.m3u", url.Values{}, "/status", "/player")
	require.NoError(t, err)
	require.Equal(t, httpfront.RoutePlaylist, r.Kind)
}

func TestParseRouteSnapshotFlag(t *testing.T) {
	r, err := httpfront.ParseRoute("/rtp/239.253.64.120:5140", url.Values{"snapshot": {"1"}}, "/status", "/player")
	require.NoError(t, err)
	require.True(t, r.Snapshot)
}
