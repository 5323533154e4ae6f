package m3u_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/m3u"
)

const sample = `#EXTM3U
#EXTINF:-1,Channel One
rtp://239.253.64.120:5140
#EXTINF:-1,Channel Two
http://cdn.example.com/live/ch2.m3u8
`

func TestParseBasic(t *testing.T) {
	p, err := m3u.Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Equal(t, "#EXTM3U", p.Header)
	require.Len(t, p.Entries, 2)
	require.Equal(t, "rtp://239.253.64.120:5140", p.Entries[0].URL)
	require.Equal(t, []string{"#EXTINF:-1,Channel One"}, p.Entries[0].Directives)
}

func TestRewriteConvertsUpstreamPreservesExternal(t *testing.T) {
	p, err := m3u.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	rewritten := p.Rewrite(func(u string) (string, bool) {
		if strings.HasPrefix(u, "rtp://") {
			return "http://gateway.local/rtp/" + strings.TrimPrefix(u, "rtp://"), true
		}
		return "", false
	})

	require.Equal(t, "http://gateway.local/rtp/239.253.64.120:5140", rewritten.Entries[0].URL)
	require.Equal(t, "http://cdn.example.com/live/ch2.m3u8", rewritten.Entries[1].URL)
}

func TestRoundTripPreservesChannelSet(t *testing.T) {
	p, err := m3u.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	rewritten := p.Rewrite(func(u string) (string, bool) {
		if strings.HasPrefix(u, "rtp://") {
			return "http://gateway.local/rtp/" + strings.TrimPrefix(u, "rtp://"), true
		}
		return "", false
	})

	reparsed, err := m3u.Parse(strings.NewReader(rewritten.String()))
	require.NoError(t, err)

	require.Len(t, reparsed.Entries, len(p.Entries))
	for i := range p.Entries {
		require.Equal(t, p.Entries[i].Directives, reparsed.Entries[i].Directives)
	}
	require.Equal(t, "http://gateway.local/rtp/239.253.64.120:5140", reparsed.Entries[0].URL)
	require.Equal(t, "http://cdn.example.com/live/ch2.m3u8", reparsed.Entries[1].URL)
}
