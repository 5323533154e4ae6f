package rtsp_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/rtsp"
)

func TestExtractTZOffset(t *testing.T) {
	require.Equal(t, 8*time.Hour, rtsp.ExtractTZOffset("Player/1.0 TZ/UTC+8"))
	require.Equal(t, -5*time.Hour, rtsp.ExtractTZOffset("Player/1.0 TZ/UTC-5"))
	require.Equal(t, time.Duration(0), rtsp.ExtractTZOffset("Player/1.0"))
}

func TestRewriteRangeShiftsDateLiterals(t *testing.T) {
	// Spec §8 scenario 5.
	out, err := rtsp.RewriteRange("20240101120000-20240101130000", "Player/1.0 TZ/UTC+8")
	require.NoError(t, err)
	require.Equal(t, "20240101040000-20240101050000", out)
}

func TestRewriteRangePassesThroughEpoch(t *testing.T) {
	out, err := rtsp.RewriteRange("1704110400-1704114000", "Player/1.0 TZ/UTC+8")
	require.NoError(t, err)
	require.Equal(t, "1704110400-1704114000", out)
}

func TestRewriteRangeOpenEnded(t *testing.T) {
	out, err := rtsp.RewriteRange("20240101120000-", "Player/1.0 TZ/UTC+8")
	require.NoError(t, err)
	require.Equal(t, "20240101040000-", out)
}

func TestRewriteRangeRejectsMalformedLiteral(t *testing.T) {
	_, err := rtsp.RewriteRange("not-a-date", "Player/1.0")
	require.Error(t, err)
}

func TestResolvePrefersExplicitParam(t *testing.T) {
	q := url.Values{"playseek": {"20240101120000-20240101130000"}}
	out, present, err := rtsp.Resolve(q, "playseek", 0, "Player/1.0 TZ/UTC+8", time.Now())
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, "20240101040000-20240101050000", out)
}

func TestResolveFallsBackToOffset(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out, present, err := rtsp.Resolve(url.Values{}, "playseek", 600, "Player/1.0", now)
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, "1704109800-", out)
}

func TestResolveAbsentWhenNeitherSet(t *testing.T) {
	_, present, err := rtsp.Resolve(url.Values{}, "playseek", 0, "Player/1.0", time.Now())
	require.NoError(t, err)
	require.False(t, present)
}
