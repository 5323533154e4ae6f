package ingress_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/ingress"
)

func TestAccumulatorStartsAtFirstIDR(t *testing.T) {
	sawIDR := false
	a := ingress.NewAccumulator(func(payload []byte) bool {
		return string(payload) == "IDR"
	})

	a.Feed([]byte("junk"))
	require.False(t, a.Completed)

	a.Feed([]byte("IDR"))
	sawIDR = true
	require.True(t, sawIDR)

	for i := 1; i < ingress.SnapshotFrames; i++ {
		a.Feed([]byte("x"))
	}
	require.True(t, a.Completed)
	require.Contains(t, string(a.Bytes()), "IDR")
}

func TestDecodeJPEGSurfacesCommandFailure(t *testing.T) {
	_, err := ingress.DecodeJPEG(context.Background(), "/bin/false", "", []byte("frames"), nil)
	require.Error(t, err)
}

func TestDecodeJPEGReturnsStdout(t *testing.T) {
	out, err := ingress.DecodeJPEG(context.Background(), "/bin/cat", "", []byte("jpeg-bytes"), nil)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(out))
}
