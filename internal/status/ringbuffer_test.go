package status_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackia/rtp2httpd/internal/status"
)

func TestRingBufferBeforeWrap(t *testing.T) {
	r := status.NewRingBuffer(4)
	r.Push("a")
	r.Push("b")
	require.Equal(t, []string{"a", "b"}, r.Snapshot())
}

func TestRingBufferWrapsInOrder(t *testing.T) {
	r := status.NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.Push(fmt.Sprintf("line-%d", i))
	}
	require.Equal(t, []string{"line-2", "line-3", "line-4"}, r.Snapshot())
}
