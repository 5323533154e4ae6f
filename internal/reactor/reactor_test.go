package reactor_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/reactor"
)

func TestDispatchesReadableEvent(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	fired := false
	_, err = r.Register(int(rf.Fd()), unix.EPOLLIN, func(events uint32) {
		fired = true
	})
	require.NoError(t, err)

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	n, err := r.RunOnce(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, fired)
}

func TestTimerCapsWaitAndFires(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	fired := false
	r.Timers().Schedule(time.Now().Add(5*time.Millisecond), func(time.Time) { fired = true })
	// A later timer caps the wait that follows the firing; with no timer
	// left and nothing registered, the wait would have no timeout.
	r.Timers().Schedule(time.Now().Add(20*time.Millisecond), func(time.Time) {})

	time.Sleep(10 * time.Millisecond)
	_, err = r.RunOnce(time.Now())
	require.NoError(t, err)
	require.True(t, fired)
}

func TestUnregisterStopsDispatch(t *testing.T) {
	r, err := reactor.New()
	require.NoError(t, err)
	defer r.Close()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	calls := 0
	tag, err := r.Register(int(rf.Fd()), unix.EPOLLIN, func(events uint32) { calls++ })
	require.NoError(t, err)
	require.NoError(t, r.Unregister(int(rf.Fd()), tag))

	r.Timers().Schedule(time.Now().Add(5*time.Millisecond), func(time.Time) {})
	wf.Write([]byte("x"))
	r.RunOnce(time.Now())
	require.Equal(t, 0, calls)
}
