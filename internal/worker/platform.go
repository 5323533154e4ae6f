package worker

import (
	"os"

	"golang.org/x/sys/unix"
)

func osGetpid() int { return os.Getpid() }

// probeZeroCopy attempts SO_ZEROCOPY on a throwaway socket once per worker
// startup, the capability check sender.go's NewSender doc comment calls
// for ("SO_ZEROCOPY setup can itself fail on older kernels"). Workers on
// kernels/NICs lacking zero-copy support still function, falling back to
// ordinary copying sends for every client.
func probeZeroCopy() bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1) == nil
}
