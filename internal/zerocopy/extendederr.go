package zerocopy

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// parseSockExtendedErr reinterprets a SOL_IP/IP_RECVERR (or SOL_IPV6)
// ancillary message's data as unix.SockExtendedErr, the same struct the
// kernel fills in for both ICMP error reporting and MSG_ZEROCOPY completion
// notifications (distinguished by Origin == SO_EE_ORIGIN_ZEROCOPY).
func parseSockExtendedErr(data []byte) (*unix.SockExtendedErr, error) {
	if len(data) < int(unsafe.Sizeof(unix.SockExtendedErr{})) {
		return nil, fmt.Errorf("short SockExtendedErr: %d bytes", len(data))
	}
	return (*unix.SockExtendedErr)(unsafe.Pointer(&data[0])), nil
}
