package ingress

import (
	"fmt"
	"net"

	"github.com/stackia/rtp2httpd/internal/rerror"
)

// OpenUnicast binds a UDP socket for an FCC burst or FEC parity stream.
// When loPort/hiPort are both zero an ephemeral port is used (spec §4.2:
// "from fcc-listen-port-range if set, else ephemeral"); otherwise the
// first free port in [loPort, hiPort] is bound, needed when the gateway
// sits behind a NAT that only forwards a fixed range to the telecom FCC
// variant.
func OpenUnicast(loPort, hiPort int) (*net.UDPConn, error) {
	if loPort == 0 && hiPort == 0 {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, rerror.Wrap(rerror.CodeBindFailed, "ingress: ephemeral unicast bind failed", err)
		}
		return conn, nil
	}

	var lastErr error
	for port := loPort; port <= hiPort; port++ {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, rerror.Wrap(rerror.CodeBindFailed, fmt.Sprintf("ingress: no free port in range %d-%d", loPort, hiPort), lastErr)
}
