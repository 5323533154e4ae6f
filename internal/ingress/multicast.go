// Package ingress implements spec §4.6: multicast/unicast upstream
// sockets with periodic IGMP rejoin, bounded per-tick draining, RTP
// sequencing, FEC recovery, and snapshot extraction.
//
// Grounded on room732-gortp's TransportMulticast
// (other_examples/.../transportMCast.go.go): SO_REUSEADDR control
// callback plus golang.org/x/net/ipv4's PacketConn.JoinGroup, re-expressed
// as a non-blocking socket the reactor polls directly instead of a
// dedicated read goroutine, per spec §4.1/§5's single-threaded model.
package ingress

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"

	"github.com/stackia/rtp2httpd/internal/rerror"
)

// MulticastSocket is one joined multicast group, bound for non-blocking
// reads from the reactor.
type MulticastSocket struct {
	conn   *net.UDPConn
	fd     int
	group  *net.UDPAddr
	iface  *net.Interface
	v4     *ipv4.PacketConn
	v6     *ipv6.PacketConn
}

func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	if err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return ctrlErr
}

// OpenMulticast binds port on all interfaces (for SO_REUSEADDR sharing
// across workers, spec §5: "multiple worker processes... may share the
// listening socket via OS-level load balancing") and joins group, using
// ifaceName when set (spec §4.6: "separate interfaces may be named for
// unicast and multicast paths").
func OpenMulticast(group net.IP, port int, ifaceName string) (*MulticastSocket, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}

	network := "udp4"
	if group.To4() == nil {
		network = "udp6"
	}

	pktConn, err := lc.ListenPacket(context.Background(), network, fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, rerror.Wrap(rerror.CodeBindFailed, "ingress: multicast listen failed", err)
	}
	udpConn := pktConn.(*net.UDPConn)

	var ifi *net.Interface
	if ifaceName != "" {
		ifi, err = net.InterfaceByName(ifaceName)
		if err != nil {
			udpConn.Close()
			return nil, rerror.Wrap(rerror.CodeMulticastJoin, "ingress: interface lookup failed", err)
		}
	}

	m := &MulticastSocket{conn: udpConn, group: &net.UDPAddr{IP: group, Port: port}, iface: ifi}

	if network == "udp4" {
		m.v4 = ipv4.NewPacketConn(udpConn)
		if err := m.v4.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			udpConn.Close()
			return nil, rerror.Wrap(rerror.CodeMulticastJoin, "ingress: IGMP join failed", err)
		}
		_ = m.v4.SetMulticastLoopback(false)
	} else {
		m.v6 = ipv6.NewPacketConn(udpConn)
		if err := m.v6.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			udpConn.Close()
			return nil, rerror.Wrap(rerror.CodeMulticastJoin, "ingress: MLD join failed", err)
		}
	}

	raw, err := udpConn.SyscallConn()
	if err != nil {
		udpConn.Close()
		return nil, rerror.Wrap(rerror.CodeBindFailed, "ingress: SyscallConn failed", err)
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		udpConn.Close()
		return nil, rerror.Wrap(rerror.CodeBindFailed, "ingress: fd extraction failed", err)
	}
	m.fd = fd

	return m, nil
}

// Rejoin re-issues the IGMP/MLD join, defeating switch-level IGMP
// snooping timeouts (spec §4.6: "a periodic rejoin timer... re-issues the
// IGMP join"). Per spec §8's idempotence invariant, re-joining an already
// joined group is a no-op at the kernel level and causes no stream
// interruption.
func (m *MulticastSocket) Rejoin() error {
	if m.v4 != nil {
		if err := m.v4.JoinGroup(m.iface, &net.UDPAddr{IP: m.group.IP}); err != nil {
			return rerror.Wrap(rerror.CodeMulticastJoin, "ingress: IGMP rejoin failed", err)
		}
		return nil
	}
	if err := m.v6.JoinGroup(m.iface, &net.UDPAddr{IP: m.group.IP}); err != nil {
		return rerror.Wrap(rerror.CodeMulticastJoin, "ingress: MLD rejoin failed", err)
	}
	return nil
}

// Fd is the raw file descriptor, for reactor registration.
func (m *MulticastSocket) Fd() int { return m.fd }

// UDPConn exposes the underlying connection for ReadFrom-style reads.
func (m *MulticastSocket) UDPConn() *net.UDPConn { return m.conn }

func (m *MulticastSocket) Close() error {
	if m.v4 != nil {
		_ = m.v4.LeaveGroup(m.iface, &net.UDPAddr{IP: m.group.IP})
	}
	if m.v6 != nil {
		_ = m.v6.LeaveGroup(m.iface, &net.UDPAddr{IP: m.group.IP})
	}
	return m.conn.Close()
}
