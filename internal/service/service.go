// Package service holds the immutable upstream specification of spec §3
// Service: a named upstream reachable either as multicast RTP (optionally
// FCC-accelerated), raw multicast UDP, or RTSP. Services are constructed
// once (from config or inferred from a udpxy-compatible request path) and
// never mutated afterwards, so they may be shared by reference across
// clients and workers without synchronization.
package service

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Kind distinguishes the three upstream shapes spec §3 describes.
type Kind uint8

const (
	KindMulticastRTP Kind = iota
	KindMulticastUDP
	KindRTSP
)

// FCCVariant selects the wire-format family of spec §4.2.
type FCCVariant uint8

const (
	FCCUnset FCCVariant = iota
	FCCTelecom
	FCCHuawei
)

func (v FCCVariant) String() string {
	switch v {
	case FCCTelecom:
		return "telecom"
	case FCCHuawei:
		return "huawei"
	default:
		return "unset"
	}
}

// Well-known server port ranges used to infer the FCC variant when
// fcc-type is not specified (spec §4.2: "inferred from the server port").
const (
	telecomFCCPortLo = 15970
	telecomFCCPortHi = 15979
	huaweiFCCPortLo  = 6000
	huaweiFCCPortHi  = 6009
)

// InferFCCVariant applies spec §4.2's port-based inference, defaulting to
// telecom when the port doesn't match either known range.
func InferFCCVariant(port int) FCCVariant {
	if port >= huaweiFCCPortLo && port <= huaweiFCCPortHi {
		return FCCHuawei
	}
	return FCCTelecom
}

// Service is the immutable upstream specification of spec §3.
type Service struct {
	Name string
	Kind Kind

	// Multicast (KindMulticastRTP, KindMulticastUDP)
	MulticastAddr net.IP
	MulticastPort int
	FECPort       int // 0 = disabled

	FCCServer  *net.UDPAddr // nil = FCC disabled for this service
	FCCVariant FCCVariant

	// RTSP (KindRTSP)
	RTSPURL *url.URL

	// Interfaces (spec §4.6: "separate interfaces may be named for unicast
	// and multicast paths")
	MulticastInterface string
	UnicastInterface   string
}

// ParseMulticastTarget parses the "<addr>:<port>" shape used by the
// /rtp/ and /udp/ udpxy-compatible routes (spec §6.1).
func ParseMulticastTarget(s string) (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return nil, 0, fmt.Errorf("service: invalid multicast target %q: %w", s, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("service: invalid multicast address %q", host)
	}
	if !ip.IsMulticast() {
		return nil, 0, fmt.Errorf("service: %q is not a multicast address", host)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, 0, fmt.Errorf("service: invalid port %q", portStr)
	}

	return ip, port, nil
}

// NewMulticastRTP builds an RTP-over-multicast service, optionally with FCC
// acceleration when fccServer is non-empty.
func NewMulticastRTP(name string, addr net.IP, port int, fccServer string, variant FCCVariant, fecPort int) (*Service, error) {
	s := &Service{
		Name:          name,
		Kind:          KindMulticastRTP,
		MulticastAddr: addr,
		MulticastPort: port,
		FECPort:       fecPort,
		FCCVariant:    variant,
	}

	if fccServer != "" {
		a, err := net.ResolveUDPAddr("udp4", fccServer)
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid fcc server %q: %w", name, fccServer, err)
		}
		s.FCCServer = a
		if variant == FCCUnset {
			s.FCCVariant = InferFCCVariant(a.Port)
		}
	}

	return s, nil
}

// NewMulticastUDP builds a raw multicast UDP service (the /udp/ route,
// spec §6.1), which never uses FCC or RTP sequencing.
func NewMulticastUDP(name string, addr net.IP, port int) *Service {
	return &Service{Name: name, Kind: KindMulticastUDP, MulticastAddr: addr, MulticastPort: port}
}

// NewRTSP builds an RTSP service from its upstream URL.
func NewRTSP(name string, u *url.URL) *Service {
	return &Service{Name: name, Kind: KindRTSP, RTSPURL: u}
}

// UsesFCC reports whether this service should drive the FCC state machine
// on client join.
func (s *Service) UsesFCC() bool {
	return s.Kind == KindMulticastRTP && s.FCCServer != nil
}
