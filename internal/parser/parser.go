// Package parser decodes kernel socket table fields into monitor types.
package parser

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/August26/proxymon/internal/model"
)

// Kernel TCP state codes as printed in /proc/net/tcp{,6}.
const (
	StateEstablished = 0x01
	StateSynSent     = 0x02
	StateTimeWait    = 0x06
	StateListen      = 0x0A
)

// ConnState maps the kernel state code to the states tracked in stats.
func ConnState(st uint64) model.ConnState {
	switch st {
	case StateEstablished:
		return model.ConnEstablished
	case StateSynSent:
		return model.ConnSynSent
	case StateTimeWait:
		return model.ConnTimeWait
	default:
		return model.ConnOther
	}
}

// AddrPort converts a decoded table address. ok is false for an address of
// the wrong length or a port outside 16 bits.
func AddrPort(ip net.IP, port uint64) (netip.AddrPort, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok || port > 0xFFFF {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(addr, uint16(port)), true
}

// SocketInode extracts the inode from a "socket:[12345]" fd link.
func SocketInode(link string) (uint64, bool) {
	rest, ok := strings.CutPrefix(link, "socket:[")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "]")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
