package model

import (
	"net/netip"
	"time"
)

// ProxyIdentity is a registered proxy: a stable id and the source IP its
// outbound connections originate from.
type ProxyIdentity struct {
	ID  string
	IP  netip.Addr
	Geo *GeoInfo // nil unless a GeoIP database is configured and has a record
}

// ConnState is the TCP state of an observed connection. States other than
// the three broken out in stats are folded into ConnOther.
type ConnState string

const (
	ConnEstablished ConnState = "ESTABLISHED"
	ConnSynSent     ConnState = "SYN_SENT"
	ConnTimeWait    ConnState = "TIME_WAIT"
	ConnOther       ConnState = "OTHER"
)

// RawConnection is one row of a connection table snapshot as supplied by a
// connection source. It is not retained between polls.
type RawConnection struct {
	Local       netip.AddrPort
	Remote      netip.AddrPort
	State       ConnState
	PID         *int    // nil when the owner is unknown
	ProcessName *string // nil when the owner is unknown
}

// AttributedConnection is a RawConnection that belongs to a registered proxy.
type AttributedConnection struct {
	RawConnection
	ProxyID        string
	TargetRelevant bool     // remote address equals the monitored target
	RTTMs          *float64 // set only for target-relevant connections with a successful probe
	ObservedAt     time.Time
}
