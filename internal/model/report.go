package model

import (
	"net/netip"
	"time"
)

// ProxyReport is the per-proxy entry of a full report.
type ProxyReport struct {
	ProxyID          string
	IP               netip.Addr
	Geo              *GeoInfo
	TotalConnections int
	Connections      []AttributedConnection
	Stats            ProxyStats
}

// Report is the full monitoring report. Proxies follows registry order and
// holds exactly one entry per registered proxy.
type Report struct {
	ID        string
	Timestamp time.Time
	Proxies   []ProxyReport
	Summary   map[string]ProxyStats
}

// ConnectionsSnapshot is the attributed connection list of one poll.
type ConnectionsSnapshot struct {
	Timestamp   time.Time
	Count       int
	Connections []AttributedConnection
}

// HealthReport is the fleet health view.
type HealthReport struct {
	ID             string
	Timestamp      time.Time
	Proxies        []HealthVerdict
	OverallStatus  HealthStatus
	HealthyCount   int
	DegradedCount  int
	UnhealthyCount int
	Thresholds     Thresholds
}
