package model

import (
	"net/netip"
	"time"
)

// LatencySample is one successful probe measurement.
type LatencySample struct {
	At    time.Time
	RTTMs float64
}

// ProxyStats is recomputed on every report. Latency fields are nil when the
// proxy has no samples in its history.
type ProxyStats struct {
	ProxyID          string
	ConnectionCount  int
	EstablishedCount int
	SynSentCount     int
	TimeWaitCount    int
	AverageRTTMs     *float64
	MaxRTTMs         *float64
	MinRTTMs         *float64
	ComputedAt       time.Time
}

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

type RTTStatus string

const (
	RTTGood    RTTStatus = "good"
	RTTPoor    RTTStatus = "poor"
	RTTUnknown RTTStatus = "unknown"
)

type ConnectionStatus string

const (
	ConnectionsNormal ConnectionStatus = "normal"
	ConnectionsHigh   ConnectionStatus = "high"
)

// Thresholds are the limits a verdict was evaluated against.
type Thresholds struct {
	RTTMs       float64 // average RTT at or above this is "poor"
	Connections int     // connection count at or above this is "high"
}

// HealthVerdict is the derived health of one proxy.
type HealthVerdict struct {
	ProxyID          string
	IP               netip.Addr
	Status           HealthStatus
	RTTMs            *float64 // average RTT the verdict was based on
	RTTStatus        RTTStatus
	ConnectionCount  int
	ConnectionStatus ConnectionStatus
	HealthScore      int
	Message          string
	Thresholds       Thresholds
	EvaluatedAt      time.Time
}
