// Package health turns aggregated proxy stats into a health verdict.
package health

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/August26/proxymon/internal/model"
)

const (
	DefaultRTTThresholdMs      = 500.0
	DefaultConnectionThreshold = 100
)

// Scores reported for each status.
const (
	ScoreHealthy   = 90
	ScoreDegraded  = 60
	ScoreUnhealthy = 30
)

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() model.Thresholds {
	return model.Thresholds{
		RTTMs:       DefaultRTTThresholdMs,
		Connections: DefaultConnectionThreshold,
	}
}

// Fill returns th with every non-positive field taken from def, so callers
// can override one threshold and keep the other.
func Fill(th, def model.Thresholds) model.Thresholds {
	if th.RTTMs <= 0 {
		th.RTTMs = def.RTTMs
	}
	if th.Connections <= 0 {
		th.Connections = def.Connections
	}
	return th
}

// Evaluate derives the verdict for one proxy. It is stateless: the same
// inputs always produce the same verdict.
//
// Degraded is checked before unhealthy, so a proxy with an unmeasurable RTT
// but a high connection count is degraded, not unhealthy.
func Evaluate(stats model.ProxyStats, ip netip.Addr, th model.Thresholds, now time.Time) model.HealthVerdict {
	rtt := RTTStatusOf(stats.AverageRTTMs, th.RTTMs)
	conns := ConnectionStatusOf(stats.ConnectionCount, th.Connections)

	var (
		status model.HealthStatus
		score  int
	)
	switch {
	case rtt == model.RTTPoor || conns == model.ConnectionsHigh:
		status, score = model.Degraded, ScoreDegraded
	case rtt == model.RTTUnknown:
		status, score = model.Unhealthy, ScoreUnhealthy
	default:
		status, score = model.Healthy, ScoreHealthy
	}

	return model.HealthVerdict{
		ProxyID:          stats.ProxyID,
		IP:               ip,
		Status:           status,
		RTTMs:            stats.AverageRTTMs,
		RTTStatus:        rtt,
		ConnectionCount:  stats.ConnectionCount,
		ConnectionStatus: conns,
		HealthScore:      score,
		Message:          Message(stats.AverageRTTMs, stats.ConnectionCount),
		Thresholds:       th,
		EvaluatedAt:      now,
	}
}

func RTTStatusOf(avg *float64, threshold float64) model.RTTStatus {
	switch {
	case avg == nil:
		return model.RTTUnknown
	case *avg >= threshold:
		return model.RTTPoor
	default:
		return model.RTTGood
	}
}

func ConnectionStatusOf(count, threshold int) model.ConnectionStatus {
	if count >= threshold {
		return model.ConnectionsHigh
	}
	return model.ConnectionsNormal
}

// Message renders the verdict summary, e.g. "RTT: 12.5ms, Connections: 3".
func Message(avg *float64, connections int) string {
	rtt := "unknown"
	if avg != nil {
		rtt = formatMs(*avg) + "ms"
	}
	return fmt.Sprintf("RTT: %s, Connections: %d", rtt, connections)
}

// formatMs renders v with the shortest exact digits and always a fractional
// part, so whole values read "600.0".
func formatMs(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') && !math.IsInf(v, 0) && !math.IsNaN(v) {
		s += ".0"
	}
	return s
}

// Overall rolls verdicts up into a fleet status: unhealthy if any proxy is
// unhealthy, else degraded if any is degraded, else healthy.
func Overall(verdicts []model.HealthVerdict) (status model.HealthStatus, healthy, degraded, unhealthy int) {
	for _, v := range verdicts {
		switch v.Status {
		case model.Healthy:
			healthy++
		case model.Degraded:
			degraded++
		case model.Unhealthy:
			unhealthy++
		}
	}
	switch {
	case unhealthy > 0:
		status = model.Unhealthy
	case degraded > 0:
		status = model.Degraded
	default:
		status = model.Healthy
	}
	return status, healthy, degraded, unhealthy
}
