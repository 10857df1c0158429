// Package report assembles per-proxy stats and verdicts into the report
// shapes served to callers.
package report

import (
	"time"

	"github.com/August26/proxymon/internal/health"
	"github.com/August26/proxymon/internal/model"
)

// BuildFull assembles the full report. Every proxy gets an entry, in registry
// order, even with no connections; a missing stats entry is replaced by a
// zero-valued stub.
func BuildFull(
	id string,
	proxies []model.ProxyIdentity,
	conns []model.AttributedConnection,
	stats map[string]model.ProxyStats,
	now time.Time,
) model.Report {
	byProxy := make(map[string][]model.AttributedConnection, len(proxies))
	for _, c := range conns {
		byProxy[c.ProxyID] = append(byProxy[c.ProxyID], c)
	}

	rep := model.Report{
		ID:        id,
		Timestamp: now,
		Proxies:   make([]model.ProxyReport, 0, len(proxies)),
		Summary:   make(map[string]model.ProxyStats, len(proxies)),
	}
	for _, p := range proxies {
		st, ok := stats[p.ID]
		if !ok {
			st = model.ProxyStats{ProxyID: p.ID, ComputedAt: now}
		}
		pc := byProxy[p.ID]
		rep.Proxies = append(rep.Proxies, model.ProxyReport{
			ProxyID:          p.ID,
			IP:               p.IP,
			Geo:              p.Geo,
			TotalConnections: len(pc),
			Connections:      pc,
			Stats:            st,
		})
		rep.Summary[p.ID] = st
	}
	return rep
}

// BuildHealth evaluates every proxy against th and rolls the verdicts up.
func BuildHealth(
	id string,
	proxies []model.ProxyIdentity,
	stats map[string]model.ProxyStats,
	th model.Thresholds,
	now time.Time,
) model.HealthReport {
	verdicts := make([]model.HealthVerdict, 0, len(proxies))
	for _, p := range proxies {
		st, ok := stats[p.ID]
		if !ok {
			st = model.ProxyStats{ProxyID: p.ID, ComputedAt: now}
		}
		verdicts = append(verdicts, health.Evaluate(st, p.IP, th, now))
	}

	overall, h, d, u := health.Overall(verdicts)
	return model.HealthReport{
		ID:             id,
		Timestamp:      now,
		Proxies:        verdicts,
		OverallStatus:  overall,
		HealthyCount:   h,
		DegradedCount:  d,
		UnhealthyCount: u,
		Thresholds:     th,
	}
}

// FindProxy returns the entry for proxyID in rep.
func FindProxy(rep model.Report, proxyID string) (model.ProxyReport, bool) {
	for _, p := range rep.Proxies {
		if p.ProxyID == proxyID {
			return p, true
		}
	}
	return model.ProxyReport{}, false
}

// FindVerdict returns the verdict for proxyID in rep.
func FindVerdict(rep model.HealthReport, proxyID string) (model.HealthVerdict, bool) {
	for _, v := range rep.Proxies {
		if v.ProxyID == proxyID {
			return v, true
		}
	}
	return model.HealthVerdict{}, false
}
