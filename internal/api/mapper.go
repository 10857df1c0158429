package api

import (
	"net/netip"
	"time"

	"github.com/August26/proxymon/internal/model"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FromConnection converts one attributed connection.
func FromConnection(c model.AttributedConnection) ConnectionView {
	return ConnectionView{
		ProxyServer:    c.ProxyID,
		LocalAddress:   unmapped(c.Local),
		RemoteAddress:  unmapped(c.Remote),
		Status:         string(c.State),
		TargetRelevant: c.TargetRelevant,
		RTT:            c.RTTMs,
		PID:            c.PID,
		ProcessName:    c.ProcessName,
		CreatedAt:      formatTime(c.ObservedAt),
	}
}

// FromConnections always returns a non-nil slice so empty lists encode as [].
func FromConnections(cs []model.AttributedConnection) []ConnectionView {
	out := make([]ConnectionView, 0, len(cs))
	for _, c := range cs {
		out = append(out, FromConnection(c))
	}
	return out
}

func FromStats(s model.ProxyStats) StatsView {
	return StatsView{
		ProxyServer:      s.ProxyID,
		ConnectionCount:  s.ConnectionCount,
		EstablishedCount: s.EstablishedCount,
		SynSentCount:     s.SynSentCount,
		TimeWaitCount:    s.TimeWaitCount,
		AverageRTT:       s.AverageRTTMs,
		MaxRTT:           s.MaxRTTMs,
		MinRTT:           s.MinRTTMs,
		UpdatedAt:        formatTime(s.ComputedAt),
	}
}

func FromProxyReport(p model.ProxyReport) ProxyReportView {
	v := ProxyReportView{
		ProxyServer:       p.ProxyID,
		IPAddress:         p.IP.String(),
		TotalConnections:  p.TotalConnections,
		ConnectionDetails: FromConnections(p.Connections),
		Stats:             FromStats(p.Stats),
	}
	if p.Geo != nil {
		v.Geo = &GeoView{Country: p.Geo.Country, City: p.Geo.City, ISP: p.Geo.ISP, ASN: p.Geo.ASN}
	}
	return v
}

// FromReport converts the full report.
func FromReport(r model.Report) ReportResponse {
	resp := ReportResponse{
		ReportID:     r.ID,
		Timestamp:    formatTime(r.Timestamp),
		ProxyServers: make([]ProxyReportView, 0, len(r.Proxies)),
		Summary:      make(map[string]StatsView, len(r.Summary)),
	}
	for _, p := range r.Proxies {
		resp.ProxyServers = append(resp.ProxyServers, FromProxyReport(p))
	}
	for id, s := range r.Summary {
		resp.Summary[id] = FromStats(s)
	}
	return resp
}

func FromSnapshot(s model.ConnectionsSnapshot) ConnectionsResponse {
	return ConnectionsResponse{
		Timestamp:        formatTime(s.Timestamp),
		ConnectionsCount: s.Count,
		Connections:      FromConnections(s.Connections),
	}
}

func FromVerdict(v model.HealthVerdict) HealthView {
	return HealthView{
		ProxyServer:      v.ProxyID,
		IPAddress:        v.IP.String(),
		Status:           string(v.Status),
		RTT:              v.RTTMs,
		RTTStatus:        string(v.RTTStatus),
		ConnectionCount:  v.ConnectionCount,
		ConnectionStatus: string(v.ConnectionStatus),
		LastChecked:      formatTime(v.EvaluatedAt),
		HealthScore:      v.HealthScore,
		Details: HealthDetails{
			Status:              string(v.Status),
			Message:             v.Message,
			RTTThreshold:        v.Thresholds.RTTMs,
			ConnectionThreshold: v.Thresholds.Connections,
		},
	}
}

func FromHealthReport(r model.HealthReport) HealthResponse {
	resp := HealthResponse{
		ReportID:       r.ID,
		Timestamp:      formatTime(r.Timestamp),
		Proxies:        make([]HealthView, 0, len(r.Proxies)),
		OverallStatus:  string(r.OverallStatus),
		UnhealthyCount: r.UnhealthyCount,
		DegradedCount:  r.DegradedCount,
		HealthyCount:   r.HealthyCount,
	}
	for _, v := range r.Proxies {
		resp.Proxies = append(resp.Proxies, FromVerdict(v))
	}
	return resp
}

// unmapped renders IPv4-mapped IPv6 endpoints in their IPv4 form.
func unmapped(ap netip.AddrPort) string {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String()
}
