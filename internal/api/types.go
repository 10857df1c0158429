package api

import "time"

// Public JSON types returned by the API. Field names follow the payloads the
// monitor has always served so existing consumers keep working.

// IndexResponse is the payload for GET /.
type IndexResponse struct {
	Message   string   `json:"message"`
	Endpoints []string `json:"endpoints"`
}

// ConnectionView is one attributed TCP connection.
type ConnectionView struct {
	ProxyServer    string   `json:"proxy_server"`
	LocalAddress   string   `json:"local_address"`
	RemoteAddress  string   `json:"remote_address"`
	Status         string   `json:"status"`
	TargetRelevant bool     `json:"target_relevant"`
	RTT            *float64 `json:"rtt"` // ms; null when not probed or the probe failed
	PID            *int     `json:"pid"`
	ProcessName    *string  `json:"process_name"`
	CreatedAt      string   `json:"created_at"`
}

// StatsView is the aggregated view of one proxy.
type StatsView struct {
	ProxyServer      string   `json:"proxy_server"`
	ConnectionCount  int      `json:"connection_count"`
	EstablishedCount int      `json:"established_count"`
	SynSentCount     int      `json:"syn_sent_count"`
	TimeWaitCount    int      `json:"time_wait_count"`
	AverageRTT       *float64 `json:"average_rtt"`
	MaxRTT           *float64 `json:"max_rtt"`
	MinRTT           *float64 `json:"min_rtt"`
	UpdatedAt        string   `json:"updated_at"`
}

type GeoView struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	ISP     string `json:"isp,omitempty"`
	ASN     uint   `json:"asn,omitempty"`
}

// ProxyReportView is one proxy's entry in the full report.
type ProxyReportView struct {
	ProxyServer       string           `json:"proxy_server"`
	IPAddress         string           `json:"ip_address"`
	Geo               *GeoView         `json:"geo,omitempty"`
	TotalConnections  int              `json:"total_connections"`
	ConnectionDetails []ConnectionView `json:"connection_details"`
	Stats             StatsView        `json:"stats"`
}

// ReportResponse is the payload for GET /api/tcp/stats.
type ReportResponse struct {
	ReportID     string               `json:"report_id"`
	Timestamp    string               `json:"timestamp"`
	ProxyServers []ProxyReportView    `json:"proxy_servers"`
	Summary      map[string]StatsView `json:"summary"`
}

// ConnectionsResponse is the payload for GET /api/tcp/connections.
type ConnectionsResponse struct {
	Timestamp        string           `json:"timestamp"`
	ConnectionsCount int              `json:"connections_count"`
	Connections      []ConnectionView `json:"connections"`
}

type HealthDetails struct {
	Status              string  `json:"status"`
	Message             string  `json:"message"`
	RTTThreshold        float64 `json:"rtt_threshold"`
	ConnectionThreshold int     `json:"connection_threshold"`
}

// HealthView is the verdict for one proxy.
type HealthView struct {
	ProxyServer      string        `json:"proxy_server"`
	IPAddress        string        `json:"ip_address"`
	Status           string        `json:"status"`
	RTT              *float64      `json:"rtt"`
	RTTStatus        string        `json:"rtt_status"`
	ConnectionCount  int           `json:"connection_count"`
	ConnectionStatus string        `json:"connection_status"`
	LastChecked      string        `json:"last_checked"`
	HealthScore      int           `json:"health_score"`
	Details          HealthDetails `json:"details"`
}

// HealthResponse is the payload for GET /api/proxy/health.
type HealthResponse struct {
	ReportID       string       `json:"report_id"`
	Timestamp      string       `json:"timestamp"`
	Proxies        []HealthView `json:"proxies"`
	OverallStatus  string       `json:"overall_status"`
	UnhealthyCount int          `json:"unhealthy_count"`
	DegradedCount  int          `json:"degraded_count"`
	HealthyCount   int          `json:"healthy_count"`
}

// APIError is a standard error payload.
type APIError struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// TimeNow abstracts time for tests; overridden in tests.
var TimeNow = func() time.Time { return time.Now() }
