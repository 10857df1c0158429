package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/August26/proxymon/internal/model"
)

func ptr(v float64) *float64 { return &v }

func sample() (model.Report, model.HealthReport) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := model.ProxyStats{ProxyID: "proxy-1", ConnectionCount: 2, EstablishedCount: 2, AverageRTTMs: ptr(12.5), MinRTTMs: ptr(10), MaxRTTMs: ptr(15), ComputedAt: now}
	b := model.ProxyStats{ProxyID: "proxy-2", ComputedAt: now}
	rep := model.Report{
		ID:        "r1",
		Timestamp: now,
		Proxies: []model.ProxyReport{
			{ProxyID: "proxy-1", IP: netip.MustParseAddr("10.0.0.1"), Geo: &model.GeoInfo{Country: "NL"}, TotalConnections: 2, Stats: a},
			{ProxyID: "proxy-2", IP: netip.MustParseAddr("10.0.0.2"), Stats: b},
		},
		Summary: map[string]model.ProxyStats{"proxy-1": a, "proxy-2": b},
	}
	health := model.HealthReport{
		ID:        "r1",
		Timestamp: now,
		Proxies: []model.HealthVerdict{
			{ProxyID: "proxy-1", Status: model.Healthy, HealthScore: 90, Message: "RTT: 12.5ms, Connections: 2"},
			{ProxyID: "proxy-2", Status: model.Unhealthy, HealthScore: 30, Message: "RTT: unknown, Connections: 0"},
		},
		OverallStatus:  model.Unhealthy,
		HealthyCount:   1,
		UnhealthyCount: 1,
		Thresholds:     model.Thresholds{RTTMs: 500, Connections: 100},
	}
	return rep, health
}

func TestPrintReportTable(t *testing.T) {
	rep, health := sample()
	var buf bytes.Buffer
	PrintReportTable(&buf, rep, health)
	PrintSummary(&buf, health)

	out := buf.String()
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "PROXY") {
		t.Fatalf("missing header: %q", lines[0])
	}
	for _, want := range []string{"proxy-1", "NL", "12.50", "healthy", "proxy-2", "unhealthy", "Overall status:           unhealthy"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteFileJSON(t *testing.T) {
	rep, health := sample()
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteFile(path, "json", rep, health); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload struct {
		Report struct {
			ReportID     string `json:"report_id"`
			ProxyServers []struct {
				ProxyServer string `json:"proxy_server"`
			} `json:"proxy_servers"`
		} `json:"report"`
		Health struct {
			OverallStatus string `json:"overall_status"`
		} `json:"health"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Report.ReportID != "r1" || len(payload.Report.ProxyServers) != 2 || payload.Health.OverallStatus != "unhealthy" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWriteFileCSV(t *testing.T) {
	rep, health := sample()
	path := filepath.Join(t.TempDir(), "report.csv")
	if err := WriteFile(path, "csv", rep, health); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "proxy-1" || rows[1][6] != "12.5" || rows[1][9] != "healthy" {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if rows[2][6] != "" || rows[2][10] != "30" {
		t.Fatalf("unexpected row %v", rows[2])
	}
}

func TestWriteFileUnsupportedFormat(t *testing.T) {
	rep, health := sample()
	path := filepath.Join(t.TempDir(), "report.xml")
	if err := WriteFile(path, "xml", rep, health); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should not be created for unsupported format")
	}
}
