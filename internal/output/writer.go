package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/August26/proxymon/internal/api"
	"github.com/August26/proxymon/internal/model"
)

// PrintReportTable prints a human-readable table of per-proxy stats and
// verdicts. Rows follow the report's proxy order.
func PrintReportTable(w io.Writer, rep model.Report, health model.HealthReport) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	// header
	fmt.Fprintln(tw, "PROXY\tIP\tCOUNTRY\tCONNS\tESTAB\tSYN_SENT\tTIME_WAIT\tAVG(ms)\tMIN(ms)\tMAX(ms)\tSTATUS\tSCORE")

	verdicts := make(map[string]model.HealthVerdict, len(health.Proxies))
	for _, v := range health.Proxies {
		verdicts[v.ProxyID] = v
	}

	for _, p := range rep.Proxies {
		country := "-"
		if p.Geo != nil {
			country = dashIfEmpty(p.Geo.Country)
		}

		status, score := "-", "-"
		if v, ok := verdicts[p.ProxyID]; ok {
			status = string(v.Status)
			score = strconv.Itoa(v.HealthScore)
		}

		s := p.Stats
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			p.ProxyID,
			p.IP,
			country,
			s.ConnectionCount,
			s.EstablishedCount,
			s.SynSentCount,
			s.TimeWaitCount,
			ms(s.AverageRTTMs),
			ms(s.MinRTTMs),
			ms(s.MaxRTTMs),
			status,
			score,
		)
	}

	tw.Flush()
}

// PrintSummary prints the fleet health rollup.
func PrintSummary(w io.Writer, health model.HealthReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Overall status:           %s\n", health.OverallStatus)
	fmt.Fprintf(w, "  Healthy proxies:          %d\n", health.HealthyCount)
	fmt.Fprintf(w, "  Degraded proxies:         %d\n", health.DegradedCount)
	fmt.Fprintf(w, "  Unhealthy proxies:        %d\n", health.UnhealthyCount)
	fmt.Fprintf(w, "  RTT threshold:            %s ms\n", strconv.FormatFloat(health.Thresholds.RTTMs, 'f', -1, 64))
	fmt.Fprintf(w, "  Connection threshold:     %d\n", health.Thresholds.Connections)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ms(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// WriteFile writes the report and health rollup to a file in json or csv format.
func WriteFile(path string, format string, rep model.Report, health model.HealthReport) error {
	switch format {
	case "json", "csv":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if format == "json" {
		err = writeJSON(f, rep, health)
	} else {
		err = writeCSV(f, rep, health)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// writeJSON writes an object with "report" and "health", in the same shapes
// the HTTP API serves.
func writeJSON(w io.Writer, rep model.Report, health model.HealthReport) error {
	payload := struct {
		Report api.ReportResponse `json:"report"`
		Health api.HealthResponse `json:"health"`
	}{
		Report: api.FromReport(rep),
		Health: api.FromHealthReport(health),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// writeCSV writes one row per proxy; connection details are not included.
func writeCSV(w io.Writer, rep model.Report, health model.HealthReport) error {
	cw := csv.NewWriter(w)

	// header
	header := []string{
		"proxy_server",
		"ip_address",
		"connection_count",
		"established_count",
		"syn_sent_count",
		"time_wait_count",
		"average_rtt",
		"min_rtt",
		"max_rtt",
		"status",
		"health_score",
		"message",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	verdicts := make(map[string]model.HealthVerdict, len(health.Proxies))
	for _, v := range health.Proxies {
		verdicts[v.ProxyID] = v
	}

	for _, p := range rep.Proxies {
		s := p.Stats
		v := verdicts[p.ProxyID]
		row := []string{
			p.ProxyID,
			p.IP.String(),
			strconv.Itoa(s.ConnectionCount),
			strconv.Itoa(s.EstablishedCount),
			strconv.Itoa(s.SynSentCount),
			strconv.Itoa(s.TimeWaitCount),
			csvFloat(s.AverageRTTMs),
			csvFloat(s.MinRTTMs),
			csvFloat(s.MaxRTTMs),
			string(v.Status),
			strconv.Itoa(v.HealthScore),
			v.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
