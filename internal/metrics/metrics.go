// Package metrics exports engine events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/monitor"
)

type PromObserver struct {
	polls       *prometheus.CounterVec
	probes      *prometheus.CounterVec
	probeRTT    *prometheus.HistogramVec
	connections *prometheus.GaugeVec
	rttAvg      *prometheus.GaugeVec
	score       *prometheus.GaugeVec
}

var _ monitor.Observer = (*PromObserver)(nil)

// NewPromObserver creates the collectors and registers them with reg.
func NewPromObserver(reg prometheus.Registerer) (*PromObserver, error) {
	p := &PromObserver{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxymon_polls_total",
			Help: "Connection source polls by result.",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxymon_probes_total",
			Help: "Target connect probes by proxy and result.",
		}, []string{"proxy", "result"}),
		probeRTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxymon_probe_rtt_seconds",
			Help:    "Connect time of successful target probes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"proxy"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxymon_proxy_connections",
			Help: "Connections attributed to a proxy at the last poll, by state.",
		}, []string{"proxy", "state"}),
		rttAvg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxymon_proxy_rtt_avg_ms",
			Help: "Average RTT over the proxy's latency history. Absent while unknown.",
		}, []string{"proxy"}),
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxymon_proxy_health_score",
			Help: "Health score of the last evaluation.",
		}, []string{"proxy"}),
	}

	for _, c := range []prometheus.Collector{p.polls, p.probes, p.probeRTT, p.connections, p.rttAvg, p.score} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PromObserver) ObservePoll(err error) {
	if err != nil {
		p.polls.WithLabelValues("error").Inc()
		return
	}
	p.polls.WithLabelValues("ok").Inc()
}

func (p *PromObserver) ObserveProbe(proxyID string, rttMs float64, ok bool) {
	if !ok {
		p.probes.WithLabelValues(proxyID, "failure").Inc()
		return
	}
	p.probes.WithLabelValues(proxyID, "success").Inc()
	p.probeRTT.WithLabelValues(proxyID).Observe(rttMs / 1000)
}

func (p *PromObserver) ObserveStats(s model.ProxyStats) {
	other := s.ConnectionCount - s.EstablishedCount - s.SynSentCount - s.TimeWaitCount
	p.connections.WithLabelValues(s.ProxyID, string(model.ConnEstablished)).Set(float64(s.EstablishedCount))
	p.connections.WithLabelValues(s.ProxyID, string(model.ConnSynSent)).Set(float64(s.SynSentCount))
	p.connections.WithLabelValues(s.ProxyID, string(model.ConnTimeWait)).Set(float64(s.TimeWaitCount))
	p.connections.WithLabelValues(s.ProxyID, string(model.ConnOther)).Set(float64(other))

	if s.AverageRTTMs == nil {
		p.rttAvg.DeleteLabelValues(s.ProxyID)
		return
	}
	p.rttAvg.WithLabelValues(s.ProxyID).Set(*s.AverageRTTMs)
}

func (p *PromObserver) ObserveVerdict(v model.HealthVerdict) {
	p.score.WithLabelValues(v.ProxyID).Set(float64(v.HealthScore))
}
