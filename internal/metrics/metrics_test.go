package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/August26/proxymon/internal/model"
)

func TestPromObserverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPromObserver(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	obs.ObservePoll(nil)
	obs.ObservePoll(nil)
	obs.ObservePoll(errors.New("boom"))
	if got := testutil.ToFloat64(obs.polls.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok polls, got %f", got)
	}
	if got := testutil.ToFloat64(obs.polls.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed poll, got %f", got)
	}

	obs.ObserveProbe("A", 12.5, true)
	obs.ObserveProbe("A", 0, false)
	if got := testutil.ToFloat64(obs.probes.WithLabelValues("A", "success")); got != 1 {
		t.Fatalf("expected 1 successful probe, got %f", got)
	}
	if samples := testutil.CollectAndCount(obs.probeRTT); samples != 1 {
		t.Fatalf("expected rtt histogram for one proxy, got %d", samples)
	}

	avg := 42.0
	obs.ObserveStats(model.ProxyStats{ProxyID: "A", ConnectionCount: 5, EstablishedCount: 3, TimeWaitCount: 1, AverageRTTMs: &avg})
	if got := testutil.ToFloat64(obs.connections.WithLabelValues("A", "ESTABLISHED")); got != 3 {
		t.Fatalf("expected 3 established, got %f", got)
	}
	if got := testutil.ToFloat64(obs.connections.WithLabelValues("A", "OTHER")); got != 1 {
		t.Fatalf("expected 1 other, got %f", got)
	}
	if got := testutil.ToFloat64(obs.rttAvg.WithLabelValues("A")); got != 42 {
		t.Fatalf("expected avg rtt 42, got %f", got)
	}

	obs.ObserveStats(model.ProxyStats{ProxyID: "A"})
	if n := testutil.CollectAndCount(obs.rttAvg); n != 0 {
		t.Fatalf("expected unknown rtt to drop the series, got %d", n)
	}

	obs.ObserveVerdict(model.HealthVerdict{ProxyID: "A", HealthScore: 60})
	if got := testutil.ToFloat64(obs.score.WithLabelValues("A")); got != 60 {
		t.Fatalf("expected score 60, got %f", got)
	}
}

func TestNewPromObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromObserver(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPromObserver(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
