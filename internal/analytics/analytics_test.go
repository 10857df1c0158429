package analytics

import (
	"net/netip"
	"testing"
	"time"

	"github.com/August26/proxymon/internal/model"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func proxies() []model.ProxyIdentity {
	return []model.ProxyIdentity{
		{ID: "A", IP: netip.MustParseAddr("10.0.0.1")},
		{ID: "B", IP: netip.MustParseAddr("10.0.0.2")},
		{ID: "C", IP: netip.MustParseAddr("10.0.0.4")},
	}
}

func conn(proxy string, state model.ConnState) model.AttributedConnection {
	return model.AttributedConnection{
		RawConnection: model.RawConnection{State: state},
		ProxyID:       proxy,
	}
}

func samples(vals ...float64) []model.LatencySample {
	out := make([]model.LatencySample, len(vals))
	for i, v := range vals {
		out[i] = model.LatencySample{At: now, RTTMs: v}
	}
	return out
}

func TestAggregateCountsByState(t *testing.T) {
	conns := []model.AttributedConnection{
		conn("A", model.ConnEstablished),
		conn("B", model.ConnSynSent),
		conn("B", model.ConnTimeWait),
		conn("B", model.ConnOther),
		conn("unknown", model.ConnEstablished),
	}

	stats := Aggregate(proxies(), conns, nil, now)

	if len(stats) != 3 {
		t.Fatalf("got %d entries want 3", len(stats))
	}
	a := stats["A"]
	if a.ConnectionCount != 1 || a.EstablishedCount != 1 {
		t.Fatalf("bad A stats: %#v", a)
	}
	b := stats["B"]
	if b.ConnectionCount != 3 || b.SynSentCount != 1 || b.TimeWaitCount != 1 || b.EstablishedCount != 0 {
		t.Fatalf("bad B stats: %#v", b)
	}
	if _, ok := stats["unknown"]; ok {
		t.Fatalf("unregistered proxy must not appear in stats")
	}
}

func TestAggregateZeroConnectionProxy(t *testing.T) {
	stats := Aggregate(proxies(), nil, nil, now)

	c, ok := stats["C"]
	if !ok {
		t.Fatalf("proxy C missing from stats")
	}
	if c.ConnectionCount != 0 {
		t.Fatalf("got connection_count %d want 0", c.ConnectionCount)
	}
	if c.AverageRTTMs != nil || c.MinRTTMs != nil || c.MaxRTTMs != nil {
		t.Fatalf("expected nil latency stats, got %#v", c)
	}
	if !c.ComputedAt.Equal(now) {
		t.Fatalf("got computed_at %v want %v", c.ComputedAt, now)
	}
}

func TestAggregateUsesHistoryWindow(t *testing.T) {
	hist := map[string][]model.LatencySample{
		"A": samples(10, 20, 30.006),
	}

	stats := Aggregate(proxies(), nil, hist, now)

	a := stats["A"]
	if a.AverageRTTMs == nil || a.MinRTTMs == nil || a.MaxRTTMs == nil {
		t.Fatalf("expected latency stats, got %#v", a)
	}
	if *a.MinRTTMs != 10 || *a.MaxRTTMs != 30.01 {
		t.Fatalf("got min %v max %v", *a.MinRTTMs, *a.MaxRTTMs)
	}
	if *a.AverageRTTMs != 20 {
		t.Fatalf("got avg %v want 20", *a.AverageRTTMs)
	}
}

func TestLatencyStatsAverageWithinBounds(t *testing.T) {
	cases := [][]float64{
		{1},
		{1.111, 2.222, 3.333},
		{600, 0.01, 250.5, 999.99},
		{0.004, 0.006},
	}
	for i, vals := range cases {
		avg, lo, hi := LatencyStats(samples(vals...))
		if avg == nil || lo == nil || hi == nil {
			t.Fatalf("case %d: expected all stats defined", i)
		}
		if *avg < *lo || *avg > *hi {
			t.Fatalf("case %d: avg %v not in [%v, %v]", i, *avg, *lo, *hi)
		}
	}

	if avg, lo, hi := LatencyStats(nil); avg != nil || lo != nil || hi != nil {
		t.Fatalf("expected nil stats for empty window")
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1.234, 1.23},
		{1.2351, 1.24},
		{-1.2351, -1.24},
		{12.5, 12.5},
		{0, 0},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Fatalf("Round2(%v): got %v want %v", c.in, got, c.want)
		}
	}
}
