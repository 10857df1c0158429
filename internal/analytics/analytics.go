package analytics

import (
	"math"
	"time"

	"github.com/August26/proxymon/internal/model"
)

// Aggregate reduces one poll's attributed connections plus each proxy's
// latency window into per-proxy stats. Every proxy in proxies gets an entry,
// zero-filled when it has no connections. Connections whose ProxyID is not
// in proxies are ignored. Latency figures come from histories, not from the
// poll's own RTTs, so the window is the statistical basis.
func Aggregate(
	proxies []model.ProxyIdentity,
	conns []model.AttributedConnection,
	histories map[string][]model.LatencySample,
	now time.Time,
) map[string]model.ProxyStats {
	out := make(map[string]model.ProxyStats, len(proxies))
	for _, p := range proxies {
		out[p.ID] = model.ProxyStats{ProxyID: p.ID, ComputedAt: now}
	}

	for _, c := range conns {
		st, ok := out[c.ProxyID]
		if !ok {
			continue
		}
		st.ConnectionCount++
		switch c.State {
		case model.ConnEstablished:
			st.EstablishedCount++
		case model.ConnSynSent:
			st.SynSentCount++
		case model.ConnTimeWait:
			st.TimeWaitCount++
		}
		out[c.ProxyID] = st
	}

	for id, st := range out {
		st.AverageRTTMs, st.MinRTTMs, st.MaxRTTMs = LatencyStats(histories[id])
		out[id] = st
	}
	return out
}

// LatencyStats returns the rounded average, minimum and maximum RTT of
// samples. All three are nil when samples is empty.
func LatencyStats(samples []model.LatencySample) (avg, lo, hi *float64) {
	if len(samples) == 0 {
		return nil, nil, nil
	}

	var sum float64
	minV, maxV := samples[0].RTTMs, samples[0].RTTMs
	for _, s := range samples {
		sum += s.RTTMs
		if s.RTTMs < minV {
			minV = s.RTTMs
		}
		if s.RTTMs > maxV {
			maxV = s.RTTMs
		}
	}

	a := Round2(sum / float64(len(samples)))
	mn := Round2(minV)
	mx := Round2(maxV)
	return &a, &mn, &mx
}

// Round2 rounds v to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
