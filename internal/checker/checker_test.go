package checker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) (netip.AddrPort, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	return netip.MustParseAddrPort(ln.Addr().String()), func() { _ = ln.Close() }
}

func TestTCPProberSuccess(t *testing.T) {
	target, stop := listen(t)
	defer stop()

	p, err := NewTCPProber(Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rtt, ok := p.Probe(context.Background(), target)
	if !ok {
		t.Fatalf("expected a measurement")
	}
	if rtt < 0 || rtt > float64(DefaultTimeout.Milliseconds()) {
		t.Fatalf("rtt out of range: %v", rtt)
	}
}

func TestTCPProberRefused(t *testing.T) {
	target, stop := listen(t)
	stop()

	p, err := NewTCPProber(Options{Timeout: 500 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rtt, ok := p.Probe(context.Background(), target)
	if ok {
		t.Fatalf("expected no measurement, got %v", rtt)
	}
	if rtt != 0 {
		t.Fatalf("failed probe should report 0, got %v", rtt)
	}
}

func TestNewTCPProberSOCKS5(t *testing.T) {
	if _, err := NewTCPProber(Options{SOCKS5: "127.0.0.1:1080", Logger: quietLogger()}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := NewTCPProber(Options{SOCKS5: "not-an-address", Logger: quietLogger()}); err == nil {
		t.Fatalf("expected error for invalid socks5 address")
	}
}

type fakeProber struct {
	mu       sync.Mutex
	calls    int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	fail     bool
}

func (f *fakeProber) Probe(ctx context.Context, target netip.AddrPort) (float64, bool) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.calls++
	c := f.calls
	f.mu.Unlock()
	if f.fail {
		return 0, false
	}
	return float64(c), true
}

func TestRunBatchOrderAndLimit(t *testing.T) {
	fp := &fakeProber{delay: 5 * time.Millisecond}
	jobs := []Job{
		{ProxyID: "A", Probes: 3},
		{ProxyID: "B", Probes: 1},
		{ProxyID: "C", Probes: 2},
		{ProxyID: "D", Probes: 0},
	}

	var cb atomic.Int32
	results := RunBatch(context.Background(), fp, netip.MustParseAddrPort("127.0.0.1:1"), jobs, 2, func(Result) {
		cb.Add(1)
	})

	if len(results) != 6 {
		t.Fatalf("got %d results want 6", len(results))
	}
	if cb.Load() != 6 {
		t.Fatalf("got %d callbacks want 6", cb.Load())
	}
	if m := fp.maxSeen.Load(); m > 2 {
		t.Fatalf("concurrency limit exceeded: %d in flight", m)
	}

	wantIDs := []string{"A", "A", "A", "B", "C", "C"}
	wantSeq := []int{0, 1, 2, 0, 0, 1}
	for i, r := range results {
		if r.ProxyID != wantIDs[i] || r.Seq != wantSeq[i] {
			t.Fatalf("result %d: got %s/%d want %s/%d", i, r.ProxyID, r.Seq, wantIDs[i], wantSeq[i])
		}
		if !r.OK {
			t.Fatalf("result %d: expected ok", i)
		}
	}
	for i := 1; i < 3; i++ {
		if results[i].At.Before(results[i-1].At) {
			t.Fatalf("samples of one job completed out of order")
		}
	}
}

func TestRunBatchFailures(t *testing.T) {
	fp := &fakeProber{fail: true}
	results := RunBatch(context.Background(), fp, netip.MustParseAddrPort("127.0.0.1:1"), []Job{{ProxyID: "A", Probes: 2}}, 0, nil)
	if len(results) != 2 {
		t.Fatalf("got %d results want 2", len(results))
	}
	for _, r := range results {
		if r.OK {
			t.Fatalf("expected failed probe result")
		}
	}
}

func TestRunBatchStopsWhenContextDone(t *testing.T) {
	fp := &fakeProber{delay: 10 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := RunBatch(ctx, fp, netip.MustParseAddrPort("127.0.0.1:1"), []Job{{ProxyID: "A", Probes: 50}}, 1, nil)
	if len(results) == 0 || len(results) >= 50 {
		t.Fatalf("got %d results, want a partial batch", len(results))
	}
	for i, r := range results {
		if r.Seq != i {
			t.Fatalf("result %d has seq %d", i, r.Seq)
		}
	}
}

func TestRunBatchCancelledBeforeStart(t *testing.T) {
	fp := &fakeProber{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := RunBatch(ctx, fp, netip.MustParseAddrPort("127.0.0.1:1"), []Job{{ProxyID: "A", Probes: 3}, {ProxyID: "B", Probes: 2}}, 2, nil)
	if len(results) != 0 || fp.calls != 0 {
		t.Fatalf("got %d results and %d calls after cancel", len(results), fp.calls)
	}
}
