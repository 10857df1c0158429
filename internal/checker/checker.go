package checker

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/August26/proxymon/internal/analytics"
)

// DefaultTimeout bounds a single handshake probe.
const DefaultTimeout = 2 * time.Second

// Prober measures TCP handshake latency to a target. ok is false when no
// measurement could be taken; failures are never returned as errors.
type Prober interface {
	Probe(ctx context.Context, target netip.AddrPort) (rttMs float64, ok bool)
}

// Options configures a TCPProber.
type Options struct {
	Timeout time.Duration

	// SOCKS5, when set, routes probes through a SOCKS5 jump host ("host:port").
	// The measurement then covers the handshake with the jump host plus its
	// CONNECT to the target.
	SOCKS5         string
	SOCKS5User     string
	SOCKS5Password string

	Logger *slog.Logger
}

// TCPProber times a plain TCP connect to the target and closes the
// connection immediately. No application data is exchanged.
type TCPProber struct {
	dialer  proxy.ContextDialer
	timeout time.Duration
	log     *slog.Logger
}

func NewTCPProber(opts Options) (*TCPProber, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var dialer proxy.ContextDialer = &net.Dialer{Timeout: opts.Timeout}
	if opts.SOCKS5 != "" {
		d, err := socks5Dialer(opts.SOCKS5, opts.SOCKS5User, opts.SOCKS5Password, opts.Timeout)
		if err != nil {
			return nil, err
		}
		dialer = d
	}

	return &TCPProber{dialer: dialer, timeout: opts.Timeout, log: opts.Logger}, nil
}

// Probe performs one connect attempt. Elapsed time is measured from dial
// start to connect success, in milliseconds rounded to two decimals.
func (p *TCPProber) Probe(ctx context.Context, target netip.AddrPort) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", target.String())
	elapsed := time.Since(start)
	if err != nil {
		p.log.Warn("rtt probe failed", "target", target.String(), "err", err)
		return 0, false
	}
	_ = conn.Close()

	return analytics.Round2(float64(elapsed.Nanoseconds()) / 1e6), true
}

// Job asks for Probes sequential probes on behalf of one proxy.
type Job struct {
	ProxyID string
	Probes  int
}

// Result is the outcome of one probe. Seq is the probe's position within its
// job; At is the completion time.
type Result struct {
	ProxyID string
	Seq     int
	RTTMs   float64
	OK      bool
	At      time.Time
}

// RunBatch runs jobs concurrently, at most concurrency at a time. Probes of a
// single job run sequentially, so one proxy's results complete in Seq order.
// Once ctx is done no further probes start, so a job may return fewer
// results than it asked for.
// onResult, if non-nil, is called as each probe completes; calls for
// different jobs may be concurrent. Results are returned grouped by job in
// jobs order.
func RunBatch(ctx context.Context, p Prober, target netip.AddrPort, jobs []Job, concurrency int, onResult func(Result)) []Result {
	if concurrency < 1 {
		concurrency = 1
	}

	perJob := make([][]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			out := make([]Result, 0, job.Probes)
			for seq := 0; seq < job.Probes; seq++ {
				if ctx.Err() != nil {
					break
				}
				rtt, ok := p.Probe(ctx, target)
				res := Result{ProxyID: job.ProxyID, Seq: seq, RTTMs: rtt, OK: ok, At: time.Now()}
				if onResult != nil {
					onResult(res)
				}
				out = append(out, res)
			}
			perJob[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var n int
	for _, r := range perJob {
		n += len(r)
	}
	results := make([]Result, 0, n)
	for _, r := range perJob {
		results = append(results, r...)
	}
	return results
}
