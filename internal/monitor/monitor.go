// Package monitor is the connection monitoring engine. An Engine owns the
// proxy registry and the per-proxy latency histories and runs one
// synchronous poll for every report request.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/August26/proxymon/internal/analytics"
	"github.com/August26/proxymon/internal/checker"
	"github.com/August26/proxymon/internal/health"
	"github.com/August26/proxymon/internal/history"
	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/registry"
	"github.com/August26/proxymon/internal/report"
)

var (
	// ErrProxyNotFound is returned by single-proxy lookups for ids that are
	// not registered.
	ErrProxyNotFound = errors.New("proxy not found")

	// ErrSourceUnavailable wraps connection source failures. The report
	// that triggered the poll fails; the engine stays usable.
	ErrSourceUnavailable = errors.New("connection source unavailable")
)

// Source supplies a snapshot of open TCP connections.
type Source interface {
	ListConnections(ctx context.Context) ([]model.RawConnection, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]model.RawConnection, error)

func (f SourceFunc) ListConnections(ctx context.Context) ([]model.RawConnection, error) {
	return f(ctx)
}

// Observer receives engine events, typically to export metrics.
type Observer interface {
	ObservePoll(err error)
	ObserveProbe(proxyID string, rttMs float64, ok bool)
	ObserveStats(stats model.ProxyStats)
	ObserveVerdict(v model.HealthVerdict)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(error)                  {}
func (nopObserver) ObserveProbe(string, float64, bool) {}
func (nopObserver) ObserveStats(model.ProxyStats)      {}
func (nopObserver) ObserveVerdict(model.HealthVerdict) {}

// ProbeMode selects how many probes a poll issues.
type ProbeMode string

const (
	// ProbePerConnection probes once per target-relevant connection.
	ProbePerConnection ProbeMode = "per_connection"
	// ProbePerProxy probes once per proxy that has at least one
	// target-relevant connection and shares the result across them.
	ProbePerProxy ProbeMode = "per_proxy"
)

const DefaultProbeConcurrency = 8

type Options struct {
	Registry *registry.Registry
	Target   netip.AddrPort
	Source   Source
	Prober   checker.Prober

	Thresholds       model.Thresholds // zero fields use health.DefaultThresholds
	HistoryCapacity  int
	ProbeMode        ProbeMode
	ProbeConcurrency int

	// PollTimeout bounds one poll, source read and probes included. Probes
	// still pending at the deadline are skipped and their connections carry
	// no RTT. Zero means no bound beyond the caller's context.
	PollTimeout time.Duration

	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

type Engine struct {
	reg         *registry.Registry
	target      netip.AddrPort
	src         Source
	prober      checker.Prober
	thresholds  model.Thresholds
	mode        ProbeMode
	concurrency int
	pollTimeout time.Duration
	histories   map[string]*history.History
	obs         Observer
	log         *slog.Logger
	now         func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, errors.New("monitor: registry is required")
	}
	if opts.Source == nil {
		return nil, errors.New("monitor: connection source is required")
	}
	if opts.Prober == nil {
		return nil, errors.New("monitor: prober is required")
	}
	if !opts.Target.IsValid() || opts.Target.Port() == 0 {
		return nil, fmt.Errorf("monitor: invalid target %q", opts.Target)
	}
	switch opts.ProbeMode {
	case "":
		opts.ProbeMode = ProbePerConnection
	case ProbePerConnection, ProbePerProxy:
	default:
		return nil, fmt.Errorf("monitor: unknown probe mode %q", opts.ProbeMode)
	}
	opts.Thresholds = health.Fill(opts.Thresholds, health.DefaultThresholds())
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = DefaultProbeConcurrency
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	hs := make(map[string]*history.History, opts.Registry.Len())
	for _, p := range opts.Registry.Proxies() {
		hs[p.ID] = history.New(opts.HistoryCapacity)
	}

	return &Engine{
		reg:         opts.Registry,
		target:      opts.Target,
		src:         opts.Source,
		prober:      opts.Prober,
		thresholds:  opts.Thresholds,
		mode:        opts.ProbeMode,
		concurrency: opts.ProbeConcurrency,
		pollTimeout: opts.PollTimeout,
		histories:   hs,
		obs:         opts.Observer,
		log:         opts.Logger,
		now:         opts.Now,
	}, nil
}

// Thresholds returns the configured default thresholds.
func (e *Engine) Thresholds() model.Thresholds { return e.thresholds }

func (e *Engine) Target() netip.AddrPort { return e.target }

func (e *Engine) Proxies() []model.ProxyIdentity { return e.reg.Proxies() }

// GenerateReport polls once and builds the full report.
func (e *Engine) GenerateReport(ctx context.Context) (model.Report, error) {
	conns, err := e.poll(ctx)
	if err != nil {
		return model.Report{}, err
	}
	now := e.now()
	stats := e.aggregate(conns, now)
	return report.BuildFull(uuid.NewString(), e.reg.Proxies(), conns, stats, now), nil
}

// GetConnections polls once and returns the attributed connections.
func (e *Engine) GetConnections(ctx context.Context) (model.ConnectionsSnapshot, error) {
	conns, err := e.poll(ctx)
	if err != nil {
		return model.ConnectionsSnapshot{}, err
	}
	return model.ConnectionsSnapshot{
		Timestamp:   e.now(),
		Count:       len(conns),
		Connections: conns,
	}, nil
}

// CheckHealth polls once and evaluates every proxy against th. Zero fields
// of th use the configured thresholds.
func (e *Engine) CheckHealth(ctx context.Context, th model.Thresholds) (model.HealthReport, error) {
	th = health.Fill(th, e.thresholds)
	conns, err := e.poll(ctx)
	if err != nil {
		return model.HealthReport{}, err
	}
	now := e.now()
	stats := e.aggregate(conns, now)
	rep := report.BuildHealth(uuid.NewString(), e.reg.Proxies(), stats, th, now)
	for _, v := range rep.Proxies {
		e.obs.ObserveVerdict(v)
	}
	return rep, nil
}

// ReportWithHealth builds the full report and the health report from a
// single poll.
func (e *Engine) ReportWithHealth(ctx context.Context, th model.Thresholds) (model.Report, model.HealthReport, error) {
	th = health.Fill(th, e.thresholds)
	conns, err := e.poll(ctx)
	if err != nil {
		return model.Report{}, model.HealthReport{}, err
	}
	now := e.now()
	stats := e.aggregate(conns, now)
	id := uuid.NewString()
	rep := report.BuildFull(id, e.reg.Proxies(), conns, stats, now)
	h := report.BuildHealth(id, e.reg.Proxies(), stats, th, now)
	for _, v := range h.Proxies {
		e.obs.ObserveVerdict(v)
	}
	return rep, h, nil
}

// ProxyReport returns the full-report entry of one proxy. Unknown ids fail
// with ErrProxyNotFound before any poll is made.
func (e *Engine) ProxyReport(ctx context.Context, id string) (model.ProxyReport, error) {
	if _, ok := e.reg.Get(id); !ok {
		return model.ProxyReport{}, fmt.Errorf("%w: %q", ErrProxyNotFound, id)
	}
	rep, err := e.GenerateReport(ctx)
	if err != nil {
		return model.ProxyReport{}, err
	}
	p, ok := report.FindProxy(rep, id)
	if !ok {
		return model.ProxyReport{}, fmt.Errorf("%w: %q", ErrProxyNotFound, id)
	}
	return p, nil
}

// ProxyHealth returns the verdict of one proxy.
func (e *Engine) ProxyHealth(ctx context.Context, id string, th model.Thresholds) (model.HealthVerdict, error) {
	if _, ok := e.reg.Get(id); !ok {
		return model.HealthVerdict{}, fmt.Errorf("%w: %q", ErrProxyNotFound, id)
	}
	rep, err := e.CheckHealth(ctx, th)
	if err != nil {
		return model.HealthVerdict{}, err
	}
	v, ok := report.FindVerdict(rep, id)
	if !ok {
		return model.HealthVerdict{}, fmt.Errorf("%w: %q", ErrProxyNotFound, id)
	}
	return v, nil
}

// poll queries the source once, attributes every connection, probes the
// target for target-relevant connections and records successful probes.
func (e *Engine) poll(ctx context.Context) ([]model.AttributedConnection, error) {
	if e.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.pollTimeout)
		defer cancel()
	}

	raw, err := e.src.ListConnections(ctx)
	if err != nil {
		e.obs.ObservePoll(err)
		e.log.Error("list connections failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	now := e.now()
	conns := make([]model.AttributedConnection, 0, len(raw))
	relevant := make(map[string][]int)
	var misses int
	for _, rc := range raw {
		ac, ok := Attribute(e.reg, e.target, rc, now)
		if !ok {
			misses++
			continue
		}
		if ac.TargetRelevant {
			relevant[ac.ProxyID] = append(relevant[ac.ProxyID], len(conns))
		}
		conns = append(conns, ac)
	}
	if misses > 0 {
		e.log.Debug("unattributed connections dropped", "count", misses)
	}

	var jobs []checker.Job
	for _, p := range e.reg.Proxies() {
		idx := relevant[p.ID]
		if len(idx) == 0 {
			continue
		}
		n := len(idx)
		if e.mode == ProbePerProxy {
			n = 1
		}
		jobs = append(jobs, checker.Job{ProxyID: p.ID, Probes: n})
	}

	results := checker.RunBatch(ctx, e.prober, e.target, jobs, e.concurrency, func(r checker.Result) {
		e.obs.ObserveProbe(r.ProxyID, r.RTTMs, r.OK)
		if r.OK {
			e.histories[r.ProxyID].Add(model.LatencySample{At: r.At, RTTMs: r.RTTMs})
		}
	})

	for _, r := range results {
		if !r.OK {
			continue
		}
		idx := relevant[r.ProxyID]
		if e.mode == ProbePerProxy {
			for _, i := range idx {
				rtt := r.RTTMs
				conns[i].RTTMs = &rtt
			}
			continue
		}
		rtt := r.RTTMs
		conns[idx[r.Seq]].RTTMs = &rtt
	}

	var planned int
	for _, j := range jobs {
		planned += j.Probes
	}
	if skipped := planned - len(results); skipped > 0 {
		e.log.Warn("poll deadline reached, probes skipped", "skipped", skipped, "planned", planned)
	}

	e.obs.ObservePoll(nil)
	e.log.Debug("poll complete", "connections", len(conns), "probes", len(results))
	return conns, nil
}

func (e *Engine) aggregate(conns []model.AttributedConnection, now time.Time) map[string]model.ProxyStats {
	samples := make(map[string][]model.LatencySample, len(e.histories))
	for id, h := range e.histories {
		samples[id] = h.Samples()
	}
	stats := analytics.Aggregate(e.reg.Proxies(), conns, samples, now)
	for _, p := range e.reg.Proxies() {
		e.obs.ObserveStats(stats[p.ID])
	}
	return stats
}
