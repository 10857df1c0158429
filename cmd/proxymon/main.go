package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matgreaves/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/August26/proxymon/internal/api"
	"github.com/August26/proxymon/internal/checker"
	"github.com/August26/proxymon/internal/config"
	"github.com/August26/proxymon/internal/geo"
	"github.com/August26/proxymon/internal/logging"
	"github.com/August26/proxymon/internal/metrics"
	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/monitor"
	"github.com/August26/proxymon/internal/netstat"
	"github.com/August26/proxymon/internal/output"
	"github.com/August26/proxymon/internal/registry"
)

type flags struct {
	ConfigFile   string
	EnvFile      string
	Verbose      bool
	Once         bool
	OutputFile   string
	OutputFormat string
}

func main() {
	var f flags

	flag.StringVar(&f.ConfigFile, "config", "", "path to YAML config file (environment overrides still apply)")
	flag.StringVar(&f.EnvFile, "env-file", ".env", "dotenv file read under the process environment; missing is fine")
	flag.BoolVar(&f.Verbose, "verbose", false, "enable debug logs")
	flag.BoolVar(&f.Once, "once", false, "poll once, print the report table and exit")
	flag.StringVar(&f.OutputFile, "output", "", "optional path to write the -once report (json/csv)")
	flag.StringVar(&f.OutputFormat, "format", "json", "output format: json | csv")

	flag.Parse()

	log := logging.NewLogger(f.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, f, log); err != nil {
		log.Error("proxymon failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func execute(ctx context.Context, f flags, log *slog.Logger) error {
	env, err := config.WithDotEnv(f.EnvFile, os.LookupEnv)
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.ConfigFile, env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	proxies, target, err := config.Resolve(ctx, cfg, net.DefaultResolver)
	if err != nil {
		return err
	}

	if cfg.GeoIP.CityDB != "" || cfg.GeoIP.ASNDB != "" {
		resolver, err := geo.Open(cfg.GeoIP.CityDB, cfg.GeoIP.ASNDB)
		if err != nil {
			log.Warn("geoip disabled", "err", err)
		} else {
			proxies = geo.Annotate(proxies, resolver, log)
			resolver.Close()
		}
	}

	reg, err := registry.New(proxies)
	if err != nil {
		return fmt.Errorf("proxy registry: %w", err)
	}

	prober, err := checker.NewTCPProber(checker.Options{
		Timeout:        cfg.Probe.Timeout,
		SOCKS5:         cfg.Probe.SOCKS5,
		SOCKS5User:     cfg.Probe.SOCKS5User,
		SOCKS5Password: cfg.Probe.SOCKS5Password,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("prober: %w", err)
	}
	if cfg.Probe.SOCKS5 != "" {
		if err := checker.PreflightSOCKS5(ctx, cfg.Probe.SOCKS5, cfg.Probe.SOCKS5User, cfg.Probe.SOCKS5Password, cfg.Probe.Timeout); err != nil {
			log.Warn("socks5 jump host check failed", "addr", cfg.Probe.SOCKS5, "err", err)
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var obs monitor.Observer
	if *cfg.Metrics.Enabled {
		po, err := metrics.NewPromObserver(promReg)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		obs = po
	}

	eng, err := monitor.New(monitor.Options{
		Registry:         reg,
		Target:           target,
		Source:           netstat.NewProcSource(cfg.Source.ProcRoot, *cfg.Source.ResolveProcesses, log),
		Prober:           prober,
		Thresholds:       cfg.Health.Thresholds(),
		HistoryCapacity:  cfg.Probe.HistorySize,
		ProbeMode:        monitor.ProbeMode(cfg.Probe.Mode),
		ProbeConcurrency: cfg.Probe.Concurrency,
		PollTimeout:      cfg.Probe.PollTimeout,
		Observer:         obs,
		Logger:           log,
	})
	if err != nil {
		return err
	}

	log.Info("starting proxymon",
		"proxies", reg.Len(),
		"target", target.String(),
		"probe_mode", cfg.Probe.Mode,
		"probe_timeout", cfg.Probe.Timeout.String(),
		"poll_timeout", cfg.Probe.PollTimeout.String(),
		"once", f.Once,
	)

	if f.Once {
		return reportOnce(ctx, eng, f, log)
	}

	opts := api.ServerOptions{
		Addr:        cfg.Server.Addr(),
		MaxConns:    cfg.Server.MaxConns,
		MetricsPath: cfg.Metrics.Path,
		CORSOrigin:  cfg.Server.CORSAllowOrigin,
		Logger:      log,
		// A poll gives up probing at poll_timeout; leave room to encode.
		WriteTimeout: cfg.Probe.PollTimeout + 10*time.Second,
	}
	if *cfg.Metrics.Enabled {
		opts.Metrics = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}
	srv := api.NewServer(eng, opts)

	err = run.Group{
		"api": run.Func(srv.Serve),
		"warmup": run.Sequence{
			warmup(eng, log),
			run.Idle,
		},
	}.Run(ctx)
	if ctx.Err() != nil {
		log.Info("proxymon stopped")
		return nil
	}
	return err
}

// warmup runs one health check at startup to seed the latency histories and
// log the initial fleet state. Failures are logged; the API keeps serving.
func warmup(eng *monitor.Engine, log *slog.Logger) run.Runner {
	return run.Func(func(ctx context.Context) error {
		h, err := eng.CheckHealth(ctx, model.Thresholds{})
		if err != nil {
			log.Warn("initial health check failed", "err", err)
			return nil
		}
		log.Info("initial health check",
			"overall", h.OverallStatus,
			"healthy", h.HealthyCount,
			"degraded", h.DegradedCount,
			"unhealthy", h.UnhealthyCount,
		)
		return nil
	})
}

func reportOnce(ctx context.Context, eng *monitor.Engine, f flags, log *slog.Logger) error {
	start := time.Now()
	rep, health, err := eng.ReportWithHealth(ctx, model.Thresholds{})
	if err != nil {
		return err
	}

	log.Info("poll finished",
		"total_ms", time.Since(start).Milliseconds(),
		"overall", health.OverallStatus,
	)

	// Print table and summary to stdout
	output.PrintReportTable(os.Stdout, rep, health)
	output.PrintSummary(os.Stdout, health)

	if f.OutputFile != "" {
		if err := output.WriteFile(f.OutputFile, f.OutputFormat, rep, health); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		log.Info("results written",
			"path", f.OutputFile,
			"format", f.OutputFormat,
		)
	}
	return nil
}
