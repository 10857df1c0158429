package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/August26/proxymon/internal/model"
	"github.com/August26/proxymon/internal/monitor"
)

const (
	DefaultAddress  = "0.0.0.0:8009"
	DefaultMaxConns = 256

	RequestIDHeader = "X-Request-ID"
)

// Engine is the part of monitor.Engine the API serves.
type Engine interface {
	GenerateReport(ctx context.Context) (model.Report, error)
	GetConnections(ctx context.Context) (model.ConnectionsSnapshot, error)
	CheckHealth(ctx context.Context, th model.Thresholds) (model.HealthReport, error)
	ProxyReport(ctx context.Context, id string) (model.ProxyReport, error)
	ProxyHealth(ctx context.Context, id string, th model.Thresholds) (model.HealthVerdict, error)
	Thresholds() model.Thresholds
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Addr              string
	MaxConns          int // concurrent connections accepted by Serve
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// Metrics, if set, is mounted at MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	// CORSOrigin, if set, is sent as Access-Control-Allow-Origin ("*" for any)
	// and OPTIONS preflight requests are answered without reaching a handler.
	CORSOrigin string

	Logger *slog.Logger
}

// Server hosts the HTTP API for the monitor.
type Server struct {
	http   *http.Server
	engine Engine
	log    *slog.Logger
	opts   ServerOptions
}

// NewServer constructs a new API server bound to the provided engine.
// The server does not listen until Serve is called.
func NewServer(engine Engine, opts ServerOptions) *Server {
	if engine == nil {
		panic("api.NewServer: engine is nil")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddress
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.ReadHeaderTimeout == 0 {
		opts.ReadHeaderTimeout = 2 * time.Second
	}
	// A poll probes every target-relevant connection, so reports can take
	// several probe timeouts.
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	var h http.Handler = mux
	if opts.CORSOrigin != "" {
		h = withCORS(h, opts.CORSOrigin)
	}
	s := &Server{
		engine: engine,
		log:    opts.Logger,
		opts:   opts,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           withBasicMiddleware(h, opts.Logger),
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
			ErrorLog:          slog.NewLogLogger(opts.Logger.Handler(), slog.LevelWarn),
		},
	}

	// Routes
	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/tcp/stats", s.handleStats)
	mux.HandleFunc("/api/tcp/stats/{proxy}", s.handleProxyStats)
	mux.HandleFunc("/api/tcp/connections", s.handleConnections)
	mux.HandleFunc("/api/proxy/health", s.handleHealth)
	mux.HandleFunc("/api/proxy/{proxy}/health", s.handleProxyHealth)
	if opts.Metrics != nil {
		mux.Handle(opts.MetricsPath, opts.Metrics)
	}
	mux.HandleFunc("/", s.handleNotFound)

	return s
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Serve listens on the configured address and serves until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.opts.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln, limited to MaxConns concurrent connections,
// and shuts down gracefully when ctx is done.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, s.opts.MaxConns)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", ln.Addr().String(), "max_conns", s.opts.MaxConns)
		errc <- s.http.Serve(ln)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	s.log.Info("api stopped")
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, IndexResponse{
		Message: "proxy TCP connection monitor",
		Endpoints: []string{
			"/api/tcp/stats - TCP statistics for all proxies",
			"/api/tcp/stats/{proxy} - TCP statistics for one proxy",
			"/api/tcp/connections - attributed TCP connections",
			"/api/proxy/health - health of all proxies",
			"/api/proxy/{proxy}/health - health of one proxy",
		},
	})
}

// handleHealthz is a simple liveness endpoint. It does not poll.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": TimeNow().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rep, err := s.engine.GenerateReport(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "generate report", err)
		return
	}
	writeJSON(w, http.StatusOK, FromReport(rep))
}

func (s *Server) handleProxyStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	p, err := s.engine.ProxyReport(r.Context(), r.PathValue("proxy"))
	if err != nil {
		s.writeEngineError(w, r, "proxy report", err)
		return
	}
	writeJSON(w, http.StatusOK, FromProxyReport(p))
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap, err := s.engine.GetConnections(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "list connections", err)
		return
	}
	writeJSON(w, http.StatusOK, FromSnapshot(snap))
}

// handleHealth evaluates every proxy.
// Query: rtt_threshold (ms, > 0) and connection_threshold (> 0), both
// optional; missing values use the configured thresholds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	th, err := s.thresholds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.engine.CheckHealth(r.Context(), th)
	if err != nil {
		s.writeEngineError(w, r, "check health", err)
		return
	}
	writeJSON(w, http.StatusOK, FromHealthReport(rep))
}

func (s *Server) handleProxyHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	th, err := s.thresholds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.engine.ProxyHealth(r.Context(), r.PathValue("proxy"), th)
	if err != nil {
		s.writeEngineError(w, r, "proxy health", err)
		return
	}
	writeJSON(w, http.StatusOK, FromVerdict(v))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

func (s *Server) thresholds(r *http.Request) (model.Thresholds, error) {
	th := s.engine.Thresholds()
	q := r.URL.Query()
	if v := q.Get("rtt_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return th, fmt.Errorf("rtt_threshold must be a positive number, got %q", v)
		}
		th.RTTMs = f
	}
	if v := q.Get("connection_threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return th, fmt.Errorf("connection_threshold must be a positive integer, got %q", v)
		}
		th.Connections = n
	}
	return th, nil
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, monitor.ErrProxyNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error(op+" failed", "err", err, "request_id", w.Header().Get(RequestIDHeader))
	writeError(w, http.StatusInternalServerError, op+" failed: "+err.Error())
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Basic middleware: request id and one access log line per request.
func withBasicMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := TimeNow()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		)
	})
}

func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if origin != "*" {
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIError{
		Error:     msg,
		Timestamp: TimeNow().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
