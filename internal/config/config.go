// Package config loads the monitor configuration from a YAML file and the
// environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/August26/proxymon/internal/model"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Target  TargetConfig  `yaml:"target"`
	Proxies []ProxyConfig `yaml:"proxies"`
	Probe   ProbeConfig   `yaml:"probe"`
	Health  HealthConfig  `yaml:"health"`
	Source  SourceConfig  `yaml:"source"`
	GeoIP   GeoIPConfig   `yaml:"geoip"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	MaxConns int    `yaml:"max_conns"`
	// CORSAllowOrigin is sent as Access-Control-Allow-Origin; empty disables CORS.
	CORSAllowOrigin string `yaml:"cors_allow_origin"`
}

// Addr is the listen address of the API server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type TargetConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ProxyConfig struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host"`
}

type ProbeConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	Mode           string        `yaml:"mode"`
	Concurrency    int           `yaml:"concurrency"`
	HistorySize    int           `yaml:"history_size"`
	SOCKS5         string        `yaml:"socks5"`
	SOCKS5User     string        `yaml:"socks5_user"`
	SOCKS5Password string        `yaml:"socks5_password"`
}

type HealthConfig struct {
	RTTThresholdMs      float64 `yaml:"rtt_threshold_ms"`
	ConnectionThreshold int     `yaml:"connection_threshold"`
}

// Thresholds converts the configured limits to evaluator thresholds.
func (h HealthConfig) Thresholds() model.Thresholds {
	return model.Thresholds{RTTMs: h.RTTThresholdMs, Connections: h.ConnectionThreshold}
}

type SourceConfig struct {
	ProcRoot         string `yaml:"proc_root"`
	ResolveProcesses *bool  `yaml:"resolve_processes"`
}

type GeoIPConfig struct {
	CityDB string `yaml:"city_db"`
	ASNDB  string `yaml:"asn_db"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LookupFunc reads one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path, applies environment overrides from env,
// fills defaults and validates the result. An empty path starts from an
// empty document; a nil env skips the overrides.
func Load(path string, env LookupFunc) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if env != nil {
		if err := cfg.applyEnv(env); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8009
	}
	if c.Server.MaxConns == 0 {
		c.Server.MaxConns = 256
	}
	if c.Target.Host == "" {
		c.Target.Host = "127.0.0.1"
	}
	if c.Target.Port == 0 {
		c.Target.Port = 9876
	}
	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = 2 * time.Second
	}
	if c.Probe.PollTimeout == 0 {
		c.Probe.PollTimeout = 20 * time.Second
	}
	if c.Probe.Mode == "" {
		c.Probe.Mode = "per_connection"
	}
	if c.Probe.Concurrency == 0 {
		c.Probe.Concurrency = 8
	}
	if c.Probe.HistorySize == 0 {
		c.Probe.HistorySize = 100
	}
	if c.Health.RTTThresholdMs == 0 {
		c.Health.RTTThresholdMs = 500
	}
	if c.Health.ConnectionThreshold == 0 {
		c.Health.ConnectionThreshold = 100
	}
	if c.Source.ProcRoot == "" {
		c.Source.ProcRoot = "/proc"
	}
	if c.Source.ResolveProcesses == nil {
		c.Source.ResolveProcesses = boolPtr(true)
	}
	if c.Metrics.Enabled == nil {
		c.Metrics.Enabled = boolPtr(true)
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxConns < 1 {
		return fmt.Errorf("server.max_conns must be positive")
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		return fmt.Errorf("target.port must be 1-65535, got %d", c.Target.Port)
	}
	if len(c.Proxies) == 0 {
		return errors.New("proxies: at least one proxy is required")
	}
	seen := make(map[string]bool, len(c.Proxies))
	for i, p := range c.Proxies {
		if p.ID == "" {
			return fmt.Errorf("proxies[%d].id is required", i)
		}
		if p.Host == "" {
			return fmt.Errorf("proxies[%d].host is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("proxies[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	if c.Probe.Timeout < 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Probe.PollTimeout < 0 {
		return fmt.Errorf("probe.poll_timeout must not be negative")
	}
	if c.Probe.Mode != "per_connection" && c.Probe.Mode != "per_proxy" {
		return fmt.Errorf("probe.mode must be per_connection or per_proxy, got %q", c.Probe.Mode)
	}
	if c.Probe.Concurrency < 1 {
		return fmt.Errorf("probe.concurrency must be positive")
	}
	if c.Probe.HistorySize < 1 {
		return fmt.Errorf("probe.history_size must be positive")
	}
	if c.Health.RTTThresholdMs < 0 {
		return fmt.Errorf("health.rtt_threshold_ms must be positive")
	}
	if c.Health.ConnectionThreshold < 0 {
		return fmt.Errorf("health.connection_threshold must be positive")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

func (c *Config) applyEnv(env LookupFunc) error {
	if v, ok := env("SERVER_HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if err := envInt(env, &c.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}
	if v, ok := firstEnv(env, "TARGET_HOST", "FIX_SERVER_IP"); ok {
		c.Target.Host = v
	}
	if err := envInt(env, &c.Target.Port, "TARGET_PORT", "FIX_SERVER_PORT"); err != nil {
		return err
	}
	if v, ok := env("PROXY_SERVERS"); ok && v != "" {
		proxies, err := ParseProxyList(v)
		if err != nil {
			return fmt.Errorf("PROXY_SERVERS: %w", err)
		}
		c.Proxies = proxies
	} else {
		c.Proxies = mergeNumberedProxies(c.Proxies, env)
	}
	if v, ok := env("RTT_THRESHOLD_MS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RTT_THRESHOLD_MS: %w", err)
		}
		c.Health.RTTThresholdMs = f
	}
	if err := envInt(env, &c.Health.ConnectionThreshold, "CONNECTION_THRESHOLD"); err != nil {
		return err
	}
	if v, ok := env("PROBE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROBE_TIMEOUT: %w", err)
		}
		c.Probe.Timeout = d
	}
	return nil
}

// MaxNumberedProxies bounds the PROXY_<N>_IP variables that are looked up.
const MaxNumberedProxies = 32

// mergeNumberedProxies applies PROXY_<N>_IP as the host of proxy "proxy-<N>",
// replacing the host of an existing entry with that id or appending one.
func mergeNumberedProxies(proxies []ProxyConfig, env LookupFunc) []ProxyConfig {
	for n := 1; n <= MaxNumberedProxies; n++ {
		host, ok := env("PROXY_" + strconv.Itoa(n) + "_IP")
		host = strings.TrimSpace(host)
		if !ok || host == "" {
			continue
		}
		id := "proxy-" + strconv.Itoa(n)
		i := slices.IndexFunc(proxies, func(p ProxyConfig) bool { return p.ID == id })
		if i >= 0 {
			proxies[i].Host = host
			continue
		}
		proxies = append(proxies, ProxyConfig{ID: id, Host: host})
	}
	return proxies
}

// WithDotEnv layers the KEY=VALUE pairs of a dotenv file under base, so a
// variable set in base wins over the file. A missing file yields base.
func WithDotEnv(path string, base LookupFunc) (LookupFunc, error) {
	if base == nil {
		base = os.LookupEnv
	}
	if path == "" {
		return base, nil
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return func(k string) (string, bool) {
		if v, ok := base(k); ok {
			return v, true
		}
		v, ok := vars[k]
		return v, ok
	}, nil
}

// ParseProxyList parses "id=host,id=host".
func ParseProxyList(s string) ([]ProxyConfig, error) {
	var out []ProxyConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, host, ok := strings.Cut(item, "=")
		id, host = strings.TrimSpace(id), strings.TrimSpace(host)
		if !ok || id == "" || host == "" {
			return nil, fmt.Errorf("invalid entry %q, want id=host", item)
		}
		out = append(out, ProxyConfig{ID: id, Host: host})
	}
	return out, nil
}

func firstEnv(env LookupFunc, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := env(k); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func envInt(env LookupFunc, dst *int, keys ...string) error {
	for _, k := range keys {
		v, ok := env(k)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		*dst = n
		return nil
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// Resolver looks up host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolve turns the configured hosts into addresses, once. IP literals are
// used as-is; names go through r, preferring an IPv4 answer.
func Resolve(ctx context.Context, c *Config, r Resolver) ([]model.ProxyIdentity, netip.AddrPort, error) {
	if r == nil {
		r = net.DefaultResolver
	}

	proxies := make([]model.ProxyIdentity, 0, len(c.Proxies))
	for _, p := range c.Proxies {
		ip, err := resolveHost(ctx, r, p.Host)
		if err != nil {
			return nil, netip.AddrPort{}, fmt.Errorf("proxy %q: %w", p.ID, err)
		}
		proxies = append(proxies, model.ProxyIdentity{ID: p.ID, IP: ip})
	}

	tip, err := resolveHost(ctx, r, c.Target.Host)
	if err != nil {
		return nil, netip.AddrPort{}, fmt.Errorf("target: %w", err)
	}
	return proxies, netip.AddrPortFrom(tip, uint16(c.Target.Port)), nil
}

func resolveHost(ctx context.Context, r Resolver, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap(), nil
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("resolve %s: no addresses", host)
	}
	for _, a := range addrs {
		if a.Unmap().Is4() {
			return a.Unmap(), nil
		}
	}
	return addrs[0], nil
}
