// Package api exposes the monitor over HTTP.
//
// # Separation of Concerns
//
// The api package defines public JSON types (decoupled from model), maps
// engine reports to JSON, and hosts an HTTP server with minimal middleware.
// The monitor package remains unaware of HTTP or JSON.
//
// # Paths
//
// Routes are unversioned and keep the /api/tcp and /api/proxy prefixes that
// existing dashboards already poll.
//
// # Server
//
// NewServer wires handlers onto a ServeMux and configures timeouts. Serve
// listens on a connection-limited listener until its context is cancelled,
// then shuts down gracefully. Middleware assigns a request id and logs
// method/path/status/duration.
//
// # Error Model
//
// APIError carries a message and an RFC3339 timestamp. Unknown proxies map to
// 404, malformed query parameters to 400, wrong methods to 405 and connection
// source failures to 500.
//
// # Current Endpoints
//
//   - GET /: endpoint index
//   - GET /healthz: liveness
//   - GET /api/tcp/stats: full report
//   - GET /api/tcp/stats/{proxy}: one proxy's report entry
//   - GET /api/tcp/connections: attributed connections
//   - GET /api/proxy/health: health of every proxy
//   - GET /api/proxy/{proxy}/health: health of one proxy
//   - GET /metrics: Prometheus metrics, when enabled
package api
