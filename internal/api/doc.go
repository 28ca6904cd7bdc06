// Package api hosts the HTTP server, middleware, and REST handlers of the
// control surface. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/targets for adding, listing, removing and checking targets.
//   - GET /v1/stats for aggregate availability and tier counts.
//   - POST /v1/test and /v1/test/benchmark for ad-hoc URL diagnostics.
package api
