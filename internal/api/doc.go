// Package api hosts the ops HTTP server used in schedule mode. Routes:
//   - GET /healthz and /readyz for probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stale lists sources due for a refresh.
//   - POST /v1/refresh starts a refresh of stale sources in the background.
package api
