// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - GET /countries (and /countries/) answers a single-criterion lookup.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
