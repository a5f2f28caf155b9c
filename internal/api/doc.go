// Package api hosts the HTTP server for the enricher. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/events/record-created to trigger a run (webhook delivery).
//   - GET /v1/records/{id} to read a record's pipeline-owned fields.
package api
