// Package telemetry instruments the client runtime.
//
// Metrics records query and transaction outcomes as Prometheus collectors
// and is passed to the client with client.WithObserver. TracingExtension
// wraps every operation in an OpenTelemetry span.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prisma_client"

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
