// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storedir_provider_calls_total",
		Help: "Places and geocoding provider calls by provider and outcome",
	}, []string{"provider", "outcome"})
	ProviderDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storedir_provider_duration_ms",
		Help:    "Provider call duration in milliseconds",
		Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3200},
	}, []string{"provider"})
	StoresInserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storedir_stores_inserted_total",
		Help: "Stores written by ingestion, by source",
	}, []string{"source"})
	StoresSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storedir_stores_skipped_total",
		Help: "Stores skipped because their place id already existed",
	})
	DiscoveryRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storedir_discovery_runs_total",
		Help: "Discovery invocations by scope and status",
	}, []string{"scope", "status"})
	DiscoveryBudgetExceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storedir_discovery_budget_exceeded_total",
		Help: "Discovery invocations stopped early by the time budget",
	})
	DiscoveryDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storedir_discovery_duration_ms",
		Help:    "Discovery invocation wall time in milliseconds",
		Buckets: []float64{500, 1000, 2500, 5000, 10000, 20000, 30000, 60000},
	})
	RegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storedir_registrations_total",
		Help: "Registration requests by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(ProviderCallsTotal)
	prometheus.MustRegister(ProviderDurationMs)
	prometheus.MustRegister(StoresInserted)
	prometheus.MustRegister(StoresSkipped)
	prometheus.MustRegister(DiscoveryRunsTotal)
	prometheus.MustRegister(DiscoveryBudgetExceeded)
	prometheus.MustRegister(DiscoveryDurationMs)
	prometheus.MustRegister(RegistrationsTotal)
}

// Outcome labels a provider call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
