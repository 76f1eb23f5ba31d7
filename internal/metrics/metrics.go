// Package metrics — коллекторы Prometheus и хэндлер /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartinlet_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartinlet_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// Operations: доменные операции по результату (ok | вид ошибки).
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartinlet_operations_total",
		Help: "Domain operations by name and outcome.",
	}, []string{"op", "outcome"})

	// Valves: решения пороговой логики: opened | closed | unchanged.
	Valves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartinlet_threshold_decisions_total",
		Help: "Threshold evaluations by sensor kind and decision.",
	}, []string{"kind", "decision"})

	Readings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartinlet_sensor_readings_total",
		Help: "Sensor readings accepted by kind.",
	}, []string{"kind"})
)

func Handler() http.Handler { return promhttp.Handler() }
