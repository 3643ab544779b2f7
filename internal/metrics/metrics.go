// Package metrics exposes Prometheus instrumentation for the parsing
// pipeline and the semantic backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParseRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmap_parse_requests_total",
			Help: "Parse requests by outcome",
		},
		[]string{"status"},
	)

	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sheetmap_parse_duration_seconds",
			Help:    "Time spent parsing one file",
			Buckets: prometheus.DefBuckets,
		},
	)

	HeadersMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmap_headers_matched_total",
			Help: "Header mappings produced, by matching method",
		},
		[]string{"method"},
	)

	CellsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmap_cells_parsed_total",
			Help: "Data cells parsed, by success flag",
		},
		[]string{"status"},
	)

	SemanticCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmap_semantic_calls_total",
			Help: "Calls to the semantic matching backend, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	SemanticRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetmap_semantic_retries_total",
			Help: "Retry attempts against the semantic backend",
		},
	)
)
