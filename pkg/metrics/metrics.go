// Package metrics exposes the Prometheus collectors for run outcomes and the
// /metrics and /health endpoints used in serve mode.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmichalski/clocksync/pkg/logger"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_runs_total",
			Help: "Pipeline runs by resource and outcome",
		},
		[]string{"resource", "status"},
	)

	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_rows_processed_total",
			Help: "Flattened rows accepted into batches",
		},
		[]string{"resource"},
	)

	BatchesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_batches_merged_total",
			Help: "Batches staged and merged into the target table",
		},
		[]string{"resource"},
	)

	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clocksync_source_requests_total",
			Help: "Source API requests by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clocksync_run_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"resource"},
	)
)

// StartMetricsServer serves /metrics on the given port in the background.
func StartMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go serve(port, mux, "metrics")
	logger.Infof("metrics endpoint on :%s/metrics", port)
}

// StartHealthServer serves /health on the given port in the background.
func StartHealthServer(port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"running","service":"clocksync"}`))
	})
	go serve(port, mux, "health")
	logger.Infof("health endpoint on :%s/health", port)
}

func serve(port string, mux *http.ServeMux, name string) {
	srv := &http.Server{Addr: ":" + port, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("%s server failed: %v", name, err)
	}
}
