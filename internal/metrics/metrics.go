// Package metrics provides Prometheus metrics for the preparation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Stage metrics
	StagesCompleted *prometheus.CounterVec
	StagesFailed    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec

	// Ingestion metrics
	RowsIngested    *prometheus.CounterVec
	BatchesFetched  *prometheus.CounterVec
	PartitionRows   *prometheus.HistogramVec
	PartitionBytes  *prometheus.HistogramVec

	// Validation metrics
	DriftedColumns  *prometheus.GaugeVec
	SchemaFailures  *prometheus.CounterVec

	// Transformation metrics
	CellsImputed *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "modelprep"
	}

	m := &Metrics{
		StagesCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_completed_total",
				Help:      "Total number of pipeline stages completed",
			},
			[]string{"stage"},
		),
		StagesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_failed_total",
				Help:      "Total number of pipeline stages that failed",
			},
			[]string{"stage"},
		),
		StageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock time per pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
			[]string{"stage"},
		),
		RowsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_ingested_total",
				Help:      "Total number of records read from the source",
			},
			[]string{"source_type"},
		),
		BatchesFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_fetched_total",
				Help:      "Total number of bounded batch fetches from the source",
			},
			[]string{"source_type"},
		),
		PartitionRows: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "partition_rows",
				Help:      "Number of rows per written partition",
				Buckets:   prometheus.ExponentialBuckets(100, 2, 10), // 100 to ~100k
			},
			[]string{"partition"},
		),
		PartitionBytes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "partition_bytes",
				Help:      "Size of written partitions in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
			[]string{"partition"},
		),
		DriftedColumns: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "drifted_columns",
				Help:      "Number of columns flagged as drifted in the last validation",
			},
			[]string{"run_id"},
		),
		SchemaFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_failures_total",
				Help:      "Total number of schema validation failures",
			},
			[]string{"partition"},
		),
		CellsImputed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cells_imputed_total",
				Help:      "Total number of missing cells filled by the imputer",
			},
			[]string{"partition"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncStagesCompleted increments the completed counter for a stage.
func (m *Metrics) IncStagesCompleted(stage string) {
	m.StagesCompleted.WithLabelValues(stage).Inc()
}

// IncStagesFailed increments the failed counter for a stage.
func (m *Metrics) IncStagesFailed(stage string) {
	m.StagesFailed.WithLabelValues(stage).Inc()
}

// ObserveStageDuration records a stage's wall-clock time.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddRowsIngested adds to the rows ingested counter.
func (m *Metrics) AddRowsIngested(sourceType string, count float64) {
	m.RowsIngested.WithLabelValues(sourceType).Add(count)
}

// IncBatchesFetched increments the batch fetch counter.
func (m *Metrics) IncBatchesFetched(sourceType string) {
	m.BatchesFetched.WithLabelValues(sourceType).Inc()
}

// ObservePartitionRows records the row count of a written partition.
func (m *Metrics) ObservePartitionRows(partition string, rows float64) {
	m.PartitionRows.WithLabelValues(partition).Observe(rows)
}

// ObservePartitionBytes records the byte size of a written partition.
func (m *Metrics) ObservePartitionBytes(partition string, bytes float64) {
	m.PartitionBytes.WithLabelValues(partition).Observe(bytes)
}

// SetDriftedColumns records the drifted column count for a run.
func (m *Metrics) SetDriftedColumns(runID string, count float64) {
	m.DriftedColumns.WithLabelValues(runID).Set(count)
}

// IncSchemaFailures increments the schema failure counter for a partition.
func (m *Metrics) IncSchemaFailures(partition string) {
	m.SchemaFailures.WithLabelValues(partition).Inc()
}

// AddCellsImputed adds to the imputed cell counter for a partition.
func (m *Metrics) AddCellsImputed(partition string, count float64) {
	m.CellsImputed.WithLabelValues(partition).Add(count)
}
