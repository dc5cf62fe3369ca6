// Package metrics provides import pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ImportMetrics contains Prometheus metrics for the import pipeline
type ImportMetrics struct {
	registry *prometheus.Registry

	// Batch metrics
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec

	// Record metrics
	recordsTotal *prometheus.CounterVec

	// Progress metrics
	progressOffset *prometheus.GaugeVec
	progressTotal  *prometheus.GaugeVec

	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Mapping cache metrics
	mappingCacheHits   prometheus.Gauge
	mappingCacheMisses prometheus.Gauge

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewImportMetrics creates and registers new import metrics
func NewImportMetrics(registry *prometheus.Registry) (*ImportMetrics, error) {
	m := &ImportMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *ImportMetrics) initMetrics() {
	m.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_batches_total",
			Help: "Total number of batches processed",
		},
		[]string{"step", "result"}, // result: written, skipped
	)

	m.batchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_batch_duration_seconds",
			Help:    "Time taken to read, gate and write one batch",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15), // 10ms to ~160s
		},
		[]string{"step"},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_records_total",
			Help: "Total number of source records handled by the writer",
		},
		[]string{"step", "outcome"}, // outcome: created, already_mapped, skipped, failed
	)

	m.progressOffset = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "importer_step_offset",
		Help: "Source offset reached by the current step",
	}, []string{"step"})

	m.progressTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "importer_step_records",
		Help: "Source records the current step pages through",
	}, []string{"step"})

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_runs_total",
			Help: "Total number of import runs",
		},
		[]string{"status"}, // status: completed, failed
	)

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "importer_run_duration_seconds",
		Help:    "Time taken by a whole import run",
		Buckets: prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount15), // 1s to ~9h
	})

	m.mappingCacheHits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "importer_mapping_cache_hits",
		Help: "Mapping lookups served from the cache",
	})

	m.mappingCacheMisses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "importer_mapping_cache_misses",
		Help: "Mapping lookups that went to the database",
	})

	m.collectors = []prometheus.Collector{
		m.batchesTotal,
		m.batchDuration,
		m.recordsTotal,
		m.progressOffset,
		m.progressTotal,
		m.runsTotal,
		m.runDuration,
		m.mappingCacheHits,
		m.mappingCacheMisses,
	}
}

// Describe implements the Collector interface
func (m *ImportMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *ImportMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordBatch records a processed batch and its duration
func (m *ImportMetrics) RecordBatch(step, result string, seconds float64) {
	m.batchesTotal.WithLabelValues(step, result).Inc()
	m.batchDuration.WithLabelValues(step).Observe(seconds)
}

// RecordRecords adds count records with the given outcome
func (m *ImportMetrics) RecordRecords(step, outcome string, count int64) {
	if count <= 0 {
		return
	}
	m.recordsTotal.WithLabelValues(step, outcome).Add(float64(count))
}

// SetProgress updates the offset reached by step
func (m *ImportMetrics) SetProgress(step string, offset int, total int64) {
	m.progressOffset.WithLabelValues(step).Set(float64(offset))
	m.progressTotal.WithLabelValues(step).Set(float64(total))
}

// RecordRun records a finished run
func (m *ImportMetrics) RecordRun(status string, seconds float64) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// SetMappingCache updates the mapping cache counters
func (m *ImportMetrics) SetMappingCache(hits, misses int64) {
	m.mappingCacheHits.Set(float64(hits))
	m.mappingCacheMisses.Set(float64(misses))
}
