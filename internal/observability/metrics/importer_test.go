package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m, err := NewImportMetrics(registry)
	require.NoError(t, err)

	m.RecordBatch("users", "written", 0.2)
	m.RecordBatch("users", "skipped", 0.01)
	m.RecordBatch("users", "skipped", 0.01)
	m.RecordRecords("users", OutcomeCreated, 3)
	m.RecordRecords("users", OutcomeFailed, 0)
	m.SetProgress("users", 3, 3)
	m.RecordRun("completed", 12)
	m.SetMappingCache(5, 2)

	assert.InDelta(t, 1, testutil.ToFloat64(m.batchesTotal.WithLabelValues("users", "written")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.batchesTotal.WithLabelValues("users", "skipped")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.recordsTotal.WithLabelValues("users", OutcomeCreated)), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.progressOffset.WithLabelValues("users")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(m.mappingCacheHits), 0)

	// Zero counts do not create a series.
	expected := `
# HELP importer_records_total Total number of source records handled by the writer
# TYPE importer_records_total counter
importer_records_total{outcome="created",step="users"} 3
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "importer_records_total"))
}

func TestNewImportMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	_, err := NewImportMetrics(registry)
	require.NoError(t, err)

	_, err = NewImportMetrics(registry)
	require.Error(t, err)
}
