package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()

	m.SeriesProcessed.WithLabelValues("UPDATE", "upserted").Inc()
	m.SeriesProcessed.WithLabelValues("UPDATE", "upserted").Inc()
	m.FetchFailures.WithLabelValues("TIMEOUT").Inc()
	m.ErrorRate.Set(0.25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SeriesProcessed.WithLabelValues("UPDATE", "upserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("TIMEOUT")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.ErrorRate))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.StoredSeries.Set(42)

	path := filepath.Join(t.TempDir(), "serieswatch.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "serieswatch_stored_series 42")
}
