package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"travel-intel/pkg/cache"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheObserver(t *testing.T) {
	m := New()
	var observer cache.Observer = m

	observer.Hit(cache.TierMemory)
	observer.Hit(cache.TierMemory)
	observer.Hit(cache.TierDurable)
	observer.Miss()
	observer.Evicted(3)
	observer.DurableError("load")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("durable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cacheEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheDurableErrors.WithLabelValues("load")))
}

func TestConsolidationRecorder(t *testing.T) {
	m := New()
	m.ObserveConsolidation("Kyoto", "created", 40*time.Millisecond)
	m.ObserveConsolidation("Kyoto", "unchanged", 10*time.Millisecond)
	m.SessionsSkipped("Kyoto", 2)
	m.RecordsRejected("Kyoto", 1)
	m.DatasetVersion("Kyoto", 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("Kyoto", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.skippedSessions.WithLabelValues("Kyoto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedRecords.WithLabelValues("Kyoto")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.latestVersion.WithLabelValues("Kyoto")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Miss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "travel_intel_cache_misses_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
