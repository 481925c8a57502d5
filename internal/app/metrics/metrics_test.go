package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheLookup(CacheHit)
	m.CacheLookup(CacheHit)
	m.CacheLookup(CacheMiss)
	m.Redirect("found")
	m.HitIncrement(true)
	m.HitIncrement(false)
	m.CreateAttempts(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirects.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hitIncrements.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hitIncrements.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.createAttempts))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup(CacheHit)
		m.Redirect("found")
		m.HitIncrement(false)
		m.CreateAttempts(1)
	})
}
