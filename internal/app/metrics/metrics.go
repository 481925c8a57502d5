package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shortlink"

// Cache lookup outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics groups the collectors the shortener reports to. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	redirects      *prometheus.CounterVec
	createAttempts prometheus.Histogram
	hitIncrements  *prometheus.CounterVec
}

// New registers the shortener collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by outcome.",
		}, []string{"outcome"}),
		redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirect lookups by result.",
		}, []string{"result"}),
		createAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "create_attempts",
			Help:      "Identifier generation attempts per create call.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		hitIncrements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hit_increments_total",
			Help:      "Asynchronous store hit increments by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Redirect(result string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(result).Inc()
}

func (m *Metrics) CreateAttempts(n int) {
	if m == nil {
		return
	}
	m.createAttempts.Observe(float64(n))
}

func (m *Metrics) HitIncrement(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.hitIncrements.WithLabelValues(status).Inc()
}
