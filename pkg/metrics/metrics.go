package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pario-ai/quotaguard/pkg/models"
)

const namespace = "quotaguard"

// Quota Prometheus metrics.
var (
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission decisions by priority and result",
		},
		[]string{"priority", "result"}, // result: "admitted" / "denied"
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Provider calls by outcome",
		},
		[]string{"provider", "category", "outcome"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	BudgetCalls = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_calls",
			Help:      "Daily budget in calls",
		},
		[]string{"kind"}, // "limit" / "used" / "remaining"
	)

	BudgetOverride = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_admin_override",
		Help:      "1 while the admin override is on",
	})

	BudgetDegraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_store_degraded",
		Help:      "1 while the budget is served from memory because the store failed",
	})
)

var registerOnce sync.Once

// Register registers every quotaguard collector with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			AdmissionsTotal,
			UpstreamRequestsTotal,
			UpstreamRequestDuration,
			BudgetCalls,
			BudgetOverride,
			BudgetDegraded,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

// ObserveBudget copies usage stats into the budget gauges.
func ObserveBudget(s models.UsageStats) {
	BudgetCalls.WithLabelValues("limit").Set(float64(s.Limit))
	BudgetCalls.WithLabelValues("used").Set(float64(s.Used))
	BudgetCalls.WithLabelValues("remaining").Set(float64(s.Remaining))
	BudgetOverride.Set(boolFloat(s.AdminOverride))
	BudgetDegraded.Set(boolFloat(s.Degraded))
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
