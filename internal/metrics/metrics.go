// Package metrics exposes the Prometheus counters and histograms around
// the hot request path.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestsTotal counts proxied requests by dialect, provider key, and
	// terminal status.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmgate",
		Name:      "requests_total",
		Help:      "Total proxied requests by dialect, provider, and terminal status.",
	}, []string{"dialect", "provider", "status"})

	// UpstreamLatencySeconds measures upstream latency by stage; the chat
	// path records stage "connect": the time from sending the request
	// until the response headers arrive.
	UpstreamLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llmgate",
		Name:      "upstream_latency_seconds",
		Help:      "Latency of upstream calls by dialect and provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"dialect", "provider", "stage"})

	// CostTotalMicroUnits accumulates accounted cost by billing currency.
	CostTotalMicroUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmgate",
		Name:      "cost_total_micro_units",
		Help:      "Total accounted cost in plan-micro-units by currency.",
	}, []string{"currency"})

	// CacheLookupsTotal counts Config Cache lookups by entity kind and hit
	// kind (positive, negative, miss).
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmgate",
		Name:      "cache_lookups_total",
		Help:      "Config Cache lookups by entity kind and result.",
	}, []string{"entity", "result"})
)

func init() {
	prometheus.MustRegister(RequestsTotal, UpstreamLatencySeconds, CostTotalMicroUnits, CacheLookupsTotal)
}
