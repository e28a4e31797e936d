package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProxyRequests counts proxied fetches by outcome:
	// hit | miss | unauthorized | unsafe | upstream_error | decode_error.
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcrafter_proxy_requests_total",
		Help: "Total number of proxied fetch requests by outcome.",
	}, []string{"outcome"})

	// ProxyFetchSeconds observes upstream fetch latency for the interactive
	// and background paths.
	ProxyFetchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardcrafter_proxy_fetch_seconds",
		Help:    "Upstream fetch latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path" /* interactive | refresh */})

	// RefreshResults counts per-URL results of the background refresher.
	RefreshResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcrafter_refresh_results_total",
		Help: "Background refresh results per URL.",
	}, []string{"status" /* ok | failed */})

	// SearchCache counts render-engine search cache lookups.
	SearchCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcrafter_search_cache_lookups_total",
		Help: "Search cache lookups.",
	}, []string{"status" /* hit | miss | flush */})

	// Exports counts export attempts by format and outcome.
	Exports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardcrafter_exports_total",
		Help: "Grid exports by format and outcome.",
	}, []string{"format", "outcome"})

	// LiveSessions tracks open live-grid websocket sessions.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardcrafter_live_sessions",
		Help: "Open live grid sessions.",
	})
)
