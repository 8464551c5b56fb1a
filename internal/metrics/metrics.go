// Package metrics exposes process-wide Prometheus counters for a running
// discovery engine. These are ambient, operational numbers (rate,
// totals since process start) - distinct from the per-session counters
// persisted in internal/storage.DiscoverySession, which survive restarts
// and are scoped to one crawl.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pdf_discovery"
	subsystem = "engine"
)

// Metrics holds every counter/gauge the engine updates while running.
type Metrics struct {
	PagesFetchedTotal *prometheus.CounterVec
	PDFsFoundTotal    *prometheus.CounterVec
	PDFsDuplicate     prometheus.Counter
	CaptchasSeen      prometheus.Counter
	ProxyRotations    *prometheus.CounterVec
	RateLimitBackoffs *prometheus.CounterVec

	FrontierQueueDepth prometheus.Gauge
	ActiveProxies      prometheus.Gauge
	CurrentRateLimit   prometheus.Gauge

	FetchDuration prometheus.Histogram
}

// New registers every metric against reg. A nil reg registers against
// prometheus.DefaultRegisterer, matching promauto's own default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PagesFetchedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pages_fetched_total",
			Help:      "Pages navigated to, partitioned by outcome (ok, blocked, broken, error).",
		}, []string{"outcome"}),

		PDFsFoundTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pdfs_found_total",
			Help:      "PDF links discovered, partitioned by extraction method.",
		}, []string{"method"}),

		PDFsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pdfs_duplicate_total",
			Help:      "PDF links discovered whose normalized URL already existed.",
		}),

		CaptchasSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "captchas_seen_total",
			Help:      "CAPTCHA challenges detected across all sessions.",
		}),

		ProxyRotations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proxy_rotations_total",
			Help:      "Proxy selections made, partitioned by result (success, failure).",
		}, []string{"result"}),

		RateLimitBackoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limit_backoffs_total",
			Help:      "Backoff events, partitioned by layer (host, global).",
		}, []string{"layer"}),

		FrontierQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frontier_queue_depth",
			Help:      "URLs currently pending in the active session's frontier.",
		}),

		ActiveProxies: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_proxies",
			Help:      "Proxies currently marked healthy in the pool.",
		}),

		CurrentRateLimit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_rate_limit",
			Help:      "Current adaptive requests-per-minute ceiling.",
		}),

		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Page navigation latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
