package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subtitles",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "provider_requests_total",
		Help:      "Total requests to subtitle providers by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subtitles",
		Name:      "provider_request_duration_seconds",
		Help:      "Subtitle provider request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	BreakerTrippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "breaker_tripped_total",
		Help:      "Total provider/query breaker trips by provider name.",
	}, []string{"provider"})

	BreakerSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "breaker_skipped_total",
		Help:      "Provider calls skipped because the breaker was open.",
	}, []string{"provider"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "cache_hits_total",
		Help:      "Cache hits by cache kind (provider, negative, resolved).",
	}, []string{"cache"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "cache_misses_total",
		Help:      "Cache misses by cache kind (provider, negative, resolved).",
	}, []string{"cache"})

	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "resolve_total",
		Help:      "Token resolutions by outcome (ok, decode_error, download_error, extract_error, format_error, timeout).",
	}, []string{"outcome"})

	ResolveShared = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subtitles",
		Name:      "resolve_shared_total",
		Help:      "Resolutions served to waiters sharing another caller's in-flight download.",
	})

	DownloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subtitles",
		Name:      "download_bytes",
		Help:      "Size of raw provider downloads in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		BreakerTrippedTotal,
		BreakerSkippedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		ResolveTotal,
		ResolveShared,
		DownloadBytes,
	)
}
