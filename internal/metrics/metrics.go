// Package metrics provides Prometheus metrics for the awss browser core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// S3 call metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "awss_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awss_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	listingPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awss_listing_pages_total",
			Help: "Total listing pages fetched across all continuation tokens",
		},
	)

	deepScanTruncationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awss_deep_scan_truncations_total",
			Help: "Deep scans that hit the max-keys ceiling",
		},
	)

	// Access resolution metrics
	accessProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awss_access_probes_total",
			Help: "Bucket/profile access probes by resulting level",
		},
		[]string{"level"},
	)

	resolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awss_access_resolution_duration_seconds",
			Help:    "Time to resolve profiles for all listed buckets",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Bucket cache metrics
	bucketCacheLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awss_bucket_cache_loads_total",
			Help: "Bucket cache load outcomes",
		},
		[]string{"outcome"},
	)

	// Re-auth metrics
	reauthTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awss_sso_reauth_total",
			Help: "SSO re-authentication attempts by result",
		},
		[]string{"result"},
	)

	downloadsBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awss_download_bytes_total",
			Help: "Total bytes downloaded to the local filesystem",
		},
	)

	// UI event metrics
	uiEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awss_ui_events_total",
			Help: "UI events published to subscribers",
		},
		[]string{"type"},
	)

	uiSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "awss_ui_subscribers_active",
			Help: "Currently subscribed event consumers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordS3Operation records one storage backend call.
func RecordS3Operation(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordListingPage records one fetched listing page.
func RecordListingPage() {
	listingPagesTotal.Inc()
}

// RecordDeepScanTruncation records a deep scan stopping at its ceiling.
func RecordDeepScanTruncation() {
	deepScanTruncationsTotal.Inc()
}

// RecordAccessProbe records a probe outcome by access level string.
func RecordAccessProbe(level string) {
	accessProbesTotal.WithLabelValues(level).Inc()
}

// RecordResolutionDuration records one full resolution pass.
func RecordResolutionDuration(duration time.Duration) {
	resolutionDuration.Observe(duration.Seconds())
}

// RecordBucketCacheLoad records a cache load outcome
// ("hit", "miss", "stale", "fingerprint_mismatch", "corrupt").
func RecordBucketCacheLoad(outcome string) {
	bucketCacheLoadsTotal.WithLabelValues(outcome).Inc()
}

// RecordReauth records a re-authentication attempt.
func RecordReauth(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	reauthTotal.WithLabelValues(result).Inc()
}

// RecordDownloadBytes records bytes written to local files.
func RecordDownloadBytes(n int64) {
	downloadsBytesTotal.Add(float64(n))
}

// RecordUIEvent records one published UI event by type.
func RecordUIEvent(eventType string) {
	uiEventsTotal.WithLabelValues(eventType).Inc()
}

// SetUISubscribersActive sets the current subscriber count.
func SetUISubscribersActive(n int64) {
	uiSubscribersActive.Set(float64(n))
}
