package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_sweeps_total",
		Help: "The total number of sweeps by outcome",
	}, []string{"status"})

	SweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scripalert_sweep_duration_seconds",
		Help:    "Duration of a full sweep over all tracked scrips",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	AnnouncementsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_announcements_fetched_total",
		Help: "The total number of announcement records fetched per scrip",
	}, []string{"scrip"})

	AnnouncementsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_announcements_dropped_total",
		Help: "Total number of dropped announcement records by reason",
	}, []string{"reason"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_notifications_sent_total",
		Help: "The total number of recipient notifications by status",
	}, []string{"status"})

	AnalyzerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scripalert_analyzer_request_duration_seconds",
		Help:    "Duration of analyzer (LLM) requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	AnalyzerSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_analyzer_skipped_total",
		Help: "Total number of analyzer invocations skipped by reason",
	}, []string{"reason"})

	QuoteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_quote_lookups_total",
		Help: "The total number of market quote lookups by status",
	}, []string{"status"})

	MemoryPressureDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scripalert_memory_pressure_degraded",
		Help: "1 while the process is in low-memory mode, 0 otherwise",
	})

	ProcessRSSMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scripalert_process_rss_mb",
		Help: "Last sampled process resident set size in megabytes",
	})

	DeepLinkViews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scripalert_deeplink_views_total",
		Help: "Total number of deep-link view requests by status",
	}, []string{"status"})
)
