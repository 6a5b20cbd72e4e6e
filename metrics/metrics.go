package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTracked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracketl_events_tracked_total",
		Help: "Total number of events accepted by the track endpoint.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracketl_events_processed_total",
		Help: "Total number of events folded into sessions.",
	})

	EventsUngrouped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracketl_events_ungrouped_total",
		Help: "Total number of events skipped because they carry no group id.",
	})

	SessionsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracketl_sessions_built_total",
		Help: "Total number of sessions built.",
	})

	UsersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracketl_users_processed_total",
		Help: "Users handled by the batch processor, labelled by status.",
	}, []string{"status"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracketl_session_cache_lookups_total",
		Help: "Session cache lookups, labelled by result.",
	}, []string{"result"})

	UserProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracketl_user_processing_duration_ms",
		Help:    "Load, build and store latency per user in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracketl_process_queue_utilization_ratio",
		Help: "Current batch processor queue utilization (0–1).",
	})
)
