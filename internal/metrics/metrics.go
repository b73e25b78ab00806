package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpsertsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_upserts_applied_total",
		Help: "Total number of job snapshots merged into the store",
	})

	UpsertsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_upserts_stale_total",
		Help: "Total number of job snapshots dropped as older than the stored record",
	})

	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_invariant_violations_total",
		Help: "Total number of accepted job records that violated a numeric or lifecycle invariant",
	})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "download_panel_refreshes_total",
		Help: "Total number of collection refreshes by collection and result",
	}, []string{"collection", "result"})

	LiveEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_live_events_total",
		Help: "Total number of job snapshots received on the live channel",
	})

	LiveMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_live_malformed_total",
		Help: "Total number of live channel payloads dropped as malformed",
	})

	LiveReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_panel_live_reconnects_total",
		Help: "Total number of successful live channel reconnects",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "download_panel_commands_total",
		Help: "Total number of gateway commands by command and result",
	}, []string{"command", "result"})

	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "download_panel_refresh_duration_seconds",
		Help:    "Collection refresh duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})
)
