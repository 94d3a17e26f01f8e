package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login metrics
var (
	// LoginsTotal tracks login attempts by platform and outcome ("success" or a failure kind)
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_hub_logins_total",
			Help: "Platform login attempts by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	// LoginDuration tracks how long platform providers take to answer
	LoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connection_hub_login_duration_seconds",
			Help:    "Platform provider login duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	// LoginsRateLimited tracks login requests rejected by the per-session limiter
	LoginsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_hub_logins_rate_limited_total",
			Help: "Login requests rejected by the per-session rate limiter",
		},
	)
)

// Session metrics
var (
	// SwitchesTotal tracks active connection switches by result ("ok", "not_found", "error")
	SwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_hub_switches_total",
			Help: "Active connection switches by result",
		},
		[]string{"result"},
	)

	// RemovalsTotal tracks removed connections
	RemovalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_hub_connection_removals_total",
			Help: "Connections removed from sessions",
		},
	)

	// LogoutsTotal tracks logouts; "degraded" means a persistence failure was swallowed
	LogoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_hub_logouts_total",
			Help: "Logouts by result",
		},
		[]string{"result"},
	)

	// StoreOpsTotal tracks session repository operations by operation and status
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_hub_store_operations_total",
			Help: "Session repository operations by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// Cache metrics
var (
	// ReconciliationsTotal tracks cache reconciliations by result
	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_hub_cache_reconciliations_total",
			Help: "Client cache reconciliations by result",
		},
		[]string{"result"},
	)

	// CachedConnections tracks the number of connections mirrored in the client cache
	CachedConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connection_hub_cache_connections",
			Help: "Connections currently mirrored in the client cache",
		},
	)
)
