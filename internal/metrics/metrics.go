package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelMethod     = "method"
	LabelPath       = "path"
	LabelStatus     = "status"
	LabelActivity   = "activity"
	LabelTransition = "transition"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyforge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatus},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studyforge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath},
	)
)

// Leveling Metrics
var (
	XPAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyforge_xp_awarded_total",
			Help: "Total XP awarded, including bonuses, by activity type",
		},
		[]string{LabelActivity},
	)

	LevelUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyforge_level_ups_total",
			Help: "Number of awards that raised a user's level",
		},
	)

	AwardConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyforge_xp_award_conflicts_total",
			Help: "Progress saves rejected by a version conflict and retried",
		},
	)

	StreakUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyforge_streak_updates_total",
			Help: "Streak updates by transition (started, extended, reset, same_day)",
		},
		[]string{LabelTransition},
	)
)
