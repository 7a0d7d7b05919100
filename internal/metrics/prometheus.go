// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ranked matchmaking service.
var (
	// Queue metrics.
	QueueJoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_queue_joins_total",
			Help: "Total queue joins, split by whether an existing entry was returned",
		},
		[]string{"format", "result"}, // result: created, existing
	)

	QueueTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_queue_transitions_total",
			Help: "Total queue entry status transitions",
		},
		[]string{"status"},
	)

	QueueSearchExpansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_search_expansions_total",
			Help: "Total XP band expansions applied to waiting entries",
		},
		[]string{"format"},
	)

	QueueSearchingEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchmaking_searching_entries",
			Help: "Entries in searching status seen by the last pairing pass",
		},
		[]string{"format"},
	)

	// Pairing metrics.
	MatchesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_matches_created_total",
			Help: "Total competitions materialized by the pairing pass",
		},
		[]string{"format"},
	)

	MatchClaimConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_claim_conflicts_total",
			Help: "Pairs dropped because an entry was claimed by a concurrent pass",
		},
		[]string{"format"},
	)

	MatchXPDiff = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchmaking_match_xp_diff",
			Help:    "Absolute XP difference between paired players",
			Buckets: prometheus.LinearBuckets(0, 50, 11), // 0 to 500 XP
		},
		[]string{"format"},
	)

	MatchWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchmaking_wait_seconds",
			Help:    "Time an entry spent searching before it was matched",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"format"},
	)

	PairingPassDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matchmaking_pass_duration_seconds",
			Help:    "Time taken by one pairing pass",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"format"},
	)

	// Ledger metrics.
	XPChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_xp_changes_total",
			Help: "Total XP transactions recorded",
		},
		[]string{"reason"},
	)

	RankChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_rank_changes_total",
			Help: "Total rank promotions and demotions",
		},
		[]string{"direction", "rank"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total failed webhook notification attempts",
		},
		[]string{"kind"},
	)
)

// RecordQueueJoin records a queue join.
func RecordQueueJoin(format string, existing bool) {
	result := "created"
	if existing {
		result = "existing"
	}
	QueueJoinsTotal.WithLabelValues(format, result).Inc()
}

// RecordQueueTransition records entries moving into a status.
func RecordQueueTransition(status string, count int) {
	QueueTransitionsTotal.WithLabelValues(status).Add(float64(count))
}

// RecordSearchExpansion records an XP band expansion.
func RecordSearchExpansion(format string) {
	QueueSearchExpansionsTotal.WithLabelValues(format).Inc()
}

// SetSearchingEntries sets the size of the searching pool for a format.
func SetSearchingEntries(format string, count int) {
	QueueSearchingEntries.WithLabelValues(format).Set(float64(count))
}

// RecordMatchCreated records a materialized match.
func RecordMatchCreated(format string, xpDiff int) {
	MatchesCreatedTotal.WithLabelValues(format).Inc()
	MatchXPDiff.WithLabelValues(format).Observe(float64(xpDiff))
}

// RecordClaimConflict records a pair lost to a concurrent pass.
func RecordClaimConflict(format string) {
	MatchClaimConflictsTotal.WithLabelValues(format).Inc()
}

// ObserveMatchWait observes how long a matched entry waited.
func ObserveMatchWait(format string, seconds float64) {
	MatchWaitSeconds.WithLabelValues(format).Observe(seconds)
}

// ObservePairingPassDuration observes the duration of a pairing pass.
func ObservePairingPassDuration(format string, seconds float64) {
	PairingPassDurationSeconds.WithLabelValues(format).Observe(seconds)
}

// RecordXPChange records an XP transaction and any rank movement.
func RecordXPChange(reason string, rankUp, rankDown bool, rankAfter string) {
	XPChangesTotal.WithLabelValues(reason).Inc()
	switch {
	case rankUp:
		RankChangesTotal.WithLabelValues("up", rankAfter).Inc()
	case rankDown:
		RankChangesTotal.WithLabelValues("down", rankAfter).Inc()
	}
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of a job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordNotificationFailed records a failed webhook delivery.
func RecordNotificationFailed(kind string) {
	NotificationsFailedTotal.WithLabelValues(kind).Inc()
}
