package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_cycles_total",
			Help: "Total number of settlement cycles by outcome",
		},
		[]string{"outcome"},
	)

	SettlementCycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settlement_cycle_duration_seconds",
			Help:    "Duration of settlement cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CampaignsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_completed_total",
			Help: "Total number of campaigns transitioned to completed",
		},
	)

	UsersSettledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "users_settled_total",
			Help: "Total number of user ledgers updated by settlement",
		},
	)

	SettlementWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_write_failures_total",
			Help: "Total number of failed per-entity settlement writes",
		},
		[]string{"entity"},
	)

	PendingDeltasRetriedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pending_deltas_retried_total",
			Help: "Total number of pending user deltas retried from earlier cycles",
		},
	)

	CycleTicksSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_ticks_skipped_total",
			Help: "Total number of scheduler ticks skipped because a cycle was already running",
		},
	)
)
