/**
 * @description
 * The settlement cycle orchestrator. One cycle runs scan → aggregate → apply:
 * it drains user deltas left behind by earlier cycles, scans for campaigns
 * whose end date has passed, aggregates per-user reward deltas, marks the
 * campaigns completed, and applies the deltas to user ledgers. Data flows one
 * direction; nothing flows backward from apply to scan.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecobloom/settlement-service/internal/config"
	"github.com/ecobloom/settlement-service/internal/domain"
	"github.com/ecobloom/settlement-service/internal/metrics"
	"github.com/ecobloom/settlement-service/internal/store"
	"github.com/ecobloom/settlement-service/pkg/rabbitmq"
)

// ErrCycleInProgress is returned when a settlement cycle cannot start because
// another cycle holds the cycle lock.
var ErrCycleInProgress = errors.New("a settlement cycle is already running")

// Jobs contains the logic for all scheduled settlement tasks.
type Jobs struct {
	repo          store.Repository
	applier       *Applier
	lock          *CycleLock
	eventProducer rabbitmq.Publisher
	logger        *slog.Logger
	config        config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, applier *Applier, lock *CycleLock, producer rabbitmq.Publisher, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:          repo,
		applier:       applier,
		lock:          lock,
		eventProducer: producer,
		logger:        logger,
		config:        cfg,
	}
}

// RunSettlementCycle is the cron entry point. It runs one cycle and logs the
// outcome; a tick that finds another cycle running is skipped, not queued.
func (j *Jobs) RunSettlementCycle() {
	j.logger.Info("starting settlement cycle")
	ctx := context.Background()

	report, err := j.SettleCampaigns(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			j.logger.Warn("settlement tick skipped, previous cycle still running")
			metrics.CycleTicksSkippedTotal.Inc()
			return
		}
		j.logger.Error("settlement cycle aborted", "error", err)
		metrics.SettlementCyclesTotal.WithLabelValues("aborted").Inc()
		return
	}

	j.logger.Info("settlement cycle finished",
		"cycle_id", report.CycleID,
		"campaigns_completed", len(report.CompletedCampaignIDs),
		"users_settled", len(report.SettledUserIDs),
		"retried_deltas", report.RetriedDeltas,
		"campaign_failures", len(report.CampaignFailures),
		"user_failures", len(report.UserFailures),
	)
}

// SettleCampaigns runs one settlement cycle and returns its report. The
// cycle is guarded by the cycle lock; a scan or enqueue failure aborts the
// cycle before any ledger is mutated. Per-entity write failures during apply
// do not abort the cycle; they are reported in the returned CycleReport.
func (j *Jobs) SettleCampaigns(ctx context.Context) (domain.CycleReport, error) {
	token, acquired, err := j.lock.Acquire(ctx)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		return domain.CycleReport{}, ErrCycleInProgress
	}
	defer func() {
		if err := j.lock.Release(context.WithoutCancel(ctx), token); err != nil {
			j.logger.Warn("failed to release cycle lock", "error", err)
		}
	}()

	cycleID := uuid.New()
	started := time.Now()

	retriedReport := j.drainPendingDeltas(ctx, cycleID)

	now := time.Now()
	campaigns, err := j.repo.ListDueCampaigns(ctx, now)
	if err != nil {
		metrics.SettlementCyclesTotal.WithLabelValues("aborted").Inc()
		return domain.CycleReport{}, fmt.Errorf("failed to scan due campaigns: %w", err)
	}

	if len(campaigns) == 0 && retriedReport.RetriedDeltas == 0 {
		j.logger.Info("no campaigns due for settlement", "cycle_id", cycleID)
		metrics.SettlementCyclesTotal.WithLabelValues("success").Inc()
		retriedReport.CycleID = cycleID
		retriedReport.StartedAt = started
		retriedReport.FinishedAt = time.Now()
		return retriedReport, nil
	}

	deltas := BuildDeltas(campaigns, now)
	order := OrderedUserIDs(deltas)

	pending, err := j.repo.EnqueuePendingDeltas(ctx, cycleID, order, deltas)
	if err != nil {
		metrics.SettlementCyclesTotal.WithLabelValues("aborted").Inc()
		return domain.CycleReport{}, fmt.Errorf("failed to enqueue user deltas: %w", err)
	}

	report := j.applier.Apply(ctx, cycleID, campaigns, pending)
	report.RetriedDeltas = retriedReport.RetriedDeltas
	report.SettledUserIDs = append(report.SettledUserIDs, retriedReport.SettledUserIDs...)
	report.UserFailures = append(report.UserFailures, retriedReport.UserFailures...)

	j.publishCycleEvents(ctx, report, campaigns)

	metrics.SettlementCycleDurationSeconds.Observe(time.Since(started).Seconds())
	if report.Failed() {
		metrics.SettlementCyclesTotal.WithLabelValues("partial_failure").Inc()
	} else {
		metrics.SettlementCyclesTotal.WithLabelValues("success").Inc()
	}

	return report, nil
}

// drainPendingDeltas applies user deltas whose writes failed in earlier
// cycles. Draining before the scan keeps retried credits ahead of new ones
// and keeps the queue from growing without bound.
func (j *Jobs) drainPendingDeltas(ctx context.Context, cycleID uuid.UUID) domain.CycleReport {
	claimed, err := j.repo.ClaimPendingDeltas(ctx, j.config.PendingDeltaBatchSize, j.config.PendingDeltaStaleSeconds)
	if err != nil {
		j.logger.Error("failed to claim pending deltas", "cycle_id", cycleID, "error", err)
		return domain.CycleReport{}
	}
	if len(claimed) == 0 {
		return domain.CycleReport{}
	}

	j.logger.Info("retrying pending deltas from earlier cycles", "cycle_id", cycleID, "count", len(claimed))
	metrics.PendingDeltasRetriedTotal.Add(float64(len(claimed)))

	report := j.applier.Apply(ctx, cycleID, nil, claimed)
	report.RetriedDeltas = len(claimed)
	return report
}

// publishCycleEvents emits the cycle summary and one event per campaign the
// cycle completed. Publish failures are logged, never fatal to the cycle.
func (j *Jobs) publishCycleEvents(ctx context.Context, report domain.CycleReport, campaigns []domain.Campaign) {
	byID := make(map[uuid.UUID]domain.Campaign, len(campaigns))
	for _, c := range campaigns {
		byID[c.ID] = c
	}

	for _, campaignID := range report.CompletedCampaignIDs {
		c := byID[campaignID]
		event := rabbitmq.CampaignCompletedEvent{
			CampaignID:    campaignID,
			Points:        c.Points,
			VerifiedUsers: c.VerifiedUsersCount,
			Timestamp:     time.Now(),
		}
		if err := j.eventProducer.PublishCampaignCompleted(ctx, event); err != nil {
			j.logger.Warn("failed to publish campaign completed event", "campaign_id", campaignID, "error", err)
		}
	}

	event := rabbitmq.CycleCompletedEvent{
		CycleID:            report.CycleID,
		CampaignsCompleted: len(report.CompletedCampaignIDs),
		UsersSettled:       len(report.SettledUserIDs),
		RetriedDeltas:      report.RetriedDeltas,
		CampaignFailures:   len(report.CampaignFailures),
		UserFailures:       len(report.UserFailures),
		Timestamp:          time.Now(),
	}
	if err := j.eventProducer.PublishCycleCompleted(ctx, event); err != nil {
		j.logger.Warn("failed to publish cycle completed event", "cycle_id", report.CycleID, "error", err)
	}
}
