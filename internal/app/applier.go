/**
 * @description
 * The apply step of a settlement cycle. Campaign completion writes and
 * per-user delta writes are issued concurrently and independently; no write
 * is gated on another's success. All outcomes are collected into a single
 * CycleReport the caller blocks on, so no failure is silently lost.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecobloom/settlement-service/internal/domain"
	"github.com/ecobloom/settlement-service/internal/metrics"
	"github.com/ecobloom/settlement-service/internal/store"
)

// Applier issues the write passes of a settlement cycle.
type Applier struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewApplier creates a new Applier.
func NewApplier(repo store.Repository, logger *slog.Logger) *Applier {
	return &Applier{repo: repo, logger: logger}
}

// Apply marks every scanned campaign completed and applies every queued user
// delta. Each write targets a distinct entity, so the writes within a cycle
// never contend with each other. The returned report lists what succeeded
// and what failed; a failing write never blocks or rolls back its siblings.
func (a *Applier) Apply(ctx context.Context, cycleID uuid.UUID, campaigns []domain.Campaign, deltas []domain.PendingDelta) domain.CycleReport {
	report := domain.CycleReport{CycleID: cycleID, StartedAt: time.Now()}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, campaign := range campaigns {
		wg.Add(1)
		go func(c domain.Campaign) {
			defer wg.Done()
			if err := a.repo.MarkCampaignCompleted(ctx, c.ID); err != nil {
				a.logger.Error("failed to mark campaign completed", "cycle_id", cycleID, "campaign_id", c.ID, "error", err)
				metrics.SettlementWriteFailuresTotal.WithLabelValues("campaign").Inc()
				mu.Lock()
				report.CampaignFailures = append(report.CampaignFailures, domain.EntityFailure{ID: c.ID, Reason: err.Error()})
				mu.Unlock()
				return
			}
			a.logger.Info("campaign completed", "cycle_id", cycleID, "campaign_id", c.ID, "name", c.Name)
			metrics.CampaignsCompletedTotal.Inc()
			mu.Lock()
			report.CompletedCampaignIDs = append(report.CompletedCampaignIDs, c.ID)
			mu.Unlock()
		}(campaign)
	}

	for _, delta := range deltas {
		wg.Add(1)
		go func(d domain.PendingDelta) {
			defer wg.Done()
			if err := a.repo.ApplyPendingDelta(ctx, d); err != nil {
				a.logger.Error("failed to apply user delta", "cycle_id", cycleID, "user_id", d.UserID, "points_delta", d.PointsDelta, "error", err)
				metrics.SettlementWriteFailuresTotal.WithLabelValues("user").Inc()
				if markErr := a.repo.MarkPendingDeltaFailed(ctx, d.ID, retryDelaySeconds(d.Attempts), err.Error()); markErr != nil {
					a.logger.Error("failed to schedule delta retry", "cycle_id", cycleID, "pending_delta_id", d.ID, "error", markErr)
				}
				mu.Lock()
				report.UserFailures = append(report.UserFailures, domain.EntityFailure{ID: d.UserID, Reason: err.Error()})
				mu.Unlock()
				return
			}
			a.logger.Info("user ledger settled", "cycle_id", cycleID, "user_id", d.UserID, "points_delta", d.PointsDelta)
			metrics.UsersSettledTotal.Inc()
			mu.Lock()
			report.SettledUserIDs = append(report.SettledUserIDs, d.UserID)
			mu.Unlock()
		}(delta)
	}

	wg.Wait()
	report.FinishedAt = time.Now()
	return report
}

// retryDelaySeconds grows the retry delay exponentially with the number of
// attempts, capped at five minutes.
func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	if attempt > 8 {
		attempt = 8
	}
	delay := 1 << attempt
	if delay > 300 {
		return 300
	}
	return delay
}
