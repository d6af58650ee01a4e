/**
 * @description
 * This file defines the data access contract consumed by the settlement
 * pipeline, along with the sentinel errors the implementations return.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecobloom/settlement-service/internal/domain"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrUserNotFound     = errors.New("user not found")
)

// Repository defines the ledger store operations needed by settlement cycles.
type Repository interface {
	// ListDueCampaigns returns campaigns that are not completed and whose end
	// date has passed, each with its verified-user list resolved in list
	// order. An empty slice is a normal outcome.
	ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// MarkCampaignCompleted flips a campaign's is_completed flag to true.
	// The flag never reverts.
	MarkCampaignCompleted(ctx context.Context, campaignID uuid.UUID) error

	// EnqueuePendingDeltas durably records one pending delta row per user,
	// in the given issue order, and returns the created rows.
	EnqueuePendingDeltas(ctx context.Context, cycleID uuid.UUID, order []uuid.UUID, deltas map[uuid.UUID]*domain.AggregatedDelta) ([]domain.PendingDelta, error)

	// ApplyPendingDelta credits the user's points, appends the newly
	// completed campaigns and activity entries, and deletes the pending row,
	// all in one transaction.
	ApplyPendingDelta(ctx context.Context, delta domain.PendingDelta) error

	// ClaimPendingDeltas returns due pending rows left behind by earlier
	// cycles and stamps them processing. Rows stuck in processing longer than
	// staleAfterSeconds are reclaimed.
	ClaimPendingDeltas(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.PendingDelta, error)

	// MarkPendingDeltaFailed returns a claimed row to pending with a retry
	// delay and records the failure reason.
	MarkPendingDeltaFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}
