/**
 * @description
 * Settlement cycle domain models: the in-memory aggregated delta produced by
 * the aggregation step, the durable pending delta row it is persisted into,
 * and the per-cycle outcome report.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregatedDelta is the net change computed for one user across all
// campaigns completing in a single settlement cycle. It lives only for the
// duration of the cycle that built it.
type AggregatedDelta struct {
	// Seq is the position at which the user was first seen during
	// aggregation. Delta writes are issued in Seq order.
	Seq                       int             `json:"-"`
	PointsDelta               int64           `json:"points_delta"`
	NewlyCompletedCampaignIDs []uuid.UUID     `json:"newly_completed_campaign_ids"`
	ActivityEntries           []ActivityEntry `json:"activity_entries"`
}

// DeltaPayload is the JSON body persisted with a pending delta row.
type DeltaPayload struct {
	CampaignIDs []uuid.UUID     `json:"campaign_ids"`
	Activity    []ActivityEntry `json:"activity"`
}

// PendingDelta is one durable per-user delta queued for application. Rows are
// deleted in the same transaction that applies them; a failed application
// leaves the row behind for a later retry.
type PendingDelta struct {
	ID          int64
	CycleID     uuid.UUID
	UserID      uuid.UUID
	PointsDelta int64
	Payload     DeltaPayload
	Attempts    int
}

// EntityFailure records one campaign or user write that did not complete
// during a cycle.
type EntityFailure struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

// CycleReport aggregates the outcome of every write issued by one settlement
// cycle. Partial success is an expected outcome, not a corruption state.
type CycleReport struct {
	CycleID              uuid.UUID       `json:"cycle_id"`
	StartedAt            time.Time       `json:"started_at"`
	FinishedAt           time.Time       `json:"finished_at"`
	CompletedCampaignIDs []uuid.UUID     `json:"completed_campaign_ids"`
	SettledUserIDs       []uuid.UUID     `json:"settled_user_ids"`
	RetriedDeltas        int             `json:"retried_deltas"`
	CampaignFailures     []EntityFailure `json:"campaign_failures"`
	UserFailures         []EntityFailure `json:"user_failures"`
}

// Failed reports whether any write in the cycle did not complete.
func (r CycleReport) Failed() bool {
	return len(r.CampaignFailures) > 0 || len(r.UserFailures) > 0
}
