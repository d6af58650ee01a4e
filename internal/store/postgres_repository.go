/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL for scanning due campaigns, completing
 * them, and applying aggregated user deltas through the durable
 * pending_user_deltas queue.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ecobloom/settlement-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListDueCampaigns fetches campaigns with is_completed = FALSE and
// end_date <= now, in deterministic scan order, and resolves each campaign's
// verified-user list in membership order.
func (r *PostgresRepository) ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := `
		SELECT id, name, points, end_date, is_completed
		FROM campaigns
		WHERE is_completed = FALSE
		  AND end_date <= $1
		ORDER BY end_date, id
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Points, &c.EndDate, &c.IsCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range campaigns {
		users, err := r.listVerifiedUsers(ctx, campaigns[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve verified users for campaign %s: %w", campaigns[i].ID, err)
		}
		campaigns[i].VerifiedUsers = users
		campaigns[i].VerifiedUsersCount = len(users)
	}

	return campaigns, nil
}

// listVerifiedUsers returns a campaign's verified users ordered by their
// position in the membership list.
func (r *PostgresRepository) listVerifiedUsers(ctx context.Context, campaignID uuid.UUID) ([]domain.User, error) {
	query := `
		SELECT u.id, u.name, u.points
		FROM campaign_verified_users cvu
		JOIN users u ON u.id = cvu.user_id
		WHERE cvu.campaign_id = $1
		ORDER BY cvu.position
	`
	rows, err := r.db.Query(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Points); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// MarkCampaignCompleted sets is_completed = TRUE for a campaign. The write is
// a no-op for campaigns already completed, so re-running a cycle against a
// partially-applied state is safe.
func (r *PostgresRepository) MarkCampaignCompleted(ctx context.Context, campaignID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET is_completed = TRUE,
			updated_at = NOW()
		WHERE id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("failed to mark campaign %s completed: %w", campaignID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// EnqueuePendingDeltas persists one pending delta row per user in issue
// order. The insert is transactional: either every delta of the cycle is
// durably queued or none is.
func (r *PostgresRepository) EnqueuePendingDeltas(
	ctx context.Context,
	cycleID uuid.UUID,
	order []uuid.UUID,
	deltas map[uuid.UUID]*domain.AggregatedDelta,
) ([]domain.PendingDelta, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	pending := make([]domain.PendingDelta, 0, len(order))
	for _, userID := range order {
		delta, ok := deltas[userID]
		if !ok {
			continue
		}
		payload := domain.DeltaPayload{
			CampaignIDs: delta.NewlyCompletedCampaignIDs,
			Activity:    delta.ActivityEntries,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal delta payload for user %s: %w", userID, err)
		}

		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO pending_user_deltas (cycle_id, user_id, points_delta, payload, status, processing_started_at, next_attempt_at)
			VALUES ($1, $2, $3, $4, 'processing', NOW(), NOW())
			RETURNING id
		`, cycleID, userID, delta.PointsDelta, body).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue delta for user %s: %w", userID, err)
		}

		pending = append(pending, domain.PendingDelta{
			ID:          id,
			CycleID:     cycleID,
			UserID:      userID,
			PointsDelta: delta.PointsDelta,
			Payload:     payload,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return pending, nil
}

// ApplyPendingDelta applies one user's aggregated delta and removes the
// pending row in a single transaction. Point credit is an atomic in-place
// increment against the current persisted balance, never a read-then-write
// of a cached snapshot; the completed-campaign insert is conflict-safe so a
// campaign id can never appear twice in a user's history.
func (r *PostgresRepository) ApplyPendingDelta(ctx context.Context, delta domain.PendingDelta) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users
		SET points = points + $1,
			updated_at = NOW()
		WHERE id = $2
	`, delta.PointsDelta, delta.UserID)
	if err != nil {
		return fmt.Errorf("failed to credit points for user %s: %w", delta.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	for _, campaignID := range delta.Payload.CampaignIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_completed_campaigns (user_id, campaign_id, completed_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, campaign_id) DO NOTHING
		`, delta.UserID, campaignID); err != nil {
			return fmt.Errorf("failed to record completed campaign %s for user %s: %w", campaignID, delta.UserID, err)
		}
	}

	for _, entry := range delta.Payload.Activity {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_activity_log (user_id, content, entry_date, entry_type)
			VALUES ($1, $2, $3, $4)
		`, delta.UserID, entry.Content, entry.Date, entry.Type); err != nil {
			return fmt.Errorf("failed to append activity entry for user %s: %w", delta.UserID, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pending_user_deltas WHERE id = $1`, delta.ID); err != nil {
		return fmt.Errorf("failed to dequeue pending delta %d: %w", delta.ID, err)
	}

	return tx.Commit(ctx)
}

// ClaimPendingDeltas picks up due pending rows left behind by earlier cycles
// and stamps them processing. Rows stuck in processing longer than
// staleAfterSeconds (an applier that died mid-flight) are reclaimed.
func (r *PostgresRepository) ClaimPendingDeltas(
	ctx context.Context,
	limit int,
	staleAfterSeconds int,
) ([]domain.PendingDelta, error) {
	if limit <= 0 {
		limit = 100
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = 120
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM pending_user_deltas
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pending_user_deltas AS d
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = d.attempts + 1
		FROM candidates
		WHERE d.id = candidates.id
		RETURNING d.id, d.cycle_id, d.user_id, d.points_delta, d.payload::text, d.attempts
	`

	rows, err := r.db.Query(ctx, query, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deltas := make([]domain.PendingDelta, 0, limit)
	for rows.Next() {
		var d domain.PendingDelta
		var rawPayload string
		if err := rows.Scan(&d.ID, &d.CycleID, &d.UserID, &d.PointsDelta, &rawPayload, &d.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rawPayload), &d.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode pending delta %d payload: %w", d.ID, err)
		}
		deltas = append(deltas, d)
	}
	return deltas, rows.Err()
}

// MarkPendingDeltaFailed returns a claimed row to pending with a retry delay.
func (r *PostgresRepository) MarkPendingDeltaFailed(
	ctx context.Context,
	id int64,
	retryAfterSeconds int,
	reason string,
) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	if len(reason) > 2000 {
		reason = reason[:2000]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE pending_user_deltas
		SET status = 'pending',
			processing_started_at = NULL,
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, reason)
	return err
}
