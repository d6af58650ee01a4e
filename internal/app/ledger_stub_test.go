package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecobloom/settlement-service/internal/domain"
	"github.com/ecobloom/settlement-service/internal/store"
)

// memoryLedger is an in-memory store.Repository used by the settlement
// tests. It mirrors the persistence semantics of the postgres repository:
// atomic per-user delta application, conflict-safe completed-campaign
// inserts, and a pending delta queue with retry scheduling.
type memoryLedger struct {
	mu sync.Mutex

	campaignOrder []uuid.UUID
	campaigns     map[uuid.UUID]*domain.Campaign
	users         map[uuid.UUID]*ledgerUser
	pending       map[int64]*pendingRow
	nextPendingID int64

	listErr      error
	markErrFor   map[uuid.UUID]error
	applyErrFor  map[uuid.UUID]error
	enqueueErr   error
	markedFailed []int64
}

type ledgerUser struct {
	points             int64
	completedCampaigns []uuid.UUID
	activity           []domain.ActivityEntry
}

type pendingRow struct {
	delta       domain.PendingDelta
	status      string
	nextAttempt time.Time
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		campaigns:   make(map[uuid.UUID]*domain.Campaign),
		users:       make(map[uuid.UUID]*ledgerUser),
		pending:     make(map[int64]*pendingRow),
		markErrFor:  make(map[uuid.UUID]error),
		applyErrFor: make(map[uuid.UUID]error),
	}
}

func (l *memoryLedger) addCampaign(c domain.Campaign) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := c
	l.campaigns[c.ID] = &stored
	l.campaignOrder = append(l.campaignOrder, c.ID)
	for _, u := range c.VerifiedUsers {
		if _, ok := l.users[u.ID]; !ok {
			l.users[u.ID] = &ledgerUser{points: u.Points}
		}
	}
}

func (l *memoryLedger) userState(id uuid.UUID) ledgerUser {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u, ok := l.users[id]; ok {
		return *u
	}
	return ledgerUser{}
}

func (l *memoryLedger) pendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// rewindPendingRetries makes every queued row immediately claimable, standing
// in for the retry backoff elapsing between cycles.
func (l *memoryLedger) rewindPendingRetries() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.pending {
		row.status = "pending"
		row.nextAttempt = time.Now().Add(-time.Second)
	}
}

func (l *memoryLedger) ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var due []domain.Campaign
	for _, id := range l.campaignOrder {
		c := l.campaigns[id]
		if !c.IsCompleted && !c.EndDate.After(now) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (l *memoryLedger) MarkCampaignCompleted(ctx context.Context, campaignID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.markErrFor[campaignID]; err != nil {
		return err
	}
	c, ok := l.campaigns[campaignID]
	if !ok {
		return store.ErrCampaignNotFound
	}
	c.IsCompleted = true
	return nil
}

func (l *memoryLedger) EnqueuePendingDeltas(
	ctx context.Context,
	cycleID uuid.UUID,
	order []uuid.UUID,
	deltas map[uuid.UUID]*domain.AggregatedDelta,
) ([]domain.PendingDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enqueueErr != nil {
		return nil, l.enqueueErr
	}
	pending := make([]domain.PendingDelta, 0, len(order))
	for _, userID := range order {
		delta, ok := deltas[userID]
		if !ok {
			continue
		}
		l.nextPendingID++
		row := domain.PendingDelta{
			ID:          l.nextPendingID,
			CycleID:     cycleID,
			UserID:      userID,
			PointsDelta: delta.PointsDelta,
			Payload: domain.DeltaPayload{
				CampaignIDs: delta.NewlyCompletedCampaignIDs,
				Activity:    delta.ActivityEntries,
			},
		}
		l.pending[row.ID] = &pendingRow{delta: row, status: "processing"}
		pending = append(pending, row)
	}
	return pending, nil
}

func (l *memoryLedger) ApplyPendingDelta(ctx context.Context, delta domain.PendingDelta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.applyErrFor[delta.UserID]; err != nil {
		return err
	}
	user, ok := l.users[delta.UserID]
	if !ok {
		return store.ErrUserNotFound
	}
	user.points += delta.PointsDelta
	for _, campaignID := range delta.Payload.CampaignIDs {
		if !containsID(user.completedCampaigns, campaignID) {
			user.completedCampaigns = append(user.completedCampaigns, campaignID)
		}
	}
	user.activity = append(user.activity, delta.Payload.Activity...)
	delete(l.pending, delta.ID)
	return nil
}

func (l *memoryLedger) ClaimPendingDeltas(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.PendingDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	var claimed []domain.PendingDelta
	for id := int64(1); id <= l.nextPendingID && len(claimed) < limit; id++ {
		row, ok := l.pending[id]
		if !ok {
			continue
		}
		if row.status != "pending" || row.nextAttempt.After(now) {
			continue
		}
		row.status = "processing"
		row.delta.Attempts++
		claimed = append(claimed, row.delta)
	}
	return claimed, nil
}

func (l *memoryLedger) MarkPendingDeltaFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.pending[id]
	if !ok {
		return fmt.Errorf("pending delta %d not found", id)
	}
	row.status = "pending"
	row.nextAttempt = time.Now().Add(time.Duration(retryAfterSeconds) * time.Second)
	l.markedFailed = append(l.markedFailed, id)
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
