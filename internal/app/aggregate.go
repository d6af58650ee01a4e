/**
 * @description
 * The aggregation step of a settlement cycle. It collapses the many-to-many
 * campaign/verified-user relationship into one aggregated delta per user.
 * Pure in-memory computation: it only reads the campaign values passed in and
 * performs no I/O.
 */
package app

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ecobloom/settlement-service/internal/domain"
)

// BuildDeltas walks the scanned campaigns in scan order and their verified
// users in list order, accumulating one delta per user. A campaign with no
// verified users contributes no deltas (it is still marked completed by the
// applier). A user listed in several completing campaigns gets one combined
// delta whose campaign ids and activity entries follow campaign scan order.
//
// The verified-user list is trusted as given: a duplicate occurrence of a
// user within one campaign's list credits the points once per occurrence,
// but the campaign id and its activity entry are recorded once per campaign.
func BuildDeltas(campaigns []domain.Campaign, now time.Time) map[uuid.UUID]*domain.AggregatedDelta {
	deltas := make(map[uuid.UUID]*domain.AggregatedDelta)
	seq := 0

	for _, campaign := range campaigns {
		if campaign.VerifiedUsersCount <= 0 {
			continue
		}
		credited := make(map[uuid.UUID]bool, len(campaign.VerifiedUsers))
		for _, user := range campaign.VerifiedUsers {
			delta, ok := deltas[user.ID]
			if !ok {
				delta = &domain.AggregatedDelta{Seq: seq}
				seq++
				deltas[user.ID] = delta
			}
			delta.PointsDelta += campaign.Points

			if credited[user.ID] {
				continue
			}
			credited[user.ID] = true

			delta.NewlyCompletedCampaignIDs = append(delta.NewlyCompletedCampaignIDs, campaign.ID)
			delta.ActivityEntries = append(delta.ActivityEntries, domain.ActivityEntry{
				Content: campaignActivityContent(campaign),
				Date:    now,
				Type:    domain.ActivityTypeCompletedCampaign,
			})
		}
	}

	return deltas
}

// OrderedUserIDs returns the users of a delta map in the order they were
// first seen during aggregation, which is the order their writes are issued.
func OrderedUserIDs(deltas map[uuid.UUID]*domain.AggregatedDelta) []uuid.UUID {
	order := make([]uuid.UUID, len(deltas))
	for userID, delta := range deltas {
		order[delta.Seq] = userID
	}
	return order
}

func campaignActivityContent(c domain.Campaign) string {
	return fmt.Sprintf("Congratulations on completing the campaign %q! You have been awarded 🪙%d points!", c.Name, c.Points)
}
