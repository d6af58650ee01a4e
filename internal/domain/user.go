/**
 * @description
 * User domain model and activity log entries.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityTypeCompletedCampaign is the activity log entry type recorded when
// a user is credited for a completed campaign.
const ActivityTypeCompletedCampaign = "completedCampaign"

// User represents a participant whose point balance and history are settled
// by this service. Points are monotonically non-decreasing across settlement
// cycles; spends happen elsewhere.
type User struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Points int64     `json:"points"`
}

// ActivityEntry is one immutable record in a user's activity log.
type ActivityEntry struct {
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Type    string    `json:"type"`
}
