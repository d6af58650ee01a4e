/**
 * @description
 * Campaign domain model used by the settlement service.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign represents a time-boxed initiative that awards a fixed number of
// points to every verified user once the campaign ends.
type Campaign struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Points             int64     `json:"points"`
	EndDate            time.Time `json:"end_date"`
	IsCompleted        bool      `json:"is_completed"`
	VerifiedUsers      []User    `json:"verified_users"`
	VerifiedUsersCount int       `json:"verified_users_count"`
}
