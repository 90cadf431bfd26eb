package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckinAction tags one audit entry. Entries are append-only.
const (
	CheckinActionCheckIn     = "check_in"
	CheckinActionCheckInUndo = "check_in_undo"
	CheckinActionBulkCheckIn = "bulk_check_in"
)

// CheckinEntry is one row of the append-only check-in audit trail for a
// registration, ordered by timestamp.
type CheckinEntry struct {
	ID             uuid.UUID `json:"id"`
	RegistrationID uuid.UUID `json:"registration_id"`
	Action         string    `json:"action"`
	ActorID        uuid.UUID `json:"actor_id"`
	ActorName      string    `json:"actor_name"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
