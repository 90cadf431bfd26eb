package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketTypeStatus for ticket type availability.
const (
	TicketTypeStatusActive   = "active"
	TicketTypeStatusSoldOut  = "sold_out"
	TicketTypeStatusInactive = "inactive"
)

// TicketType is a priced admission tier of an event with its own capacity.
// QuantitySold is a denormalized running total; quantity_sold <= quantity
// is enforced at write time by the reservation update.
type TicketType struct {
	ID                 uuid.UUID  `json:"id"`
	EventID            uuid.UUID  `json:"event_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	PriceCents         int        `json:"price_cents"`
	EarlyBirdCents     *int       `json:"early_bird_cents,omitempty"`
	EarlyBirdEndsAt    *time.Time `json:"early_bird_ends_at,omitempty"`
	Quantity           int        `json:"quantity"`
	QuantitySold       int        `json:"quantity_sold"`
	MinPerOrder        int        `json:"min_per_order"`
	MaxPerOrder        int        `json:"max_per_order"`
	Status             string     `json:"status"`
	SortOrder          int        `json:"sort_order"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// EffectivePriceCents returns the early-bird price while the cutoff has not
// passed, else the regular price.
func (t *TicketType) EffectivePriceCents(now time.Time) int {
	if t.EarlyBirdCents != nil && t.EarlyBirdEndsAt != nil && t.EarlyBirdEndsAt.After(now) {
		return *t.EarlyBirdCents
	}
	return t.PriceCents
}

// Remaining returns unsold units, floored at zero.
func (t *TicketType) Remaining() int {
	if rem := t.Quantity - t.QuantitySold; rem > 0 {
		return rem
	}
	return 0
}
