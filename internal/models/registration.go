package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus for registrations.
const (
	RegistrationStatusConfirmed = "confirmed"
	RegistrationStatusCancelled = "cancelled"
)

// PaymentStatus is the recorded payment state of a registration. The engine
// records amounts and a status flag only; capture and settlement happen
// elsewhere.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Registration is a confirmed purchase of admission to an event, unique per
// (user, event). TotalCents is the pre-discount subtotal, FinalCents the
// post-discount amount actually owed.
type Registration struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"event_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        string          `json:"status"`
	TotalCents    int             `json:"total_cents"`
	FinalCents    int             `json:"final_cents"`
	PaymentStatus string          `json:"payment_status"`
	PromoCodeUsed string          `json:"promo_code_used,omitempty"`
	TicketToken   string          `json:"ticket_token,omitempty"`
	CheckedIn     bool            `json:"checked_in"`
	CheckedInAt   *time.Time      `json:"checked_in_at,omitempty"`
	CheckedInBy   *uuid.UUID      `json:"checked_in_by,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	Event     *Event           `json:"event,omitempty"`
	Purchases []TicketPurchase `json:"purchases,omitempty"`
}

// LegacyQuantity reads the flat-capacity quantity from the metadata blob.
// Registrations created before the ticket-type model stored it there; absent
// means 1.
func (r *Registration) LegacyQuantity() int {
	if len(r.Metadata) == 0 {
		return 1
	}
	var m struct {
		Quantity int `json:"quantity"`
	}
	if err := json.Unmarshal(r.Metadata, &m); err != nil || m.Quantity <= 0 {
		return 1
	}
	return m.Quantity
}

// TicketPurchase is one cart line of a registration: a quantity of one ticket
// type at the unit price actually charged, with this line's share of any promo
// discount and the individually numbered tickets issued for it.
type TicketPurchase struct {
	ID             uuid.UUID  `json:"id"`
	RegistrationID uuid.UUID  `json:"registration_id"`
	TicketTypeID   uuid.UUID  `json:"ticket_type_id"`
	PromoCodeID    *uuid.UUID `json:"promo_code_id,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
	SubtotalCents  int        `json:"subtotal_cents"`
	DiscountCents  int        `json:"discount_cents"`
	TicketNumbers  []string   `json:"ticket_numbers"`
	CreatedAt      time.Time  `json:"created_at"`
}
