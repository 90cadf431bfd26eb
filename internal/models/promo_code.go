package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoType is the discount kind of a promo code. EarlyBird is a display
// category; its discount follows percentage or fixed math depending on the
// configured value.
const (
	PromoTypePercentage  = "percentage"
	PromoTypeFixedAmount = "fixed_amount"
	PromoTypeEarlyBird   = "early_bird"
)

// PromoCode is a discount code, optionally scoped to one event, with usage
// and eligibility limits. UsedCount only ever increases; cancelling a
// registration does not refund code usage.
type PromoCode struct {
	ID                    uuid.UUID   `json:"id"`
	EventID               *uuid.UUID  `json:"event_id,omitempty"` // nil = global
	Code                  string      `json:"code"`
	Type                  string      `json:"type"`
	DiscountValue         int         `json:"discount_value"` // percent points or cents
	MaxUses               *int        `json:"max_uses,omitempty"` // nil = unlimited
	MaxUsesPerUser        int         `json:"max_uses_per_user"`
	UsedCount             int         `json:"used_count"`
	ValidFrom             *time.Time  `json:"valid_from,omitempty"`
	ValidUntil            *time.Time  `json:"valid_until,omitempty"`
	MinPurchaseCents      *int        `json:"min_purchase_cents,omitempty"`
	ApplicableTicketTypes []uuid.UUID `json:"applicable_ticket_types,omitempty"` // empty = all
	IsActive              bool        `json:"is_active"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// AppliesTo reports whether the code is restricted to specific ticket types
// and, if so, whether the given type is one of them.
func (p *PromoCode) AppliesTo(ticketTypeID uuid.UUID) bool {
	if len(p.ApplicableTicketTypes) == 0 {
		return true
	}
	for _, id := range p.ApplicableTicketTypes {
		if id == ticketTypeID {
			return true
		}
	}
	return false
}
