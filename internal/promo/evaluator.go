// Package promo validates discount codes against a cart and computes the
// discount. Evaluation is pure: callers supply the code row and usage counts
// (read inside the commit transaction) so two concurrent buyers cannot both
// squeeze under a usage cap.
package promo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrInvalidPromo is the base error for every promo rejection. Each of the
// eight checks wraps it with its own reason.
var ErrInvalidPromo = errors.New("invalid promo code")

// Input is the cart context a code is evaluated against.
type Input struct {
	EventID       uuid.UUID
	SubtotalCents int
	TicketTypeIDs []uuid.UUID
	// UserUses is how many times this user has already applied the code,
	// counted inside the same transaction as the commit.
	UserUses int
	Now      time.Time
}

// Evaluate runs the ordered validation checks and returns the discount in
// cents. It short-circuits on the first failure; each failure carries a
// distinct reason.
func Evaluate(pc *models.PromoCode, in Input) (int, error) {
	if pc == nil {
		return 0, fmt.Errorf("%w: code not found", ErrInvalidPromo)
	}
	if !pc.IsActive {
		return 0, fmt.Errorf("%w: code %q is no longer active", ErrInvalidPromo, pc.Code)
	}
	if pc.EventID != nil && *pc.EventID != in.EventID {
		return 0, fmt.Errorf("%w: code %q is not valid for this event", ErrInvalidPromo, pc.Code)
	}
	if pc.ValidFrom != nil && in.Now.Before(*pc.ValidFrom) {
		return 0, fmt.Errorf("%w: code %q is not valid yet", ErrInvalidPromo, pc.Code)
	}
	if pc.ValidUntil != nil && in.Now.After(*pc.ValidUntil) {
		return 0, fmt.Errorf("%w: code %q has expired", ErrInvalidPromo, pc.Code)
	}
	if pc.MaxUses != nil && pc.UsedCount >= *pc.MaxUses {
		return 0, fmt.Errorf("%w: code %q has reached maximum uses", ErrInvalidPromo, pc.Code)
	}
	if pc.MaxUsesPerUser > 0 && in.UserUses >= pc.MaxUsesPerUser {
		return 0, fmt.Errorf("%w: you have already used code %q the maximum number of times", ErrInvalidPromo, pc.Code)
	}
	if pc.MinPurchaseCents != nil && in.SubtotalCents < *pc.MinPurchaseCents {
		return 0, fmt.Errorf("%w: code %q requires a minimum purchase of %d cents", ErrInvalidPromo, pc.Code, *pc.MinPurchaseCents)
	}
	if len(pc.ApplicableTicketTypes) > 0 {
		applies := false
		for _, id := range in.TicketTypeIDs {
			if pc.AppliesTo(id) {
				applies = true
				break
			}
		}
		if !applies {
			return 0, fmt.Errorf("%w: code %q does not apply to the selected ticket types", ErrInvalidPromo, pc.Code)
		}
	}
	return Discount(pc, in.SubtotalCents), nil
}

// Discount computes the discount in cents for a validated code. Early-bird
// codes are a display category: values up to 100 follow percentage math,
// larger values are treated as a fixed amount.
func Discount(pc *models.PromoCode, subtotalCents int) int {
	switch pc.Type {
	case models.PromoTypePercentage:
		return subtotalCents * pc.DiscountValue / 100
	case models.PromoTypeFixedAmount:
		return minInt(pc.DiscountValue, subtotalCents)
	case models.PromoTypeEarlyBird:
		if pc.DiscountValue <= 100 {
			return subtotalCents * pc.DiscountValue / 100
		}
		return minInt(pc.DiscountValue, subtotalCents)
	default:
		return 0
	}
}

// Distribute splits a total discount across cart lines proportionally to each
// line's share of the subtotal, assigning the rounding remainder to the last
// line so the shares sum exactly to the total.
func Distribute(totalDiscount int, lineSubtotals []int) []int {
	shares := make([]int, len(lineSubtotals))
	if totalDiscount <= 0 || len(lineSubtotals) == 0 {
		return shares
	}
	subtotal := 0
	for _, s := range lineSubtotals {
		subtotal += s
	}
	if subtotal <= 0 {
		return shares
	}
	assigned := 0
	for i, s := range lineSubtotals {
		if i == len(lineSubtotals)-1 {
			shares[i] = totalDiscount - assigned
			break
		}
		shares[i] = totalDiscount * s / subtotal
		assigned += shares[i]
	}
	return shares
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
