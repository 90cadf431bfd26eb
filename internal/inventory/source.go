// Package inventory answers how many admission units remain for sale and
// enforces purchase policy, for both the per-ticket-type model and the legacy
// flat-capacity model. Both models sit behind the same Source contract so the
// registration flow never branches on ticketing mode.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrInsufficientInventory is returned when a requested quantity exceeds the
// units remaining. Wrapped messages name the limiting ticket type and count.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrInvalidQuantity is returned when a requested quantity falls outside the
// per-order bounds of a ticket type.
var ErrInvalidQuantity = errors.New("invalid quantity")

// Source is one pool of admission units. Reserve must re-check availability
// at write time inside the caller's transaction; a pre-validated quantity can
// still lose a race to a concurrent buyer.
type Source interface {
	// ID identifies the pool: the ticket type ID, or the event ID for
	// legacy flat capacity.
	ID() uuid.UUID
	// Label names the pool in error messages.
	Label() string
	// Available returns unsold units as of the last read, floored at zero.
	Available() int
	// UnitPriceCents returns the price charged per unit at the given time.
	UnitPriceCents(now time.Time) int
	// ValidateQuantity checks the per-order policy and current availability.
	ValidateQuantity(qty int) error
	// Reserve atomically claims qty units inside tx, failing with
	// ErrInsufficientInventory if the pool cannot cover them.
	Reserve(ctx context.Context, tx pgx.Tx, qty int) error
	// Release returns qty previously reserved units inside tx.
	Release(ctx context.Context, tx pgx.Tx, qty int) error
}

// TicketTypeSource sells from one ticket type's capacity, tracked by the
// denormalized quantity_sold counter.
type TicketTypeSource struct {
	tt *models.TicketType
}

// NewTicketTypeSource wraps a ticket type as a Source.
func NewTicketTypeSource(tt *models.TicketType) *TicketTypeSource {
	return &TicketTypeSource{tt: tt}
}

func (s *TicketTypeSource) ID() uuid.UUID { return s.tt.ID }

func (s *TicketTypeSource) Label() string { return s.tt.Name }

func (s *TicketTypeSource) Available() int { return s.tt.Remaining() }

func (s *TicketTypeSource) UnitPriceCents(now time.Time) int {
	return s.tt.EffectivePriceCents(now)
}

// ValidateQuantity checks [min_per_order, max_per_order] and availability.
func (s *TicketTypeSource) ValidateQuantity(qty int) error {
	if qty < s.tt.MinPerOrder {
		return fmt.Errorf("%w: minimum %d tickets per order for %s", ErrInvalidQuantity, s.tt.MinPerOrder, s.tt.Name)
	}
	if s.tt.MaxPerOrder > 0 && qty > s.tt.MaxPerOrder {
		return fmt.Errorf("%w: maximum %d tickets per order for %s", ErrInvalidQuantity, s.tt.MaxPerOrder, s.tt.Name)
	}
	if rem := s.tt.Remaining(); qty > rem {
		return fmt.Errorf("%w: only %d tickets remaining for %s", ErrInsufficientInventory, rem, s.tt.Name)
	}
	return nil
}

// Reserve increments quantity_sold only if the result stays within quantity.
// The conditional UPDATE is the serialization point that prevents overselling
// under concurrent purchases.
func (s *TicketTypeSource) Reserve(ctx context.Context, tx pgx.Tx, qty int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE ticket_types
		 SET quantity_sold = quantity_sold + $2, updated_at = NOW()
		 WHERE id = $1 AND quantity_sold + $2 <= quantity`,
		s.tt.ID, qty,
	)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", s.tt.Name, err)
	}
	if tag.RowsAffected() == 0 {
		var remaining int
		if err := tx.QueryRow(ctx,
			`SELECT GREATEST(quantity - quantity_sold, 0) FROM ticket_types WHERE id = $1`,
			s.tt.ID,
		).Scan(&remaining); err != nil {
			return fmt.Errorf("check remaining for %s: %w", s.tt.Name, err)
		}
		return fmt.Errorf("%w: only %d tickets remaining for %s", ErrInsufficientInventory, remaining, s.tt.Name)
	}
	_, err = tx.Exec(ctx,
		`UPDATE ticket_types SET status = $2 WHERE id = $1 AND quantity_sold >= quantity AND status = $3`,
		s.tt.ID, models.TicketTypeStatusSoldOut, models.TicketTypeStatusActive,
	)
	if err != nil {
		return fmt.Errorf("mark sold out %s: %w", s.tt.Name, err)
	}
	return nil
}

// Release decrements quantity_sold by a previously reserved amount and
// reopens a sold-out type.
func (s *TicketTypeSource) Release(ctx context.Context, tx pgx.Tx, qty int) error {
	_, err := tx.Exec(ctx,
		`UPDATE ticket_types
		 SET quantity_sold = GREATEST(quantity_sold - $2, 0),
		     status = CASE WHEN status = $3 THEN $4 ELSE status END,
		     updated_at = NOW()
		 WHERE id = $1`,
		s.tt.ID, qty, models.TicketTypeStatusSoldOut, models.TicketTypeStatusActive,
	)
	if err != nil {
		return fmt.Errorf("release %s: %w", s.tt.Name, err)
	}
	return nil
}

// FlatCapacitySource sells from the event's bare capacity, for events created
// before the ticket-type model. Sold units are derived from confirmed
// registrations without ticket purchases, so Reserve validates under a row
// lock rather than maintaining a counter.
type FlatCapacitySource struct {
	event *models.Event
	sold  int
}

// NewFlatCapacitySource wraps an event's flat capacity as a Source. sold is
// the legacy sold count as of the pre-transaction read.
func NewFlatCapacitySource(event *models.Event, sold int) *FlatCapacitySource {
	return &FlatCapacitySource{event: event, sold: sold}
}

func (s *FlatCapacitySource) ID() uuid.UUID { return s.event.ID }

func (s *FlatCapacitySource) Label() string { return s.event.Title }

func (s *FlatCapacitySource) Available() int {
	if rem := s.event.Capacity - s.sold; rem > 0 {
		return rem
	}
	return 0
}

func (s *FlatCapacitySource) UnitPriceCents(time.Time) int {
	return s.event.PriceCents
}

func (s *FlatCapacitySource) ValidateQuantity(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: at least one ticket required", ErrInvalidQuantity)
	}
	if rem := s.Available(); qty > rem {
		return fmt.Errorf("%w: only %d spots remaining for %s", ErrInsufficientInventory, rem, s.event.Title)
	}
	return nil
}

// Reserve locks the event row and re-derives the legacy sold count inside the
// transaction, so two concurrent buyers cannot both observe free capacity.
func (s *FlatCapacitySource) Reserve(ctx context.Context, tx pgx.Tx, qty int) error {
	var capacity int
	if err := tx.QueryRow(ctx,
		`SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, s.event.ID,
	).Scan(&capacity); err != nil {
		return fmt.Errorf("lock event row: %w", err)
	}
	sold, err := legacySoldCountTx(ctx, tx, s.event.ID)
	if err != nil {
		return fmt.Errorf("count legacy sold: %w", err)
	}
	if sold+qty > capacity {
		remaining := capacity - sold
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Errorf("%w: only %d spots remaining for %s", ErrInsufficientInventory, remaining, s.event.Title)
	}
	return nil
}

// Release is a no-op for flat capacity: sold units are derived from the
// registrations themselves, so deleting the registration frees them.
func (s *FlatCapacitySource) Release(context.Context, pgx.Tx, int) error {
	return nil
}
