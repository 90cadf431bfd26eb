package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger computes sold and remaining units from the purchase records.
// Cancelled registrations cascade-delete their purchases, so sums over
// ticket_purchases only ever cover confirmed sales.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates an inventory ledger over the database pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// SoldCount sums purchased quantities for a ticket type.
func (l *Ledger) SoldCount(ctx context.Context, ticketTypeID uuid.UUID) (int, error) {
	return soldCount(ctx, l.pool, ticketTypeID)
}

// LegacySoldCount sums per-registration quantities over confirmed
// registrations that have no ticket purchases: the backward-compatibility
// path for events created before the ticket-type model.
func (l *Ledger) LegacySoldCount(ctx context.Context, eventID uuid.UUID) (int, error) {
	return legacySoldCountTx(ctx, l.pool, eventID)
}

func soldCount(ctx context.Context, q querier, ticketTypeID uuid.UUID) (int, error) {
	var sold int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM ticket_purchases WHERE ticket_type_id = $1`,
		ticketTypeID,
	).Scan(&sold)
	return sold, err
}

func legacySoldCountTx(ctx context.Context, q querier, eventID uuid.UUID) (int, error) {
	var sold int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(GREATEST(COALESCE((r.metadata->>'quantity')::int, 1), 1)), 0)
		 FROM registrations r
		 WHERE r.event_id = $1
		   AND r.status = $2
		   AND NOT EXISTS (SELECT 1 FROM ticket_purchases tp WHERE tp.registration_id = r.id)`,
		eventID, "confirmed",
	).Scan(&sold)
	return sold, err
}
