package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrNotFound is returned when a requested event or ticket type does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles event and ticket type persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, title, description, location, capacity, price_cents, currency,
	starts_at, ends_at, status, created_by, organization_id, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Capacity, &e.PriceCents,
		&e.Currency, &e.StartsAt, &e.EndsAt, &e.Status, &e.CreatedBy, &e.OrganizationID,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event in draft status.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events
		(id, title, description, location, capacity, price_cents, currency, starts_at, ends_at, status, created_by, organization_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Title, e.Description, e.Location, e.Capacity,
		e.PriceCents, e.Currency, e.StartsAt, e.EndsAt, e.Status, e.CreatedBy, e.OrganizationID).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns events, optionally restricted to one status.
func (r *Repository) List(ctx context.Context, status string) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events`
	var args []interface{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY starts_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// SetStatus updates the event lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const ticketTypeColumns = `id, event_id, name, description, price_cents, early_bird_cents,
	early_bird_ends_at, quantity, quantity_sold, min_per_order, max_per_order, status,
	sort_order, created_at, updated_at`

func scanTicketType(row pgx.Row) (*models.TicketType, error) {
	var t models.TicketType
	err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.Description, &t.PriceCents,
		&t.EarlyBirdCents, &t.EarlyBirdEndsAt, &t.Quantity, &t.QuantitySold,
		&t.MinPerOrder, &t.MaxPerOrder, &t.Status, &t.SortOrder, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTicketType inserts a ticket type for an event.
func (r *Repository) CreateTicketType(ctx context.Context, t *models.TicketType) error {
	const q = `INSERT INTO ticket_types
		(id, event_id, name, description, price_cents, early_bird_cents, early_bird_ends_at,
		 quantity, min_per_order, max_per_order, status, sort_order)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, quantity_sold, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, t.EventID, t.Name, t.Description, t.PriceCents,
		t.EarlyBirdCents, t.EarlyBirdEndsAt, t.Quantity, t.MinPerOrder, t.MaxPerOrder,
		t.Status, t.SortOrder).
		Scan(&t.ID, &t.QuantitySold, &t.CreatedAt, &t.UpdatedAt)
}

// ListTicketTypes returns all ticket types of an event in sort order.
func (r *Repository) ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE event_id = $1 ORDER BY sort_order, created_at`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TicketType
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// ActiveTicketTypes returns the event's active ticket types. An event with at
// least one is sold per ticket type; an event with none falls back to flat
// capacity.
func (r *Repository) ActiveTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types
		 WHERE event_id = $1 AND status <> $2 ORDER BY sort_order, created_at`,
		eventID, models.TicketTypeStatusInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TicketType
	for rows.Next() {
		t, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// GetTicketType returns one ticket type or ErrNotFound.
func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	t, err := scanTicketType(r.pool.QueryRow(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// CountRegistrations returns confirmed and checked-in registration counts.
func (r *Repository) CountRegistrations(ctx context.Context, eventID uuid.UUID) (total, checkedIn int, err error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE checked_in)
		FROM registrations WHERE event_id = $1 AND status = $2`
	err = r.pool.QueryRow(ctx, q, eventID, models.RegistrationStatusConfirmed).Scan(&total, &checkedIn)
	return total, checkedIn, err
}
