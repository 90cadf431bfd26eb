package checkin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrNotFound is returned when a registration does not exist.
var ErrNotFound = errors.New("registration not found")

// Repository persists check-in state and the append-only audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-in repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRegistration loads a registration by ID, or ErrNotFound.
func (r *Repository) GetRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, event_id, user_id, status, checked_in, checked_in_at, checked_in_by
		FROM registrations WHERE id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, id).Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// MarkCheckedIn flips the registration to checked-in and appends the audit
// entry in one transaction. The conditional UPDATE makes concurrent scans of
// the same ticket race safely: exactly one wins, the rest observe a no-op.
// updated reports whether this call performed the transition. force skips the
// checked_in guard, re-stamping the row and still appending an audit entry.
func (r *Repository) MarkCheckedIn(ctx context.Context, entry *models.CheckinEntry, force bool) (updated bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	q := `UPDATE registrations
		 SET checked_in = TRUE, checked_in_at = NOW(), checked_in_by = $2, updated_at = NOW()
		 WHERE id = $1 AND checked_in = FALSE`
	if force {
		q = `UPDATE registrations
		 SET checked_in = TRUE, checked_in_at = NOW(), checked_in_by = $2, updated_at = NOW()
		 WHERE id = $1`
	}
	tag, err := tx.Exec(ctx, q, entry.RegistrationID, entry.ActorID)
	if err != nil {
		return false, fmt.Errorf("mark checked in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already checked in. No audit entry for a no-op.
		return false, tx.Commit(ctx)
	}
	if err = r.appendAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// ClearCheckedIn reverses a check-in and appends the undo audit entry in one
// transaction. updated is false when the registration was not checked in.
func (r *Repository) ClearCheckedIn(ctx context.Context, entry *models.CheckinEntry) (updated bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE registrations
		 SET checked_in = FALSE, checked_in_at = NULL, checked_in_by = NULL, updated_at = NOW()
		 WHERE id = $1 AND checked_in = TRUE`,
		entry.RegistrationID)
	if err != nil {
		return false, fmt.Errorf("clear checked in: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}
	if err = r.appendAudit(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) appendAudit(ctx context.Context, tx pgx.Tx, entry *models.CheckinEntry) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO checkin_audit (id, registration_id, action, actor_id, actor_name, note)
		 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		entry.RegistrationID, entry.Action, entry.ActorID, entry.ActorName, entry.Note).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Audit returns the audit trail of a registration, oldest first.
func (r *Repository) Audit(ctx context.Context, regID uuid.UUID) ([]models.CheckinEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, registration_id, action, actor_id, actor_name, note, created_at
		 FROM checkin_audit WHERE registration_id = $1 ORDER BY created_at`,
		regID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []models.CheckinEntry
	for rows.Next() {
		var e models.CheckinEntry
		if err := rows.Scan(&e.ID, &e.RegistrationID, &e.Action, &e.ActorID, &e.ActorName,
			&e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
