package promo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrDuplicateCode is returned when creating a promo code whose code string
// already exists.
var ErrDuplicateCode = errors.New("promo code already exists")

// Repository handles promo code persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a promo code repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const promoColumns = `id, event_id, code, type, discount_value, max_uses, max_uses_per_user,
	used_count, valid_from, valid_until, min_purchase_cents, applicable_ticket_types,
	is_active, created_at, updated_at`

func scanPromo(row pgx.Row) (*models.PromoCode, error) {
	var pc models.PromoCode
	err := row.Scan(&pc.ID, &pc.EventID, &pc.Code, &pc.Type, &pc.DiscountValue,
		&pc.MaxUses, &pc.MaxUsesPerUser, &pc.UsedCount, &pc.ValidFrom, &pc.ValidUntil,
		&pc.MinPurchaseCents, &pc.ApplicableTicketTypes, &pc.IsActive, &pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// Create inserts a promo code. Code strings are globally unique.
func (r *Repository) Create(ctx context.Context, pc *models.PromoCode) error {
	const q = `INSERT INTO promo_codes
		(id, event_id, code, type, discount_value, max_uses, max_uses_per_user,
		 valid_from, valid_until, min_purchase_cents, applicable_ticket_types, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, used_count, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, pc.EventID, pc.Code, pc.Type, pc.DiscountValue,
		pc.MaxUses, pc.MaxUsesPerUser, pc.ValidFrom, pc.ValidUntil,
		pc.MinPurchaseCents, pc.ApplicableTicketTypes, pc.IsActive).
		Scan(&pc.ID, &pc.UsedCount, &pc.CreatedAt, &pc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// GetByCode returns a promo code by its code string, or nil if absent.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	pc, err := scanPromo(r.pool.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return pc, err
}

// ListByEvent returns promo codes scoped to an event.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.PromoCode, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE event_id = $1 ORDER BY created_at DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PromoCode
	for rows.Next() {
		pc, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *pc)
	}
	return list, rows.Err()
}
