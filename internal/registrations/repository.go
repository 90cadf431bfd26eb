package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/models"
)

// ErrNotFound is returned when a registration does not exist.
var ErrNotFound = errors.New("registration not found")

// ErrAlreadyRegistered is returned when the user already holds a registration
// for the event. The (user_id, event_id) unique constraint is the final
// arbiter under concurrency.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrCommitConflict is returned when a transaction keeps losing serialization
// races after the bounded retries. The caller can simply try again.
var ErrCommitConflict = errors.New("could not commit after concurrent conflicts")

const regColumns = `id, event_id, user_id, status, total_cents, final_cents, payment_status,
	promo_code_used, ticket_token, checked_in, checked_in_at, checked_in_by, metadata,
	created_at, updated_at`

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.TotalCents,
		&reg.FinalCents, &reg.PaymentStatus, &reg.PromoCodeUsed, &reg.TicketToken,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy, &reg.Metadata,
		&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Repository handles registration persistence and owns the transaction
// boundary for the purchase commit.
type Repository struct {
	pool          *pgxpool.Pool
	retryAttempts int
}

// NewRepository creates a registrations repository. retryAttempts bounds the
// automatic retries of a transaction aborted by a serialization conflict.
func NewRepository(pool *pgxpool.Pool, retryAttempts int) *Repository {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Repository{pool: pool, retryAttempts: retryAttempts}
}

// Tx is the unit of work handed to commit functions. Every read that feeds a
// write must go through it so the whole purchase is one atomic step.
type Tx struct {
	tx pgx.Tx
}

// ReserveInventory claims qty units from the source inside this transaction.
func (t Tx) ReserveInventory(ctx context.Context, src inventory.Source, qty int) error {
	return src.Reserve(ctx, t.tx, qty)
}

// ReleaseInventory returns qty previously reserved units inside this
// transaction.
func (t Tx) ReleaseInventory(ctx context.Context, src inventory.Source, qty int) error {
	return src.Release(ctx, t.tx, qty)
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Transactions aborted by a serialization conflict are
// retried up to the configured bound; domain errors are returned as-is.
func (r *Repository) WithTx(ctx context.Context, fn func(CommitTx) error) error {
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrCommitConflict, err)
}

func (r *Repository) runTx(ctx context.Context, fn func(CommitTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(Tx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isSerializationFailure reports whether the error is a retryable
// serialization or deadlock abort (SQLSTATE 40001 / 40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// GetPromoByCodeForUpdate loads a promo code inside the transaction with a
// row lock, so used_count checks and increments serialize across concurrent
// buyers. Returns nil if the code does not exist.
func (t Tx) GetPromoByCodeForUpdate(ctx context.Context, code string) (*models.PromoCode, error) {
	const q = `SELECT id, event_id, code, type, discount_value, max_uses, max_uses_per_user,
		used_count, valid_from, valid_until, min_purchase_cents, applicable_ticket_types,
		is_active, created_at, updated_at
		FROM promo_codes WHERE code = $1 FOR UPDATE`
	var pc models.PromoCode
	err := t.tx.QueryRow(ctx, q, code).Scan(&pc.ID, &pc.EventID, &pc.Code, &pc.Type,
		&pc.DiscountValue, &pc.MaxUses, &pc.MaxUsesPerUser, &pc.UsedCount,
		&pc.ValidFrom, &pc.ValidUntil, &pc.MinPurchaseCents, &pc.ApplicableTicketTypes,
		&pc.IsActive, &pc.CreatedAt, &pc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// CountPromoUsesByUser counts ticket purchases referencing the code whose
// registration belongs to the user.
func (t Tx) CountPromoUsesByUser(ctx context.Context, promoID, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM ticket_purchases tp
		 JOIN registrations r ON r.id = tp.registration_id
		 WHERE tp.promo_code_id = $1 AND r.user_id = $2`,
		promoID, userID,
	).Scan(&n)
	return n, err
}

// IncrementPromoUsage bumps used_count once per registration that applies the
// code. Never decremented; cancellation does not refund usage.
func (t Tx) IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`,
		promoID)
	return err
}

// InsertRegistration creates the registration row, mapping a duplicate
// (user_id, event_id) to ErrAlreadyRegistered.
func (t Tx) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations
		(id, event_id, user_id, status, total_cents, final_cents, payment_status, promo_code_used, metadata)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := t.tx.QueryRow(ctx, q, reg.EventID, reg.UserID, reg.Status, reg.TotalCents,
		reg.FinalCents, reg.PaymentStatus, reg.PromoCodeUsed, reg.Metadata).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// InsertPurchase creates one ticket purchase line.
func (t Tx) InsertPurchase(ctx context.Context, p *models.TicketPurchase) error {
	const q = `INSERT INTO ticket_purchases
		(id, registration_id, ticket_type_id, promo_code_id, quantity, unit_price_cents,
		 subtotal_cents, discount_cents, ticket_numbers)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	err := t.tx.QueryRow(ctx, q, p.RegistrationID, p.TicketTypeID, p.PromoCodeID,
		p.Quantity, p.UnitPriceCents, p.SubtotalCents, p.DiscountCents, p.TicketNumbers).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket purchase: %w", err)
	}
	return nil
}

// PurchasesByRegistration returns the purchase lines of a registration inside
// the transaction.
func (t Tx) PurchasesByRegistration(ctx context.Context, regID uuid.UUID) ([]models.TicketPurchase, error) {
	return queryPurchases(ctx, t.tx, regID)
}

// DeleteRegistration removes a registration; ticket purchases cascade.
func (t Tx) DeleteRegistration(ctx context.Context, regID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, regID)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTicketTypeForUpdate loads a ticket type row inside the transaction for
// cancellation release.
func (t Tx) GetTicketTypeForUpdate(ctx context.Context, id uuid.UUID) (*models.TicketType, error) {
	const q = `SELECT id, event_id, name, description, price_cents, early_bird_cents,
		early_bird_ends_at, quantity, quantity_sold, min_per_order, max_per_order, status,
		sort_order, created_at, updated_at
		FROM ticket_types WHERE id = $1 FOR UPDATE`
	var tt models.TicketType
	err := t.tx.QueryRow(ctx, q, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Description,
		&tt.PriceCents, &tt.EarlyBirdCents, &tt.EarlyBirdEndsAt, &tt.Quantity, &tt.QuantitySold,
		&tt.MinPerOrder, &tt.MaxPerOrder, &tt.Status, &tt.SortOrder, &tt.CreatedAt, &tt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tt, nil
}

// GetByUserAndEvent returns the user's registration for an event, or
// ErrNotFound.
func (r *Repository) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE user_id = $1 AND event_id = $2`,
		userID, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// GetByID returns a registration by ID, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// ListByUser returns the user's registrations with nested event and purchase
// lines, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+regColumns+` FROM registrations WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var regs []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range regs {
		event, err := r.eventByID(ctx, regs[i].EventID)
		if err == nil {
			regs[i].Event = event
		}
		purchases, err := queryPurchases(ctx, r.pool, regs[i].ID)
		if err != nil {
			return nil, err
		}
		regs[i].Purchases = purchases
	}
	return regs, nil
}

// Purchases returns the purchase lines of a registration.
func (r *Repository) Purchases(ctx context.Context, regID uuid.UUID) ([]models.TicketPurchase, error) {
	return queryPurchases(ctx, r.pool, regID)
}

// SetTicketToken persists a minted credential token onto the registration.
func (r *Repository) SetTicketToken(ctx context.Context, regID uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE registrations SET ticket_token = $2, updated_at = NOW() WHERE id = $1`,
		regID, token)
	return err
}

func (r *Repository) eventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	const q = `SELECT id, title, description, location, capacity, price_cents, currency,
		starts_at, ends_at, status, created_by, organization_id, created_at, updated_at
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).Scan(&e.ID, &e.Title, &e.Description, &e.Location,
		&e.Capacity, &e.PriceCents, &e.Currency, &e.StartsAt, &e.EndsAt, &e.Status,
		&e.CreatedBy, &e.OrganizationID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryPurchases(ctx context.Context, q querier, regID uuid.UUID) ([]models.TicketPurchase, error) {
	rows, err := q.Query(ctx,
		`SELECT id, registration_id, ticket_type_id, promo_code_id, quantity, unit_price_cents,
		 subtotal_cents, discount_cents, ticket_numbers, created_at
		 FROM ticket_purchases WHERE registration_id = $1 ORDER BY created_at`,
		regID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TicketPurchase
	for rows.Next() {
		var p models.TicketPurchase
		if err := rows.Scan(&p.ID, &p.RegistrationID, &p.TicketTypeID, &p.PromoCodeID,
			&p.Quantity, &p.UnitPriceCents, &p.SubtotalCents, &p.DiscountCents,
			&p.TicketNumbers, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
