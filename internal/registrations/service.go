package registrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/internal/promo"
	"github.com/venueworks/ticketing-backend/pkg/queue"
)

var (
	// ErrEventNotPublished is returned when registering for an event that is
	// not open for registration.
	ErrEventNotPublished = errors.New("event is not open for registration")

	// ErrEventEnded is returned when registering after the event has ended.
	ErrEventEnded = errors.New("event has already ended")

	// ErrNotRegistered is returned when cancelling without a registration.
	ErrNotRegistered = errors.New("not registered for this event")

	// ErrCancellationLocked is returned when cancelling inside the lockout
	// window before the event starts, or after it has started.
	ErrCancellationLocked = errors.New("cancellation window has closed")
)

// CommitTx is the unit of work the purchase commit runs against. Promo usage
// reads, inventory reservation and row inserts all happen through the same
// transaction so the whole purchase is atomic.
type CommitTx interface {
	GetPromoByCodeForUpdate(ctx context.Context, code string) (*models.PromoCode, error)
	CountPromoUsesByUser(ctx context.Context, promoID, userID uuid.UUID) (int, error)
	IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error
	InsertRegistration(ctx context.Context, reg *models.Registration) error
	InsertPurchase(ctx context.Context, p *models.TicketPurchase) error
	PurchasesByRegistration(ctx context.Context, regID uuid.UUID) ([]models.TicketPurchase, error)
	DeleteRegistration(ctx context.Context, regID uuid.UUID) error
	GetTicketTypeForUpdate(ctx context.Context, id uuid.UUID) (*models.TicketType, error)
	ReserveInventory(ctx context.Context, src inventory.Source, qty int) error
	ReleaseInventory(ctx context.Context, src inventory.Source, qty int) error
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	WithTx(ctx context.Context, fn func(CommitTx) error) error
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*models.Registration, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
	Purchases(ctx context.Context, regID uuid.UUID) ([]models.TicketPurchase, error)
	SetTicketToken(ctx context.Context, regID uuid.UUID, token string) error
}

// EventStore reads events and their ticket types.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ActiveTicketTypes(ctx context.Context, eventID uuid.UUID) ([]models.TicketType, error)
}

// LegacyLedger derives sold counts for events without ticket types.
type LegacyLedger interface {
	LegacySoldCount(ctx context.Context, eventID uuid.UUID) (int, error)
}

// Enqueuer defers credential issuance when post-commit minting fails.
type Enqueuer interface {
	EnqueueCredentialIssue(ctx context.Context, payload queue.CredentialIssuePayload) error
}

// Line is one cart entry of a registration request.
type Line struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// RegisterInput is a registration request. Lines drive typed events; Quantity
// is the fallback for events without ticket types.
type RegisterInput struct {
	UserID    uuid.UUID
	EventID   uuid.UUID
	Lines     []Line
	Quantity  int
	PromoCode string
}

// Service orchestrates the registration lifecycle: validation, pricing, the
// atomic commit and credential issuance.
type Service struct {
	store   Store
	events  EventStore
	ledger  LegacyLedger
	codec   credential.Codec
	jobs    Enqueuer
	logger  *zap.Logger
	lockout time.Duration
	now     func() time.Time
}

// NewService creates a registration orchestrator. lockout is how long before
// the event start cancellation closes.
func NewService(store Store, events EventStore, ledger LegacyLedger, codec credential.Codec,
	jobs Enqueuer, logger *zap.Logger, lockout time.Duration) *Service {
	return &Service{
		store:   store,
		events:  events,
		ledger:  ledger,
		codec:   codec,
		jobs:    jobs,
		logger:  logger,
		lockout: lockout,
		now:     time.Now,
	}
}

// pricedLine is one validated cart line with its reservation source.
type pricedLine struct {
	source        inventory.Source
	quantity      int
	unitCents     int
	subtotalCents int
}

// Register runs the full purchase pipeline and returns the confirmed
// registration with its purchase lines and credential attached.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Registration, error) {
	now := s.now()

	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished {
		return nil, ErrEventNotPublished
	}
	if event.EndsAt.Before(now) {
		return nil, ErrEventEnded
	}
	if _, err := s.store.GetByUserAndEvent(ctx, in.UserID, in.EventID); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	lines, legacy, err := s.priceCart(ctx, event, in, now)
	if err != nil {
		return nil, err
	}

	subtotal := 0
	ticketCount := 0
	typeIDs := make([]uuid.UUID, 0, len(lines))
	lineSubtotals := make([]int, 0, len(lines))
	for _, l := range lines {
		subtotal += l.subtotalCents
		ticketCount += l.quantity
		typeIDs = append(typeIDs, l.source.ID())
		lineSubtotals = append(lineSubtotals, l.subtotalCents)
	}

	reg := &models.Registration{
		EventID: in.EventID,
		UserID:  in.UserID,
		Status:  models.RegistrationStatusConfirmed,
	}

	err = s.store.WithTx(ctx, func(tx CommitTx) error {
		discount := 0
		var promoID *uuid.UUID
		if in.PromoCode != "" {
			pc, err := tx.GetPromoByCodeForUpdate(ctx, in.PromoCode)
			if err != nil {
				return err
			}
			uses := 0
			if pc != nil {
				uses, err = tx.CountPromoUsesByUser(ctx, pc.ID, in.UserID)
				if err != nil {
					return err
				}
			}
			discount, err = promo.Evaluate(pc, promo.Input{
				EventID:       in.EventID,
				SubtotalCents: subtotal,
				TicketTypeIDs: typeIDs,
				UserUses:      uses,
				Now:           now,
			})
			if err != nil {
				return err
			}
			promoID = &pc.ID
			reg.PromoCodeUsed = pc.Code
		}

		for _, l := range lines {
			if err := tx.ReserveInventory(ctx, l.source, l.quantity); err != nil {
				return err
			}
		}

		reg.TotalCents = subtotal
		reg.FinalCents = subtotal - discount
		if reg.FinalCents < 0 {
			reg.FinalCents = 0
		}
		reg.PaymentStatus = models.PaymentStatusPending
		if reg.FinalCents == 0 {
			reg.PaymentStatus = models.PaymentStatusCompleted
		}
		if legacy {
			meta, err := json.Marshal(map[string]any{
				"quantity":       lines[0].quantity,
				"ticket_numbers": newTicketNumbers(lines[0].quantity),
			})
			if err != nil {
				return err
			}
			reg.Metadata = meta
		}
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			return err
		}

		if !legacy {
			shares := promo.Distribute(discount, lineSubtotals)
			reg.Purchases = reg.Purchases[:0]
			for i, l := range lines {
				p := &models.TicketPurchase{
					RegistrationID: reg.ID,
					TicketTypeID:   l.source.ID(),
					PromoCodeID:    promoID,
					Quantity:       l.quantity,
					UnitPriceCents: l.unitCents,
					SubtotalCents:  l.subtotalCents,
					DiscountCents:  shares[i],
					TicketNumbers:  newTicketNumbers(l.quantity),
				}
				if err := tx.InsertPurchase(ctx, p); err != nil {
					return err
				}
				reg.Purchases = append(reg.Purchases, *p)
			}
		}

		if promoID != nil {
			return tx.IncrementPromoUsage(ctx, *promoID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.issueCredential(ctx, reg, ticketCount)
	reg.Event = event
	return reg, nil
}

// priceCart validates the requested quantities against the event's inventory
// model and prices each line. legacy reports whether the event sells from
// flat capacity.
func (s *Service) priceCart(ctx context.Context, event *models.Event, in RegisterInput, now time.Time) ([]pricedLine, bool, error) {
	types, err := s.events.ActiveTicketTypes(ctx, event.ID)
	if err != nil {
		return nil, false, err
	}

	if len(types) == 0 {
		qty := in.Quantity
		if qty == 0 {
			qty = 1
		}
		sold, err := s.ledger.LegacySoldCount(ctx, event.ID)
		if err != nil {
			return nil, false, err
		}
		src := inventory.NewFlatCapacitySource(event, sold)
		if err := src.ValidateQuantity(qty); err != nil {
			return nil, false, err
		}
		unit := src.UnitPriceCents(now)
		return []pricedLine{{source: src, quantity: qty, unitCents: unit, subtotalCents: unit * qty}}, true, nil
	}

	if len(in.Lines) == 0 {
		return nil, false, fmt.Errorf("%w: select at least one ticket type", inventory.ErrInvalidQuantity)
	}
	byID := make(map[uuid.UUID]*models.TicketType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}
	seen := make(map[uuid.UUID]bool, len(in.Lines))
	lines := make([]pricedLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		tt, ok := byID[l.TicketTypeID]
		if !ok {
			return nil, false, fmt.Errorf("%w: ticket type %s is not on sale for this event", inventory.ErrInvalidQuantity, l.TicketTypeID)
		}
		if seen[l.TicketTypeID] {
			return nil, false, fmt.Errorf("%w: ticket type %s listed more than once", inventory.ErrInvalidQuantity, l.TicketTypeID)
		}
		seen[l.TicketTypeID] = true
		src := inventory.NewTicketTypeSource(tt)
		if err := src.ValidateQuantity(l.Quantity); err != nil {
			return nil, false, err
		}
		unit := src.UnitPriceCents(now)
		lines = append(lines, pricedLine{source: src, quantity: l.Quantity, unitCents: unit, subtotalCents: unit * l.Quantity})
	}
	return lines, false, nil
}

// issueCredential mints the ticket credential after the commit. A mint or
// persist failure never unwinds the registration; it is logged and handed to
// the worker queue to retry.
func (s *Service) issueCredential(ctx context.Context, reg *models.Registration, ticketCount int) {
	token, err := s.codec.Issue(credential.TicketClaims{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		TicketNumber:   firstTicketNumber(reg),
		Quantity:       ticketCount,
	})
	if err == nil {
		err = s.store.SetTicketToken(ctx, reg.ID, token)
	}
	if err != nil {
		s.logger.Warn("credential issuance failed, deferring to worker",
			zap.String("registration_id", reg.ID.String()),
			zap.Error(err))
		if s.jobs != nil {
			if qErr := s.jobs.EnqueueCredentialIssue(ctx, queue.CredentialIssuePayload{
				RegistrationID: reg.ID,
				EventID:        reg.EventID,
				UserID:         reg.UserID,
			}); qErr != nil {
				s.logger.Error("failed to enqueue credential issuance",
					zap.String("registration_id", reg.ID.String()),
					zap.Error(qErr))
			}
		}
		return
	}
	reg.TicketToken = token
}

// Cancel removes the user's registration for an event, releasing its reserved
// inventory. Promo usage is not refunded.
func (s *Service) Cancel(ctx context.Context, userID, eventID uuid.UUID) error {
	reg, err := s.store.GetByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotRegistered
		}
		return err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if s.now().After(event.StartsAt.Add(-s.lockout)) {
		return ErrCancellationLocked
	}

	return s.store.WithTx(ctx, func(tx CommitTx) error {
		purchases, err := tx.PurchasesByRegistration(ctx, reg.ID)
		if err != nil {
			return err
		}
		for _, p := range purchases {
			tt, err := tx.GetTicketTypeForUpdate(ctx, p.TicketTypeID)
			if err != nil {
				return err
			}
			if err := tx.ReleaseInventory(ctx, inventory.NewTicketTypeSource(tt), p.Quantity); err != nil {
				return err
			}
		}
		return tx.DeleteRegistration(ctx, reg.ID)
	})
}

// ListMine returns the user's registrations with nested events and purchases.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return s.store.ListByUser(ctx, userID)
}

// Ticket returns the credential token for one of the user's registrations,
// minting it on the spot if issuance is still pending.
func (s *Service) Ticket(ctx context.Context, userID, regID uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		return nil, ErrNotFound
	}
	if reg.Purchases, err = s.store.Purchases(ctx, reg.ID); err != nil {
		return nil, err
	}
	if reg.TicketToken == "" {
		if err := s.MintCredential(ctx, reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// MintCredential issues and persists the credential for a registration. Used
// by the lazy path above and by the worker retrying deferred issuance.
func (s *Service) MintCredential(ctx context.Context, reg *models.Registration) error {
	purchases, err := s.store.Purchases(ctx, reg.ID)
	if err != nil {
		return err
	}
	reg.Purchases = purchases
	count := 0
	for _, p := range purchases {
		count += p.Quantity
	}
	if count == 0 {
		count = reg.LegacyQuantity()
	}
	token, err := s.codec.Issue(credential.TicketClaims{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		TicketNumber:   firstTicketNumber(reg),
		Quantity:       count,
	})
	if err != nil {
		return fmt.Errorf("mint credential: %w", err)
	}
	if err := s.store.SetTicketToken(ctx, reg.ID, token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	reg.TicketToken = token
	return nil
}

// firstTicketNumber returns the first issued ticket number of a registration,
// reading the metadata blob for flat-capacity registrations.
func firstTicketNumber(reg *models.Registration) string {
	for _, p := range reg.Purchases {
		if len(p.TicketNumbers) > 0 {
			return p.TicketNumbers[0]
		}
	}
	if len(reg.Metadata) > 0 {
		var m struct {
			TicketNumbers []string `json:"ticket_numbers"`
		}
		if err := json.Unmarshal(reg.Metadata, &m); err == nil && len(m.TicketNumbers) > 0 {
			return m.TicketNumbers[0]
		}
	}
	return ""
}

// newTicketNumbers generates one human-readable ticket number per unit.
func newTicketNumbers(qty int) []string {
	numbers := make([]string, qty)
	for i := range numbers {
		numbers[i] = "TKT-" + strings.ToUpper(uuid.NewString()[:8])
	}
	return numbers
}
