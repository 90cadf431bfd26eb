package registrations

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/internal/promo"
	"github.com/venueworks/ticketing-backend/pkg/queue"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store whose transactions roll back by restoring a
// snapshot on error.
type fakeStore struct {
	regs            []*models.Registration
	purchases       []models.TicketPurchase
	types           map[uuid.UUID]*models.TicketType
	promos          map[string]*models.PromoCode
	promoUserUses   int
	usageIncrements int
	reserved        map[uuid.UUID]int
	released        map[uuid.UUID]int
	tokens          map[uuid.UUID]string
	setTokenErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		types:    make(map[uuid.UUID]*models.TicketType),
		promos:   make(map[string]*models.PromoCode),
		reserved: make(map[uuid.UUID]int),
		released: make(map[uuid.UUID]int),
		tokens:   make(map[uuid.UUID]string),
	}
}

func (s *fakeStore) WithTx(_ context.Context, fn func(CommitTx) error) error {
	regs := append([]*models.Registration(nil), s.regs...)
	purchases := append([]models.TicketPurchase(nil), s.purchases...)
	increments := s.usageIncrements
	reserved := make(map[uuid.UUID]int, len(s.reserved))
	for k, v := range s.reserved {
		reserved[k] = v
	}
	if err := fn(fakeTx{s}); err != nil {
		s.regs = regs
		s.purchases = purchases
		s.usageIncrements = increments
		s.reserved = reserved
		return err
	}
	return nil
}

func (s *fakeStore) GetByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	for _, r := range s.regs {
		if r.UserID == userID && r.EventID == eventID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	for _, r := range s.regs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Registration, error) {
	var out []models.Registration
	for _, r := range s.regs {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) Purchases(_ context.Context, regID uuid.UUID) ([]models.TicketPurchase, error) {
	var out []models.TicketPurchase
	for _, p := range s.purchases {
		if p.RegistrationID == regID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) SetTicketToken(_ context.Context, regID uuid.UUID, token string) error {
	if s.setTokenErr != nil {
		return s.setTokenErr
	}
	s.tokens[regID] = token
	return nil
}

type fakeTx struct {
	s *fakeStore
}

func (t fakeTx) GetPromoByCodeForUpdate(_ context.Context, code string) (*models.PromoCode, error) {
	return t.s.promos[code], nil
}

func (t fakeTx) CountPromoUsesByUser(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return t.s.promoUserUses, nil
}

func (t fakeTx) IncrementPromoUsage(context.Context, uuid.UUID) error {
	t.s.usageIncrements++
	return nil
}

func (t fakeTx) InsertRegistration(_ context.Context, reg *models.Registration) error {
	for _, r := range t.s.regs {
		if r.UserID == reg.UserID && r.EventID == reg.EventID {
			return ErrAlreadyRegistered
		}
	}
	reg.ID = uuid.New()
	reg.CreatedAt = testNow
	reg.UpdatedAt = testNow
	t.s.regs = append(t.s.regs, reg)
	return nil
}

func (t fakeTx) InsertPurchase(_ context.Context, p *models.TicketPurchase) error {
	p.ID = uuid.New()
	p.CreatedAt = testNow
	t.s.purchases = append(t.s.purchases, *p)
	return nil
}

func (t fakeTx) PurchasesByRegistration(ctx context.Context, regID uuid.UUID) ([]models.TicketPurchase, error) {
	return t.s.Purchases(ctx, regID)
}

func (t fakeTx) DeleteRegistration(_ context.Context, regID uuid.UUID) error {
	for i, r := range t.s.regs {
		if r.ID == regID {
			t.s.regs = append(t.s.regs[:i], t.s.regs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (t fakeTx) GetTicketTypeForUpdate(_ context.Context, id uuid.UUID) (*models.TicketType, error) {
	tt, ok := t.s.types[id]
	if !ok {
		return nil, fmt.Errorf("ticket type %s not found", id)
	}
	return tt, nil
}

func (t fakeTx) ReserveInventory(_ context.Context, src inventory.Source, qty int) error {
	if qty > src.Available() {
		return fmt.Errorf("%w: only %d tickets remaining for %s",
			inventory.ErrInsufficientInventory, src.Available(), src.Label())
	}
	t.s.reserved[src.ID()] += qty
	return nil
}

func (t fakeTx) ReleaseInventory(_ context.Context, src inventory.Source, qty int) error {
	t.s.released[src.ID()] += qty
	return nil
}

type fakeEvents struct {
	event *models.Event
	types []models.TicketType
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if f.event != nil && f.event.ID == id {
		return f.event, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeEvents) ActiveTicketTypes(context.Context, uuid.UUID) ([]models.TicketType, error) {
	return f.types, nil
}

type fakeLedger struct {
	sold int
}

func (f *fakeLedger) LegacySoldCount(context.Context, uuid.UUID) (int, error) {
	return f.sold, nil
}

type fakeQueue struct {
	payloads []queue.CredentialIssuePayload
}

func (f *fakeQueue) EnqueueCredentialIssue(_ context.Context, p queue.CredentialIssuePayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

type failingCodec struct{}

func (failingCodec) Issue(credential.TicketClaims) (string, error) {
	return "", errors.New("signer unavailable")
}

func (failingCodec) Verify(string) (*credential.TicketClaims, error) {
	return nil, credential.ErrInvalidCredential
}

func publishedEvent() *models.Event {
	return &models.Event{
		ID:         uuid.New(),
		Title:      "Tech Conference",
		Capacity:   100,
		PriceCents: 1500,
		Status:     models.EventStatusPublished,
		StartsAt:   testNow.Add(72 * time.Hour),
		EndsAt:     testNow.Add(80 * time.Hour),
	}
}

func ticketType(event *models.Event, name string, price, quantity int) models.TicketType {
	return models.TicketType{
		ID:          uuid.New(),
		EventID:     event.ID,
		Name:        name,
		PriceCents:  price,
		Quantity:    quantity,
		MinPerOrder: 1,
		MaxPerOrder: 10,
		Status:      models.TicketTypeStatusActive,
	}
}

func newTestService(store *fakeStore, ev *fakeEvents, ledger *fakeLedger, codec credential.Codec, jobs Enqueuer) *Service {
	if codec == nil {
		codec = credential.NewJWTCodec("test-secret")
	}
	svc := NewService(store, ev, ledger, codec, jobs, zap.NewNop(), 24*time.Hour)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestRegisterTypedEventWithPromo(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "General Admission", 5000, 100)
	vip := ticketType(event, "VIP", 10000, 20)

	store := newFakeStore()
	store.types[ga.ID] = &ga
	store.types[vip.ID] = &vip
	store.promos["SUMMER10"] = &models.PromoCode{
		ID:             uuid.New(),
		EventID:        &event.ID,
		Code:           "SUMMER10",
		Type:           models.PromoTypePercentage,
		DiscountValue:  10,
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
	svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga, vip}}, &fakeLedger{}, nil, nil)

	userID := uuid.New()
	reg, err := svc.Register(context.Background(), RegisterInput{
		UserID:  userID,
		EventID: event.ID,
		Lines: []Line{
			{TicketTypeID: ga.ID, Quantity: 2},
			{TicketTypeID: vip.ID, Quantity: 1},
		},
		PromoCode: "SUMMER10",
	})
	require.NoError(t, err)

	assert.Equal(t, 20000, reg.TotalCents)
	assert.Equal(t, 18000, reg.FinalCents)
	assert.Equal(t, models.PaymentStatusPending, reg.PaymentStatus)
	assert.Equal(t, "SUMMER10", reg.PromoCodeUsed)
	assert.Equal(t, models.RegistrationStatusConfirmed, reg.Status)

	require.Len(t, reg.Purchases, 2)
	assert.Len(t, reg.Purchases[0].TicketNumbers, 2)
	assert.Len(t, reg.Purchases[1].TicketNumbers, 1)
	assert.Equal(t, 2000, reg.Purchases[0].DiscountCents+reg.Purchases[1].DiscountCents,
		"line discounts sum to the total discount")

	assert.Equal(t, 2, store.reserved[ga.ID])
	assert.Equal(t, 1, store.reserved[vip.ID])
	assert.Equal(t, 1, store.usageIncrements)

	assert.NotEmpty(t, reg.TicketToken)
	assert.Equal(t, reg.TicketToken, store.tokens[reg.ID])
}

func TestRegisterLegacyFlatCapacity(t *testing.T) {
	event := publishedEvent()
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{event: event}, &fakeLedger{sold: 40}, nil, nil)

	reg, err := svc.Register(context.Background(), RegisterInput{
		UserID:  uuid.New(),
		EventID: event.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, 1500, reg.TotalCents, "quantity defaults to one")
	assert.Equal(t, 1500, reg.FinalCents)
	assert.Empty(t, reg.Purchases, "flat-capacity registrations carry no purchase lines")
	assert.Equal(t, 1, reg.LegacyQuantity())
	assert.Equal(t, 1, store.reserved[event.ID])
	assert.NotEmpty(t, reg.TicketToken)
}

func TestRegisterPreconditions(t *testing.T) {
	t.Run("event not published", func(t *testing.T) {
		event := publishedEvent()
		event.Status = models.EventStatusDraft
		svc := newTestService(newFakeStore(), &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

		_, err := svc.Register(context.Background(), RegisterInput{UserID: uuid.New(), EventID: event.ID})
		assert.ErrorIs(t, err, ErrEventNotPublished)
	})

	t.Run("event ended", func(t *testing.T) {
		event := publishedEvent()
		event.StartsAt = testNow.Add(-4 * time.Hour)
		event.EndsAt = testNow.Add(-2 * time.Hour)
		svc := newTestService(newFakeStore(), &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

		_, err := svc.Register(context.Background(), RegisterInput{UserID: uuid.New(), EventID: event.ID})
		assert.ErrorIs(t, err, ErrEventEnded)
	})

	t.Run("already registered", func(t *testing.T) {
		event := publishedEvent()
		userID := uuid.New()
		store := newFakeStore()
		store.regs = append(store.regs, &models.Registration{
			ID: uuid.New(), UserID: userID, EventID: event.ID,
			Status: models.RegistrationStatusConfirmed,
		})
		svc := newTestService(store, &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

		_, err := svc.Register(context.Background(), RegisterInput{UserID: userID, EventID: event.ID})
		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	})
}

func TestRegisterQuantityValidation(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "General Admission", 5000, 10)
	ga.QuantitySold = 8
	ga.MaxPerOrder = 4
	store := newFakeStore()
	store.types[ga.ID] = &ga
	ev := &fakeEvents{event: event, types: []models.TicketType{ga}}
	svc := newTestService(store, ev, &fakeLedger{}, nil, nil)

	t.Run("unknown ticket type", func(t *testing.T) {
		_, err := svc.Register(context.Background(), RegisterInput{
			UserID: uuid.New(), EventID: event.ID,
			Lines: []Line{{TicketTypeID: uuid.New(), Quantity: 1}},
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	})

	t.Run("no lines for typed event", func(t *testing.T) {
		_, err := svc.Register(context.Background(), RegisterInput{UserID: uuid.New(), EventID: event.ID})
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	})

	t.Run("duplicate line", func(t *testing.T) {
		_, err := svc.Register(context.Background(), RegisterInput{
			UserID: uuid.New(), EventID: event.ID,
			Lines: []Line{
				{TicketTypeID: ga.ID, Quantity: 1},
				{TicketTypeID: ga.ID, Quantity: 1},
			},
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	})

	t.Run("exceeds remaining", func(t *testing.T) {
		_, err := svc.Register(context.Background(), RegisterInput{
			UserID: uuid.New(), EventID: event.ID,
			Lines: []Line{{TicketTypeID: ga.ID, Quantity: 3}},
		})
		assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)
		assert.Empty(t, store.regs)
	})
}

func TestRegisterInvalidPromoAbortsCommit(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "General Admission", 5000, 100)
	store := newFakeStore()
	store.types[ga.ID] = &ga
	expired := testNow.Add(-time.Hour)
	store.promos["OLD"] = &models.PromoCode{
		ID: uuid.New(), EventID: &event.ID, Code: "OLD",
		Type: models.PromoTypePercentage, DiscountValue: 10,
		ValidUntil: &expired, IsActive: true,
	}
	svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga}}, &fakeLedger{}, nil, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		UserID: uuid.New(), EventID: event.ID,
		Lines:     []Line{{TicketTypeID: ga.ID, Quantity: 1}},
		PromoCode: "OLD",
	})
	assert.ErrorIs(t, err, promo.ErrInvalidPromo)
	assert.Empty(t, store.regs)
	assert.Empty(t, store.reserved)
	assert.Zero(t, store.usageIncrements)
}

func TestRegisterFreeAfterDiscountCompletesPayment(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "Community Pass", 3000, 100)
	store := newFakeStore()
	store.types[ga.ID] = &ga
	store.promos["COMP"] = &models.PromoCode{
		ID: uuid.New(), EventID: &event.ID, Code: "COMP",
		Type: models.PromoTypeFixedAmount, DiscountValue: 5000,
		MaxUsesPerUser: 1, IsActive: true,
	}
	svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga}}, &fakeLedger{}, nil, nil)

	reg, err := svc.Register(context.Background(), RegisterInput{
		UserID: uuid.New(), EventID: event.ID,
		Lines:     []Line{{TicketTypeID: ga.ID, Quantity: 1}},
		PromoCode: "COMP",
	})
	require.NoError(t, err)
	assert.Equal(t, 3000, reg.TotalCents)
	assert.Equal(t, 0, reg.FinalCents, "fixed discount is capped at the subtotal")
	assert.Equal(t, models.PaymentStatusCompleted, reg.PaymentStatus)
}

func TestRegisterCredentialFailureDefersToQueue(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "General Admission", 5000, 100)
	store := newFakeStore()
	store.types[ga.ID] = &ga
	jobs := &fakeQueue{}
	svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga}}, &fakeLedger{}, failingCodec{}, jobs)

	reg, err := svc.Register(context.Background(), RegisterInput{
		UserID: uuid.New(), EventID: event.ID,
		Lines: []Line{{TicketTypeID: ga.ID, Quantity: 1}},
	})
	require.NoError(t, err, "a mint failure never unwinds the registration")
	assert.Empty(t, reg.TicketToken)
	require.Len(t, jobs.payloads, 1)
	assert.Equal(t, reg.ID, jobs.payloads[0].RegistrationID)
}

func TestCancel(t *testing.T) {
	setup := func(startsIn time.Duration) (*Service, *fakeStore, *models.Event, uuid.UUID) {
		event := publishedEvent()
		event.StartsAt = testNow.Add(startsIn)
		event.EndsAt = event.StartsAt.Add(8 * time.Hour)
		ga := ticketType(event, "General Admission", 5000, 100)

		userID := uuid.New()
		store := newFakeStore()
		store.types[ga.ID] = &ga
		reg := &models.Registration{
			ID: uuid.New(), UserID: userID, EventID: event.ID,
			Status: models.RegistrationStatusConfirmed,
		}
		store.regs = append(store.regs, reg)
		store.purchases = append(store.purchases, models.TicketPurchase{
			ID: uuid.New(), RegistrationID: reg.ID, TicketTypeID: ga.ID, Quantity: 2,
		})
		store.usageIncrements = 1 // a promo was applied at purchase time
		svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga}}, &fakeLedger{}, nil, nil)
		return svc, store, event, userID
	}

	t.Run("locked inside the window", func(t *testing.T) {
		svc, store, event, userID := setup(12 * time.Hour)
		err := svc.Cancel(context.Background(), userID, event.ID)
		assert.ErrorIs(t, err, ErrCancellationLocked)
		assert.Len(t, store.regs, 1, "registration stands")
	})

	t.Run("locked after start", func(t *testing.T) {
		svc, _, event, userID := setup(-time.Hour)
		err := svc.Cancel(context.Background(), userID, event.ID)
		assert.ErrorIs(t, err, ErrCancellationLocked)
	})

	t.Run("allowed outside the window", func(t *testing.T) {
		svc, store, event, userID := setup(30 * time.Hour)
		gaID := store.purchases[0].TicketTypeID

		err := svc.Cancel(context.Background(), userID, event.ID)
		require.NoError(t, err)
		assert.Empty(t, store.regs)
		assert.Equal(t, 2, store.released[gaID], "reserved units return to the pool")
		assert.Equal(t, 1, store.usageIncrements, "promo usage is not refunded")
	})

	t.Run("not registered", func(t *testing.T) {
		svc, _, event, _ := setup(30 * time.Hour)
		err := svc.Cancel(context.Background(), uuid.New(), event.ID)
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestTicketMintsLazily(t *testing.T) {
	event := publishedEvent()
	userID := uuid.New()
	store := newFakeStore()
	reg := &models.Registration{
		ID: uuid.New(), UserID: userID, EventID: event.ID,
		Status:   models.RegistrationStatusConfirmed,
		Metadata: []byte(`{"quantity":2,"ticket_numbers":["TKT-AAAA1111","TKT-BBBB2222"]}`),
	}
	store.regs = append(store.regs, reg)
	svc := newTestService(store, &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

	got, err := svc.Ticket(context.Background(), userID, reg.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.TicketToken)

	codec := credential.NewJWTCodec("test-secret")
	claims, err := codec.Verify(got.TicketToken)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, claims.RegistrationID)
	assert.Equal(t, "TKT-AAAA1111", claims.TicketNumber)
	assert.Equal(t, 2, claims.Quantity)
}

func TestTicketHiddenFromOtherUsers(t *testing.T) {
	event := publishedEvent()
	store := newFakeStore()
	reg := &models.Registration{
		ID: uuid.New(), UserID: uuid.New(), EventID: event.ID,
		Status: models.RegistrationStatusConfirmed, TicketToken: "t",
	}
	store.regs = append(store.regs, reg)
	svc := newTestService(store, &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

	_, err := svc.Ticket(context.Background(), uuid.New(), reg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
