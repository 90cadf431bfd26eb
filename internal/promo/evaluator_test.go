package promo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venueworks/ticketing-backend/internal/models"
)

func validCode(eventID uuid.UUID) *models.PromoCode {
	return &models.PromoCode{
		ID:             uuid.New(),
		EventID:        &eventID,
		Code:           "SUMMER10",
		Type:           models.PromoTypePercentage,
		DiscountValue:  10,
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
}

func TestEvaluatePercentage(t *testing.T) {
	eventID := uuid.New()
	pc := validCode(eventID)

	discount, err := Evaluate(pc, Input{
		EventID:       eventID,
		SubtotalCents: 20000,
		Now:           time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2000, discount)
}

func TestEvaluateFixedAmountCappedAtSubtotal(t *testing.T) {
	eventID := uuid.New()
	pc := validCode(eventID)
	pc.Type = models.PromoTypeFixedAmount
	pc.DiscountValue = 5000

	discount, err := Evaluate(pc, Input{EventID: eventID, SubtotalCents: 3000, Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 3000, discount, "fixed discount never exceeds the subtotal")
}

func TestEvaluateEarlyBird(t *testing.T) {
	eventID := uuid.New()

	pc := validCode(eventID)
	pc.Type = models.PromoTypeEarlyBird
	pc.DiscountValue = 20
	discount, err := Evaluate(pc, Input{EventID: eventID, SubtotalCents: 10000, Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 2000, discount, "values up to 100 follow percentage math")

	pc.DiscountValue = 1500
	discount, err = Evaluate(pc, Input{EventID: eventID, SubtotalCents: 10000, Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1500, discount, "values above 100 are a fixed amount in cents")
}

func TestEvaluateRejections(t *testing.T) {
	eventID := uuid.New()
	otherEvent := uuid.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	maxUses := 5
	minPurchase := 10000
	restrictedType := uuid.New()

	tests := []struct {
		name   string
		mutate func(pc *models.PromoCode)
		in     Input
	}{
		{
			name:   "not found",
			mutate: nil,
			in:     Input{EventID: eventID, SubtotalCents: 1000, Now: now},
		},
		{
			name:   "inactive",
			mutate: func(pc *models.PromoCode) { pc.IsActive = false },
			in:     Input{EventID: eventID, SubtotalCents: 1000, Now: now},
		},
		{
			name:   "wrong event",
			mutate: func(pc *models.PromoCode) {},
			in:     Input{EventID: otherEvent, SubtotalCents: 1000, Now: now},
		},
		{
			name:   "not valid yet",
			mutate: func(pc *models.PromoCode) { pc.ValidFrom = &future },
			in:     Input{EventID: eventID, SubtotalCents: 1000, Now: now},
		},
		{
			name:   "expired",
			mutate: func(pc *models.PromoCode) { pc.ValidUntil = &past },
			in:     Input{EventID: eventID, SubtotalCents: 1000, Now: now},
		},
		{
			name: "global cap reached",
			mutate: func(pc *models.PromoCode) {
				pc.MaxUses = &maxUses
				pc.UsedCount = 5
			},
			in: Input{EventID: eventID, SubtotalCents: 1000, Now: now},
		},
		{
			name:   "per-user cap reached",
			mutate: func(pc *models.PromoCode) { pc.MaxUsesPerUser = 2 },
			in:     Input{EventID: eventID, SubtotalCents: 1000, UserUses: 2, Now: now},
		},
		{
			name:   "below minimum purchase",
			mutate: func(pc *models.PromoCode) { pc.MinPurchaseCents = &minPurchase },
			in:     Input{EventID: eventID, SubtotalCents: 9999, Now: now},
		},
		{
			name: "no applicable ticket type in cart",
			mutate: func(pc *models.PromoCode) {
				pc.ApplicableTicketTypes = []uuid.UUID{restrictedType}
			},
			in: Input{EventID: eventID, SubtotalCents: 1000, TicketTypeIDs: []uuid.UUID{uuid.New()}, Now: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pc *models.PromoCode
			if tt.mutate != nil {
				pc = validCode(eventID)
				tt.mutate(pc)
			}
			discount, err := Evaluate(pc, tt.in)
			assert.ErrorIs(t, err, ErrInvalidPromo)
			assert.Zero(t, discount)
		})
	}
}

func TestEvaluateAppliesWhenAnyCartTypeMatches(t *testing.T) {
	eventID := uuid.New()
	matching := uuid.New()
	pc := validCode(eventID)
	pc.ApplicableTicketTypes = []uuid.UUID{matching}

	discount, err := Evaluate(pc, Input{
		EventID:       eventID,
		SubtotalCents: 10000,
		TicketTypeIDs: []uuid.UUID{uuid.New(), matching},
		Now:           time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, discount)
}

func TestEvaluateEventAgnosticCode(t *testing.T) {
	pc := validCode(uuid.New())
	pc.EventID = nil

	_, err := Evaluate(pc, Input{EventID: uuid.New(), SubtotalCents: 1000, Now: time.Now()})
	assert.NoError(t, err, "codes without an event apply anywhere")
}

func TestDistribute(t *testing.T) {
	t.Run("proportional with remainder on last line", func(t *testing.T) {
		// 1000 split over 3333/6667: floor gives 333, last line absorbs 667.
		shares := Distribute(1000, []int{3333, 6667})
		assert.Equal(t, []int{333, 667}, shares)
		assert.Equal(t, 1000, shares[0]+shares[1])
	})

	t.Run("single line takes everything", func(t *testing.T) {
		assert.Equal(t, []int{500}, Distribute(500, []int{2000}))
	})

	t.Run("zero discount", func(t *testing.T) {
		assert.Equal(t, []int{0, 0}, Distribute(0, []int{100, 200}))
	})

	t.Run("zero subtotal", func(t *testing.T) {
		assert.Equal(t, []int{0, 0}, Distribute(100, []int{0, 0}))
	})

	t.Run("shares always sum to the total", func(t *testing.T) {
		lines := []int{999, 1501, 7500, 250}
		shares := Distribute(777, lines)
		sum := 0
		for _, s := range shares {
			sum += s
		}
		assert.Equal(t, 777, sum)
	})
}
