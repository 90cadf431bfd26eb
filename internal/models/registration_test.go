package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLegacyQuantity(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     int
	}{
		{"no metadata", "", 1},
		{"quantity present", `{"quantity":4}`, 4},
		{"zero falls back", `{"quantity":0}`, 1},
		{"negative falls back", `{"quantity":-2}`, 1},
		{"malformed json", `{quantity`, 1},
		{"unrelated keys", `{"note":"vip"}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Registration{Metadata: []byte(tt.metadata)}
			assert.Equal(t, tt.want, r.LegacyQuantity())
		})
	}
}

func TestPromoCodeAppliesTo(t *testing.T) {
	ga := uuid.New()
	vip := uuid.New()

	unrestricted := &PromoCode{}
	assert.True(t, unrestricted.AppliesTo(ga), "no restriction means every type qualifies")

	restricted := &PromoCode{ApplicableTicketTypes: []uuid.UUID{vip}}
	assert.True(t, restricted.AppliesTo(vip))
	assert.False(t, restricted.AppliesTo(ga))
}
