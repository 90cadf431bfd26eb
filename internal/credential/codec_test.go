package credential

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTCodecRoundTrip(t *testing.T) {
	codec := NewJWTCodec("ticket-secret")
	claims := TicketClaims{
		RegistrationID: uuid.New(),
		EventID:        uuid.New(),
		UserID:         uuid.New(),
		TicketNumber:   "TKT-A1B2C3D4",
		Quantity:       2,
	}

	token, err := codec.Issue(claims)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.RegistrationID, got.RegistrationID)
	assert.Equal(t, claims.EventID, got.EventID)
	assert.Equal(t, claims.UserID, got.UserID)
	assert.Equal(t, claims.TicketNumber, got.TicketNumber)
	assert.Equal(t, claims.Quantity, got.Quantity)
}

func TestJWTCodecRejectsTamperedToken(t *testing.T) {
	codec := NewJWTCodec("ticket-secret")
	token, err := codec.Issue(TicketClaims{RegistrationID: uuid.New(), EventID: uuid.New()})
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "zzzz"
	_, err = codec.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTCodecRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTCodec("secret-a").Issue(TicketClaims{RegistrationID: uuid.New()})
	require.NoError(t, err)

	_, err = NewJWTCodec("secret-b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTCodecRejectsGarbage(t *testing.T) {
	codec := NewJWTCodec("ticket-secret")
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	}
}

func TestJWTCodecRequiresRegistrationID(t *testing.T) {
	codec := NewJWTCodec("ticket-secret")
	token, err := codec.Issue(TicketClaims{EventID: uuid.New()})
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
