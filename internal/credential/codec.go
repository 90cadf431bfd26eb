// Package credential turns registration identifiers into signed, verifiable
// ticket tokens and back. The rest of the engine treats it as an opaque codec:
// scanners present the token string, check-in resolves it to a registration.
package credential

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidCredential is returned for any token that fails to parse, verify,
// or carry the expected claims.
var ErrInvalidCredential = errors.New("invalid ticket credential")

// TicketClaims identifies the admission a credential grants.
type TicketClaims struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	EventID        uuid.UUID `json:"event_id"`
	UserID         uuid.UUID `json:"user_id"`
	TicketNumber   string    `json:"ticket_number"`
	Quantity       int       `json:"quantity"`
	jwt.RegisteredClaims
}

// Codec issues and verifies ticket credentials.
type Codec interface {
	Issue(claims TicketClaims) (string, error)
	Verify(token string) (*TicketClaims, error)
}

// JWTCodec signs ticket credentials with HMAC-SHA256 using a secret separate
// from the session JWT secret.
type JWTCodec struct {
	secret []byte
}

// NewJWTCodec creates a ticket credential codec.
func NewJWTCodec(secret string) *JWTCodec {
	return &JWTCodec{secret: []byte(secret)}
}

// Issue signs the claims into an opaque token string.
func (c *JWTCodec) Issue(claims TicketClaims) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	claims.ID = uuid.New().String()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify parses and validates a token, returning the ticket claims.
func (c *JWTCodec) Verify(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredential
	}
	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.RegistrationID == uuid.Nil {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}
