package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthClaims is the view of a validated access token handed to handlers.
type AuthClaims interface {
	Subject() string
	UserID() string
	UserUUID() (uuid.UUID, error)
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID string `json:"uid,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// UserUUID parses the user id claim.
func (c *JWTClaims) UserUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed.Clone().WithMetadata(map[string]any{
			"claim": "uid",
		})
	}
	return id, nil
}

// TokenID returns the jti claim, used as the revocation key.
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims == nil || claims.ID != "" {
		return
	}
	claims.ID = uuid.NewString()
}
