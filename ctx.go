package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetFiberClaims extracts the claims stored by the JWT middleware.
func GetFiberClaims(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user"
	}
	claims, ok := c.Locals(key).(AuthClaims)
	return claims, ok && claims != nil
}

// GetFiberToken returns the raw bearer token accepted by the middleware.
func GetFiberToken(c *fiber.Ctx, key string) (string, bool) {
	if key == "" {
		key = "token"
	}
	raw, ok := c.Locals(key).(string)
	return raw, ok && raw != ""
}

// ActorID returns the authenticated user id for the request.
func ActorID(c *fiber.Ctx, key string) (uuid.UUID, bool) {
	claims, ok := GetFiberClaims(c, key)
	if !ok {
		return uuid.Nil, false
	}
	id, err := claims.UserUUID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
