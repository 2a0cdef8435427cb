package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-auth-invite/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricher stores validated claims on the request's user context so
// command handlers and the authenticator can read them with GetClaims.
func ContextEnricher(c *fiber.Ctx, claims jwtware.Claims) error {
	if authClaims, ok := claims.(AuthClaims); ok {
		c.SetUserContext(WithClaimsContext(c.UserContext(), authClaims))
	}
	return nil
}

// RegisterValidationListeners appends listeners to a jwtware.Config.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
