package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-auth-invite/middleware/jwtware"
)

// RouteAuthenticator guards fiber routes with bearer tokens and renders
// auth errors as JSON.
type RouteAuthenticator struct {
	tokens     TokenService
	cfg        Config
	Logger     Logger
	Debug      bool
	contextKey string
	tokenKey   string
}

func NewHTTPAuthenticator(tokens TokenService, cfg Config) *RouteAuthenticator {
	key := cfg.GetContextKey()
	if key == "" {
		key = "user"
	}
	return &RouteAuthenticator{
		tokens:     tokens,
		cfg:        cfg,
		Logger:     defaultLogger(),
		contextKey: key,
		tokenKey:   "token",
	}
}

// ProtectedRoute returns middleware that requires a valid access token. The
// claims are also placed on the request's user context. Extra listeners run
// after that.
func (a *RouteAuthenticator) ProtectedRoute(listeners ...ValidationListener) fiber.Handler {
	cfg := jwtware.Config{
		ContextKey:  a.contextKey,
		TokenKey:    a.tokenKey,
		TokenLookup: a.cfg.GetTokenLookup(),
		AuthScheme:  a.cfg.GetAuthScheme(),
		Validator: func(ctx context.Context, raw string) (jwtware.Claims, error) {
			claims, err := a.tokens.Validate(ctx, raw)
			if err != nil {
				return nil, err
			}
			return claims, nil
		},
		ErrorHandler: a.AuthErrorHandler,
	}
	RegisterValidationListeners(&cfg, ContextEnricher)
	RegisterValidationListeners(&cfg, listeners...)
	return jwtware.New(cfg)
}

// AuthErrorHandler renders token failures as 401.
func (a *RouteAuthenticator) AuthErrorHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		err = ErrTokenMalformed.Clone().WithMetadata(map[string]any{
			"reason": jwtware.ErrJWTMissingOrMalformed.Error(),
		})
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "An unexpected authentication error").
			WithTextCode(TextCodeTokenInvalid).
			WithCode(goerrors.CodeUnauthorized)
	}

	a.Logger.Info(
		"authentication error",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return RenderError(c, richErr, a.Debug)
}

// Claims returns the claims stored by ProtectedRoute.
func (a *RouteAuthenticator) Claims(c *fiber.Ctx) (AuthClaims, bool) {
	return GetFiberClaims(c, a.contextKey)
}

// RawToken returns the bearer token accepted by ProtectedRoute.
func (a *RouteAuthenticator) RawToken(c *fiber.Ctx) (string, bool) {
	return GetFiberToken(c, a.tokenKey)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return fiberErr.Code
		}
		return http.StatusInternalServerError
	}

	switch richErr.TextCode {
	case TextCodeValidation, TextCodeDuplicateEmail, TextCodeInvalidOrExpiredInvite, TextCodeEmptyPassword:
		return http.StatusBadRequest
	case TextCodeInvalidCredentials, TextCodeTokenInvalid, TextCodeTokenMalformed,
		TextCodeTokenExpired, TextCodeTokenRevoked, TextCodeAccountUnconfirmed:
		return http.StatusUnauthorized
	case TextCodeForbidden, TextCodeRegistrationClosed:
		return http.StatusForbidden
	case TextCodeNotFound:
		return http.StatusNotFound
	case TextCodeTransientStore:
		return http.StatusServiceUnavailable
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryConflict:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// RenderError writes the JSON error body. Internal failures are reported
// without detail unless debug is set.
func RenderError(c *fiber.Ctx, err error, debug bool) error {
	status := StatusFor(err)

	body := fiber.Map{"success": false}

	var richErr *goerrors.Error
	switch {
	case status == http.StatusInternalServerError && !debug:
		body["message"] = "An unexpected server error occurred"
		if goerrors.As(err, &richErr) && richErr.TextCode != "" {
			body["text_code"] = richErr.TextCode
		}
	case goerrors.As(err, &richErr):
		body["message"] = richErr.Message
		if richErr.TextCode != "" {
			body["text_code"] = richErr.TextCode
		}
		if fields := ValidationFields(richErr); len(fields) > 0 {
			body["errors"] = fields
		}
		if debug && richErr.Metadata != nil {
			body["details"] = print.MaybePrettyJSON(richErr.Metadata)
		}
	default:
		body["message"] = err.Error()
	}

	return c.Status(status).JSON(body)
}

// FiberErrorHandler is the app level error handler for routes that return
// errors instead of rendering them.
func FiberErrorHandler(logger Logger, debug bool) fiber.ErrorHandler {
	if logger == nil {
		logger = defaultLogger()
	}
	return func(c *fiber.Ctx, err error) error {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
		}
		return RenderError(c, err, debug)
	}
}
