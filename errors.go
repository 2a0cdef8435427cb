package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeValidation             = "validation_failed"
	TextCodeDuplicateEmail         = "duplicate_email"
	TextCodeInvalidCredentials     = "invalid_credentials"
	TextCodeInvalidOrExpiredInvite = "invalid_or_expired_invite"
	TextCodeNotFound               = "not_found"
	TextCodeTokenInvalid           = "token_invalid"
	TextCodeTokenMalformed         = "token_malformed"
	TextCodeTokenExpired           = "token_expired"
	TextCodeTokenRevoked           = "token_revoked"
	TextCodeForbidden              = "forbidden"
	TextCodeStorageFailure         = "storage_failure"
	TextCodeTransientStore         = "transient_store_failure"
	TextCodeRegistrationClosed     = "registration_closed"
	TextCodeAccountUnconfirmed     = "account_unconfirmed"
	TextCodeRevocationUnsupported  = "revocation_unsupported"
	TextCodeEmptyPassword          = "empty_password"
	TextCodeNotifierUnavailable    = "notifier_unavailable"
)

// ErrValidation carries a field -> message map under the "fields" metadata key.
var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateEmail is returned when the email already belongs to an account.
var ErrDuplicateEmail = goerrors.New("email has already been taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned on login for an unknown email or a bad password.
var ErrInvalidCredentials = goerrors.New("Invalid Email or Password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidOrExpiredInvite covers unknown, consumed, expired and email mismatched codes.
var ErrInvalidOrExpiredInvite = goerrors.New("invalid or expired invitation code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidOrExpiredInvite).
	WithCode(goerrors.CodeBadRequest)

var ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrTokenInvalid = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(goerrors.CodeUnauthorized)

var ErrForbidden = goerrors.New("operation not allowed", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrStorageFailure is returned when the avatar blob store rejects a write.
var ErrStorageFailure = goerrors.New("storage failure", goerrors.CategoryInternal).
	WithTextCode(TextCodeStorageFailure).
	WithCode(goerrors.CodeInternal)

// ErrTransientStore is retryable: contention, lock timeouts and store deadlines.
var ErrTransientStore = goerrors.New("store temporarily unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeTransientStore).
	WithCode(503)

var ErrRegistrationClosed = goerrors.New("open registration is disabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRegistrationClosed).
	WithCode(goerrors.CodeForbidden)

var ErrAccountUnconfirmed = goerrors.New("account has not been confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountUnconfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrRevocationUnsupported is reported by logout when no revocation list is configured.
var ErrRevocationUnsupported = goerrors.New("token revocation is not configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeRevocationUnsupported).
	WithCode(goerrors.CodeInternal)

// ErrNotifierUnavailable is reported when no notification gateway is wired.
var ErrNotifierUnavailable = goerrors.New("notification gateway is not configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotifierUnavailable).
	WithCode(goerrors.CodeInternal)

var ErrNoEmptyString = goerrors.New("password can not be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// NewValidationError returns a validation error holding the given field errors.
func NewValidationError(fields map[string]string) *goerrors.Error {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return ErrValidation.Clone().WithMetadata(map[string]any{
		"fields": copied,
	})
}

// FieldError builds a validation error for a single field.
func FieldError(field, message string) *goerrors.Error {
	return NewValidationError(map[string]string{field: message})
}

// FormatValidationErrorToMap flattens ozzo validation errors into field messages.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ValidationFields returns the field map attached to a validation error, if any.
func ValidationFields(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}
	fields, _ := richErr.Metadata["fields"].(map[string]string)
	return fields
}

// ValidationToError converts the result of an ozzo rule set into ErrValidation.
func ValidationToError(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "validation rule failed")
	}
	return NewValidationError(FormatValidationErrorToMap(err))
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func IsValidationError(err error) bool { return hasTextCode(err, TextCodeValidation) }

func IsDuplicateEmail(err error) bool { return hasTextCode(err, TextCodeDuplicateEmail) }

func IsInvalidCredentials(err error) bool { return hasTextCode(err, TextCodeInvalidCredentials) }

func IsInvalidOrExpiredInvite(err error) bool {
	return hasTextCode(err, TextCodeInvalidOrExpiredInvite)
}

func IsNotFound(err error) bool { return hasTextCode(err, TextCodeNotFound) }

func IsForbidden(err error) bool { return hasTextCode(err, TextCodeForbidden) }

func IsStorageFailure(err error) bool { return hasTextCode(err, TextCodeStorageFailure) }

func IsTransientStoreFailure(err error) bool { return hasTextCode(err, TextCodeTransientStore) }

func IsNotifierUnavailable(err error) bool { return hasTextCode(err, TextCodeNotifierUnavailable) }

// IsTokenInvalid matches every token failure: invalid, malformed, expired and revoked.
func IsTokenInvalid(err error) bool {
	return hasTextCode(err, TextCodeTokenInvalid) ||
		hasTextCode(err, TextCodeTokenMalformed) ||
		hasTextCode(err, TextCodeTokenExpired) ||
		hasTextCode(err, TextCodeTokenRevoked)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// isUniqueViolation reports whether a driver error came from a unique index.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return chainContains(err, "UNIQUE constraint failed", "duplicate key value violates unique constraint")
}

// chainContains reports whether any error in the unwrap chain mentions one
// of the fragments. Repository wrappers may replace the driver message.
func chainContains(err error, fragments ...string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		for _, f := range fragments {
			if strings.Contains(msg, f) {
				return true
			}
		}
	}
	return false
}

// uniqueViolationOn reports a unique violation whose message names the column.
func uniqueViolationOn(err error, column string) bool {
	if !isUniqueViolation(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.Contains(pgErr.ConstraintName, column)
	}
	return chainContains(err, "."+column, column+"_uidx")
}

// primaryKeyViolation reports a unique violation on the primary key.
func primaryKeyViolation(err error) bool {
	if !isUniqueViolation(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasSuffix(pgErr.ConstraintName, "_pkey")
	}
	return chainContains(err, ".id")
}

// isTransient reports contention and timeout errors that are safe to retry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// notFound clones ErrNotFound with metadata describing the lookup.
func notFound(meta map[string]any) *goerrors.Error {
	return ErrNotFound.Clone().WithMetadata(meta)
}

// asOperationError passes domain errors through and wraps anything else.
func asOperationError(err error, message string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	if isTransient(err) {
		return ErrTransientStore.Clone().WithMetadata(map[string]any{
			"operation": message,
			"cause":     err.Error(),
		})
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
