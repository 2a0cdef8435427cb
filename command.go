package auth

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultOperationTimeout bounds every store round trip of a command.
const DefaultOperationTimeout = 10 * time.Second

type handlerBase struct {
	repo      RepositoryManager
	passwords PasswordAuthenticator
	logger    Logger
	timeout   time.Duration
	now       func() time.Time
	activity  ActivitySink
	// hashids derives user ids from the email address.
	hashids   bool
}

// HandlerOption configures the command handlers.
type HandlerOption func(*handlerBase)

func WithHandlerLogger(logger Logger) HandlerOption {
	return func(h *handlerBase) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithHandlerTimeout(timeout time.Duration) HandlerOption {
	return func(h *handlerBase) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

func WithHandlerPasswords(p PasswordAuthenticator) HandlerOption {
	return func(h *handlerBase) {
		if p != nil {
			h.passwords = p
		}
	}
}

// WithDeterministicIDs derives new user ids from their email with hashid.
func WithDeterministicIDs(enabled bool) HandlerOption {
	return func(h *handlerBase) {
		h.hashids = enabled
	}
}

// WithActivitySink records an ActivityEvent after each committed command.
func WithActivitySink(sink ActivitySink) HandlerOption {
	return func(h *handlerBase) {
		h.activity = sink
	}
}

func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *handlerBase) {
		if now != nil {
			h.now = now
		}
	}
}

func newHandlerBase(repo RepositoryManager, opts ...HandlerOption) handlerBase {
	h := handlerBase{
		repo:      repo,
		passwords: DefaultPasswordAuthenticator(),
		logger:    defaultLogger(),
		timeout:   DefaultOperationTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&h)
		}
	}
	return h
}

func (h handlerBase) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = h.now()
	}
	recordActivity(ctx, h.activity, h.logger, event)
}

// guard fails fast on a context that is already done.
func (h handlerBase) guard(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTransientStore.Clone().WithMetadata(map[string]any{
				"operation": operation,
			})
		}
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// finish maps a transaction result to the error returned by a command.
func (h handlerBase) finish(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTransientStore.Clone().WithMetadata(map[string]any{
			"operation": operation,
		})
	}
	return asOperationError(err, operation+" transaction failed")
}

var emailRules = []validation.Rule{
	validation.Required,
	validation.Length(3, 100),
	is.EmailFormat,
}

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(6, 0),
}

// ValidateStringEquals fails unless the value equals str.
func ValidateStringEquals(str string, message string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New(message)
		}
		return nil
	}
}
