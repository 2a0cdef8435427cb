package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email           string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	DisplayName     string     `bun:"display_name" json:"display_name,omitempty"`
	AvatarPath      string     `bun:"avatar_path" json:"avatar_path,omitempty"`
	AvatarName      string     `bun:"avatar_name" json:"avatar_name,omitempty"`
	AvatarMime      string     `bun:"avatar_mime" json:"avatar_mime,omitempty"`
	ConfirmationPin *int       `bun:"confirmation_pin,nullzero,unique" json:"-"`
	ConfirmedAt     *time.Time `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsConfirmed reports whether the account finished the confirmation step.
func (u *User) IsConfirmed() bool {
	return u != nil && u.ConfirmedAt != nil && u.ConfirmationPin == nil
}

// HasPendingPin reports whether the user is waiting on a pin confirmation.
func (u *User) HasPendingPin() bool {
	return u != nil && u.ConfirmationPin != nil
}

// InvitationState is derived from consumed_at and expires_at.
type InvitationState = string

const (
	InvitationActive   InvitationState = "active"
	InvitationConsumed InvitationState = "consumed"
	InvitationExpired  InvitationState = "expired"
)

// Invitation is a single use code that lets Email sign up.
type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Code          string     `bun:"code,notnull,unique" json:"code,omitempty"`
	IssuerID      uuid.UUID  `bun:"issuer_id,type:uuid" json:"issuer_id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// StateAt returns the invitation state at the given instant.
func (i *Invitation) StateAt(now time.Time) InvitationState {
	if i.ConsumedAt != nil {
		return InvitationConsumed
	}
	if now.After(i.ExpiresAt) {
		return InvitationExpired
	}
	return InvitationActive
}

// State returns the invitation state now.
func (i *Invitation) State() InvitationState {
	return i.StateAt(time.Now().UTC())
}

// IsActive reports whether the code can still be consumed.
func (i *Invitation) IsActive() bool {
	return i.State() == InvitationActive
}
