// Package domain contains the core business entities for PixTube.
// These are pure Go structs with no external dependencies, representing
// the accounts, videos and comments of the site and the rules that decide
// who may see or touch them.
package domain

import (
	"time"
)

// Role is the privilege level of an account.
type Role string

const (
	// RoleStandard is the role given to every registered account.
	RoleStandard Role = "standard"

	// RoleAdministrator may moderate accounts, videos and comments.
	// Only the bootstrap account holds this role; there is no promotion path.
	RoleAdministrator Role = "administrator"
)

// Standing is the moderation state of an account.
type Standing string

const (
	// StandingActive accounts may log in, upload and comment.
	StandingActive Standing = "active"

	// StandingBanned accounts cannot log in and own no videos.
	StandingBanned Standing = "banned"
)

// MaxHandleLength is the maximum length of an account handle in characters.
const MaxHandleLength = 80

// Account represents a registered channel.
type Account struct {
	// ID is the unique identifier for the account (auto-generated).
	ID int64 `json:"id"`

	// Handle is the unique, case-sensitive login name. It never changes.
	Handle string `json:"handle"`

	// PasswordHash is the bcrypt hash of the account's password.
	// This should never be exposed in responses.
	PasswordHash string `json:"-"`

	// Role is the privilege level.
	Role Role `json:"role"`

	// Standing is the moderation state.
	Standing Standing `json:"standing"`

	// CreatedAt is the timestamp when the account was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the account was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates a new standard, active Account.
func NewAccount(handle, passwordHash string) *Account {
	now := time.Now().UTC()
	return &Account{
		Handle:       handle,
		PasswordHash: passwordHash,
		Role:         RoleStandard,
		Standing:     StandingActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsAdmin returns true if the account holds the administrator role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdministrator
}

// IsBanned returns true if the account has been banned.
func (a *Account) IsBanned() bool {
	return a != nil && a.Standing == StandingBanned
}

// IsActive returns true for an existing account in good standing.
func (a *Account) IsActive() bool {
	return a != nil && a.Standing == StandingActive
}
