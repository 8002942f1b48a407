package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/echowrite/internal/domain"
)

// UserRepository exposes persistence for finalized accounts.
type UserRepository interface {
	// GetByEmail returns domain.ErrUserNotFound when no row matches.
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	// UsernameExists compares case-insensitively. excludeID of zero excludes nothing.
	UsernameExists(ctx context.Context, username string, excludeID int64) (bool, error)
	// Create returns domain.ErrEmailTaken or domain.ErrUsernameTaken on a
	// uniqueness violation.
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdateProfile(ctx context.Context, id int64, update domain.ProfileUpdate) (domain.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// KeyRepository stores the token signing key.
type KeyRepository interface {
	// GetActiveKey returns domain.ErrKeyNotFound when no key is active.
	GetActiveKey(ctx context.Context) (domain.SigningKey, error)
	CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error)
}

// VerificationStore holds the expiring state of email signups. Each entry
// expires on its own; none are written together atomically.
type VerificationStore interface {
	SaveCode(ctx context.Context, email, code string, ttl time.Duration) error
	GetCode(ctx context.Context, email string) (string, bool, error)
	DeleteCode(ctx context.Context, email string) error

	SavePending(ctx context.Context, pending domain.PendingRegistration, ttl time.Duration) error
	// GetPending returns nil without error when nothing is stored.
	GetPending(ctx context.Context, email string) (*domain.PendingRegistration, error)
	DeletePending(ctx context.Context, email string) error

	StartCooldown(ctx context.Context, email string, ttl time.Duration) error
	CooldownActive(ctx context.Context, email string) (bool, error)
}
