package domain

import "time"

// User is a finalized account, created either by email verification or by
// federated sign-in.
type User struct {
	ID             int64
	Email          string
	Username       string
	Name           string
	PasswordHash   string
	Verified       bool
	AvatarURL      string
	Bio            *string
	FollowersCount int
	FollowingCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can sign in with a password.
// Federation-only accounts carry no hash.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PendingRegistration is the signup payload held until the email owner
// proves control with a one-time code.
type PendingRegistration struct {
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfileUpdate carries optional profile changes. Nil fields are left untouched.
type ProfileUpdate struct {
	Name      *string
	Username  *string
	AvatarURL *string
	Bio       *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Username == nil && p.AvatarURL == nil && p.Bio == nil
}

// ExternalIdentity is the verified claim set returned by an identity provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}
