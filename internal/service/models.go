package service

import (
	"strings"
	"time"

	"github.com/smallbiznis/echowrite/internal/domain"
)

// SignupInput starts an email registration.
type SignupInput struct {
	Name     string `json:"name" validate:"required"`
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (in *SignupInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
}

// VerifyInput redeems a one-time code.
type VerifyInput struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

func (in *VerifyInput) normalize() {
	in.Email = normalizeEmail(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
}

// ResendInput asks for the code to be delivered again.
type ResendInput struct {
	Email string `json:"email" validate:"required"`
}

// LoginInput authenticates with a password.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// GoogleLoginInput carries a Google ID token.
type GoogleLoginInput struct {
	IDToken string `json:"idToken" validate:"required"`
}

// ProfileInput changes profile fields or the password. Nil fields are ignored.
type ProfileInput struct {
	Name            *string `json:"name"`
	Username        *string `json:"username"`
	Avatar          *string `json:"avatar"`
	Bio             *string `json:"bio"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	Message string        `json:"message"`
	Token   string        `json:"token"`
	User    UserViewModel `json:"user"`
}

// UserViewModel represents user profile data returned to clients.
type UserViewModel struct {
	ID             int64     `json:"id,string"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	Avatar         string    `json:"avatar"`
	Bio            *string   `json:"bio"`
	Verified       bool      `json:"verified"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUserViewModel maps a domain user for output. The password hash never leaves.
func NewUserViewModel(u domain.User) UserViewModel {
	return UserViewModel{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		Name:           u.Name,
		Avatar:         u.AvatarURL,
		Bio:            u.Bio,
		Verified:       u.Verified,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		CreatedAt:      u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
