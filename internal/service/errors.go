package service

import (
	"errors"
	"net/http"
)

// Kind classifies client-facing failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindExpired
	KindRateLimited
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindUpstream
)

// Status maps the kind to an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindExpired:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error carries a message that is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return 0
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var errEmailUnverified = errors.New("identity email not verified")

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

const (
	MsgAllFieldsRequired     = "All fields are required"
	MsgInvalidEmail          = "Please provide a valid email address"
	MsgInvalidUsername       = "Username must be 3-30 characters of letters, numbers, dots, dashes or underscores"
	MsgUserAlreadyRegistered = "User already registered"
	MsgUsernameTaken         = "Username already taken. Please choose another username."
	MsgSignupPending         = "Check your email for OTP verification."

	MsgVerifyFieldsRequired = "OTP and email are required"
	MsgInvalidOTP           = "Invalid or expired OTP"
	MsgSessionExpired       = "Session expired. Please signup again."
	MsgUsernameClaimed      = "Username has been taken during verification. Please try again with a different username."
	MsgRegistered           = "User registered successfully!"

	MsgEmailRequired = "Email is required"
	MsgResendCooling = "OTP already sent. Please wait before requesting again."
	MsgResent        = "OTP resent successfully"

	MsgLoginFieldsRequired = "Email and password are required"
	MsgInvalidCredentials  = "Invalid email or password"
	MsgUnverified          = "Please verify your email before logging in."
	MsgLoggedIn            = "Login successful"

	MsgNoIDToken       = "No ID token provided"
	MsgGoogleFailed    = "Google sign-in failed"
	MsgGoogleSignedUp  = "Signup & login successful"
	MsgUsernameNoSlots = "Could not allocate a unique username"

	MsgUsernameRequired  = "Username is required"
	MsgUsernameAvailable = "Username is available"

	MsgUserNotFound          = "User not found"
	MsgNameEmpty             = "Name cannot be empty"
	MsgCurrentPasswordNeeded = "Current password is required"
	MsgPasswordNotSet        = "Password not set for this user"
	MsgInvalidOldPassword    = "Invalid old password"
	MsgPasswordUpdated       = "Password updated successfully"
	MsgProfileUpdated        = "Profile updated successfully"
	MsgNoProfileData         = "No valid data provided"
)
