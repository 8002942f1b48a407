package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/echowrite/internal/adapter/identity"
	"github.com/smallbiznis/echowrite/internal/config"
	"github.com/smallbiznis/echowrite/internal/domain"
	"github.com/smallbiznis/echowrite/internal/jwt"
	"github.com/smallbiznis/echowrite/internal/otp"
	"github.com/smallbiznis/echowrite/internal/password"
	"github.com/smallbiznis/echowrite/internal/registration"
	"github.com/smallbiznis/echowrite/internal/repository"
	"github.com/smallbiznis/echowrite/internal/username"
)

// CodeNotifier delivers verification codes. Implementations must not block on
// delivery and must not report delivery failures.
type CodeNotifier interface {
	SendVerificationCode(email, code string)
}

// EventRecorder counts flow outcomes.
type EventRecorder interface {
	AuthEvent(flow, outcome string)
}

// AuthService encapsulates authentication flows.
type AuthService struct {
	users     repository.UserRepository
	store     repository.VerificationStore
	usernames *username.Reconciler
	hasher    *password.Hasher
	codes     otp.Generator
	notifier  CodeNotifier
	verifier  identity.Verifier
	jwt       *jwt.Generator
	snowflake *snowflake.Node
	events    EventRecorder
	validate  *validator.Validate
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(
	users repository.UserRepository,
	store repository.VerificationStore,
	usernames *username.Reconciler,
	hasher *password.Hasher,
	codes otp.Generator,
	notifier CodeNotifier,
	verifier identity.Verifier,
	generator *jwt.Generator,
	node *snowflake.Node,
	events EventRecorder,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		store:     store,
		usernames: usernames,
		hasher:    hasher,
		codes:     codes,
		notifier:  notifier,
		verifier:  verifier,
		jwt:       generator,
		snowflake: node,
		events:    events,
		validate:  newValidator(),
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/smallbiznis/echowrite/internal/service"),
	}
}

// Signup validates the request, checks email then username availability and
// parks the registration until the emailed code is redeemed.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Signup")
	defer span.End()

	in.normalize()
	if err := s.check(in, MsgAllFieldsRequired); err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("email", in.Email))

	out, err := registration.Signup(ctx, registration.SignupProbes{
		EmailRegistered: s.emailRegistered(in.Email),
		RegistrationPending: func(ctx context.Context) (bool, error) {
			pending, err := s.store.GetPending(ctx, in.Email)
			return pending != nil, err
		},
		UsernameTaken: func(ctx context.Context) (bool, error) {
			return s.usernames.Exists(ctx, in.Username, 0)
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("signup: %w", err)
	}
	s.event("signup", out.Reason)
	if !out.OK() {
		return "", reasonError(out.Reason)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("signup hash password: %w", err)
	}
	pending := domain.PendingRegistration{
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.issueCode(ctx, in.Email, out, "", &pending); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("signup: %w", err)
	}

	s.audit("signup.pending", "email", in.Email, "username", in.Username)
	return MsgSignupPending, nil
}

// Verify redeems the emailed code and materializes the account. The username
// is checked again because another signup may have claimed it meanwhile.
func (s *AuthService) Verify(ctx context.Context, in VerifyInput) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Verify")
	defer span.End()

	in.normalize()
	if err := s.check(in, MsgVerifyFieldsRequired); err != nil {
		return nil, err
	}

	var pending *domain.PendingRegistration
	out, err := registration.Verify(ctx, registration.VerifyProbes{
		CodeMatches: func(ctx context.Context) (bool, error) {
			stored, ok, err := s.store.GetCode(ctx, in.Email)
			if err != nil || !ok {
				return false, err
			}
			return subtle.ConstantTimeCompare([]byte(stored), []byte(in.OTP)) == 1, nil
		},
		PendingFound: func(ctx context.Context) (bool, error) {
			p, err := s.store.GetPending(ctx, in.Email)
			pending = p
			return p != nil, err
		},
		UsernameTaken: func(ctx context.Context) (bool, error) {
			return s.usernames.Exists(ctx, pending.Username, 0)
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("verify: %w", err)
	}
	s.event("verify", out.Reason)

	if !out.OK() {
		if out.Has(registration.ConsumeCode | registration.DropPending) {
			s.discard(ctx, in.Email)
		}
		return nil, reasonError(out.Reason)
	}

	if err := s.store.DeleteCode(ctx, in.Email); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("verify consume code: %w", err)
	}
	if err := s.store.DeletePending(ctx, in.Email); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("verify drop pending: %w", err)
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:           s.snowflake.Generate().Int64(),
		Email:        pending.Email,
		Username:     pending.Username,
		Name:         pending.Name,
		PasswordHash: pending.PasswordHash,
		Verified:     true,
		AvatarURL:    s.cfg.DefaultAvatarURL,
	})
	if err != nil {
		span.RecordError(err)
		return nil, createError(err, MsgUsernameClaimed, "verify create user")
	}

	result, err := s.authResult(ctx, user, MsgRegistered)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.audit("verify.success", "user_id", user.ID, "email", user.Email)
	return result, nil
}

// ResendOTP delivers the active code again, minting a new one only when the
// previous code expired. The cooldown is re-armed on every success.
func (s *AuthService) ResendOTP(ctx context.Context, in ResendInput) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ResendOTP")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	if err := s.check(in, MsgEmailRequired); err != nil {
		return "", err
	}

	var code string
	out, err := registration.Resend(ctx, registration.ResendProbes{
		CooldownActive: func(ctx context.Context) (bool, error) {
			return s.store.CooldownActive(ctx, in.Email)
		},
		PendingFound: func(ctx context.Context) (bool, error) {
			p, err := s.store.GetPending(ctx, in.Email)
			return p != nil, err
		},
		CodeFound: func(ctx context.Context) (bool, error) {
			c, ok, err := s.store.GetCode(ctx, in.Email)
			code = c
			return ok, err
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("resend: %w", err)
	}
	s.event("resend", out.Reason)
	if !out.OK() {
		return "", reasonError(out.Reason)
	}

	if err := s.issueCode(ctx, in.Email, out, code, nil); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("resend: %w", err)
	}

	s.audit("resend.sent", "email", in.Email, "rotated", out.Has(registration.MintCode))
	return MsgResent, nil
}

// Login authenticates with email and password.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	if err := s.check(in, MsgLoginFieldsRequired); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.record("login", "unknown_email")
		return nil, newError(KindUnauthorized, MsgInvalidCredentials)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("login load user: %w", err)
	}

	if !user.Verified {
		s.record("login", "unverified")
		return nil, newError(KindForbidden, MsgUnverified)
	}

	if !user.HasPassword() {
		s.record("login", "no_password")
		return nil, newError(KindUnauthorized, MsgInvalidCredentials)
	}
	valid, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.log().Warn("stored password hash unreadable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if err != nil || !valid {
		s.record("login", "bad_password")
		return nil, newError(KindUnauthorized, MsgInvalidCredentials)
	}

	result, err := s.authResult(ctx, user, MsgLoggedIn)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.record("login", "ok")
	s.audit("password.login.success", "user_id", user.ID)
	return result, nil
}

// GoogleLogin signs in with a Google ID token, provisioning an account on
// first use. It never touches the verification store.
func (s *AuthService) GoogleLogin(ctx context.Context, in GoogleLoginInput) (*AuthResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GoogleLogin")
	defer span.End()

	in.IDToken = strings.TrimSpace(in.IDToken)
	if err := s.check(in, MsgNoIDToken); err != nil {
		return nil, err
	}

	ident, err := s.verifier.Verify(ctx, in.IDToken)
	if err != nil {
		span.RecordError(err)
		s.record("google", "verify_failed")
		return nil, wrapError(KindUpstream, MsgGoogleFailed, err)
	}
	if !ident.EmailVerified {
		s.record("google", "email_unverified")
		return nil, wrapError(KindUpstream, MsgGoogleFailed, errEmailUnverified)
	}

	user, err := s.users.GetByEmail(ctx, ident.Email)
	if err == nil {
		result, err := s.authResult(ctx, user, MsgLoggedIn)
		if err != nil {
			return nil, err
		}
		s.record("google", "login")
		s.audit("google.login", "user_id", user.ID)
		return result, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("google load user: %w", err)
	}

	user, err = s.provision(ctx, ident)
	if errors.Is(err, domain.ErrEmailTaken) {
		// A concurrent request provisioned the same email first.
		user, err = s.users.GetByEmail(ctx, ident.Email)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("google reload user: %w", err)
		}
		result, err := s.authResult(ctx, user, MsgLoggedIn)
		if err != nil {
			return nil, err
		}
		s.record("google", "login")
		return result, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := s.authResult(ctx, user, MsgGoogleSignedUp)
	if err != nil {
		return nil, err
	}
	s.record("google", "provisioned")
	s.audit("google.provisioned", "user_id", user.ID, "username", user.Username)
	return result, nil
}

func (s *AuthService) provision(ctx context.Context, ident domain.ExternalIdentity) (domain.User, error) {
	handle, err := s.usernames.GenerateUnique(ctx, ident.Name, ident.Email)
	if errors.Is(err, username.ErrExhausted) {
		return domain.User{}, wrapError(KindConflict, MsgUsernameNoSlots, err)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("google generate username: %w", err)
	}

	name := ident.Name
	if name == "" {
		name = handle
	}
	avatar := ident.Picture
	if avatar == "" {
		avatar = s.cfg.DefaultAvatarURL
	}

	user, err := s.users.Create(ctx, domain.User{
		ID:        s.snowflake.Generate().Int64(),
		Email:     ident.Email,
		Username:  handle,
		Name:      name,
		Verified:  true,
		AvatarURL: avatar,
	})
	if errors.Is(err, domain.ErrEmailTaken) {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, createError(err, MsgUsernameTaken, "google create user")
	}
	return user, nil
}

// CheckUsername reports whether a handle is free.
func (s *AuthService) CheckUsername(ctx context.Context, candidate string) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.CheckUsername")
	defer span.End()

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", newError(KindValidation, MsgUsernameRequired)
	}
	taken, err := s.usernames.Exists(ctx, candidate, 0)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("check username: %w", err)
	}
	if taken {
		return "", newError(KindConflict, MsgUsernameTaken)
	}
	return MsgUsernameAvailable, nil
}

// GetUser loads the account behind an access token.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GetUser")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, newError(KindNotFound, MsgUserNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes the password when NewPassword is set, otherwise the
// profile fields. A username change must stay unique among other accounts.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (string, domain.User, error) {
	ctx, span := s.startSpan(ctx, "AuthService.UpdateProfile")
	defer span.End()

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", domain.User{}, err
	}

	update := domain.ProfileUpdate{Bio: in.Bio}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return "", domain.User{}, newError(KindValidation, MsgNameEmpty)
		}
		update.Name = &name
	}
	if in.Avatar != nil && strings.TrimSpace(*in.Avatar) != "" {
		avatar := strings.TrimSpace(*in.Avatar)
		update.AvatarURL = &avatar
	}
	if in.Username != nil && strings.TrimSpace(*in.Username) != "" {
		handle := strings.TrimSpace(*in.Username)
		if handle != user.Username {
			if !username.Valid(handle) {
				return "", domain.User{}, newError(KindValidation, MsgInvalidUsername)
			}
			taken, err := s.usernames.Exists(ctx, handle, user.ID)
			if err != nil {
				span.RecordError(err)
				return "", domain.User{}, fmt.Errorf("update profile: %w", err)
			}
			if taken {
				return "", domain.User{}, newError(KindConflict, MsgUsernameTaken)
			}
			update.Username = &handle
		}
	}

	if in.NewPassword != "" {
		if err := s.changePassword(ctx, user, in.CurrentPassword, in.NewPassword); err != nil {
			return "", domain.User{}, err
		}
		s.audit("password.changed", "user_id", user.ID)
		return MsgPasswordUpdated, user, nil
	}

	if update.Empty() {
		return "", domain.User{}, newError(KindValidation, MsgNoProfileData)
	}

	updated, err := s.users.UpdateProfile(ctx, user.ID, update)
	if err != nil {
		span.RecordError(err)
		return "", domain.User{}, createError(err, MsgUsernameTaken, "update profile")
	}
	s.audit("profile.updated", "user_id", user.ID)
	return MsgProfileUpdated, updated, nil
}

func (s *AuthService) changePassword(ctx context.Context, user domain.User, current, next string) error {
	if current == "" {
		return newError(KindValidation, MsgCurrentPasswordNeeded)
	}
	if !user.HasPassword() {
		return newError(KindValidation, MsgPasswordNotSet)
	}
	valid, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil || !valid {
		return newError(KindUnauthorized, MsgInvalidOldPassword)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ValidateToken proxies to the JWT generator and resolves the subject.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (int64, *jwt.AccessTokenClaims, error) {
	std, custom, err := s.jwt.ValidateAccessToken(ctx, token)
	if err != nil {
		return 0, nil, err
	}
	id, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("token subject: %w", err)
	}
	return id, custom, nil
}

// issueCode applies the code-related effects of a signup or resend outcome.
// code is the still-active code when the outcome does not mint a new one.
func (s *AuthService) issueCode(ctx context.Context, email string, out registration.Outcome, code string, pending *domain.PendingRegistration) error {
	if out.Has(registration.MintCode) {
		minted, err := s.codes.Generate()
		if err != nil {
			return err
		}
		code = minted
	}
	if out.Has(registration.StoreCode) {
		if err := s.store.SaveCode(ctx, email, code, s.cfg.OTPTTL); err != nil {
			return err
		}
	}
	if out.Has(registration.StorePending) && pending != nil {
		if err := s.store.SavePending(ctx, *pending, s.cfg.PendingTTL); err != nil {
			return err
		}
	}
	if out.Has(registration.StartCooldown) {
		if err := s.store.StartCooldown(ctx, email, s.cfg.ResendCooldown); err != nil {
			return err
		}
	}
	if out.Has(registration.SendCode) && s.notifier != nil {
		s.notifier.SendVerificationCode(email, code)
	}
	return nil
}

// discard invalidates a registration whose username was claimed meanwhile.
func (s *AuthService) discard(ctx context.Context, email string) {
	if err := s.store.DeleteCode(ctx, email); err != nil {
		s.log().Warn("discard code failed", zap.String("email", email), zap.Error(err))
	}
	if err := s.store.DeletePending(ctx, email); err != nil {
		s.log().Warn("discard pending failed", zap.String("email", email), zap.Error(err))
	}
}

func (s *AuthService) emailRegistered(email string) registration.Probe {
	return func(ctx context.Context) (bool, error) {
		_, err := s.users.GetByEmail(ctx, email)
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

func (s *AuthService) authResult(ctx context.Context, user domain.User, msg string) (*AuthResult, error) {
	token, err := s.jwt.GenerateAccessToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &AuthResult{Message: msg, Token: token, User: NewUserViewModel(user)}, nil
}

// reasonError maps a refused transition to its client-facing error.
func reasonError(r registration.Reason) error {
	switch r {
	case registration.ReasonEmailTaken, registration.ReasonRegistrationPending:
		return newError(KindConflict, MsgUserAlreadyRegistered)
	case registration.ReasonUsernameTaken:
		return newError(KindConflict, MsgUsernameTaken)
	case registration.ReasonCodeInvalid:
		return newError(KindExpired, MsgInvalidOTP)
	case registration.ReasonSessionExpired:
		return newError(KindExpired, MsgSessionExpired)
	case registration.ReasonUsernameClaimed:
		return newError(KindConflict, MsgUsernameClaimed)
	case registration.ReasonCooldown:
		return newError(KindRateLimited, MsgResendCooling)
	default:
		return fmt.Errorf("unexpected registration outcome %s", r)
	}
}

// createError turns store uniqueness violations into conflicts.
func createError(err error, usernameMsg, op string) error {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		return wrapError(KindConflict, MsgUserAlreadyRegistered, err)
	case errors.Is(err, domain.ErrUsernameTaken):
		return wrapError(KindConflict, usernameMsg, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *AuthService) event(flow string, r registration.Reason) {
	outcome := "ok"
	if r != registration.ReasonNone {
		outcome = r.String()
	}
	s.record(flow, outcome)
}

func (s *AuthService) record(flow, outcome string) {
	if s.events != nil {
		s.events.AuthEvent(flow, outcome)
	}
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
