package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/smallbiznis/echowrite/internal/domain"
)

const providerGoogle = "google"

var (
	// ErrInvalidToken covers any assertion that fails verification.
	ErrInvalidToken = errors.New("invalid identity token")
	// ErrNotConfigured is returned when no client id is set.
	ErrNotConfigured = errors.New("identity provider not configured")
)

// Verifier checks an external identity assertion.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (domain.ExternalIdentity, error)
}

// GoogleConfig configures GoogleVerifier.
type GoogleConfig struct {
	ClientID string
	JWKSURL  string
	Issuers  []string
	CacheTTL time.Duration
	// MinRefresh is the shortest gap between two key set fetches. Unknown
	// key ids seen inside the gap are rejected from the cached set.
	MinRefresh time.Duration
}

// GoogleVerifier validates Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	cfg        GoogleConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.RWMutex
	keys      jose.JSONWebKeySet
	fetchedAt time.Time
	refresh   singleflight.Group
}

var _ Verifier = (*GoogleVerifier)(nil)

// NewGoogleVerifier constructs a verifier. A nil client gets a 10s timeout.
func NewGoogleVerifier(cfg GoogleConfig, client *http.Client) *GoogleVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = []string{"accounts.google.com", "https://accounts.google.com"}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MinRefresh <= 0 {
		cfg.MinRefresh = time.Minute
	}
	return &GoogleVerifier{cfg: cfg, httpClient: client, now: time.Now}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify checks signature, audience, issuer and expiry, and returns the identity.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (domain.ExternalIdentity, error) {
	if strings.TrimSpace(v.cfg.ClientID) == "" {
		return domain.ExternalIdentity{}, ErrNotConfigured
	}

	parsed, err := gojwt.ParseSigned(idToken, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: parse: %v", ErrInvalidToken, err)
	}
	if len(parsed.Headers) == 0 {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: missing header", ErrInvalidToken)
	}

	key, err := v.key(ctx, parsed.Headers[0].KeyID)
	if err != nil {
		return domain.ExternalIdentity{}, err
	}

	var std gojwt.Claims
	var claims googleClaims
	if err := parsed.Claims(key.Key, &std, &claims); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}

	if err := std.Validate(gojwt.Expected{AnyAudience: gojwt.Audience{v.cfg.ClientID}, Time: v.now()}); err != nil {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	if !v.trustedIssuer(std.Issuer) {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, std.Issuer)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: email missing", ErrInvalidToken)
	}
	if !boolValue(claims.EmailVerified) {
		return domain.ExternalIdentity{}, fmt.Errorf("%w: email not verified", ErrInvalidToken)
	}

	return domain.ExternalIdentity{
		Provider:      providerGoogle,
		Subject:       std.Subject,
		Email:         email,
		EmailVerified: true,
		Name:          strings.TrimSpace(claims.Name),
		Picture:       strings.TrimSpace(claims.Picture),
	}, nil
}

func (v *GoogleVerifier) trustedIssuer(iss string) bool {
	for _, allowed := range v.cfg.Issuers {
		if iss == allowed {
			return true
		}
	}
	return false
}

// key returns the verification key for kid. The cached set is refreshed when
// it is stale, or when it does not know kid and was fetched at least
// MinRefresh ago. Concurrent refreshes share one fetch.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (jose.JSONWebKey, error) {
	v.mu.RLock()
	age := v.now().Sub(v.fetchedAt)
	found := v.keys.Key(kid)
	fetched := !v.fetchedAt.IsZero()
	v.mu.RUnlock()

	if len(found) > 0 && age < v.cfg.CacheTTL {
		return found[0], nil
	}
	if len(found) == 0 && fetched && age < v.cfg.MinRefresh {
		return jose.JSONWebKey{}, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
	}

	res, err, _ := v.refresh.Do("jwks", func() (any, error) {
		v.mu.RLock()
		recent := !v.fetchedAt.IsZero() && v.now().Sub(v.fetchedAt) < v.cfg.MinRefresh
		current := v.keys
		v.mu.RUnlock()
		if recent {
			return current, nil
		}

		set, err := v.fetchKeys(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keys = set
		v.fetchedAt = v.now()
		v.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return jose.JSONWebKey{}, err
	}

	set := res.(jose.JSONWebKeySet)
	if found = set.Key(kid); len(found) == 0 {
		return jose.JSONWebKey{}, fmt.Errorf("%w: unknown key id %q", ErrInvalidToken, kid)
	}
	return found[0], nil
}

func (v *GoogleVerifier) fetchKeys(ctx context.Context) (jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("jwks request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("read jwks: %w", err)
	}
	if resp.StatusCode >= 300 {
		return jose.JSONWebKeySet{}, fmt.Errorf("jwks fetch failed: status=%d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks: %w", err)
	}
	return set, nil
}

func boolValue(input any) bool {
	switch v := input.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
