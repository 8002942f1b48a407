package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/echowrite/internal/adapter/identity"
)

const clientID = "client-123.apps.googleusercontent.com"

type idp struct {
	mu      sync.Mutex
	key     *rsa.PrivateKey
	kid     string
	server  *httptest.Server
	fetches atomic.Int32
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &idp{key: key, kid: "google-key-1"}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.fetches.Add(1)
		p.mu.Lock()
		set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &p.key.PublicKey,
			KeyID:     p.kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}}
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *idp) sign(t *testing.T, kid string, std gojwt.Claims, extra map[string]any) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: p.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", kid),
	)
	require.NoError(t, err)
	token, err := gojwt.Signed(signer).Claims(std).Claims(extra).Serialize()
	require.NoError(t, err)
	return token
}

func validClaims() gojwt.Claims {
	now := time.Now()
	return gojwt.Claims{
		Issuer:   "https://accounts.google.com",
		Subject:  "1098765",
		Audience: gojwt.Audience{clientID},
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func profile() map[string]any {
	return map[string]any{
		"email":          "Jane.Doe@Gmail.com",
		"email_verified": true,
		"name":           "Jane Doe",
		"picture":        "https://lh3.googleusercontent.com/a/jane",
	}
}

func (p *idp) verifier() *identity.GoogleVerifier {
	return identity.NewGoogleVerifier(identity.GoogleConfig{ClientID: clientID, JWKSURL: p.server.URL}, p.server.Client())
}

func TestVerifyValidToken(t *testing.T) {
	p := newIDP(t)
	v := p.verifier()

	got, err := v.Verify(context.Background(), p.sign(t, p.kid, validClaims(), profile()))
	require.NoError(t, err)
	require.Equal(t, "jane.doe@gmail.com", got.Email)
	require.Equal(t, "Jane Doe", got.Name)
	require.Equal(t, "https://lh3.googleusercontent.com/a/jane", got.Picture)
	require.Equal(t, "1098765", got.Subject)
	require.True(t, got.EmailVerified)

	_, err = v.Verify(context.Background(), p.sign(t, p.kid, validClaims(), profile()))
	require.NoError(t, err)
	require.Equal(t, int32(1), p.fetches.Load(), "keys are cached")
}

func TestVerifyRejects(t *testing.T) {
	p := newIDP(t)

	wrongAud := validClaims()
	wrongAud.Audience = gojwt.Audience{"someone-else"}

	expired := validClaims()
	expired.IssuedAt = gojwt.NewNumericDate(time.Now().Add(-3 * time.Hour))
	expired.Expiry = gojwt.NewNumericDate(time.Now().Add(-2 * time.Hour))

	wrongIss := validClaims()
	wrongIss.Issuer = "https://evil.example.com"

	noEmail := profile()
	delete(noEmail, "email")

	unverified := profile()
	unverified["email_verified"] = false

	unverifiedString := profile()
	unverifiedString["email_verified"] = "false"

	missingVerified := profile()
	delete(missingVerified, "email_verified")

	cases := map[string]string{
		"audience":            p.sign(t, p.kid, wrongAud, profile()),
		"expired":             p.sign(t, p.kid, expired, profile()),
		"issuer":              p.sign(t, p.kid, wrongIss, profile()),
		"email":               p.sign(t, p.kid, validClaims(), noEmail),
		"unverified":          p.sign(t, p.kid, validClaims(), unverified),
		"unverified string":   p.sign(t, p.kid, validClaims(), unverifiedString),
		"verification absent": p.sign(t, p.kid, validClaims(), missingVerified),
		"kid":                 p.sign(t, "unknown", validClaims(), profile()),
		"garbage":             "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.verifier().Verify(context.Background(), token)
			require.ErrorIs(t, err, identity.ErrInvalidToken)
		})
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	p := newIDP(t)
	other := newIDP(t)
	token := other.sign(t, p.kid, validClaims(), profile())

	_, err := p.verifier().Verify(context.Background(), token)
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyNotConfigured(t *testing.T) {
	v := identity.NewGoogleVerifier(identity.GoogleConfig{}, nil)
	_, err := v.Verify(context.Background(), "x")
	require.ErrorIs(t, err, identity.ErrNotConfigured)
}

func TestVerifyJWKSUnavailable(t *testing.T) {
	p := newIDP(t)
	token := p.sign(t, p.kid, validClaims(), profile())
	p.server.Close()

	_, err := p.verifier().Verify(context.Background(), token)
	require.Error(t, err)
	require.NotErrorIs(t, err, identity.ErrInvalidToken)
}

func TestVerifyAcceptsStringVerifiedFlag(t *testing.T) {
	p := newIDP(t)
	claims := profile()
	claims["email_verified"] = "true"

	got, err := p.verifier().Verify(context.Background(), p.sign(t, p.kid, validClaims(), claims))
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
}

func TestUnknownKeyIDsDoNotRefetchWithinMinRefresh(t *testing.T) {
	p := newIDP(t)
	v := p.verifier()

	_, err := v.Verify(context.Background(), p.sign(t, p.kid, validClaims(), profile()))
	require.NoError(t, err)
	require.Equal(t, int32(1), p.fetches.Load())

	for i := 0; i < 20; i++ {
		_, err := v.Verify(context.Background(), p.sign(t, fmt.Sprintf("bogus-%d", i), validClaims(), profile()))
		require.ErrorIs(t, err, identity.ErrInvalidToken)
	}
	require.Equal(t, int32(1), p.fetches.Load())
}

func TestConcurrentUnknownKeyIDsShareOneFetch(t *testing.T) {
	p := newIDP(t)
	v := p.verifier()

	tokens := make([]string, 16)
	for i := range tokens {
		tokens[i] = p.sign(t, fmt.Sprintf("bogus-%d", i), validClaims(), profile())
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tokens))
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			_, errs[i] = v.Verify(context.Background(), token)
		}(i, token)
	}
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, identity.ErrInvalidToken)
	}
	require.Equal(t, int32(1), p.fetches.Load())
}

func TestRotatedKeyPickedUpAfterMinRefresh(t *testing.T) {
	p := newIDP(t)
	now := time.Now()
	v := identity.NewGoogleVerifier(identity.GoogleConfig{
		ClientID:   clientID,
		JWKSURL:    p.server.URL,
		MinRefresh: time.Minute,
	}, p.server.Client())
	v.SetClock(func() time.Time { return now })

	_, err := v.Verify(context.Background(), p.sign(t, p.kid, validClaims(), profile()))
	require.NoError(t, err)

	p.mu.Lock()
	p.kid = "google-key-2"
	p.mu.Unlock()
	rotated := p.sign(t, "google-key-2", validClaims(), profile())

	_, err = v.Verify(context.Background(), rotated)
	require.ErrorIs(t, err, identity.ErrInvalidToken)
	require.Equal(t, int32(1), p.fetches.Load())

	now = now.Add(2 * time.Minute)
	_, err = v.Verify(context.Background(), rotated)
	require.NoError(t, err)
	require.Equal(t, int32(2), p.fetches.Load())
}
