package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/echowrite/internal/domain"
)

// Generator is responsible for signing and validating JWTs.
type Generator struct {
	keys      *KeyManager
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// NewGenerator constructs a JWT generator.
func NewGenerator(manager *KeyManager, issuer string, accessTTL time.Duration) *Generator {
	return &Generator{keys: manager, issuer: issuer, accessTTL: accessTTL, now: time.Now}
}

// AccessTokenClaims represent the JWT payload for access tokens.
type AccessTokenClaims struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// UserID parses the id claim.
func (c AccessTokenClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.ID, 10, 64)
}

// TTL is the validity window of issued tokens.
func (g *Generator) TTL() time.Duration {
	return g.accessTTL
}

// GenerateAccessToken produces a signed JWT for user.
func (g *Generator) GenerateAccessToken(ctx context.Context, user domain.User) (string, error) {
	key, err := g.keys.EnsureSigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("ensure signing key: %w", err)
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.SignatureAlgorithm(key.Algorithm), Key: key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", key.KID),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	id := strconv.FormatInt(user.ID, 10)
	now := g.now().UTC()
	std := gojwt.Claims{
		Subject:   id,
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(g.accessTTL)),
	}
	custom := AccessTokenClaims{
		ID:       id,
		Email:    user.Email,
		Name:     user.Name,
		Username: user.Username,
		Avatar:   user.AvatarURL,
	}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// ValidateAccessToken ensures the token is valid and returns its claims.
func (g *Generator) ValidateAccessToken(ctx context.Context, token string) (*gojwt.Claims, *AccessTokenClaims, error) {
	key, err := g.keys.ActiveKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}

	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.SignatureAlgorithm(key.Algorithm)})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom AccessTokenClaims
	if err := parsed.Claims(key.Secret, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	if err := std.Validate(gojwt.Expected{Issuer: g.issuer, Time: g.now()}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}
	if custom.ID == "" {
		custom.ID = std.Subject
	}

	return &std, &custom, nil
}
