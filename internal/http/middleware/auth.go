package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/echowrite/internal/jwt"
)

const (
	accessClaimsKey = "accessClaims"
	userIDKey       = "userID"

	MsgAuthRequired = "Authorization header required"
	MsgInvalidToken = "Invalid or expired token"
)

// TokenValidator resolves an access token to its subject.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, *jwt.AccessTokenClaims, error)
}

// Auth validates Authorization header and attaches claims.
type Auth struct {
	Tokens TokenValidator
}

// NewAuth builds the bearer-token middleware.
func NewAuth(tokens TokenValidator) *Auth {
	return &Auth{Tokens: tokens}
}

// ValidateJWT ensures the request has a valid bearer token.
func (m *Auth) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": MsgAuthRequired})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": MsgAuthRequired})
		return
	}

	userID, custom, err := m.Tokens.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": MsgInvalidToken})
		return
	}
	c.Set(userIDKey, userID)
	c.Set(accessClaimsKey, custom)
	c.Next()
}

// GetAccessClaims exposes custom access token claims to handlers.
func GetAccessClaims(c *gin.Context) (*jwt.AccessTokenClaims, bool) {
	value, ok := c.Get(accessClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*jwt.AccessTokenClaims)
	return claims, ok
}

// GetUserID returns the token subject.
func GetUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}
