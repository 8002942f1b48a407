package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/echowrite/internal/adapter/cache"
	"github.com/smallbiznis/echowrite/internal/config"
	"github.com/smallbiznis/echowrite/internal/domain"
	httptransport "github.com/smallbiznis/echowrite/internal/http"
	"github.com/smallbiznis/echowrite/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/echowrite/internal/http/middleware"
	"github.com/smallbiznis/echowrite/internal/jwt"
	"github.com/smallbiznis/echowrite/internal/metrics"
	"github.com/smallbiznis/echowrite/internal/otp"
	"github.com/smallbiznis/echowrite/internal/password"
	"github.com/smallbiznis/echowrite/internal/repository"
	"github.com/smallbiznis/echowrite/internal/service"
	"github.com/smallbiznis/echowrite/internal/username"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) SendVerificationCode(email, code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[email] = code
}

func (i *inbox) code(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (domain.ExternalIdentity, error) {
	return domain.ExternalIdentity{}, context.DeadlineExceeded
}

func newTestRouter(t *testing.T) (*gin.Engine, *inbox, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{
		ServiceName:        "echowrite-test",
		AccessTokenTTL:     time.Hour,
		OTPTTL:             5 * time.Minute,
		PendingTTL:         5 * time.Minute,
		ResendCooldown:     30 * time.Second,
		CORSAllowedOrigins: []string{"*"},
	}

	users := repository.NewMemoryUserRepo()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	mail := &inbox{codes: map[string]string{}}
	m := metrics.New()

	svc := service.NewAuthService(
		users,
		cache.NewRedisVerificationStore(client, "test:"),
		username.NewReconciler(users),
		password.NewHasher(password.Params{Time: 1, Memory: 1024, Threads: 1}),
		otp.NewGenerator(),
		mail,
		stubVerifier{},
		jwt.NewGenerator(jwt.NewKeyManager(repository.NewMemoryKeyRepo(), ""), "echowrite-test", cfg.AccessTokenTTL),
		node,
		m,
		cfg,
		zap.NewNop(),
	)

	router := httptransport.NewRouter(
		cfg,
		handler.NewAuthHandler(svc, zap.NewNop()),
		httpmiddleware.NewAuth(svc),
		nil,
		m,
		zap.NewNop(),
	)
	return router, mail, m
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestAccountLifecycleOverHTTP(t *testing.T) {
	r, mail, _ := newTestRouter(t)

	status, body := do(t, r, http.MethodPost, "/auth/signup", "", map[string]string{
		"name": "Ada", "username": "ada", "email": "ada@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, service.MsgSignupPending, body["message"])

	status, body = do(t, r, http.MethodPost, "/auth/resend-otp", "", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, service.MsgResendCooling, body["message"])

	status, body = do(t, r, http.MethodPost, "/auth/verify", "", map[string]string{
		"email": "ada@example.com", "otp": mail.code("ada@example.com"),
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, service.MsgRegistered, body["message"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]any)
	require.Equal(t, "ada", user["username"])
	require.IsType(t, "", user["id"])
	require.NotContains(t, user, "password_hash")

	status, body = do(t, r, http.MethodPost, "/auth/check-username", "", map[string]string{"username": "ADA"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, service.MsgUsernameTaken, body["message"])

	status, body = do(t, r, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me, _ := body["user"].(map[string]any)
	require.Equal(t, "ada@example.com", me["email"])

	status, body = do(t, r, http.MethodPatch, "/profile", token, map[string]string{"bio": "hello"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, service.MsgProfileUpdated, body["message"])

	status, body = do(t, r, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, service.MsgInvalidCredentials, body["message"])
}

func TestBadRequestsOverHTTP(t *testing.T) {
	r, _, _ := newTestRouter(t)

	status, body := do(t, r, http.MethodPost, "/auth/signup", "", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, service.MsgAllFieldsRequired, body["message"])

	status, body = do(t, r, http.MethodPost, "/auth/verify", "", map[string]string{"email": "a@b.com"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, service.MsgVerifyFieldsRequired, body["message"])

	status, body = do(t, r, http.MethodPost, "/auth/google", "", map[string]string{"idToken": "x"})
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, service.MsgGoogleFailed, body["message"])
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	r, _, _ := newTestRouter(t)

	status, body := do(t, r, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, httpmiddleware.MsgAuthRequired, body["message"])

	status, body = do(t, r, http.MethodPatch, "/profile", "not-a-jwt", map[string]string{"name": "x"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, httpmiddleware.MsgInvalidToken, body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/auth/check-username", "", map[string]string{"username": "free"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "echowrite_http_requests_total")
}
