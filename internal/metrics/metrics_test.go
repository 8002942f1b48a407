package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/echowrite/internal/metrics"
)

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m.AuthEvent("signup", "ok")
	m.AuthEvent("signup", "ok")
	m.RateLimited()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	out := string(body)

	require.True(t, strings.Contains(out, `echowrite_http_requests_total{method="GET",route="/ping",status="200"} 1`), out)
	require.Contains(t, out, `echowrite_auth_events_total{flow="signup",outcome="ok"} 2`)
	require.Contains(t, out, "echowrite_http_rate_limit_hits_total 1")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.AuthEvent("login", "ok")
	m.RateLimited()
	require.Nil(t, m.Registry())
}

func TestAuthEventCounts(t *testing.T) {
	m := metrics.New()
	m.AuthEvent("verify", "code_invalid")
	count, err := testutil.GatherAndCount(m.Registry(), "echowrite_auth_events_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
