package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinebook/cinebook/internal/config"
)

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		KeyStrategy:    "ip_user_route",
		Prefix:         "rl",
	}
}

func invoke(t *testing.T, mw echo.MiddlewareFunc) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/screenings/1/holds", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	called := false
	err := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	return rec, called
}

func TestTokenBucketDisabledPassesThrough(t *testing.T) {
	cfg := limiterConfig()
	cfg.Enabled = false
	_, called := invoke(t, NewTokenBucket(cfg, nil))
	assert.True(t, called)

	// A nil client disables the limiter even when enabled.
	_, called = invoke(t, NewTokenBucket(limiterConfig(), nil))
	assert.True(t, called)
}

func TestTokenBucketFailsOpenOnRedisError(t *testing.T) {
	rdb, _ := redismock.NewClientMock()

	// No expectations registered: every script call errors, and the
	// request must still go through.
	rec, called := invoke(t, NewTokenBucket(limiterConfig(), rdb))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRateKeyStrategies(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/screenings/1/holds", nil)
	req.Header.Set(ClientTokenHeader, "tok-a")
	req.RemoteAddr = "10.1.2.3:4444"
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/screenings/:id/holds")

	cfg := limiterConfig()
	cases := map[string]string{
		"ip":    "rl:ip:10.1.2.3",
		"user":  "rl:user:tok-a",
		"route": "rl:route:POST /v1/screenings/:id/holds",
	}
	for strategy, want := range cases {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, buildRateKey(cfg, c))
	}

	cfg.KeyStrategy = "ip_user_route"
	assert.Equal(t, "rl:ip:10.1.2.3:user:tok-a:route:POST /v1/screenings/:id/holds", buildRateKey(cfg, c))
}
