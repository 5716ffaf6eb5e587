package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/auth"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
)

func testStore() secrets.Store {
	return secrets.NewStaticStore(map[string]string{
		secrets.KeyAPITokenSecret: "token-secret",
		secrets.KeyAppKey:         "app-key-value",
	})
}

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager(testStore())

	token, err := tm.Issue(context.Background(), "claude-dispatcher", time.Hour)
	require.NoError(t, err)

	claims, err := tm.Parse(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "claude-dispatcher", claims.AgentID)
	assert.Equal(t, "claude-dispatcher", claims.Subject)
	assert.Equal(t, auth.TokenIssuer, claims.Issuer)
}

func TestTokenExpired(t *testing.T) {
	tm := auth.NewTokenManager(testStore())

	token, err := tm.Issue(context.Background(), "claude-dispatcher", -time.Minute)
	require.NoError(t, err)

	_, err = tm.Parse(context.Background(), token)
	require.Error(t, err)
}

func TestTokenTampered(t *testing.T) {
	tm := auth.NewTokenManager(testStore())

	token, err := tm.Issue(context.Background(), "claude-dispatcher", time.Hour)
	require.NoError(t, err)

	_, err = tm.Parse(context.Background(), token+"x")
	require.Error(t, err)
}

func runMiddleware(t *testing.T, a *auth.Authenticator, decorate func(*http.Request)) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", nil)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := a.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestMiddlewareAllowsBothCredentials(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	a := auth.NewAuthenticator(testStore(), log)

	token, err := a.Tokens().Issue(context.Background(), "claude-dispatcher", time.Hour)
	require.NoError(t, err)

	rec, c := runMiddleware(t, a, func(req *http.Request) {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		req.Header.Set(auth.HeaderAppKey, "app-key-value")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claude-dispatcher", c.Get(auth.AgentIDKey))
}

func TestMiddlewareRejects(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	a := auth.NewAuthenticator(testStore(), log)

	token, err := a.Tokens().Issue(context.Background(), "claude-dispatcher", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name     string
		decorate func(*http.Request)
	}{
		{"no credentials", nil},
		{"bearer only", func(req *http.Request) {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}},
		{"app key only", func(req *http.Request) {
			req.Header.Set(auth.HeaderAppKey, "app-key-value")
		}},
		{"garbage bearer with app key", func(req *http.Request) {
			req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
			req.Header.Set(auth.HeaderAppKey, "app-key-value")
		}},
		{"wrong app key with bearer", func(req *http.Request) {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			req.Header.Set(auth.HeaderAppKey, "wrong")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := runMiddleware(t, a, tc.decorate)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
}

func TestRateLimiter(t *testing.T) {
	l := auth.NewRateLimiter(1, 2)
	assert.True(t, l.Allow("claude-dispatcher"))
	assert.True(t, l.Allow("claude-dispatcher"))
	assert.False(t, l.Allow("claude-dispatcher"), "burst exhausted")
	assert.True(t, l.Allow("gizmo-builder"), "buckets are per caller")

	disabled := auth.NewRateLimiter(0, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, disabled.Allow("anyone"))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := auth.NewRateLimiter(1, 1)
	e := echo.New()
	handler := l.Middleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/instructions", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(auth.AgentIDKey, "claude-dispatcher")
		require.NoError(t, handler(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, serve().Code)
	assert.Equal(t, http.StatusTooManyRequests, serve().Code)
}
