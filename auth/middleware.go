package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
)

// Request header carrying the shared application key.
const HeaderAppKey = "X-App-Key"

// AgentIDKey is the echo context key holding the authenticated agent id.
const AgentIDKey = "agent_id"

// Authenticator validates incoming requests. A request must present both a
// valid bearer token and the shared app key; either one alone is rejected.
type Authenticator struct {
	tokens  *TokenManager
	secrets secrets.Store
	log     *logrus.Logger
}

// NewAuthenticator creates an authenticator over the secret store.
func NewAuthenticator(store secrets.Store, log *logrus.Logger) *Authenticator {
	if log == nil {
		log = logrus.New()
	}
	return &Authenticator{
		tokens:  NewTokenManager(store),
		secrets: store,
		log:     log,
	}
}

// Tokens exposes the token manager for issuing agent tokens.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

// Middleware rejects unauthenticated requests with 401 before any
// instruction processing happens.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			if !a.appKeyValid(ctx, c.Request().Header.Get(HeaderAppKey)) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			authz := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			claims, err := a.tokens.Parse(ctx, token)
			if err != nil {
				a.log.WithError(err).Debug("bearer token rejected")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			c.Set(AgentIDKey, claims.AgentID)
			return next(c)
		}
	}
}

func (a *Authenticator) appKeyValid(ctx context.Context, presented string) bool {
	if presented == "" {
		return false
	}
	expected, err := a.secrets.Get(ctx, secrets.KeyAppKey)
	if err != nil || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}
