// Package auth guards the HTTP surface with bearer tokens, a shared app key,
// and per-agent rate limits. Rejections leave no governance trace.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/domain"
	"github.com/jtaylorcomplize/wombat-track-scaffold-sub008/secrets"
)

// TokenIssuer is the iss claim on issued tokens.
const TokenIssuer = "wombat-track"

// Claims are the JWT claims carried by agent API tokens.
type Claims struct {
	AgentID string `json:"agent_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 agent tokens.
type TokenManager struct {
	secrets secrets.Store
}

// NewTokenManager creates a token manager reading the signing secret from
// the secret store.
func NewTokenManager(store secrets.Store) *TokenManager {
	return &TokenManager{secrets: store}
}

// Issue creates a token for an agent valid for ttl.
func (tm *TokenManager) Issue(ctx context.Context, agentID string, ttl time.Duration) (string, error) {
	secret, err := tm.secrets.Get(ctx, secrets.KeyAPITokenSecret)
	if err != nil {
		return "", fmt.Errorf("load token secret: %w", err)
	}
	now := time.Now().UTC()
	claims := Claims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (tm *TokenManager) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	secret, err := tm.secrets.Get(ctx, secrets.KeyAPITokenSecret)
	if err != nil {
		return nil, fmt.Errorf("load token secret: %w", err)
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
