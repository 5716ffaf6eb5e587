// Package secrets provides synchronous key/value lookup for verification
// material: bearer-token secrets, the application key, and agent signing keys.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Well-known secret keys.
const (
	KeyAPITokenSecret = "api-token-secret"
	KeyAppKey         = "app-key"
	KeySigningKey     = "signing-key"
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("secret not found")

// Store is a synchronous key -> value secret lookup.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// SigningKeyFor returns the per-agent signing key name. Lookups fall back to
// KeySigningKey when the agent has no dedicated key.
func SigningKeyFor(agentID string) string {
	return KeySigningKey + ":" + agentID
}

// EnvStore resolves secrets from environment variables. A key such as
// "api-token-secret" maps to WT_API_TOKEN_SECRET; the colon in per-agent
// keys maps to a double underscore.
type EnvStore struct {
	Prefix string
}

// NewEnvStore creates an EnvStore with the default WT_ prefix.
func NewEnvStore() *EnvStore {
	return &EnvStore{Prefix: "WT_"}
}

func (s *EnvStore) Get(ctx context.Context, key string) (string, error) {
	if val := os.Getenv(s.envName(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (s *EnvStore) envName(key string) string {
	name := strings.ToUpper(key)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ":", "__")
	return s.Prefix + name
}

// StaticStore is a fixed in-memory secret map, used in tests and for
// file-provisioned deployments.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore creates a StaticStore over a copy of the given map.
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &StaticStore{values: copied}
}

func (s *StaticStore) Get(ctx context.Context, key string) (string, error) {
	if val, ok := s.values[key]; ok {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// GetWithFallback looks up key and falls back to fallbackKey when absent.
func GetWithFallback(ctx context.Context, store Store, key, fallbackKey string) (string, error) {
	val, err := store.Get(ctx, key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return store.Get(ctx, fallbackKey)
}
