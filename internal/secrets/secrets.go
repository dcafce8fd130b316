// Package secrets reads bootstrap secrets from Redis or the environment.
package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrSecretNotFound is returned when no secret exists for an id
var ErrSecretNotFound = errors.New("secret not found")

// Store fetches cleartext secrets by id
type Store interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// EnvStore reads secrets from environment variables. The id is upper-cased
// and every character outside [A-Z0-9] becomes an underscore, so the secret
// "prod-TestUserPassword" is read from PROD_TESTUSERPASSWORD.
type EnvStore struct {
	Prefix string

	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment store; prefix is prepended to every
// variable name
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix, lookup: os.LookupEnv}
}

// GetSecret implements Store
func (s *EnvStore) GetSecret(_ context.Context, id string) (string, error) {
	lookup := s.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, ok := lookup(s.VarName(id))
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// VarName returns the environment variable holding the secret
func (s *EnvStore) VarName(id string) string {
	var b strings.Builder
	b.WriteString(s.Prefix)
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// MemoryStore holds secrets in memory
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore creates a memory store seeded with secrets
func NewMemoryStore(secrets map[string]string) *MemoryStore {
	s := &MemoryStore{secrets: make(map[string]string, len(secrets))}
	for id, value := range secrets {
		s.secrets[id] = value
	}
	return s
}

// GetSecret implements Store
func (s *MemoryStore) GetSecret(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[id]
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// PutSecret stores a secret
func (s *MemoryStore) PutSecret(_ context.Context, id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[id] = value
	return nil
}
