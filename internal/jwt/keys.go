package jwt

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/smallbiznis/echowrite/internal/domain"
	"github.com/smallbiznis/echowrite/internal/repository"
)

const staticKID = "env"

// KeyManager supplies the HS256 signing key. A configured secret wins;
// otherwise a random key is created once and kept in the key repository.
type KeyManager struct {
	repo   repository.KeyRepository
	static *domain.SigningKey

	mu     sync.RWMutex
	cached *domain.SigningKey
}

// NewKeyManager creates a KeyManager. secret may be empty.
func NewKeyManager(repo repository.KeyRepository, secret string) *KeyManager {
	m := &KeyManager{repo: repo}
	if secret != "" {
		m.static = &domain.SigningKey{
			KID:       staticKID,
			Secret:    []byte(secret),
			Algorithm: string(jose.HS256),
			IsActive:  true,
		}
	}
	return m
}

// EnsureSigningKey returns the active key, creating one if none exists.
func (m *KeyManager) EnsureSigningKey(ctx context.Context) (domain.SigningKey, error) {
	if key, ok := m.fromMemory(); ok {
		return key, nil
	}

	key, err := m.repo.GetActiveKey(ctx)
	if err == nil {
		return m.remember(key), nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return domain.SigningKey{}, fmt.Errorf("ensure signing key: %w", err)
	}

	secret := make([]byte, 64)
	if _, randErr := rand.Read(secret); randErr != nil {
		return domain.SigningKey{}, fmt.Errorf("generate secret: %w", randErr)
	}

	created, err := m.repo.CreateKey(ctx, domain.SigningKey{
		KID:       uuid.NewString(),
		Secret:    secret,
		Algorithm: string(jose.HS256),
		IsActive:  true,
	})
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("persist signing key: %w", err)
	}
	return m.remember(created), nil
}

// ActiveKey retrieves the signing key without creating one.
func (m *KeyManager) ActiveKey(ctx context.Context) (domain.SigningKey, error) {
	if key, ok := m.fromMemory(); ok {
		return key, nil
	}
	key, err := m.repo.GetActiveKey(ctx)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("active key: %w", err)
	}
	return m.remember(key), nil
}

func (m *KeyManager) fromMemory() (domain.SigningKey, bool) {
	if m.static != nil {
		return *m.static, true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cached == nil {
		return domain.SigningKey{}, false
	}
	return *m.cached, true
}

func (m *KeyManager) remember(key domain.SigningKey) domain.SigningKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = &key
	return key
}
