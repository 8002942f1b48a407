package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/echowrite/internal/domain"
	"github.com/smallbiznis/echowrite/internal/repository"
)

// Namespace separates the kinds of verification state kept per email.
type Namespace string

const (
	NamespaceCode     Namespace = "otp"
	NamespacePending  Namespace = "pending"
	NamespaceCooldown Namespace = "cooldown"
)

// Key addresses one piece of verification state.
type Key struct {
	Namespace Namespace
	Email     string
}

func (k Key) render(prefix string) string {
	return prefix + string(k.Namespace) + ":" + strings.ToLower(k.Email)
}

// RedisVerificationStore implements VerificationStore backed by Redis.
type RedisVerificationStore struct {
	client redis.UniversalClient
	prefix string
}

var _ repository.VerificationStore = (*RedisVerificationStore)(nil)

// NewRedisVerificationStore constructs the store. prefix is prepended to every key.
func NewRedisVerificationStore(client redis.UniversalClient, prefix string) *RedisVerificationStore {
	return &RedisVerificationStore{client: client, prefix: prefix}
}

func (s *RedisVerificationStore) key(ns Namespace, email string) string {
	return Key{Namespace: ns, Email: email}.render(s.prefix)
}

// SaveCode stores the one-time code, replacing any previous one.
func (s *RedisVerificationStore) SaveCode(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(NamespaceCode, email), code, ttl).Err(); err != nil {
		return fmt.Errorf("persist code: %w", err)
	}
	return nil
}

// GetCode loads the active code.
func (s *RedisVerificationStore) GetCode(ctx context.Context, email string) (string, bool, error) {
	code, err := s.client.Get(ctx, s.key(NamespaceCode, email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("load code: %w", err)
	}
	return code, true, nil
}

// DeleteCode removes the code key.
func (s *RedisVerificationStore) DeleteCode(ctx context.Context, email string) error {
	return s.del(ctx, s.key(NamespaceCode, email), "code")
}

// SavePending stores the encoded signup payload with TTL.
func (s *RedisVerificationStore) SavePending(ctx context.Context, pending domain.PendingRegistration, ttl time.Duration) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	if err := s.client.Set(ctx, s.key(NamespacePending, pending.Email), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist pending: %w", err)
	}
	return nil
}

// GetPending loads and decodes the signup payload.
func (s *RedisVerificationStore) GetPending(ctx context.Context, email string) (*domain.PendingRegistration, error) {
	bytes, err := s.client.Get(ctx, s.key(NamespacePending, email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load pending: %w", err)
	}
	var pending domain.PendingRegistration
	if err := json.Unmarshal(bytes, &pending); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return &pending, nil
}

// DeletePending removes the signup payload.
func (s *RedisVerificationStore) DeletePending(ctx context.Context, email string) error {
	return s.del(ctx, s.key(NamespacePending, email), "pending")
}

// StartCooldown (re)arms the resend guard.
func (s *RedisVerificationStore) StartCooldown(ctx context.Context, email string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(NamespaceCooldown, email), "1", ttl).Err(); err != nil {
		return fmt.Errorf("persist cooldown: %w", err)
	}
	return nil
}

// CooldownActive reports whether the guard key is present.
func (s *RedisVerificationStore) CooldownActive(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(NamespaceCooldown, email)).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return n > 0, nil
}

func (s *RedisVerificationStore) del(ctx context.Context, key, what string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	return nil
}
