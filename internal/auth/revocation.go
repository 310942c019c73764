package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations records session tokens that were explicitly logged out.
type Revocations interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryRevocations is the single-process deny-list. Entries are never
// pruned and are lost on restart, so a revoked but unexpired token becomes
// valid again after the process restarts.
type MemoryRevocations struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewMemoryRevocations creates an empty deny-list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{tokens: make(map[string]struct{})}
}

// Revoke adds the raw token string.
func (m *MemoryRevocations) Revoke(_ context.Context, token string, _ time.Time) error {
	m.mu.Lock()
	m.tokens[token] = struct{}{}
	m.mu.Unlock()
	return nil
}

// IsRevoked reports whether token was revoked in this process.
func (m *MemoryRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	_, ok := m.tokens[token]
	m.mu.RUnlock()
	return ok, nil
}

// Len returns the number of revoked tokens held.
func (m *MemoryRevocations) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}

// RedisRevocations shares the deny-list between service instances. Keys are
// token hashes and expire together with the token, so the set stays bounded
// and survives restarts.
type RedisRevocations struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocations builds a deny-list stored under prefix.
func NewRedisRevocations(client *redis.Client, prefix string, now func() time.Time) *RedisRevocations {
	if prefix == "" {
		prefix = "records:revoked:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRevocations{client: client, prefix: prefix, now: now}
}

// Revoke stores the token hash until the token would have expired anyway.
func (r *RedisRevocations) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.key(token), 1, ttl).Err()
}

// IsRevoked checks for the token hash.
func (r *RedisRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevocations) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}
