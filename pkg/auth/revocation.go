package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationList remembers sessions ended by logout until their tokens would
// have expired anyway. Entries are keyed by the token's jti.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationList keeps revoked token ids in process memory.
// It only suits a single API instance.
type MemoryRevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationList creates an empty in-process revocation list
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke records tokenID until expiresAt
func (l *MemoryRevocationList) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !expiresAt.After(l.now()) {
		return nil
	}
	l.entries[tokenID] = expiresAt
	return nil
}

// IsRevoked reports whether tokenID was revoked and has not yet expired
func (l *MemoryRevocationList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiresAt, ok := l.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !expiresAt.After(l.now()) {
		delete(l.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Cleanup drops entries whose tokens have expired
func (l *MemoryRevocationList) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, expiresAt := range l.entries {
		if !expiresAt.After(now) {
			delete(l.entries, id)
		}
	}
}

// Len returns the number of tracked entries
func (l *MemoryRevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartCleanup runs Cleanup every interval until ctx is done
func (l *MemoryRevocationList) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// RedisRevocationList shares revoked token ids between API instances.
// Each entry carries a TTL equal to the token's remaining lifetime.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationList creates a revocation list storing keys under prefix
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	return &RedisRevocationList{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *RedisRevocationList) key(tokenID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, tokenID)
}

// Revoke records tokenID until expiresAt
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID is still on the list
func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return n > 0, nil
}
