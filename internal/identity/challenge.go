package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChallengeStore keeps outstanding login nonces. Take must remove the nonce so
// that each challenge can be answered at most once.
type ChallengeStore interface {
	Put(ctx context.Context, key, nonce string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, bool, error)
}

// challengeEntry is one outstanding nonce.
type challengeEntry struct {
	nonce     string
	expiresAt time.Time
}

func (e *challengeEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryChallengeStore is a thread-safe in-process ChallengeStore.
// Expired entries are ignored on read and removed by Evict.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]*challengeEntry
	now     func() time.Time
}

// NewMemoryChallengeStore creates an empty MemoryChallengeStore.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		entries: make(map[string]*challengeEntry),
		now:     time.Now,
	}
}

// Put implements ChallengeStore. A new nonce replaces any pending one for key.
func (s *MemoryChallengeStore) Put(_ context.Context, key, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &challengeEntry{nonce: nonce, expiresAt: s.now().Add(ttl)}
	return nil
}

// Take implements ChallengeStore.
func (s *MemoryChallengeStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)
	if e.expired(s.now()) {
		return "", false, nil
	}
	return e.nonce, true, nil
}

// Evict removes all expired entries and returns how many were dropped.
func (s *MemoryChallengeStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// StartEviction runs Evict every interval until ctx is cancelled.
func (s *MemoryChallengeStore) StartEviction(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Evict()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RedisChallengeStore shares challenges between portal instances through Redis.
type RedisChallengeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisChallengeStore creates a store on client. Keys are namespaced under
// "waveportal:challenge:".
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, prefix: "waveportal:challenge:"}
}

// Put implements ChallengeStore.
func (s *RedisChallengeStore) Put(ctx context.Context, key, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, nonce, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}
	return nil
}

// Take implements ChallengeStore. GETDEL makes the read-and-consume atomic.
func (s *RedisChallengeStore) Take(ctx context.Context, key string) (string, bool, error) {
	nonce, err := s.client.GetDel(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis take challenge: %w", err)
	}
	return nonce, true, nil
}
