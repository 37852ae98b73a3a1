// Package cache is a keyed TTL store for shared backend aggregates.
//
// Concurrent misses for the same key may both compute the payload and both
// write it; the last write wins. Aggregates are read-mostly and short-lived,
// so no cross-request locking is done.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketdash/internal/telemetry"
)

// TTLs per aggregate.
const (
	TTLMarketOverview   = 5 * time.Minute
	TTLMarketNews       = 5 * time.Minute
	TTLGeopoliticalNews = 5 * time.Minute
	TTLMarketImpact     = 5 * time.Minute
	TTLCryptoOverview   = 5 * time.Minute
	TTLMarketSentiment  = 5 * time.Minute
	TTLCryptoNews       = 5 * time.Minute
	TTLMovers           = time.Minute
)

// Store holds JSON payloads until they expire. Get reports a miss for absent
// and expired keys alike.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is an in-process Store. Expired entries are overwritten on the next
// Put and otherwise left in place.
type Memory struct {
	// Now defaults to time.Now.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{Now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (m *Memory) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]memoryEntry)
	}
	m.entries[key] = memoryEntry{payload: buf, expiresAt: m.now().Add(ttl)}
	return nil
}

// Family is the metrics label for key: everything before the first ':'.
func Family(key string) string {
	family, _, _ := strings.Cut(key, ":")
	return family
}

// Fetch returns the cached value for key or computes, stores and returns it.
// A failing compute is returned as is and nothing is cached. Store errors on
// read are treated as a miss; store errors on write are logged and the
// computed value is still returned.
func Fetch[T any](ctx context.Context, s Store, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	family := Family(key)
	if payload, ok, err := s.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(payload, &v); err == nil {
			telemetry.CacheLookup(family, true)
			return v, nil
		}
	}
	telemetry.CacheLookup(family, false)

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Put(ctx, key, payload, ttl); err != nil {
		slog.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return v, nil
}
