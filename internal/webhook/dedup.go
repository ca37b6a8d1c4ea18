package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/redis"
)

// Deduplicator tracks processed event ids so redeliveries become no-ops
type Deduplicator interface {
	// MarkProcessed records the event id. It returns false when the id
	// was already recorded.
	MarkProcessed(ctx context.Context, eventID string) bool

	// Forget removes the event id so a redelivery is processed again.
	// Called when handling fails after the id was claimed.
	Forget(ctx context.Context, eventID string)
}

const (
	dedupKeyPrefix = "stripe:webhook:event:"
	dedupTTL       = 72 * time.Hour
)

// RedisDeduplicator tracks processed events in Redis. It fails open: when
// Redis is unreachable every event counts as new, and handlers must stay
// idempotent on their own.
type RedisDeduplicator struct {
	redis *redis.Client
	log   *logger.Logger
}

// NewRedisDeduplicator creates a Redis-backed deduplicator
func NewRedisDeduplicator(client *redis.Client, log *logger.Logger) *RedisDeduplicator {
	return &RedisDeduplicator{redis: client, log: log}
}

// MarkProcessed records the event id, returning false on a duplicate
func (d *RedisDeduplicator) MarkProcessed(ctx context.Context, eventID string) bool {
	key := dedupKeyPrefix + eventID
	ok, err := d.redis.Client().SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		d.log.Warn(fmt.Sprintf("Event dedup unavailable, processing %s anyway: %v", eventID, err))
		return true
	}
	return ok
}

// Forget drops the event id. A failed delete leaves the key to its TTL;
// the handlers' own idempotency covers the event being replayed late.
func (d *RedisDeduplicator) Forget(ctx context.Context, eventID string) {
	key := dedupKeyPrefix + eventID
	if err := d.redis.Client().Del(ctx, key).Err(); err != nil {
		d.log.Warn(fmt.Sprintf("Failed to release dedup claim for event %s: %v", eventID, err))
	}
}

// MemoryDeduplicator tracks processed events in memory for tests
type MemoryDeduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryDeduplicator creates an empty in-memory deduplicator
func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{seen: make(map[string]struct{})}
}

func (d *MemoryDeduplicator) MarkProcessed(ctx context.Context, eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return false
	}
	d.seen[eventID] = struct{}{}
	return true
}

func (d *MemoryDeduplicator) Forget(ctx context.Context, eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
}
