package payments

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type setNXStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CaptureLatchKey(providerOrderID string) string
}

// RedisLatch shares the capture latch across API instances through SETNX.
type RedisLatch struct {
	store setNXStore
	ttl   time.Duration
}

// NewRedisLatch builds a latch whose keys expire after ttl.
func NewRedisLatch(store setNXStore, ttl time.Duration) (*RedisLatch, error) {
	if store == nil {
		return nil, fmt.Errorf("latch store required")
	}
	return &RedisLatch{store: store, ttl: ttl}, nil
}

func (l *RedisLatch) Acquire(ctx context.Context, providerOrderID, owner string) (bool, error) {
	return l.store.SetNX(ctx, l.store.CaptureLatchKey(providerOrderID), owner, l.ttl)
}

// MemoryLatch is a process-local latch for single-node runs and tests.
type MemoryLatch struct {
	mu   sync.Mutex
	held map[string]string
}

// NewMemoryLatch returns an empty in-process latch.
func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{held: map[string]string{}}
}

func (l *MemoryLatch) Acquire(_ context.Context, providerOrderID, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[providerOrderID]; ok {
		return false, nil
	}
	l.held[providerOrderID] = owner
	return true, nil
}
