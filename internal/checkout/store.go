package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CheckoutKey(checkoutID string) string
}

// Store loads and saves checkout contexts.
type Store interface {
	Load(ctx context.Context, id uuid.UUID) (*Context, error)
	Save(ctx context.Context, c *Context) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisStore keeps checkout contexts as JSON under sf:checkout:<id>.
type RedisStore struct {
	kv  kvStore
	ttl time.Duration
}

// NewRedisStore builds a Redis-backed context store.
func NewRedisStore(kv kvStore, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("checkout kv store required")
	}
	return &RedisStore{kv: kv, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (*Context, error) {
	raw, err := s.kv.Get(ctx, s.kv.CheckoutKey(id.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout")
	}
	var c Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode checkout")
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *Context) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout")
	}
	if err := s.kv.Set(ctx, s.kv.CheckoutKey(c.ID.String()), string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.kv.Del(ctx, s.kv.CheckoutKey(id.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete checkout")
	}
	return nil
}
