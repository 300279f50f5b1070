package cart

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
	CartKey(checkoutID string) string
}

// Store keeps the latest snapshot per checkout so a reload can resume it.
type Store struct {
	kv  kvStore
	ttl time.Duration
}

// NewStore builds a Redis-backed cart store.
func NewStore(kv kvStore, ttl time.Duration) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("cart kv store required")
	}
	return &Store{kv: kv, ttl: ttl}, nil
}

// Save writes the snapshot under the checkout id.
func (s *Store) Save(ctx context.Context, checkoutID uuid.UUID, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	if err := s.kv.Set(ctx, s.kv.CartKey(checkoutID.String()), string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart snapshot")
	}
	return nil
}

// Load returns the stored snapshot, or NOT_FOUND when none exists.
func (s *Store) Load(ctx context.Context, checkoutID uuid.UUID) (Snapshot, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(checkoutID.String()))
	if err != nil {
		if redis.IsNil(err) {
			return Snapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart snapshot")
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cart snapshot")
	}
	return snapshot, nil
}

// Delete removes the stored snapshot.
func (s *Store) Delete(ctx context.Context, checkoutID uuid.UUID) error {
	if err := s.kv.Del(ctx, s.kv.CartKey(checkoutID.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart snapshot")
	}
	return nil
}
