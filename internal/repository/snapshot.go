package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alecthomas/types/result"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage"
)

// ErrMalformedSnapshot is wrapped by Load when the stored value is not a
// JSON array of line items.
var ErrMalformedSnapshot = errors.New("malformed cart snapshot")

// Snapshot is the outcome of reading the persisted cart.
type Snapshot struct {
	Products domain.Products
	// Found is false when nothing was stored under the key.
	Found bool
}

// SnapshotRepository stores the whole cart as one JSON value under a fixed key.
type SnapshotRepository struct {
	kv  storage.KeyValueStore
	key string
}

// NewSnapshotRepository creates a repository over kv. An empty key falls back
// to storage.DefaultKey.
func NewSnapshotRepository(kv storage.KeyValueStore, key string) *SnapshotRepository {
	if key == "" {
		key = storage.DefaultKey
	}
	return &SnapshotRepository{kv: kv, key: key}
}

// Key returns the storage key the snapshot is kept under.
func (r *SnapshotRepository) Key() string { return r.key }

// Load reads and decodes the snapshot.
func (r *SnapshotRepository) Load(ctx context.Context) result.Result[Snapshot] {
	raw, found, err := r.kv.GetItem(ctx, r.key)
	if err != nil {
		return result.Err[Snapshot](fmt.Errorf("load cart snapshot: %w", err))
	}
	if !found {
		return result.Ok(Snapshot{})
	}

	var products domain.Products
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return result.Err[Snapshot](fmt.Errorf("%w: %v", ErrMalformedSnapshot, err))
	}
	if err := products.Validate(); err != nil {
		return result.Err[Snapshot](fmt.Errorf("%w: %v", ErrMalformedSnapshot, err))
	}
	return result.Ok(Snapshot{Products: products, Found: true})
}

// Save replaces the stored snapshot with products.
func (r *SnapshotRepository) Save(ctx context.Context, products domain.Products) error {
	if products == nil {
		products = domain.Products{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode cart snapshot: %w", err)
	}
	if err := r.kv.SetItem(ctx, r.key, string(data)); err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot.
func (r *SnapshotRepository) Clear(ctx context.Context) error {
	if err := r.kv.RemoveItem(ctx, r.key); err != nil {
		return fmt.Errorf("clear cart snapshot: %w", err)
	}
	return nil
}
