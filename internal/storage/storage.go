// Package storage defines the key-value contract the cart snapshot is
// persisted through. It mirrors the device storage API the cart was written
// against: string keys, string values, whole-value replacement.
package storage

import (
	"context"
	"errors"
)

// DefaultKey is the key the cart snapshot lives under.
const DefaultKey = "@appStore:products"

// ErrBackendUnavailable is returned when a backend is known to be down and
// the operation was not attempted.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// KeyValueStore is a string-keyed store of string values.
type KeyValueStore interface {
	// GetItem returns the value stored under key. found is false when the key is absent.
	GetItem(ctx context.Context, key string) (value string, found bool, err error)

	// SetItem replaces the value stored under key.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
