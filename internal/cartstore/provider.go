package cartstore

import (
	"context"

	apperrors "github.com/marmota-alpina/gostack-desafio-08/pkg/errors"
)

type contextKey struct{}

// Provider owns the Store of one application session.
type Provider struct {
	store *Store
}

// NewProvider starts store with ctx and takes ownership of it.
func NewProvider(ctx context.Context, store *Store) *Provider {
	store.Start(ctx)
	return &Provider{store: store}
}

// Store returns the provided store.
func (p *Provider) Store() *Store {
	return p.store
}

// Close tears the store down after draining queued commands.
func (p *Provider) Close() error {
	return p.store.Close()
}

// WithStore returns a context carrying store.
func WithStore(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, store)
}

// FromContext returns the store placed in ctx by WithStore.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(contextKey{}).(*Store)
	if !ok || s == nil {
		return nil, errOutsideProvider()
	}
	return s, nil
}

func errOutsideProvider() error {
	return apperrors.Configuration("cart store must be used within a Provider")
}
