package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/marmota-alpina/gostack-desafio-08/internal/storage"
)

// Config holds circuit breaker settings.
type Config struct {
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// DefaultConfig returns settings suited to a single-writer persistence path.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             15 * time.Second,
		ConsecutiveFailures: 3,
	}
}

// Store wraps a storage.KeyValueStore with a circuit breaker. While the
// breaker is open calls fail fast with storage.ErrBackendUnavailable.
type Store struct {
	next   storage.KeyValueStore
	cb     *gobreaker.CircuitBreaker[string]
	logger *slog.Logger
}

// New wraps next with a circuit breaker.
func New(next storage.KeyValueStore, cfg Config, logger *slog.Logger) *Store {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// A canceled caller says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Store{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[string](settings),
		logger: logger,
	}
}

// State reports the current breaker state.
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

// GetItem reads through the breaker. A missing key counts as success.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	var found bool
	v, err := s.cb.Execute(func() (string, error) {
		v, ok, err := s.next.GetItem(ctx, key)
		found = ok
		return v, err
	})
	if err != nil {
		return "", false, mapErr(err)
	}
	return v, found, nil
}

// SetItem writes through the breaker.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	_, err := s.cb.Execute(func() (string, error) {
		return "", s.next.SetItem(ctx, key, value)
	})
	return mapErr(err)
}

// RemoveItem deletes through the breaker.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (string, error) {
		return "", s.next.RemoveItem(ctx, key)
	})
	return mapErr(err)
}

// Ping reports ErrBackendUnavailable while open, otherwise delegates when the
// wrapped store can ping.
func (s *Store) Ping(ctx context.Context) error {
	if s.cb.State() == gobreaker.StateOpen {
		return storage.ErrBackendUnavailable
	}
	if p, ok := s.next.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", storage.ErrBackendUnavailable, err)
	}
	return err
}
