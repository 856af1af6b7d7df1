package cartstore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
)

const (
	defaultCommandBuffer = 64
	defaultEventBuffer   = 64
)

// Option configures a Store.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	publisher   Publisher
	registerer  prometheus.Registerer
	policy      domain.ZeroQuantityPolicy
	buffer      int
	eventBuffer int
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPublisher sets the publisher notified after every effective mutation.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRegisterer registers the store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithZeroQuantityPolicy sets what happens to items decremented to zero.
func WithZeroQuantityPolicy(p domain.ZeroQuantityPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithCommandBuffer sets how many commands may queue ahead of the writer.
func WithCommandBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

// WithEventBuffer sets how many cart updates may wait for the publisher
// before new ones are dropped.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}
