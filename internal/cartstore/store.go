// Package cartstore holds the cart state for one application session.
//
// All mutations go through a single writer goroutine, which applies them in
// arrival order, notifies subscribers and then persists the new snapshot.
// Readers never block the writer for longer than a slice copy.
package cartstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alecthomas/types/result"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	"github.com/marmota-alpina/gostack-desafio-08/internal/repository"
	apperrors "github.com/marmota-alpina/gostack-desafio-08/pkg/errors"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/tracing"
)

// Repository loads, saves and clears the cart snapshot.
type Repository interface {
	Load(ctx context.Context) result.Result[repository.Snapshot]
	Save(ctx context.Context, products domain.Products) error
	Clear(ctx context.Context) error
}

// Publisher receives the cart state after every effective mutation.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, products domain.Products) error
}

// Listener is called with every new cart state. It runs on the writer
// goroutine and must not issue commands on the same store.
type Listener func(products domain.Products)

const (
	cmdAddToCart = "add_to_cart"
	cmdIncrement = "increment"
	cmdDecrement = "decrement"
	cmdClear     = "clear"
)

type command struct {
	ctx   context.Context
	name  string
	input domain.ItemInput
	id    string
	reply chan domain.Products
}

// Store is the cart state container.
type Store struct {
	repo      Repository
	logger    *slog.Logger
	publisher Publisher
	policy    domain.ZeroQuantityPolicy
	metrics   *metrics
	tracer    trace.Tracer

	mu        sync.RWMutex
	products  domain.Products
	listeners map[uint64]Listener
	nextID    uint64

	// sendMu guards closed and the close of cmds.
	sendMu  sync.RWMutex
	closed  bool
	cmds    chan command
	closing chan struct{}

	// events feeds the publish goroutine so a slow broker never holds up
	// the writer.
	events        chan domain.Products
	publisherDone chan struct{}

	hydrated  chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a store over repo. Call Start to hydrate it and begin
// processing commands.
func New(repo Repository, opts ...Option) *Store {
	o := options{
		logger:      slog.Default(),
		policy:      domain.RetainZeroQuantity,
		buffer:      defaultCommandBuffer,
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.buffer < 0 {
		o.buffer = 0
	}
	if o.eventBuffer < 1 {
		o.eventBuffer = 1
	}

	return &Store{
		repo:      repo,
		logger:    o.logger,
		publisher: o.publisher,
		policy:    o.policy,
		metrics:   newMetrics(o.registerer),
		tracer:    tracing.Tracer("cartstore"),
		products:  domain.Products{},
		listeners: make(map[uint64]Listener),
		cmds:          make(chan command, o.buffer),
		closing:       make(chan struct{}),
		events:        make(chan domain.Products, o.eventBuffer),
		publisherDone: make(chan struct{}),
		hydrated:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the writer goroutine. Its first job is hydration, so
// commands issued before hydration completes run after it. ctx is used for
// every storage call and publish the writer makes. Start returns immediately.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.publishLoop(ctx)
		go s.run(ctx)
	})
}

// Hydrated is closed once the initial load has finished, whatever its outcome.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// Products returns a copy of the current cart state.
func (s *Store) Products() domain.Products {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.Clone()
}

// Subscribe registers fn for every future state and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// AddToCart adds one unit of the item. A new ID is appended with quantity 1.
func (s *Store) AddToCart(ctx context.Context, in domain.ItemInput) (domain.Products, error) {
	return s.submit(ctx, command{name: cmdAddToCart, input: in, id: in.ID})
}

// Increment adds one unit to the item with the given ID. Unknown IDs are ignored.
func (s *Store) Increment(ctx context.Context, id string) (domain.Products, error) {
	return s.submit(ctx, command{name: cmdIncrement, id: id})
}

// Decrement removes one unit from the item with the given ID. Unknown IDs and
// items already at zero are ignored.
func (s *Store) Decrement(ctx context.Context, id string) (domain.Products, error) {
	return s.submit(ctx, command{name: cmdDecrement, id: id})
}

// Clear empties the cart and removes the stored snapshot. Clearing an empty
// cart is a no-op.
func (s *Store) Clear(ctx context.Context) (domain.Products, error) {
	return s.submit(ctx, command{name: cmdClear})
}

// Close stops accepting commands, lets the writer drain those already queued,
// flushes pending events and waits for both goroutines to exit.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)

		s.sendMu.Lock()
		s.closed = true
		close(s.cmds)
		s.sendMu.Unlock()

		// Never started: nothing will drain the queue.
		s.startOnce.Do(func() {
			close(s.hydrated)
			close(s.done)
			close(s.publisherDone)
		})
	})
	<-s.done
	<-s.publisherDone
	return nil
}

func errStoreClosed() error {
	return apperrors.Configuration("cart store is closed")
}

// submit queues cmd and waits for its result. When ctx ends before the writer
// reaches the command, the command is skipped; once applied it stays applied
// even if ctx ends before the reply is read.
func (s *Store) submit(ctx context.Context, cmd command) (domain.Products, error) {
	if s == nil {
		return nil, errOutsideProvider()
	}
	cmd.ctx = ctx
	cmd.reply = make(chan domain.Products, 1)

	s.sendMu.RLock()
	if s.closed {
		s.sendMu.RUnlock()
		return nil, errStoreClosed()
	}
	select {
	case s.cmds <- cmd:
		s.sendMu.RUnlock()
	case <-s.closing:
		s.sendMu.RUnlock()
		return nil, errStoreClosed()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case products := <-cmd.reply:
		return products, nil
	case <-s.done:
		select {
		case products := <-cmd.reply:
			return products, nil
		default:
			return nil, errStoreClosed()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) run(ctx context.Context) {
	defer close(s.done)
	// The writer is the only sender on events.
	defer close(s.events)

	s.hydrate(ctx)
	close(s.hydrated)

	for cmd := range s.cmds {
		s.apply(ctx, cmd)
	}
}

func (s *Store) hydrate(ctx context.Context) {
	snap, err := s.repo.Load(ctx).Result()
	if err != nil {
		s.logger.Warn("hydration failed, starting with empty cart",
			slog.String("error", err.Error()),
			slog.Bool("malformed", errors.Is(err, repository.ErrMalformedSnapshot)),
		)
		return
	}
	if !snap.Found || len(snap.Products) == 0 {
		s.logger.Debug("no persisted cart found")
		return
	}

	s.replace(snap.Products.Clone())
	s.logger.Info("cart hydrated", slog.Int("line_items", len(snap.Products)))
}

func (s *Store) apply(ctx context.Context, cmd command) {
	_, span := s.tracer.Start(cmd.ctx, "cartstore."+cmd.name,
		trace.WithAttributes(
			attribute.String("cart.command", cmd.name),
			attribute.String("cart.item_id", cmd.id),
		),
	)

	current := s.Products()
	next, changed := current, false
	if cmd.ctx.Err() == nil {
		next, changed = s.mutate(current, cmd)
	} else {
		span.SetAttributes(attribute.Bool("cart.abandoned", true))
	}

	outcome := outcomeNoop
	if changed {
		outcome = outcomeApplied
		s.replace(next)
	}
	s.metrics.commands.WithLabelValues(cmd.name, outcome).Inc()
	span.SetAttributes(attribute.String("cart.outcome", outcome))
	span.End()

	cmd.reply <- s.Products()

	if !changed {
		return
	}
	if cmd.name == cmdClear {
		s.clear(ctx)
	} else {
		s.persist(ctx, next)
	}
	s.enqueueEvent(next)
}

func (s *Store) mutate(current domain.Products, cmd command) (domain.Products, bool) {
	switch cmd.name {
	case cmdAddToCart:
		return addToCart(current, cmd.input), true
	case cmdIncrement:
		return increment(current, cmd.id)
	case cmdDecrement:
		return decrement(current, cmd.id, s.policy)
	case cmdClear:
		return domain.Products{}, len(current) > 0
	default:
		return current, false
	}
}

// replace swaps in next and notifies every listener with its own copy.
func (s *Store) replace(next domain.Products) {
	s.mu.Lock()
	s.products = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.metrics.lineItems.Set(float64(len(next)))
	for _, fn := range listeners {
		fn(next.Clone())
	}
}

func (s *Store) persist(ctx context.Context, products domain.Products) {
	if err := s.repo.Save(ctx, products); err != nil {
		s.metrics.persistFailures.Inc()
		s.logger.Error("failed to persist cart snapshot", slog.String("error", err.Error()))
	}
}

func (s *Store) clear(ctx context.Context) {
	if err := s.repo.Clear(ctx); err != nil {
		s.metrics.persistFailures.Inc()
		s.logger.Error("failed to clear cart snapshot", slog.String("error", err.Error()))
	}
}

// enqueueEvent hands products to the publish goroutine. When the queue is
// full the event is dropped; the next one carries the full cart anyway.
func (s *Store) enqueueEvent(products domain.Products) {
	if s.publisher == nil {
		return
	}
	select {
	case s.events <- products:
	default:
		s.metrics.eventsDropped.Inc()
		s.logger.Warn("cart event queue full, dropping update",
			slog.Int("line_items", len(products)))
	}
}

func (s *Store) publishLoop(ctx context.Context) {
	defer close(s.publisherDone)
	for products := range s.events {
		if err := s.publisher.PublishCartUpdated(ctx, products); err != nil {
			s.logger.Warn("failed to publish cart update", slog.String("error", err.Error()))
		}
	}
}
