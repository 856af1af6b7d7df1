package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmota-alpina/gostack-desafio-08/internal/cartstore"
	"github.com/marmota-alpina/gostack-desafio-08/internal/config"
	"github.com/marmota-alpina/gostack-desafio-08/internal/event"
	handler "github.com/marmota-alpina/gostack-desafio-08/internal/handler/http"
	"github.com/marmota-alpina/gostack-desafio-08/internal/repository"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage/breaker"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage/memory"
	"github.com/marmota-alpina/gostack-desafio-08/internal/storage/postgres"
	redisstore "github.com/marmota-alpina/gostack-desafio-08/internal/storage/redis"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/database"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/health"
	pkgkafka "github.com/marmota-alpina/gostack-desafio-08/pkg/kafka"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/tracing"
)

const serviceName = "cart-store"

// App wires together all dependencies and runs the cart store service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   *cartstore.Provider
	producer   *pkgkafka.Producer
	httpServer *http.Server

	// closers release the storage backend, in order.
	closers []func()

	stopStore      context.CancelFunc
	stopRequests   context.CancelFunc
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	return newApp(cfg, logger, prometheus.DefaultRegisterer)
}

func newApp(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracingCfg := tracing.DefaultConfig(serviceName)
	tracingCfg.Enabled = cfg.OTelEnabled
	tracingCfg.OTLPEndpoint = cfg.OTelEndpoint
	tracingCfg.SampleRate = cfg.OTelSampleRate
	tracingCfg.Environment = cfg.Environment
	shutdownTracer, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	healthHandler := health.NewHandler()

	kv, err := a.openStorage(ctx, healthHandler)
	if err != nil {
		a.closeAll()
		_ = shutdownTracer(ctx)
		return nil, err
	}
	if cfg.BreakerEnabled && cfg.StorageBackend != config.BackendMemory {
		kv = breaker.New(kv, breaker.DefaultConfig("cart-storage-"+cfg.StorageBackend), logger)
		logger.Info("storage circuit breaker enabled")
	}

	opts := []cartstore.Option{
		cartstore.WithLogger(logger),
		cartstore.WithRegisterer(reg),
		cartstore.WithZeroQuantityPolicy(cfg.Policy()),
		cartstore.WithCommandBuffer(cfg.CommandBuffer),
	}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		opts = append(opts, cartstore.WithPublisher(event.NewPublisher(a.producer, cfg.Namespace, logger)))
		brokers := cfg.KafkaBrokers
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("no kafka brokers configured, cart events disabled")
	}

	// The store outlives request and signal contexts; Shutdown stops it.
	storeCtx, stopStore := context.WithCancel(context.Background())
	a.stopStore = stopStore

	repo := repository.NewSnapshotRepository(kv, cfg.StorageKey)
	store := cartstore.New(repo, opts...)
	a.provider = cartstore.NewProvider(storeCtx, store)

	healthHandler.Register("cart_hydrated", func(context.Context) error {
		select {
		case <-store.Hydrated():
			return nil
		default:
			return errors.New("cart not hydrated yet")
		}
	})
	if p, ok := kv.(storage.Pinger); ok {
		healthHandler.Register("storage", p.Ping)
	}

	router := handler.NewRouter(a.provider, healthHandler, logger)

	// Canceled at shutdown so open event streams end.
	baseCtx, stopRequests := context.WithCancel(context.Background())
	a.stopRequests = stopRequests

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout stays unset: the cart event stream is long-lived and
		// the JSON routes carry their own timeout middleware.
	}

	return a, nil
}

// openStorage connects the configured backend and registers its closer.
func (a *App) openStorage(ctx context.Context, healthHandler *health.Handler) (storage.KeyValueStore, error) {
	cfg := a.cfg

	switch cfg.StorageBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				a.logger.Error("redis close error", slog.String("error", err.Error()))
			}
		})
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return redisstore.New(rdb, cfg.Namespace+":", cfg.SnapshotTTL()), nil

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		store := postgres.New(pool, cfg.Namespace)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		healthHandler.Register("postgres", pool.Ping)
		return store, nil

	default:
		return memory.New(), nil
	}
}

// Handler returns the HTTP handler serving the cart API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Queued cart commands are drained
// and their snapshots written before the storage backend is closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.stopRequests()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.provider.Close(); err != nil {
		a.logger.Error("cart store close error", slog.String("error", err.Error()))
	}
	a.stopStore()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	a.closeAll()

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}
