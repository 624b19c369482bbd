package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/Epky/GA-Enterprice-sub001/internal/api/http"
	"github.com/Epky/GA-Enterprice-sub001/internal/config"
	eventkafka "github.com/Epky/GA-Enterprice-sub001/internal/event/kafka"
	"github.com/Epky/GA-Enterprice-sub001/internal/metrics"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository/memory"
	mongorepo "github.com/Epky/GA-Enterprice-sub001/internal/repository/mongo"
	"github.com/Epky/GA-Enterprice-sub001/internal/repository/postgres"
	redisrepo "github.com/Epky/GA-Enterprice-sub001/internal/repository/redis"
	"github.com/Epky/GA-Enterprice-sub001/internal/service"
	"github.com/Epky/GA-Enterprice-sub001/migrations"
	platformhealth "github.com/Epky/GA-Enterprice-sub001/platform/health/http"
	platformkafka "github.com/Epky/GA-Enterprice-sub001/platform/kafka"
	platformlogging "github.com/Epky/GA-Enterprice-sub001/platform/logging"
	platformobservability "github.com/Epky/GA-Enterprice-sub001/platform/observability"
	platformshutdown "github.com/Epky/GA-Enterprice-sub001/platform/shutdown"
)

const connectTimeout = 5 * time.Second

// worker фоновая задача, работающая до отмены контекста
type worker struct {
	name string
	run  func(ctx context.Context) error
}

// App содержит все зависимости для запуска и корректного shutdown Stock Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	workers     []worker

	workersCtx    context.Context
	cancelWorkers context.CancelFunc
	workersDone   chan struct{}
	running       atomic.Bool
}

// storage хранилище журнала и его outbox
type storage struct {
	stock  repository.StockRepository
	outbox repository.OutboxRepository
}

// Build создаёт и настраивает все зависимости Stock Service.
// При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(cfg.Logging())
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	a, err := build(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		shutdownMgr.Shutdown()
		platformlogging.Sync(logger)
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager) (*App, error) {
	shutdownTracer, err := platformobservability.Init(ctx, cfg.Observability())
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	shutdownMgr.Add("tracer", shutdownTracer)

	checks := make(map[string]platformhealth.Check)

	store, err := buildStorage(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		return nil, err
	}
	checks["storage"] = store.stock.Ping

	idempotency, err := buildIdempotencyStore(ctx, cfg, logger, shutdownMgr, checks)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	ledger := service.NewStockLedger(store.stock, logger, m, cfg.MovementsTopic)
	reserver := service.NewIdempotentReserver(ledger, idempotency, cfg.IdempotencyTTL, logger)

	workersCtx, cancelWorkers := context.WithCancel(context.Background())
	a := &App{
		logger:        logger,
		shutdownMgr:   shutdownMgr,
		workersCtx:    workersCtx,
		cancelWorkers: cancelWorkers,
		workersDone:   make(chan struct{}),
	}

	if cfg.Kafka.Enabled {
		a.workers = buildKafkaWorkers(cfg, logger, shutdownMgr, store.outbox, ledger, idempotency, m)
	} else {
		logger.Info("Kafka disabled, movement events stay in outbox")
	}

	// воркеры останавливаются после HTTP сервера, но до закрытия writer/reader и пулов
	shutdownMgr.Add("workers", a.stopWorkers)

	handler := httpapi.NewHandler(ledger, reserver, logger)
	router := httpapi.NewRouter(handler, checks, m, logger)

	a.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	return a, nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager) (storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		logger.Info("Connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage{}, fmt.Errorf("create postgres pool: %w", err)
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			return storage{}, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("PostgreSQL connection established")

		logger.Info("Applying database migrations")
		db := stdlib.OpenDBFromPool(pool)
		applied, err := migrations.Up(ctx, db)
		_ = db.Close()
		if err != nil {
			return storage{}, err
		}
		logger.Info("Database migrations applied successfully", zap.Int("applied", applied))

		repo := postgres.NewRepository(pool, cfg.PostgresTxRetries)
		return storage{stock: repo, outbox: repo}, nil

	case config.StorageMongo:
		logger.Info("Connecting to MongoDB")
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return storage{}, fmt.Errorf("connect mongo: %w", err)
		}
		shutdownMgr.Add("mongodb", platformshutdown.DisconnectMongo(client))

		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			return storage{}, fmt.Errorf("ping mongo: %w", err)
		}
		logger.Info("MongoDB connection established")

		repo := mongorepo.NewRepository(client, cfg.MongoDB)
		return storage{stock: repo, outbox: repo}, nil

	case config.StorageMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		repo := memory.NewRepository()
		return storage{stock: repo, outbox: repo}, nil
	}

	return storage{}, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
}

func buildIdempotencyStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	shutdownMgr *platformshutdown.Manager,
	checks map[string]platformhealth.Check,
) (repository.IdempotencyStore, error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, idempotency keys are kept in memory")
		return memory.NewIdempotencyStore(), nil
	}

	logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	shutdownMgr.Add("redis", platformshutdown.CloseCloser(client))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Redis connection established")

	checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return redisrepo.NewIdempotencyRepository(client, "stock:idempotency", logger), nil
}

func buildKafkaWorkers(
	cfg config.Config,
	logger *zap.Logger,
	shutdownMgr *platformshutdown.Manager,
	outbox repository.OutboxRepository,
	ledger *service.StockLedger,
	processed repository.IdempotencyStore,
	m *metrics.Metrics,
) []worker {
	logger.Info("Kafka enabled", zap.Strings("brokers", cfg.Kafka.Brokers))

	// топик берётся из outbox события
	dispatcher := eventkafka.NewOutboxDispatcher(
		logger,
		outbox,
		platformkafka.NewWriter(cfg.Kafka.Brokers, ""),
		m,
		cfg.OutboxBatchSize,
		cfg.OutboxInterval,
		cfg.OutboxMaxRetries,
		cfg.OutboxBackoff,
	)
	shutdownMgr.Add("outbox_dispatcher", platformshutdown.CloseCloser(dispatcher))

	dlqPublisher := eventkafka.NewDLQPublisher(logger, platformkafka.NewWriter(cfg.Kafka.Brokers, cfg.OrderCancelledDLQTopic))
	shutdownMgr.Add("dlq_publisher", platformshutdown.CloseCloser(dlqPublisher))

	consumer := eventkafka.NewOrderCancelledConsumer(
		logger,
		eventkafka.NewOrderCancelledReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.OrderCancelledTopic),
		cfg.OrderCancelledTopic,
		ledger,
		processed,
		cfg.IdempotencyTTL,
		dlqPublisher,
		m,
		cfg.ConsumerMaxAttempts,
		cfg.ConsumerBackoff,
	)
	shutdownMgr.Add("order_cancelled_consumer", platformshutdown.CloseCloser(consumer))

	return []worker{
		{name: "outbox_dispatcher", run: dispatcher.Start},
		{name: "order_cancelled_consumer", run: consumer.Start},
	}
}

// stopWorkers отменяет контекст воркеров и ждёт их завершения
func (a *App) stopWorkers(ctx context.Context) error {
	a.cancelWorkers()
	if !a.running.Load() {
		return nil
	}
	select {
	case <-a.workersDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers did not stop: %w", ctx.Err())
	}
}

// Run запускает HTTP сервер и фоновые воркеры и блокируется до сигнала shutdown
// или падения одного из них
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)
	a.running.Store(true)

	a.logger.Info("Starting Stock service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	g, gctx := errgroup.WithContext(a.workersCtx)

	g.Go(func() error {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	for _, w := range a.workers {
		w := w
		g.Go(func() error {
			a.logger.Info("Starting worker", zap.String("worker", w.name))
			if err := w.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
		close(a.workersDone)
	}()

	a.shutdownMgr.WaitContext(gctx)

	err := <-errCh
	if err != nil {
		a.logger.Error("Stock service stopped with error", zap.Error(err))
		return err
	}
	a.logger.Info("Stock service stopped")
	return nil
}
