package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"actioner/internal/catalog"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/dedup"
	"actioner/internal/logger"
	"actioner/internal/performer"
	"actioner/pkg/bootstrap"
	"actioner/pkg/health"
	"actioner/pkg/logging"
	"actioner/pkg/metrics"
	"actioner/pkg/ratelimit"
	"actioner/pkg/server"
	"actioner/pkg/tracing"
)

const serviceName = constants.ServiceNamePerformer

const defaultMemoryDedupSize = 100000

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	catalog        *catalog.Catalog
	limiter        *ratelimit.Keyed
	handler        *performer.Handler
	tracerProvider *tracing.TracerProvider
	ops            *server.Ops
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	dbConnector := bootstrap.NewDatabaseConnector(cfg, log)
	dbConnector.Migrate = catalog.Migrate
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: dbConnector,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPerformerMetrics()
	metrics.RegisterCatalogMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initService(ctx)
	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("database.postgres is required for the action catalog")
	}
	a.db = db

	if !a.Config.Dedup.Enabled {
		return nil
	}
	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = redisClient
	return nil
}

// dedupRepository prefers Redis so that claims are shared by every replica;
// without Redis each process only guards its own redeliveries.
func (a *App) dedupRepository(ctx context.Context) dedup.Repository {
	if a.redisClient != nil {
		var repo dedup.Repository = dedup.NewRedisRepository(a.redisClient)
		if a.Config.CircuitBreaker.Enabled {
			repo = dedup.NewCircuitBreakerRepository(repo, a.Config.CircuitBreaker)
		}
		return repo
	}

	size := a.Config.Dedup.MemorySize
	if size <= 0 {
		size = defaultMemoryDedupSize
	}
	ttl := a.Config.Dedup.TTL
	if ttl <= 0 {
		ttl = constants.DefaultPerformTTL
	}
	a.Logger.WarnwCtx(ctx, "Redis not configured, perform guard is local to this process", "size", size)
	return dedup.NewMemoryRepository(size, ttl)
}

func (a *App) initService(ctx context.Context) {
	a.catalog = catalog.New(catalog.NewPostgresStore(a.db), a.Config.Evaluator.Reload, a.Logger)

	opts := []performer.ExecutorOption{
		performer.WithCircuitBreakers(a.Config.CircuitBreaker),
	}

	if a.Config.Dedup.Enabled {
		guard := dedup.NewGuard(a.dedupRepository(ctx), a.Config.Dedup, a.Logger)
		opts = append(opts, performer.WithGuard(guard))
	}

	if a.Config.RateLimit.Enabled {
		a.limiter = ratelimit.NewKeyed(ratelimit.RateLimitConfig{
			RPS:   a.Config.RateLimit.RPS,
			Burst: a.Config.RateLimit.Burst,
		})
		opts = append(opts, performer.WithRateLimiter(a.limiter))
	}

	executor := performer.NewExecutor(a.catalog, performer.DefaultRegistry(), a.Config.Performer, a.Logger, opts...)
	a.handler = performer.NewHandler(executor, a.Logger)
}

func (a *App) initHTTPServer() {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewPostgreSQLChecker(a.db))
	registry.Register(a.catalog.HealthChecker())
	if a.redisClient != nil {
		registry.Register(health.NewRedisChecker(a.redisClient))
	}
	a.ops = server.NewOps(a.Config, serviceName, registry, a.Logger)
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	runCtx := logging.WithServiceName(gCtx, serviceName)

	g.Go(func() error {
		return a.ops.Run(runCtx)
	})

	g.Go(func() error {
		return a.catalog.StartReloader(runCtx)
	})

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.Run(runCtx)
			return nil
		})
	}

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		configConsumer := a.ConfigConsumer(serviceName)
		updates := catalog.NewHandler(a.catalog, a.Logger)
		g.Go(func() error {
			a.Logger.InfowCtx(runCtx, "Starting config update event consumer", "topic", topic)
			return configConsumer.Consume(runCtx, topic, updates.HandleUpdateEvent)
		})
	}

	actionTopic := a.Config.Broker.Kafka.ActionTopic
	g.Go(func() error {
		a.Logger.InfowCtx(runCtx, "Starting action message consumer", "topic", actionTopic)
		return a.Consumer.Consume(runCtx, actionTopic, a.handler.HandleActionMessage)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down action performer")

	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, nil)...)
		return errs
	})
}
