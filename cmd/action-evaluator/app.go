package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"actioner/internal/catalog"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/dispatch"
	"actioner/internal/evaluator"
	"actioner/internal/logger"
	"actioner/internal/records"
	"actioner/internal/resolution"
	"actioner/pkg/bootstrap"
	"actioner/pkg/cel"
	"actioner/pkg/health"
	"actioner/pkg/logging"
	"actioner/pkg/metrics"
	"actioner/pkg/migrations"
	"actioner/pkg/server"
	"actioner/pkg/tracing"
)

const serviceName = constants.ServiceNameEvaluator

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	mongoClient    *mongo.Client
	catalog        *catalog.Catalog
	handler        *evaluator.Handler
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

	metrics.RegisterEvaluatorMetrics()
	metrics.RegisterCatalogMetrics()
	metrics.RegisterBrokerMetrics()

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.InitBroker(serviceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("database.postgres is required for the action catalog")
	}
	a.db = db

	if !a.Config.Records.Enabled {
		return nil
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient
	if err := migrations.EnsureRecordsCollection(ctx, a.mongoDatabase(), a.recordsCollection()); err != nil {
		return err
	}
	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(dbName)
}

func (a *App) recordsCollection() string {
	if a.Config.Records.Collection == "" {
		return records.CollectionName
	}
	return a.Config.Records.Collection
}

func (a *App) initService(ctx context.Context) error {
	a.catalog = catalog.New(catalog.NewPostgresStore(a.db), a.Config.Evaluator.Reload, a.Logger)

	celEvaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	policy := resolution.NewRulePolicy(celEvaluator, resolution.SawThisTooPolicy{}, a.Logger)
	engine := resolution.NewEngine(a.catalog, policy, a.Config.Evaluator.Reacting, a.Logger)
	dispatcher := dispatch.NewDispatcher(a.Producer, a.Config.Broker.Kafka, a.Config.Dispatch, a.Logger)

	var opts []evaluator.Option
	if a.mongoClient != nil {
		opts = append(opts, evaluator.WithRecords(records.NewMongoStore(a.mongoDatabase(), a.recordsCollection())))
		initCtx := logging.WithServiceName(ctx, serviceName)
		a.Logger.InfowCtx(initCtx, "Match record persistence enabled", "collection", a.recordsCollection())
	}

	svc := evaluator.NewService(engine, dispatcher, a.Logger, opts...)
	a.handler = evaluator.NewHandler(svc, a.Logger)
	return nil
}

func (a *App) initHTTPServer() {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewPostgreSQLChecker(a.db))
	registry.Register(a.catalog.HealthChecker())
	if a.mongoClient != nil {
		registry.Register(health.NewMongoDBChecker(a.mongoClient))
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

	if topic := a.Config.Broker.Kafka.ConfigUpdateTopic; topic != "" {
		configConsumer := a.ConfigConsumer(serviceName)
		updates := catalog.NewHandler(a.catalog, a.Logger)
		g.Go(func() error {
			a.Logger.InfowCtx(runCtx, "Starting config update event consumer", "topic", topic)
			return configConsumer.Consume(runCtx, topic, updates.HandleUpdateEvent)
		})
	}

	matchTopic := a.Config.Broker.Kafka.MatchTopic
	g.Go(func() error {
		a.Logger.InfowCtx(runCtx, "Starting match event consumer", "topic", matchTopic)
		return a.Consumer.Consume(runCtx, matchTopic, a.handler.HandleMatchEvent)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, serviceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down action evaluator")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, a.mongoClient)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
