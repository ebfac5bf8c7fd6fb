package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/example/event-ticketing/internal/api"
	"github.com/example/event-ticketing/internal/auth"
	"github.com/example/event-ticketing/internal/command"
	"github.com/example/event-ticketing/internal/config"
	"github.com/example/event-ticketing/internal/domain/catalog"
	"github.com/example/event-ticketing/internal/domain/ledger"
	"github.com/example/event-ticketing/internal/infrastructure/kafka"
	"github.com/example/event-ticketing/internal/infrastructure/store"
	"github.com/example/event-ticketing/internal/logging"
	"github.com/example/event-ticketing/internal/observability"
	"github.com/example/event-ticketing/internal/projection"
	"github.com/example/event-ticketing/internal/query"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

// backend bundles the stores picked by configuration plus its teardown.
type backend struct {
	ledgerStore  ledger.Store
	catalogStore catalog.Store
	healthCheck  func(ctx context.Context) error
	close        func() error
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	logger.Info("starting event ticketing api",
		zap.String("backend", cfg.LedgerBackend),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Bool("tracing", cfg.OTelEndpoint != ""),
	)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close() //nolint:errcheck

	snapshot := ledger.NewSnapshotCache(cfg.SnapshotTTL)
	ledgerOpts := []ledger.Option{
		ledger.WithSnapshot(snapshot),
		ledger.WithLogger(logger),
	}

	var wg sync.WaitGroup
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer producer.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(producer))

		// Purchases made on other instances refresh this instance's snapshot.
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, logger)
		defer consumer.Close()
		projector := projection.NewProjector(snapshot, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting snapshot projector", zap.String("group", cfg.KafkaGroup))
			if err := consumer.Consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				logger.Error("snapshot projector stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("kafka disabled, ledger events are not published")
	}

	ledgerSvc := ledger.NewService(be.ledgerStore, ledgerOpts...)
	catalogSvc := catalog.NewService(be.catalogStore)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)

	cmdHandler := command.NewHandler(ledgerSvc, catalogSvc, logger)
	queryHandler := query.NewHandler(ledgerSvc, catalogSvc, logger)

	handlers := api.NewHandlers(cmdHandler, queryHandler, logger)
	handlers.SetHealthCheck(be.healthCheck)
	router := api.NewRouter(handlers, jwtService, logger, cfg.CORSOrigins)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}

	wg.Wait()
	logger.Info("api stopped")
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := store.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("connected to PostgreSQL")
		return &backend{
			ledgerStore:  store.NewPostgresLedgerStore(db, cfg.LockTimeout),
			catalogStore: store.NewPostgresCatalogStore(db),
			healthCheck:  db.PingContext,
			close:        db.Close,
		}, nil

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = &cfg.DynamoEndpoint
			}
		})
		ds := store.NewDynamoStore(client, store.DynamoTables{
			Events:    cfg.DynamoEventsTable,
			Tickets:   cfg.DynamoTicketsTable,
			Purchases: cfg.DynamoPurchasesTable,
		})
		logger.Info("using DynamoDB", zap.String("region", cfg.AWSRegion))
		return &backend{
			ledgerStore:  ds,
			catalogStore: ds,
			healthCheck: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &cfg.DynamoTicketsTable})
				return err
			},
			close: func() error { return nil },
		}, nil

	default:
		ms := store.NewMemoryStore(cfg.LockTimeout)
		logger.Warn("using in-memory ledger, data is lost on restart")
		return &backend{
			ledgerStore:  ms,
			catalogStore: ms,
			healthCheck:  func(context.Context) error { return nil },
			close:        func() error { return nil },
		}, nil
	}
}
