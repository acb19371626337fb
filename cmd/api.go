package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/comercialav/services/deliveries/api"
	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/archive"
	"example.com/comercialav/services/deliveries/internal/commands"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/identity"
	"example.com/comercialav/services/deliveries/internal/messaging"
	"example.com/comercialav/services/deliveries/internal/metrics"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/notify"
	"example.com/comercialav/services/deliveries/internal/photos"
	"example.com/comercialav/services/deliveries/internal/search"
	"example.com/comercialav/services/deliveries/internal/store"
	"example.com/comercialav/services/deliveries/internal/syncengine"
	"example.com/comercialav/services/deliveries/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that serves the delivery lists and mutation endpoints`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shipmentStore, identityProvider, err := buildStore(cfg)
	if err != nil {
		return err
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}
	defer tracer.Close()

	var elasticClient *search.ElasticClient
	if cfg.Elastic.Enabled {
		elasticClient, err = search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without history search")
			elasticClient = nil
		}
	}

	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealth("store", true)

	engine := syncengine.New(shipmentStore, syncengine.Hooks{
		OnWarning: func(partition syncengine.Partition, message string) {
			metricsCollector.SetHealth("sync_"+string(partition), false)
			log.Warn().Str("partition", string(partition)).Msg(message)
		},
		OnSnapshot: func(partition syncengine.Partition, _ []delivery.Delivery) {
			metricsCollector.SetHealth("sync_"+string(partition), true)
		},
	})
	if err := engine.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start sync engine")
	}
	defer engine.Stop()

	var publisher notify.Publisher
	if cfg.Notify.Enabled {
		serviceBus, err := messaging.NewServiceBus(cfg.Azure)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Service Bus, notifications disabled")
		} else {
			defer serviceBus.Close()
			publisher = serviceBus
		}
	}
	notifier := notify.NewNotifier(publisher)

	blobStore, err := photos.NewDiskStore(cfg.Photos)
	if err != nil {
		return err
	}

	sweeper := archive.NewSweeper(shipmentStore)
	commandService := commands.NewService(shipmentStore, engine, notifier, sweeper, metricsCollector)
	photoService := photos.NewService(shipmentStore, blobStore)

	server := api.NewServer(cfg, api.Dependencies{
		Identity: identityProvider,
		Engine:   engine,
		Commands: commandService,
		Photos:   photoService,
		Elastic:  elasticClient,
		Tracer:   tracer,
		Metrics:  metricsCollector,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

// buildStore selects the store driver. The memory driver exists for local
// development without Postgres; it hands every user the purchasing role.
func buildStore(cfg config.Config) (store.Store, identity.Provider, error) {
	if cfg.DB.Driver == "memory" {
		log.Warn().Msg("Using in-memory store, data will not survive a restart")
		return store.NewMemoryStore(), identity.StaticProvider{Role: delivery.RolePurchasing}, nil
	}

	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := store.NewChangeClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis, falling back to polling")
		redisClient = nil
	}

	return store.NewGormStore(db, readOnlyDB, redisClient, cfg.Redis.PollInterval), identity.NewService(db), nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
