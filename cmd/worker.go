package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/archive"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/messaging"
	"example.com/comercialav/services/deliveries/internal/notify"
	"example.com/comercialav/services/deliveries/internal/search"
	"example.com/comercialav/services/deliveries/internal/syncengine"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that sends notification mail, runs the weekly archival sweep and mirrors the delivery history into Elasticsearch`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	g, ctx := errgroup.WithContext(ctx)

	shipmentStore, _, err := buildStore(cfg)
	if err != nil {
		return err
	}

	var elasticClient *search.ElasticClient
	if cfg.Elastic.Enabled {
		elasticClient, err = search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without history indexing")
			elasticClient = nil
		}
	}

	// Notification mail: drain the queue the API side publishes into
	serviceBus, err := messaging.NewServiceBus(cfg.Azure)
	if err != nil {
		return err
	}
	defer serviceBus.Close()

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.Mail))
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting notification mail processor")
		return serviceBus.ProcessMessages(ctx, func(ctx context.Context, msg notify.Message) error {
			_, err := dispatcher.Dispatch(ctx, msg)
			return err
		})
	})

	// Weekly archival sweep
	sweeper := archive.NewSweeper(shipmentStore)
	g.Go(func() error {
		location, err := time.LoadLocation(cfg.Archive.Timezone)
		if err != nil {
			return errors.Wrap(err, "invalid archive timezone")
		}

		scheduler, err := gocron.NewScheduler(gocron.WithLocation(location))
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.CronJob(cfg.Archive.Cron, false),
			gocron.NewTask(func() {
				if _, err := sweeper.Run(ctx); err != nil {
					log.Error().Err(err).Msg("Scheduled archival sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		log.Info().Str("cron", cfg.Archive.Cron).Str("timezone", cfg.Archive.Timezone).Msg("Archival sweep scheduled")
		scheduler.Start()

		<-ctx.Done()
		return scheduler.Shutdown()
	})

	// Mirror the archived partition into the history index on every snapshot
	if elasticClient != nil {
		engine := syncengine.New(shipmentStore, syncengine.Hooks{
			OnSnapshot: func(partition syncengine.Partition, deliveries []delivery.Delivery) {
				if partition == syncengine.PartitionArchived {
					elasticClient.IndexSnapshot(context.Background(), deliveries)
				}
			},
		})
		if err := engine.Start(ctx); err != nil {
			return errors.Wrap(err, "failed to start sync engine")
		}
		g.Go(func() error {
			<-ctx.Done()
			engine.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
