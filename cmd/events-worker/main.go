package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/vetcare-scheduling/internal/app/bootstrap"
	"github.com/wolfman30/vetcare-scheduling/internal/config"
	"github.com/wolfman30/vetcare-scheduling/internal/events"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

var errMissingConfig = errors.New("events worker requires DATABASE_URL and BOOKING_EVENTS_QUEUE_URL")

func checkConfig(cfg *config.Config) error {
	if cfg.DatabaseURL == "" || cfg.BookingEventsQueueURL == "" {
		return errMissingConfig
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := checkConfig(cfg); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	delivery := events.NewSQSDelivery(bootstrap.NewSQSClient(awsCfg, cfg), cfg.BookingEventsQueueURL)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), delivery, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("events worker started", "queue_url", cfg.BookingEventsQueueURL)
	runUntilStopped(ctx, deliverer.Start, stop)
	logger.Info("events worker stopped")
}

// runUntilStopped runs start until stop fires, then cancels it and waits for
// the in-flight batch to finish.
func runUntilStopped(ctx context.Context, start func(context.Context), stop <-chan os.Signal) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		start(ctx)
	}()

	select {
	case <-stop:
		cancel()
		<-done
	case <-done:
	}
}
