// Command ticketing-projector is the standalone Projector (P) process: it
// consumes the ticket event topic and applies each event to the read
// store, grounded on the reference booking-service main's
// load-config/wire/run shape.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/cache"
	"github.com/transitline/ticketing-core/internal/projector"
	"github.com/transitline/ticketing-core/internal/store/postgres"
	"github.com/transitline/ticketing-core/pkg/config"
	"github.com/transitline/ticketing-core/pkg/database"
	"github.com/transitline/ticketing-core/pkg/logger"
	pkgredis "github.com/transitline/ticketing-core/pkg/redis"
	"github.com/transitline/ticketing-core/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ticketing-projector: failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{Environment: cfg.App.Environment, Level: cfg.App.LogLevel}); err != nil {
		log.Fatalf("ticketing-projector: failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.App.Name + "-projector",
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		logger.Warn("ticketing-projector: telemetry disabled", "err", err)
	}
	defer telemetry.Shutdown(ctx)

	readDB, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host: cfg.ReadDB.Host, Port: cfg.ReadDB.Port, User: cfg.ReadDB.User,
		Password: cfg.ReadDB.Password, Database: cfg.ReadDB.DBName, SSLMode: cfg.ReadDB.SSLMode,
		MaxConns: cfg.ReadDB.MaxConns, MinConns: cfg.ReadDB.MinConns, ServiceName: cfg.App.Name, EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Fatal("ticketing-projector: failed to connect to read database", "err", err)
	}
	defer readDB.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	})
	if err != nil {
		logger.Warn("ticketing-projector: cache unavailable, invalidation disabled", "err", err)
	} else {
		defer redisClient.Close()
	}

	var ticketCache cache.Cache
	if redisClient != nil {
		ticketCache = cache.NewRedisCache(redisClient)
	}

	consumer, err := bus.NewKafkaConsumer(ctx, bus.KafkaConsumerConfig{
		Brokers:  cfg.Bus.Brokers,
		GroupID:  cfg.Bus.ConsumerGroup,
		ClientID: cfg.Bus.ClientID,
		Topics:   []string{cfg.Bus.Topic},
	})
	if err != nil {
		logger.Fatal("ticketing-projector: failed to connect to bus", "err", err)
	}
	defer consumer.Close()

	var dlqPublisher bus.Publisher
	kafkaDLQPublisher, err := bus.NewKafkaPublisher(ctx, bus.KafkaPublisherConfig{
		Brokers: cfg.Bus.Brokers, ClientID: cfg.Bus.ClientID + "-dlq",
	})
	if err != nil {
		logger.Warn("ticketing-projector: dlq publisher unavailable, poison events will retry forever", "err", err)
	} else {
		defer kafkaDLQPublisher.Close()
		dlqPublisher = kafkaDLQPublisher
	}

	read := postgres.NewReadRepository(readDB.Pool())
	checkpoint := postgres.NewCheckpointRepository(readDB.Pool())

	proj := projector.New(projector.Config{
		Consumer:     consumer,
		Read:         read,
		Checkpoint:   checkpoint,
		Cache:        ticketCache,
		DLQPublisher: dlqPublisher,
		DLQTopic:     cfg.Bus.DLQTopic,
		DLQThreshold: cfg.ProjectorDLQThreshold,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ticketing-projector: running", "topic", cfg.Bus.Topic, "group", cfg.Bus.ConsumerGroup)
		errCh <- proj.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("ticketing-projector: shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("ticketing-projector: consumer stopped with error", "err", err)
		}
	}
}
