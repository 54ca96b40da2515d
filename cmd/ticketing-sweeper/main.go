// Command ticketing-sweeper is the standalone Expiry sweeper (X) process:
// it periodically expires stale reservations in the write store, grounded
// on the reference booking-service main's load-config/wire/run shape.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/outbox"
	"github.com/transitline/ticketing-core/internal/store/postgres"
	"github.com/transitline/ticketing-core/internal/sweeper"
	"github.com/transitline/ticketing-core/pkg/config"
	"github.com/transitline/ticketing-core/pkg/database"
	"github.com/transitline/ticketing-core/pkg/logger"
	pkgredis "github.com/transitline/ticketing-core/pkg/redis"
	"github.com/transitline/ticketing-core/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ticketing-sweeper: failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{Environment: cfg.App.Environment, Level: cfg.App.LogLevel}); err != nil {
		log.Fatalf("ticketing-sweeper: failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.App.Name + "-sweeper",
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		logger.Warn("ticketing-sweeper: telemetry disabled", "err", err)
	}
	defer telemetry.Shutdown(ctx)

	writeDB, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host: cfg.WriteDB.Host, Port: cfg.WriteDB.Port, User: cfg.WriteDB.User,
		Password: cfg.WriteDB.Password, Database: cfg.WriteDB.DBName, SSLMode: cfg.WriteDB.SSLMode,
		MaxConns: cfg.WriteDB.MaxConns, MinConns: cfg.WriteDB.MinConns,
		MaxConnLifetime: cfg.WriteDB.ConnMaxLifetime, ServiceName: cfg.App.Name, EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Fatal("ticketing-sweeper: failed to connect to write database", "err", err)
	}
	defer writeDB.Close()

	write := postgres.NewWriteRepository(writeDB.Pool(), cfg.Bus.Topic)

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	})
	if err != nil {
		logger.Warn("ticketing-sweeper: leader lock unavailable, every replica will scan every tick", "err", err)
	} else {
		defer redisClient.Close()
	}

	sw := sweeper.New(sweeper.Config{
		Write:        write,
		ScanInterval: time.Duration(cfg.SweepIntervalSeconds) * time.Second,
		Lock:         redisClient,
	})

	if err := sw.Start(ctx); err != nil {
		logger.Fatal("ticketing-sweeper: failed to start", "err", err)
	}

	// Every TICKET_EXPIRED event the sweeper appends lands in the same
	// booking_outbox table the command core writes to, regardless of
	// BUS_PUBLISH_MODE (ExpireReservation only ever goes through the
	// outbox). This process runs its own relay so expired-reservation
	// events still reach the bus even if ticketing-api is down;
	// SELECT...FOR UPDATE SKIP LOCKED makes running it alongside the
	// api process's relay safe.
	kafkaPublisher, err := bus.NewKafkaPublisher(ctx, bus.KafkaPublisherConfig{
		Brokers: cfg.Bus.Brokers, ClientID: cfg.Bus.ClientID + "-sweeper",
	})
	if err != nil {
		logger.Fatal("ticketing-sweeper: failed to connect to bus", "err", err)
	}
	defer kafkaPublisher.Close()

	relay := outbox.New(outbox.Config{
		Outbox:    postgres.NewOutboxRepository(writeDB.Pool()),
		Publisher: kafkaPublisher,
	})
	if err := relay.Start(ctx); err != nil {
		logger.Fatal("ticketing-sweeper: failed to start outbox relay", "err", err)
	}
	defer relay.Stop()

	logger.Info("ticketing-sweeper: running", "scanInterval", cfg.SweepIntervalSeconds)
	<-ctx.Done()
	logger.Info("ticketing-sweeper: shutting down")
	sw.Stop()
}
