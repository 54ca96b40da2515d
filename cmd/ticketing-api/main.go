// Command ticketing-api is the HTTP boundary process: it wires the command
// and query cores to a gin router and serves §6's external interface,
// grounded on the reference booking-service main's load-config/wire/serve
// shape.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/transitline/ticketing-core/internal/bus"
	"github.com/transitline/ticketing-core/internal/cache"
	"github.com/transitline/ticketing-core/internal/command"
	"github.com/transitline/ticketing-core/internal/httpapi"
	"github.com/transitline/ticketing-core/internal/outbox"
	"github.com/transitline/ticketing-core/internal/query"
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
		log.Fatalf("ticketing-api: failed to load config: %v", err)
	}

	if err := logger.Init(logger.Config{Environment: cfg.App.Environment, Level: cfg.App.LogLevel}); err != nil {
		log.Fatalf("ticketing-api: failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.OTel.ServiceVersion,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		logger.Warn("ticketing-api: telemetry disabled", "err", err)
	}
	defer telemetry.Shutdown(ctx)

	writeDB, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host: cfg.WriteDB.Host, Port: cfg.WriteDB.Port, User: cfg.WriteDB.User,
		Password: cfg.WriteDB.Password, Database: cfg.WriteDB.DBName, SSLMode: cfg.WriteDB.SSLMode,
		MaxConns: cfg.WriteDB.MaxConns, MinConns: cfg.WriteDB.MinConns,
		MaxConnLifetime: cfg.WriteDB.ConnMaxLifetime, ServiceName: cfg.App.Name, EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Fatal("ticketing-api: failed to connect to write database", "err", err)
	}
	defer writeDB.Close()

	readDB, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host: cfg.ReadDB.Host, Port: cfg.ReadDB.Port, User: cfg.ReadDB.User,
		Password: cfg.ReadDB.Password, Database: cfg.ReadDB.DBName, SSLMode: cfg.ReadDB.SSLMode,
		MaxConns: cfg.ReadDB.MaxConns, MinConns: cfg.ReadDB.MinConns, ServiceName: cfg.App.Name, EnableTracing: cfg.OTel.Enabled,
	})
	if err != nil {
		logger.Fatal("ticketing-api: failed to connect to read database", "err", err)
	}
	defer readDB.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host: cfg.Cache.Host, Port: cfg.Cache.Port, Password: cfg.Cache.Password, DB: cfg.Cache.DB,
	})
	if err != nil {
		logger.Warn("ticketing-api: cache unavailable, running without it", "err", err)
	} else {
		defer redisClient.Close()
	}

	var ticketCache cache.Cache
	if redisClient != nil {
		ticketCache = cache.NewRedisCache(redisClient)
	}

	kafkaPublisher, err := bus.NewKafkaPublisher(ctx, bus.KafkaPublisherConfig{
		Brokers: cfg.Bus.Brokers, ClientID: cfg.Bus.ClientID,
	})
	if err != nil {
		logger.Fatal("ticketing-api: failed to connect to bus", "err", err)
	}
	defer kafkaPublisher.Close()

	write := postgres.NewWriteRepository(writeDB.Pool(), cfg.Bus.Topic)
	read := postgres.NewReadRepository(readDB.Pool())

	var inlinePublisher bus.Publisher
	if cfg.Bus.PublishMode == string(command.PublishInline) {
		inlinePublisher = kafkaPublisher
	}

	commands := command.New(command.Config{
		Write: write, Publisher: inlinePublisher, Topic: cfg.Bus.Topic,
		PublishMode: command.PublishMode(cfg.Bus.PublishMode),
	})
	queries := query.New(read, ticketCache)

	// The relay runs regardless of publish mode: in outbox mode it is the
	// only path events take to the bus, and in inline mode it still picks
	// up anything the command core's best-effort inline publish missed
	// (e.g. a broker hiccup after the write committed), including every
	// TICKET_EXPIRED row the sweeper appends.
	relay := outbox.New(outbox.Config{
		Outbox:    postgres.NewOutboxRepository(writeDB.Pool()),
		Publisher: kafkaPublisher,
	})
	if err := relay.Start(ctx); err != nil {
		logger.Fatal("ticketing-api: failed to start outbox relay", "err", err)
	}
	defer relay.Stop()

	health := httpapi.NewHealthHandlers(writeDB.Pool(), readDB.Pool(), redisClient)
	router := httpapi.NewRouter(cfg, commands, queries, health)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("ticketing-api: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ticketing-api: server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("ticketing-api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ticketing-api: graceful shutdown failed", "err", err)
	}
}
