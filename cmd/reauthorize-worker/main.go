package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/stripe-service/internal/dto"
	"github.com/commercekit/stripe-service/internal/gateway"
	"github.com/commercekit/stripe-service/internal/method"
	"github.com/commercekit/stripe-service/internal/metrics"
	"github.com/commercekit/stripe-service/internal/notification"
	"github.com/commercekit/stripe-service/internal/reauthorize"
	"github.com/commercekit/stripe-service/internal/repository"
	"github.com/commercekit/stripe-service/internal/worker"
	"github.com/commercekit/stripe-service/pkg/config"
	"github.com/commercekit/stripe-service/pkg/database"
	"github.com/commercekit/stripe-service/pkg/kafka"
	"github.com/commercekit/stripe-service/pkg/logger"
	"github.com/commercekit/stripe-service/pkg/telemetry"
)

// The renewal worker consumes init messages, scans for expiring
// authorization holds, fans the candidates out in chunks, and executes
// each renewal against the payment processor.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: "reauthorize-worker",
		Development: cfg.IsDevelopment(),
	}
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting re-authorization worker...")

	ctx := context.Background()

	if cfg.OTel.Enabled {
		_, err := telemetry.Init(ctx, &telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.OTel.ServiceName + "-worker",
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
			CollectorAddr:  cfg.OTel.CollectorAddr,
			SampleRatio:    cfg.OTel.SampleRatio,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Telemetry init failed: %v", err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = telemetry.Shutdown(shutdownCtx)
			}()
		}
	}

	// Database is required; renewals read and write transactions.
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID + "-worker",
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Kafka producer unavailable: %v", err))
	}
	defer producer.Close()

	initConsumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.ConsumerGroup,
		Topics:   []string{dto.TopicReAuthorizeInit},
		ClientID: cfg.Kafka.ClientID + "-worker-init",
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Kafka init consumer unavailable: %v", err))
	}
	defer initConsumer.Close()

	chunkConsumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.ConsumerGroup,
		Topics:   []string{dto.TopicReAuthorizeChunk},
		ClientID: cfg.Kafka.ClientID + "-worker-chunk",
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Kafka chunk consumer unavailable: %v", err))
	}
	defer chunkConsumer.Close()

	if err := cfg.ValidateStripe(); err != nil {
		appLog.Fatal(fmt.Sprintf("Stripe configuration invalid: %v", err))
	}
	stripeGateway, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
		SecretKey:        cfg.Stripe.SecretKey,
		Locale:           cfg.Stripe.Locale,
		EnableMonitoring: cfg.Stripe.EnableMonitoring,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Stripe gateway: %v", err))
	}

	repo := repository.NewPostgresTransactionRepository(db)

	registry := method.NewRegistry()
	registry.Register(method.NewStripeMethod(cfg.Stripe.PaymentMethodName, stripeGateway, appLog))

	notifier := notification.NewDispatcher(producer, notification.Config{
		Topic:      cfg.Notification.Topic,
		FromEmail:  cfg.Notification.FromEmail,
		Recipients: cfg.ReAuthorization.Recipients,
	}, appLog)

	provider, err := reauthorize.NewExpiringAuthorizationProvider(
		repo,
		registry.Identifiers(),
		cfg.ReAuthorization.CreatedLaterThan,
		cfg.ReAuthorization.CreatedEarlierThan,
		cfg.ReAuthorization.BufferSize,
	)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Invalid renewal window: %v", err))
	}

	executor := reauthorize.NewExecutor(repo, registry, notifier, appLog)

	workerMetrics, err := metrics.New()
	if err != nil {
		appLog.Warn(fmt.Sprintf("Metrics unavailable: %v", err))
	}

	fanout := worker.NewFanoutConsumer(initConsumer, producer, provider, cfg.ReAuthorization.ChunkSize, appLog)
	chunks := worker.NewChunkConsumer(chunkConsumer, repo, executor, workerMetrics, appLog)

	if err := fanout.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start fanout consumer: %v", err))
	}
	if err := chunks.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start chunk consumer: %v", err))
	}
	appLog.Info(fmt.Sprintf("Worker consuming %s and %s", dto.TopicReAuthorizeInit, dto.TopicReAuthorizeChunk))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down worker...")

	fanout.Stop()
	chunks.Stop()

	appLog.Info("Worker exited gracefully")
}
