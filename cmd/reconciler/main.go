package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	checkoutrepo "fanline/internal/checkout/repository"
	"fanline/internal/reconciler/repository"
	"fanline/internal/reconciler/service"
	stockrepo "fanline/internal/stock/repository"
	stockservice "fanline/internal/stock/service"
	"fanline/internal/stock/validator"
	"fanline/pkg/config"
	"fanline/pkg/kafka"
	kafka_config "fanline/pkg/kafka/config"
	kafka_middleware "fanline/pkg/kafka/middleware"
)

const (
	ServiceName     = "reconciler"
	ConsumerGroupID = "fanline-reconciler"
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting Reconciler service")
	reconciler := initServices(cfg)

	kcfg := kafka_config.Load()
	consumer, err := kafka.NewConsumer(
		kcfg,
		kafka.TopicOrdersSettled,
		ConsumerGroupID,
		kafka.TopicOrdersSettled+kafka.DLQSuffix,
		reconciler.HandleOrderSettled,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create settlement consumer", "error", err)
	}
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			cfg.Log.Error("Settlement consumer stopped", "error", err)
		}
	}()

	reconciler.Run(ctx)
}

func initServices(cfg *config.Config) *service.Reconciler {
	stockEvents := newPublisher(cfg, kafka.TopicStockEvents)
	auditEvents := newPublisher(cfg, kafka.TopicAuditIssues)

	stockValidator := validator.NewStockValidator(cfg.Log)
	unitRepo := stockrepo.NewMongoUnitRepository(cfg)
	ledgerRepo := stockrepo.NewMongoLedgerRepository(cfg)
	orderRepo := stockrepo.NewMongoOrderRepository(cfg)
	issueRepo := stockrepo.NewMongoAuditIssueRepository(cfg)
	catalogRepo := stockrepo.NewMongoCatalogRepository(cfg)
	sweepRepo := repository.NewMongoSweepRepository(cfg)
	sessionRepo := checkoutrepo.NewMongoSessionRepository(cfg)

	stockService := stockservice.NewStockService(unitRepo, ledgerRepo, orderRepo, issueRepo, stockEvents, auditEvents, cfg)
	adminService := stockservice.NewAdminService(catalogRepo, unitRepo, orderRepo, issueRepo, stockService, stockValidator, cfg)

	cfg.Log.Info("Reconciler initialized", "database", cfg.MongoDatabaseName)
	return service.NewReconciler(sweepRepo, unitRepo, stockService, adminService, sessionRepo, cfg)
}

func newPublisher(cfg *config.Config, topic string) *kafka.Producer {
	kcfg := kafka_config.Load()
	producer, err := kafka.NewProducer(kcfg, topic, topic+kafka.DLQSuffix)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	return producer
}
