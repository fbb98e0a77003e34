package main

import (
	"fanline/internal/stock/handler"
	"fanline/internal/stock/repository"
	"fanline/internal/stock/service"
	"fanline/internal/stock/validator"
	"fanline/pkg/app"
	"fanline/pkg/config"
	"fanline/pkg/kafka"
	kafka_config "fanline/pkg/kafka/config"
	kafka_middleware "fanline/pkg/kafka/middleware"
)

const ServiceName = "stock"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Stock service")
	router := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(router)
	serverApp.Run()
}

func initServices(cfg *config.Config) *handler.Router {
	stockEvents := newPublisher(cfg, kafka.TopicStockEvents)
	auditEvents := newPublisher(cfg, kafka.TopicAuditIssues)

	stockValidator := validator.NewStockValidator(cfg.Log)
	unitRepo := repository.NewMongoUnitRepository(cfg)
	ledgerRepo := repository.NewMongoLedgerRepository(cfg)
	orderRepo := repository.NewMongoOrderRepository(cfg)
	issueRepo := repository.NewMongoAuditIssueRepository(cfg)
	catalogRepo := repository.NewMongoCatalogRepository(cfg)

	stockService := service.NewStockService(unitRepo, ledgerRepo, orderRepo, issueRepo, stockEvents, auditEvents, cfg)
	adminService := service.NewAdminService(catalogRepo, unitRepo, orderRepo, issueRepo, stockService, stockValidator, cfg)

	cfg.Log.Info("Stock service initialized", "database", cfg.MongoDatabaseName)
	return handler.NewRouter(
		handler.NewStockHandler(stockService, stockValidator, cfg.Log),
		handler.NewAdminHandler(adminService, cfg.Log),
	)
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
