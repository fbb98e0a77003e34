package main

import (
	checkoutrepo "fanline/internal/checkout/repository"
	checkoutservice "fanline/internal/checkout/service"
	"fanline/internal/queue/handler"
	"fanline/internal/queue/repository"
	"fanline/internal/queue/service"
	"fanline/pkg/app"
	"fanline/pkg/config"
	"fanline/pkg/kafka"
	kafka_config "fanline/pkg/kafka/config"
	kafka_middleware "fanline/pkg/kafka/middleware"
	"fanline/pkg/sealer"
)

const ServiceName = "queue"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Queue service")
	queueHandler := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(queueHandler)
	serverApp.Run()
}

func initServices(cfg *config.Config) *handler.QueueHandler {
	events := newPublisher(cfg, kafka.TopicQueueEvents)

	tokenSealer, err := sealer.New(cfg.CheckoutTokenKey)
	if err != nil {
		cfg.Log.Fatal("Invalid checkout token key", "error", err)
	}

	resourceRepo := repository.NewMongoResourceRepository(cfg)
	entryRepo := repository.NewMongoEntryRepository(cfg)
	sessionRepo := checkoutrepo.NewMongoSessionRepository(cfg)
	lockRepo := checkoutrepo.NewAdmissionLockRepository(cfg)

	throttleService := checkoutservice.NewThrottleService(sessionRepo, lockRepo, tokenSealer, events, cfg)
	queueService := service.NewQueueService(resourceRepo, entryRepo, sessionRepo, events, cfg)
	admissionService := service.NewAdmissionService(entryRepo, throttleService, events, cfg)

	cfg.Log.Info("Queue service initialized", "database", cfg.MongoDatabaseName)
	return handler.NewQueueHandler(queueService, admissionService, throttleService, cfg.Log)
}

// newPublisher builds a producer for the given topic with its DLQ twin.
func newPublisher(cfg *config.Config, topic string) *kafka.Producer {
	kcfg := kafka_config.Load()
	producer, err := kafka.NewProducer(kcfg, topic, topic+kafka.DLQSuffix)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	return producer
}
