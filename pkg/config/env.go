package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvQueueTTL         = "QUEUE_TTL"
	EnvQueueCooldown    = "QUEUE_COOLDOWN"
	EnvCheckoutTTL      = "CHECKOUT_TTL"
	EnvCheckoutLimit    = "CHECKOUT_LIMIT"
	EnvAdmissionLockTTL = "ADMISSION_LOCK_TTL"

	EnvLowStockThreshold = "LOW_STOCK_THRESHOLD"

	EnvSweepInterval = "SWEEP_INTERVAL"
	EnvAuditInterval = "AUDIT_INTERVAL"

	EnvCheckoutTokenKey = "CHECKOUT_TOKEN_KEY"
)
