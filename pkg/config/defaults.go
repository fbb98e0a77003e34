package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "fanline"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Admission control knobs.
	DefaultQueueTTL         = 30 * time.Minute
	DefaultQueueCooldown    = 1 * time.Hour
	DefaultCheckoutTTL      = 10 * time.Minute
	DefaultCheckoutLimit    = 5
	DefaultAdmissionLockTTL = 10 * time.Second

	// Stock ledger knobs.
	DefaultLowStockThreshold = 5

	// Reconciler cadence.
	DefaultSweepInterval = 5 * time.Minute
	DefaultAuditInterval = 1 * time.Hour

	DefaultLogLevel = "info"

	DefaultPaginationLimit = 100
)
