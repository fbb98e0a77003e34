package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"fanline/pkg/kafka"
)

// Metrics counts publish and consume outcomes process-wide. All fields are
// updated atomically; read them through Snapshot.
type Metrics struct {
	MessagesPublished       atomic.Int64
	MessagesPublishedFailed atomic.Int64
	PublishDurationNanos    atomic.Int64

	MessagesConsumed       atomic.Int64
	MessagesConsumedFailed atomic.Int64
	ConsumeDurationNanos   atomic.Int64
}

// Snapshot is a point-in-time copy of the counters with derived averages.
type Snapshot struct {
	MessagesPublished       int64
	MessagesPublishedFailed int64
	AvgPublishDuration      time.Duration

	MessagesConsumed       int64
	MessagesConsumedFailed int64
	AvgConsumeDuration     time.Duration
}

var globalMetrics = &Metrics{}

// GetMetrics returns the process-wide metrics instance.
func GetMetrics() *Metrics {
	return globalMetrics
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		MessagesPublished:       m.MessagesPublished.Load(),
		MessagesPublishedFailed: m.MessagesPublishedFailed.Load(),
		MessagesConsumed:        m.MessagesConsumed.Load(),
		MessagesConsumedFailed:  m.MessagesConsumedFailed.Load(),
	}
	if total := s.MessagesPublished + s.MessagesPublishedFailed; total > 0 {
		s.AvgPublishDuration = time.Duration(m.PublishDurationNanos.Load() / total)
	}
	if total := s.MessagesConsumed + s.MessagesConsumedFailed; total > 0 {
		s.AvgConsumeDuration = time.Duration(m.ConsumeDurationNanos.Load() / total)
	}
	return s
}

func (m *Metrics) Reset() {
	m.MessagesPublished.Store(0)
	m.MessagesPublishedFailed.Store(0)
	m.PublishDurationNanos.Store(0)
	m.MessagesConsumed.Store(0)
	m.MessagesConsumedFailed.Store(0)
	m.ConsumeDurationNanos.Store(0)
}

// MetricsProducerMiddleware records publish counts and latency.
func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		globalMetrics.PublishDurationNanos.Add(time.Since(start).Nanoseconds())

		if err != nil {
			globalMetrics.MessagesPublishedFailed.Add(1)
		} else {
			globalMetrics.MessagesPublished.Add(1)
		}
		return err
	}
}

// MetricsConsumerMiddleware records consume counts and latency.
func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		globalMetrics.ConsumeDurationNanos.Add(time.Since(start).Nanoseconds())

		if err != nil {
			globalMetrics.MessagesConsumedFailed.Add(1)
		} else {
			globalMetrics.MessagesConsumed.Add(1)
		}
		return err
	}
}
