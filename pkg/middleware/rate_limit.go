package middleware

import (
	"net/http"
	"sync"
	"time"

	"fanline/pkg/logger"
)

// ParticipantExtractor pulls the authenticated participant id off a request.
// The identity provider sits in front of this service and forwards the id in
// a trusted header.
type ParticipantExtractor func(r *http.Request) string

// ParticipantRateLimiter is a sliding-window limiter keyed by participant id.
// It exists to blunt poll-hammering during a drop, not to enforce fairness:
// fairness comes from the queue itself.
type ParticipantRateLimiter struct {
	mu        sync.RWMutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor ParticipantExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

func NewParticipantRateLimiter(limit int, window time.Duration, extractor ParticipantExtractor, log *logger.Logger) *ParticipantRateLimiter {
	limiter := &ParticipantRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *ParticipantRateLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for participant, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, participant)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *ParticipantRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *ParticipantRateLimiter) Allow(participant string) bool {
	if participant == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[participant]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[participant] = valid
		return false
	}

	rl.requests[participant] = append(valid, now)
	return true
}

func ParticipantRateLimit(limiter *ParticipantRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			participant := extractParticipant(r, limiter.extractor)

			if participant == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(participant) {
				rejectRateLimited(w, limiter.log, r, participant)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractParticipant(r *http.Request, extractor ParticipantExtractor) string {
	if extractor == nil {
		return r.Header.Get("X-Participant-ID")
	}
	return extractor(r)
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, participant string) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r.Context()),
		"participant_id", participant,
		"path", r.URL.Path,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"Rate limit exceeded"}`))
}

func DefaultParticipantExtractor(r *http.Request) string {
	return r.Header.Get("X-Participant-ID")
}
