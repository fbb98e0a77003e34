package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	checkouterrors "fanline/internal/checkout/errors"
	"fanline/internal/checkout/repository"
	"fanline/pkg/config"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/kafka"
	"fanline/pkg/model"
	"fanline/pkg/sanitizer"
	"fanline/pkg/sealer"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventPublisher is the slice of the Kafka producer the throttle needs.
// Events are best-effort signals; publish failures are logged, never returned.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type ThrottleService interface {
	// Acquire claims one of the resource's concurrent checkout slots.
	// Returns CapacityExceeded when every slot is taken and
	// AlreadyCheckingOut when the participant already holds one.
	Acquire(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error)
	// Release frees the participant's slot. Idempotent: releasing a slot
	// that is not held is not an error.
	Release(ctx context.Context, resourceID, participantID string) error
	SessionFor(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error)
	LiveCount(ctx context.Context, resourceID string) (int64, error)

	// OpenSession counts live sessions and inserts a new one inside the
	// caller's transaction. The caller must hold the resource's advisory
	// lock. The admission gate uses this so that admitting a waiting
	// participant and a direct acquire share one slot-accounting rule.
	OpenSession(sessCtx mongo.SessionContext, resourceID, participantID string) (*model.CheckoutSession, error)
	AcquireResourceLock(ctx context.Context, resourceID string) (string, error)
	ReleaseResourceLock(ctx context.Context, lockID string)
}

type throttleService struct {
	sessions repository.SessionRepository
	locks    repository.AdmissionLockRepository
	sealer   *sealer.Sealer
	events   EventPublisher
	cfg      *config.Config
}

func NewThrottleService(
	sessions repository.SessionRepository,
	locks repository.AdmissionLockRepository,
	tokenSealer *sealer.Sealer,
	events EventPublisher,
	cfg *config.Config,
) ThrottleService {
	return &throttleService{
		sessions: sessions,
		locks:    locks,
		sealer:   tokenSealer,
		events:   events,
		cfg:      cfg,
	}
}

func (s *throttleService) Acquire(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return nil, err
	}

	lockID, err := s.AcquireResourceLock(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	defer s.ReleaseResourceLock(ctx, lockID)

	var session *model.CheckoutSession
	err = s.sessions.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		session, err = s.OpenSession(sessCtx, resourceID, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Checkout slot acquired",
		"resource_id", resourceID,
		"participant_id", participantID,
		"expires_at", session.ExpiresAt,
	)
	s.publishEvent(ctx, kafka.EventCheckoutAcquired, resourceID, participantID)
	return session, nil
}

func (s *throttleService) OpenSession(sessCtx mongo.SessionContext, resourceID, participantID string) (*model.CheckoutSession, error) {
	now := time.Now().UTC()

	// A session past its TTL does not count as live, but its document still
	// holds the pair's unique index slot until the sweeper reclaims it.
	// Clear it here so re-entry never waits for the next sweep.
	if _, err := s.sessions.DeleteExpiredByPair(sessCtx, resourceID, participantID, now); err != nil {
		return nil, apperrors.Internal("Failed to reclaim expired checkout session", err)
	}

	live, err := s.sessions.CountLive(sessCtx, resourceID, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to count checkout sessions", err)
	}
	if live >= int64(s.cfg.CheckoutLimit) {
		return nil, apperrors.CapacityExceeded(resourceID, s.cfg.CheckoutLimit)
	}

	token, err := s.sealer.SealCheckoutToken(resourceID, participantID)
	if err != nil {
		return nil, apperrors.Internal("Failed to seal checkout token", err)
	}

	session := &model.CheckoutSession{
		ID:            uuid.NewString(),
		ResourceID:    resourceID,
		ParticipantID: participantID,
		Token:         token,
		ExpiresAt:     now.Add(s.cfg.CheckoutTTL),
	}
	if err := s.sessions.Insert(sessCtx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperrors.AlreadyCheckingOut(resourceID)
		}
		return nil, apperrors.Internal("Failed to insert checkout session", err)
	}

	return session, nil
}

func (s *throttleService) Release(ctx context.Context, resourceID, participantID string) error {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return err
	}

	deleted, err := s.sessions.DeleteByPair(ctx, resourceID, participantID)
	if err != nil {
		return apperrors.Internal("Failed to release checkout session", err)
	}

	if deleted > 0 {
		s.cfg.Log.Info("Checkout slot released",
			"resource_id", resourceID,
			"participant_id", participantID,
		)
		s.publishEvent(ctx, kafka.EventCheckoutReleased, resourceID, participantID)
	}
	return nil
}

func (s *throttleService) SessionFor(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindLive(ctx, resourceID, participantID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, checkouterrors.ErrSessionNotFound) {
			return nil, apperrors.NotFound("Checkout session")
		}
		return nil, apperrors.Internal("Failed to find checkout session", err)
	}
	return session, nil
}

func (s *throttleService) LiveCount(ctx context.Context, resourceID string) (int64, error) {
	count, err := s.sessions.CountLive(ctx, resourceID, time.Now().UTC())
	if err != nil {
		return 0, apperrors.Internal("Failed to count checkout sessions", err)
	}
	return count, nil
}

func (s *throttleService) AcquireResourceLock(ctx context.Context, resourceID string) (string, error) {
	lockID := fmt.Sprintf("admission_%s", resourceID)

	lock := &model.AdmissionLock{
		ID:        lockID,
		ExpiresAt: time.Now().Add(s.cfg.AdmissionLockTTL),
	}

	if _, err := s.locks.Create(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.LockContention(resourceID)
		}
		return "", apperrors.Internal("Failed to acquire admission lock", err)
	}

	return lockID, nil
}

func (s *throttleService) ReleaseResourceLock(ctx context.Context, lockID string) {
	if err := s.locks.Delete(ctx, lockID); err != nil {
		s.cfg.Log.Warn("Failed to release admission lock", "lock_id", lockID, "error", err)
	}
}

func (s *throttleService) publishEvent(ctx context.Context, eventType, resourceID, participantID string) {
	if s.events == nil {
		return
	}
	msg := kafka.NewMessage().
		WithKey(resourceID).
		WithEventID(uuid.NewString()).
		WithEventType(eventType).
		WithSource("checkout").
		WithValue(kafka.QueueEvent{
			ResourceID:    resourceID,
			ParticipantID: participantID,
			Timestamp:     time.Now().UTC(),
		}).
		Build()
	if err := s.events.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish checkout event",
			"event_type", eventType,
			"resource_id", resourceID,
			"error", err,
		)
	}
}

func normalizePair(resourceID, participantID string) (string, string, error) {
	resourceID = sanitizer.SanitizeReference(resourceID)
	participantID = sanitizer.SanitizeReference(participantID)
	if resourceID == "" || participantID == "" {
		return "", "", apperrors.InvalidInput("resource_id and participant_id are required")
	}
	return resourceID, participantID, nil
}
