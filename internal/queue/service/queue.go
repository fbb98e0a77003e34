package service

import (
	"context"
	"errors"
	"time"

	checkoutrepo "fanline/internal/checkout/repository"
	queueerrors "fanline/internal/queue/errors"
	"fanline/internal/queue/repository"
	"fanline/pkg/config"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/kafka"
	"fanline/pkg/model"
	"fanline/pkg/sanitizer"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventPublisher is the slice of the Kafka producer the queue needs.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// QueueState is everything a polling client needs in one read.
type QueueState struct {
	Status        string     `json:"status"`
	Sequence      uint64     `json:"sequence"`
	Position      int64      `json:"position"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CheckingOut   bool       `json:"checking_out"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

type QueueService interface {
	// Join enters the participant into the resource's queue and returns the
	// fresh entry with its claimed sequence.
	Join(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error)
	// Leave voluntarily abandons the queue, starts the rejoin cooldown and
	// releases any held checkout slot.
	Leave(ctx context.Context, resourceID, participantID string) error
	State(ctx context.Context, resourceID, participantID string) (*QueueState, error)
}

type queueService struct {
	resources repository.ResourceRepository
	entries   repository.EntryRepository
	sessions  checkoutrepo.SessionRepository
	events    EventPublisher
	cfg       *config.Config
}

func NewQueueService(
	resources repository.ResourceRepository,
	entries repository.EntryRepository,
	sessions checkoutrepo.SessionRepository,
	events EventPublisher,
	cfg *config.Config,
) QueueService {
	return &queueService{
		resources: resources,
		entries:   entries,
		sessions:  sessions,
		events:    events,
		cfg:       cfg,
	}
}

func (s *queueService) Join(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if cooling, err := s.entries.FindCoolingDown(ctx, resourceID, participantID, now); err == nil {
		remaining := time.Until(*cooling.CooldownUntil)
		return nil, apperrors.CoolingDown(resourceID, remaining)
	} else if !errors.Is(err, queueerrors.ErrEntryNotFound) {
		return nil, apperrors.Internal("Failed to check rejoin cooldown", err)
	}

	// Sequence allocation and entry insertion commit or roll back together,
	// so a rejected join never burns a sequence number.
	var entry *model.QueueEntry
	err = s.entries.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		seq, err := s.resources.AllocateSequence(sessCtx, resourceID)
		if err != nil {
			return s.mapResourceError(sessCtx, err, resourceID)
		}

		entry = &model.QueueEntry{
			ID:            uuid.NewString(),
			ResourceID:    resourceID,
			ParticipantID: participantID,
			Sequence:      seq,
			Status:        model.EntryWaiting,
			ExpiresAt:     now.Add(s.cfg.QueueTTL),
		}
		if err := s.entries.Insert(sessCtx, entry); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return apperrors.AlreadyQueued(resourceID)
			}
			return apperrors.Internal("Failed to insert queue entry", err)
		}
		return nil
	})
	if err != nil {
		if appErr := apperrors.AsAppError(err); appErr != nil && appErr.HTTPStatus < 500 {
			s.cfg.Log.Debug("Join rejected",
				"resource_id", resourceID,
				"participant_id", participantID,
				"code", appErr.Code,
			)
		} else {
			s.cfg.Log.Error("Failed to join queue", "resource_id", resourceID, "error", err)
		}
		return nil, err
	}

	s.cfg.Log.Info("Participant joined queue",
		"resource_id", resourceID,
		"participant_id", participantID,
		"sequence", entry.Sequence,
	)
	s.publishQueueEvent(ctx, kafka.EventQueueJoined, entry)
	return entry, nil
}

func (s *queueService) Leave(ctx context.Context, resourceID, participantID string) error {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return err
	}

	entry, err := s.entries.FindLive(ctx, resourceID, participantID)
	if err != nil {
		if errors.Is(err, queueerrors.ErrEntryNotFound) {
			return apperrors.NotFoundWithID("Queue entry", participantID)
		}
		return apperrors.Internal("Failed to find queue entry", err)
	}

	cooldownUntil := time.Now().UTC().Add(s.cfg.QueueCooldown)
	err = s.entries.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.entries.MarkLeft(sessCtx, entry.ID, cooldownUntil); err != nil {
			if errors.Is(err, queueerrors.ErrEntryNotFound) {
				// Lost the race with a sweep or a concurrent leave.
				return apperrors.NotFoundWithID("Queue entry", participantID)
			}
			return apperrors.Internal("Failed to mark queue entry left", err)
		}
		if _, err := s.sessions.DeleteByPair(sessCtx, resourceID, participantID); err != nil {
			return apperrors.Internal("Failed to release checkout session", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cfg.Log.Info("Participant left queue",
		"resource_id", resourceID,
		"participant_id", participantID,
		"cooldown_until", cooldownUntil,
	)
	entry.Status = model.EntryLeft
	entry.CooldownUntil = &cooldownUntil
	s.publishQueueEvent(ctx, kafka.EventQueueLeft, entry)
	return nil
}

func (s *queueService) State(ctx context.Context, resourceID, participantID string) (*QueueState, error) {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return nil, err
	}

	entry, err := s.entries.FindLive(ctx, resourceID, participantID)
	if err != nil {
		if !errors.Is(err, queueerrors.ErrEntryNotFound) {
			return nil, apperrors.Internal("Failed to find queue entry", err)
		}
		// No live entry; a cooling-down entry is still reportable state.
		cooling, coolErr := s.entries.FindCoolingDown(ctx, resourceID, participantID, time.Now().UTC())
		if coolErr != nil {
			if errors.Is(coolErr, queueerrors.ErrEntryNotFound) {
				return nil, apperrors.NotFoundWithID("Queue entry", participantID)
			}
			return nil, apperrors.Internal("Failed to check rejoin cooldown", coolErr)
		}
		return &QueueState{
			Status:        cooling.Status,
			Sequence:      cooling.Sequence,
			Position:      -1,
			ExpiresAt:     cooling.ExpiresAt,
			CooldownUntil: cooling.CooldownUntil,
		}, nil
	}

	state := &QueueState{
		Status:    entry.Status,
		Sequence:  entry.Sequence,
		Position:  -1,
		ExpiresAt: entry.ExpiresAt,
	}

	if entry.Status == model.EntryWaiting {
		position, err := s.entries.CountWaitingBefore(ctx, resourceID, entry.Sequence)
		if err != nil {
			return nil, apperrors.Internal("Failed to compute queue position", err)
		}
		state.Position = position
	}

	if _, err := s.sessions.FindLive(ctx, resourceID, participantID, time.Now().UTC()); err == nil {
		state.CheckingOut = true
	}

	return state, nil
}

func (s *queueService) mapResourceError(ctx context.Context, err error, resourceID string) error {
	switch {
	case errors.Is(err, queueerrors.ErrResourceNotFound):
		return apperrors.NotFoundWithID("Resource", resourceID)
	case errors.Is(err, queueerrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid resource ID format")
	case errors.Is(err, queueerrors.ErrSaleClosed):
		saleStatus := ""
		if resource, readErr := s.resources.FindByID(ctx, resourceID); readErr == nil {
			saleStatus = resource.SaleStatus
		}
		return apperrors.SaleWindowClosed(resourceID, saleStatus)
	default:
		return apperrors.Internal("Failed to allocate queue sequence", err)
	}
}

func (s *queueService) publishQueueEvent(ctx context.Context, eventType string, entry *model.QueueEntry) {
	if s.events == nil {
		return
	}
	msg := kafka.NewMessage().
		WithKey(entry.ResourceID).
		WithEventID(uuid.NewString()).
		WithEventType(eventType).
		WithSource("queue").
		WithValue(kafka.QueueEvent{
			ResourceID:    entry.ResourceID,
			ParticipantID: entry.ParticipantID,
			Sequence:      entry.Sequence,
			Status:        entry.Status,
			ExpiresAt:     entry.ExpiresAt,
			Timestamp:     time.Now().UTC(),
		}).
		Build()
	if err := s.events.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish queue event",
			"event_type", eventType,
			"resource_id", entry.ResourceID,
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
