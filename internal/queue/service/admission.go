package service

import (
	"context"
	"errors"
	"time"

	checkoutservice "fanline/internal/checkout/service"
	queueerrors "fanline/internal/queue/errors"
	"fanline/internal/queue/repository"
	"fanline/pkg/config"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/kafka"
	"fanline/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// AdmissionResult is the outcome of one admission attempt. A denial is a
// normal answer, not an error: the participant keeps their place and the
// current position tells them how far from the front they are.
type AdmissionResult struct {
	Admitted      bool      `json:"admitted"`
	Position      int64     `json:"position"`
	CheckoutToken string    `json:"checkout_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

type AdmissionService interface {
	// TryAdmit admits the participant when their position fits inside the
	// resource's currently free checkout slots. Admission flips the entry
	// to admitted and opens a checkout session in the same transaction.
	TryAdmit(ctx context.Context, resourceID, participantID string) (*AdmissionResult, error)
}

type admissionService struct {
	entries  repository.EntryRepository
	throttle checkoutservice.ThrottleService
	events   EventPublisher
	cfg      *config.Config
}

func NewAdmissionService(
	entries repository.EntryRepository,
	throttle checkoutservice.ThrottleService,
	events EventPublisher,
	cfg *config.Config,
) AdmissionService {
	return &admissionService{
		entries:  entries,
		throttle: throttle,
		events:   events,
		cfg:      cfg,
	}
}

func (s *admissionService) TryAdmit(ctx context.Context, resourceID, participantID string) (*AdmissionResult, error) {
	resourceID, participantID, err := normalizePair(resourceID, participantID)
	if err != nil {
		return nil, err
	}

	entry, err := s.entries.FindLive(ctx, resourceID, participantID)
	if err != nil {
		if errors.Is(err, queueerrors.ErrEntryNotFound) {
			return nil, apperrors.NotFoundWithID("Queue entry", participantID)
		}
		return nil, apperrors.Internal("Failed to find queue entry", err)
	}

	// An admitted entry whose session still lives is answered idempotently.
	if entry.Status == model.EntryAdmitted {
		if session, sessErr := s.throttle.SessionFor(ctx, resourceID, participantID); sessErr == nil {
			return &AdmissionResult{
				Admitted:      true,
				CheckoutToken: session.Token,
				ExpiresAt:     session.ExpiresAt,
			}, nil
		}
		// Session expired and was reclaimed; reopen one under the lock,
		// subject to the same capacity rule as everyone else.
	}

	lockID, err := s.throttle.AcquireResourceLock(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	defer s.throttle.ReleaseResourceLock(ctx, lockID)

	var result *AdmissionResult
	err = s.entries.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		result, err = s.tryAdmitLocked(sessCtx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Admitted {
		s.cfg.Log.Info("Participant admitted",
			"resource_id", resourceID,
			"participant_id", participantID,
			"sequence", entry.Sequence,
		)
		s.publishAdmitted(ctx, entry)
	} else {
		s.cfg.Log.Debug("Admission denied, no free slot",
			"resource_id", resourceID,
			"participant_id", participantID,
			"position", result.Position,
		)
	}
	return result, nil
}

func (s *admissionService) tryAdmitLocked(sessCtx mongo.SessionContext, entry *model.QueueEntry) (*AdmissionResult, error) {
	live, err := s.throttle.LiveCount(sessCtx, entry.ResourceID)
	if err != nil {
		return nil, err
	}
	free := int64(s.cfg.CheckoutLimit) - live

	position, err := s.entries.CountWaitingBefore(sessCtx, entry.ResourceID, entry.Sequence)
	if err != nil {
		return nil, apperrors.Internal("Failed to compute queue position", err)
	}

	// A previously admitted entry reopening a session skips the position
	// check; it already earned its admission.
	if entry.Status == model.EntryWaiting {
		if free <= 0 || position >= free {
			return &AdmissionResult{Admitted: false, Position: position}, nil
		}
		if err := s.entries.MarkAdmitted(sessCtx, entry.ID); err != nil {
			if errors.Is(err, queueerrors.ErrEntryNotFound) {
				return nil, apperrors.NotFoundWithID("Queue entry", entry.ParticipantID)
			}
			return nil, apperrors.Internal("Failed to admit queue entry", err)
		}
	} else if free <= 0 {
		return &AdmissionResult{Admitted: false, Position: position}, nil
	}

	session, err := s.throttle.OpenSession(sessCtx, entry.ResourceID, entry.ParticipantID)
	if err != nil {
		return nil, err
	}

	return &AdmissionResult{
		Admitted:      true,
		Position:      position,
		CheckoutToken: session.Token,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

func (s *admissionService) publishAdmitted(ctx context.Context, entry *model.QueueEntry) {
	if s.events == nil {
		return
	}
	msg := kafka.NewMessage().
		WithKey(entry.ResourceID).
		WithEventID(uuid.NewString()).
		WithEventType(kafka.EventQueueAdmitted).
		WithSource("queue").
		WithValue(kafka.QueueEvent{
			ResourceID:    entry.ResourceID,
			ParticipantID: entry.ParticipantID,
			Sequence:      entry.Sequence,
			Status:        model.EntryAdmitted,
			Timestamp:     time.Now().UTC(),
		}).
		Build()
	if err := s.events.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish queue event",
			"event_type", kafka.EventQueueAdmitted,
			"resource_id", entry.ResourceID,
			"error", err,
		)
	}
}
