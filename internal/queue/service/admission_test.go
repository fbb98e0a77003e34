package service

import (
	"context"
	"testing"
	"time"

	apperrors "fanline/pkg/errors"
	"fanline/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// ────────────────────────────────────────────────
// Mock throttle
// ────────────────────────────────────────────────

type mockThrottleService struct {
	liveCount       int64
	lockAcquired    int
	lockErr         error
	sessionForFunc  func(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error)
	openSessionFunc func(sessCtx mongo.SessionContext, resourceID, participantID string) (*model.CheckoutSession, error)
}

func (m *mockThrottleService) Acquire(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	return nil, nil
}

func (m *mockThrottleService) Release(ctx context.Context, resourceID, participantID string) error {
	return nil
}

func (m *mockThrottleService) SessionFor(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	if m.sessionForFunc != nil {
		return m.sessionForFunc(ctx, resourceID, participantID)
	}
	return nil, apperrors.NotFound("Checkout session")
}

func (m *mockThrottleService) LiveCount(ctx context.Context, resourceID string) (int64, error) {
	return m.liveCount, nil
}

func (m *mockThrottleService) OpenSession(sessCtx mongo.SessionContext, resourceID, participantID string) (*model.CheckoutSession, error) {
	if m.openSessionFunc != nil {
		return m.openSessionFunc(sessCtx, resourceID, participantID)
	}
	return &model.CheckoutSession{
		ID:            "sess-1",
		ResourceID:    resourceID,
		ParticipantID: participantID,
		Token:         "token-1",
		ExpiresAt:     time.Now().UTC().Add(10 * time.Minute),
	}, nil
}

func (m *mockThrottleService) AcquireResourceLock(ctx context.Context, resourceID string) (string, error) {
	if m.lockErr != nil {
		return "", m.lockErr
	}
	m.lockAcquired++
	return "admission_" + resourceID, nil
}

func (m *mockThrottleService) ReleaseResourceLock(ctx context.Context, lockID string) {}

func waitingEntries(entry *model.QueueEntry, position int64) *mockEntryRepository {
	return &mockEntryRepository{
		findLiveFunc: func(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
			return entry, nil
		},
		countWaitingBeforeFunc: func(ctx context.Context, resourceID string, sequence uint64) (int64, error) {
			return position, nil
		},
	}
}

// ────────────────────────────────────────────────
// Tests for TryAdmit()
// ────────────────────────────────────────────────

func TestTryAdmit_FrontOfQueueWithinCapacity(t *testing.T) {
	cfg := newTestConfig() // CheckoutLimit 5
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "alice", Sequence: 10, Status: model.EntryWaiting}

	admitted := false
	entries := waitingEntries(entry, 1)
	entries.markAdmittedFunc = func(ctx context.Context, id string) error {
		admitted = true
		return nil
	}
	throttle := &mockThrottleService{liveCount: 2}

	svc := NewAdmissionService(entries, throttle, &mockPublisher{}, cfg)

	result, err := svc.TryAdmit(context.Background(), "res-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Admitted {
		t.Fatal("expected admission")
	}
	if !admitted {
		t.Error("expected entry marked admitted")
	}
	if result.CheckoutToken == "" {
		t.Error("expected a checkout token")
	}
	if throttle.lockAcquired != 1 {
		t.Errorf("expected 1 lock acquisition, got %d", throttle.lockAcquired)
	}
}

func TestTryAdmit_DeniedWhenSlotsFull(t *testing.T) {
	cfg := newTestConfig()
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "alice", Sequence: 10, Status: model.EntryWaiting}

	entries := waitingEntries(entry, 0)
	entries.markAdmittedFunc = func(ctx context.Context, id string) error {
		t.Error("entry must not be admitted when every slot is taken")
		return nil
	}
	throttle := &mockThrottleService{liveCount: int64(cfg.CheckoutLimit)}

	svc := NewAdmissionService(entries, throttle, nil, cfg)

	result, err := svc.TryAdmit(context.Background(), "res-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Admitted {
		t.Fatal("expected denial")
	}
	if result.Position != 0 {
		t.Errorf("expected position 0, got %d", result.Position)
	}
}

func TestTryAdmit_DeniedBeyondFreeSlots(t *testing.T) {
	cfg := newTestConfig()
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "carol", Sequence: 30, Status: model.EntryWaiting}

	// Three slots busy leaves two free; position 2 means two earlier waiters
	// have first claim on them.
	entries := waitingEntries(entry, 2)
	throttle := &mockThrottleService{liveCount: 3}

	svc := NewAdmissionService(entries, throttle, nil, cfg)

	result, err := svc.TryAdmit(context.Background(), "res-1", "carol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Admitted {
		t.Fatal("expected denial beyond the free slot window")
	}
	if result.Position != 2 {
		t.Errorf("expected position 2, got %d", result.Position)
	}
}

func TestTryAdmit_IdempotentWithLiveSession(t *testing.T) {
	cfg := newTestConfig()
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "alice", Sequence: 10, Status: model.EntryAdmitted}

	entries := waitingEntries(entry, 0)
	throttle := &mockThrottleService{
		sessionForFunc: func(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
			return &model.CheckoutSession{Token: "existing-token", ExpiresAt: time.Now().UTC().Add(time.Minute)}, nil
		},
	}

	svc := NewAdmissionService(entries, throttle, nil, cfg)

	result, err := svc.TryAdmit(context.Background(), "res-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Admitted || result.CheckoutToken != "existing-token" {
		t.Fatalf("expected existing session returned, got %+v", result)
	}
	if throttle.lockAcquired != 0 {
		t.Error("replying an admitted entry with a live session must not take the lock")
	}
}

func TestTryAdmit_ReopensExpiredSession(t *testing.T) {
	cfg := newTestConfig()
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "alice", Sequence: 10, Status: model.EntryAdmitted}

	// Position is large, but an already admitted entry reopening its session
	// only needs a free slot.
	entries := waitingEntries(entry, 40)
	throttle := &mockThrottleService{liveCount: 1}

	svc := NewAdmissionService(entries, throttle, nil, cfg)

	result, err := svc.TryAdmit(context.Background(), "res-1", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Admitted {
		t.Fatal("expected readmission after session expiry")
	}
	if throttle.lockAcquired != 1 {
		t.Errorf("expected lock acquisition, got %d", throttle.lockAcquired)
	}
}

func TestTryAdmit_LockContention(t *testing.T) {
	cfg := newTestConfig()
	entry := &model.QueueEntry{ID: "e1", ResourceID: "res-1", ParticipantID: "alice", Sequence: 10, Status: model.EntryWaiting}

	entries := waitingEntries(entry, 0)
	throttle := &mockThrottleService{lockErr: apperrors.LockContention("res-1")}

	svc := NewAdmissionService(entries, throttle, nil, cfg)

	_, err := svc.TryAdmit(context.Background(), "res-1", "alice")
	appErr := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.CodeLockContention {
		t.Fatalf("expected LOCK_CONTENTION, got %v", err)
	}
}

func TestTryAdmit_NotQueued(t *testing.T) {
	svc := NewAdmissionService(&mockEntryRepository{}, &mockThrottleService{}, nil, newTestConfig())

	_, err := svc.TryAdmit(context.Background(), "res-1", "ghost")
	appErr := apperrors.AsAppError(err)
	if appErr == nil || appErr.Code != apperrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
