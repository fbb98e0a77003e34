package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fanline/internal/queue/service"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/logger"
	"fanline/pkg/model"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo"
)

// Mock services for testing

type mockQueueService struct {
	joinFunc  func(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error)
	leaveFunc func(ctx context.Context, resourceID, participantID string) error
	stateFunc func(ctx context.Context, resourceID, participantID string) (*service.QueueState, error)
}

func (m *mockQueueService) Join(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
	if m.joinFunc != nil {
		return m.joinFunc(ctx, resourceID, participantID)
	}
	return &model.QueueEntry{}, nil
}

func (m *mockQueueService) Leave(ctx context.Context, resourceID, participantID string) error {
	if m.leaveFunc != nil {
		return m.leaveFunc(ctx, resourceID, participantID)
	}
	return nil
}

func (m *mockQueueService) State(ctx context.Context, resourceID, participantID string) (*service.QueueState, error) {
	if m.stateFunc != nil {
		return m.stateFunc(ctx, resourceID, participantID)
	}
	return &service.QueueState{}, nil
}

type mockAdmissionService struct {
	tryAdmitFunc func(ctx context.Context, resourceID, participantID string) (*service.AdmissionResult, error)
}

func (m *mockAdmissionService) TryAdmit(ctx context.Context, resourceID, participantID string) (*service.AdmissionResult, error) {
	if m.tryAdmitFunc != nil {
		return m.tryAdmitFunc(ctx, resourceID, participantID)
	}
	return &service.AdmissionResult{}, nil
}

type mockThrottleService struct {
	acquireFunc func(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error)
	releaseFunc func(ctx context.Context, resourceID, participantID string) error
}

func (m *mockThrottleService) Acquire(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, resourceID, participantID)
	}
	return &model.CheckoutSession{}, nil
}

func (m *mockThrottleService) Release(ctx context.Context, resourceID, participantID string) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, resourceID, participantID)
	}
	return nil
}

func (m *mockThrottleService) SessionFor(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
	return nil, apperrors.NotFound("Checkout session")
}

func (m *mockThrottleService) LiveCount(ctx context.Context, resourceID string) (int64, error) {
	return 0, nil
}

func (m *mockThrottleService) OpenSession(sessCtx mongo.SessionContext, resourceID, participantID string) (*model.CheckoutSession, error) {
	return nil, nil
}

func (m *mockThrottleService) AcquireResourceLock(ctx context.Context, resourceID string) (string, error) {
	return "", nil
}

func (m *mockThrottleService) ReleaseResourceLock(ctx context.Context, lockID string) {}

func newTestRouter(queue *mockQueueService, admission *mockAdmissionService, throttle *mockThrottleService) *httprouter.Router {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	handler := NewQueueHandler(queue, admission, throttle, log)
	router := httprouter.New()
	handler.RegisterRoutes(router)
	return router
}

func TestJoin_ReturnsCreatedEntry(t *testing.T) {
	queue := &mockQueueService{
		joinFunc: func(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
			if resourceID != "res-1" || participantID != "alice" {
				t.Errorf("unexpected path params: %s / %s", resourceID, participantID)
			}
			return &model.QueueEntry{ID: "e1", Sequence: 42, Status: model.EntryWaiting}, nil
		},
	}
	router := newTestRouter(queue, &mockAdmissionService{}, &mockThrottleService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queues/res-1/participants/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var resp struct {
		Data model.QueueEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Sequence != 42 {
		t.Errorf("expected sequence 42, got %d", resp.Data.Sequence)
	}
}

func TestJoin_ConflictWhenAlreadyQueued(t *testing.T) {
	queue := &mockQueueService{
		joinFunc: func(ctx context.Context, resourceID, participantID string) (*model.QueueEntry, error) {
			return nil, apperrors.AlreadyQueued(resourceID)
		},
	}
	router := newTestRouter(queue, &mockAdmissionService{}, &mockThrottleService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queues/res-1/participants/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != apperrors.CodeAlreadyQueued {
		t.Errorf("expected code %s, got %s", apperrors.CodeAlreadyQueued, resp.Code)
	}
}

func TestState_ReportsPosition(t *testing.T) {
	queue := &mockQueueService{
		stateFunc: func(ctx context.Context, resourceID, participantID string) (*service.QueueState, error) {
			return &service.QueueState{Status: model.EntryWaiting, Sequence: 9, Position: 4}, nil
		},
	}
	router := newTestRouter(queue, &mockAdmissionService{}, &mockThrottleService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queues/res-1/participants/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data service.QueueState `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Position != 4 {
		t.Errorf("expected position 4, got %d", resp.Data.Position)
	}
}

func TestTryAdmit_DenialIsStillOK(t *testing.T) {
	admission := &mockAdmissionService{
		tryAdmitFunc: func(ctx context.Context, resourceID, participantID string) (*service.AdmissionResult, error) {
			return &service.AdmissionResult{Admitted: false, Position: 7}, nil
		},
	}
	router := newTestRouter(&mockQueueService{}, admission, &mockThrottleService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queues/res-1/participants/alice/admission", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("a denial is a normal answer, expected 200, got %d", w.Code)
	}
	var resp struct {
		Data service.AdmissionResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Admitted || resp.Data.Position != 7 {
		t.Errorf("unexpected result: %+v", resp.Data)
	}
}

func TestAcquireCheckout_ReturnsSession(t *testing.T) {
	throttle := &mockThrottleService{
		acquireFunc: func(ctx context.Context, resourceID, participantID string) (*model.CheckoutSession, error) {
			return &model.CheckoutSession{ID: "s1", Token: "tok", ExpiresAt: time.Now().UTC().Add(10 * time.Minute)}, nil
		},
	}
	router := newTestRouter(&mockQueueService{}, &mockAdmissionService{}, throttle)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkouts/res-1/participants/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestReleaseCheckout_NoContent(t *testing.T) {
	router := newTestRouter(&mockQueueService{}, &mockAdmissionService{}, &mockThrottleService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/checkouts/res-1/participants/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}
