package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fanline/internal/stock/validator"
	apperrors "fanline/pkg/errors"
	"fanline/pkg/logger"
	"fanline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Mock stock service for testing

type mockStockService struct {
	reserveFunc func(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error)
	releaseFunc func(ctx context.Context, unitID string, quantity int, orderRef, reason string) (*model.LedgerEntry, error)
	correctFunc func(ctx context.Context, unitID string, target int, operatorID string) (*model.LedgerEntry, error)
	getFunc     func(ctx context.Context, unitID string) (*model.StockUnit, error)
	ledgerFunc  func(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error)
}

func (m *mockStockService) Reserve(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error) {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, unitID, quantity, orderRef)
	}
	return &model.LedgerEntry{}, nil
}

func (m *mockStockService) Release(ctx context.Context, unitID string, quantity int, orderRef, reason string) (*model.LedgerEntry, error) {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, unitID, quantity, orderRef, reason)
	}
	return &model.LedgerEntry{}, nil
}

func (m *mockStockService) Correct(ctx context.Context, unitID string, target int, operatorID string) (*model.LedgerEntry, error) {
	if m.correctFunc != nil {
		return m.correctFunc(ctx, unitID, target, operatorID)
	}
	return &model.LedgerEntry{}, nil
}

func (m *mockStockService) Get(ctx context.Context, unitID string) (*model.StockUnit, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, unitID)
	}
	return &model.StockUnit{}, nil
}

func (m *mockStockService) Ledger(ctx context.Context, unitID string, limit int, offset int64) ([]*model.LedgerEntry, error) {
	if m.ledgerFunc != nil {
		return m.ledgerFunc(ctx, unitID, limit, offset)
	}
	return nil, nil
}

func (m *mockStockService) AuditNegativeStock(ctx context.Context) (int, error) { return 0, nil }
func (m *mockStockService) AuditLedgerDrift(ctx context.Context) (int, error)   { return 0, nil }

func newStockTestRouter(service *mockStockService) *httprouter.Router {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	handler := NewStockHandler(service, validator.NewStockValidator(log), log)
	router := httprouter.New()
	handler.RegisterRoutes(router)
	return router
}

func TestReserve_ReturnsLedgerEntry(t *testing.T) {
	service := &mockStockService{
		reserveFunc: func(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error) {
			if unitID != "u1" || quantity != 2 || orderRef != "order-1" {
				t.Errorf("unexpected args: %s %d %s", unitID, quantity, orderRef)
			}
			return &model.LedgerEntry{ID: "l1", UnitID: unitID, Delta: -2, Reason: model.ReasonPurchase}, nil
		},
	}
	router := newStockTestRouter(service)

	body := strings.NewReader(`{"quantity": 2, "order_ref": "order-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/reservations", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data model.LedgerEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Delta != -2 {
		t.Errorf("expected delta -2, got %d", resp.Data.Delta)
	}
}

func TestReserve_InsufficientStockMapsTo409(t *testing.T) {
	service := &mockStockService{
		reserveFunc: func(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error) {
			return nil, apperrors.InsufficientStock(unitID, quantity, 1)
		},
	}
	router := newStockTestRouter(service)

	body := strings.NewReader(`{"quantity": 5, "order_ref": "order-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/reservations", body)
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
	if resp.Code != apperrors.CodeInsufficientStock {
		t.Errorf("expected code %s, got %s", apperrors.CodeInsufficientStock, resp.Code)
	}
}

func TestReserve_MalformedBody(t *testing.T) {
	router := newStockTestRouter(&mockStockService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/reservations", strings.NewReader("not-json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReserve_ValidationRejectsOversizedQuantity(t *testing.T) {
	service := &mockStockService{
		reserveFunc: func(ctx context.Context, unitID string, quantity int, orderRef string) (*model.LedgerEntry, error) {
			t.Error("service should not be called for an invalid request")
			return nil, nil
		},
	}
	router := newStockTestRouter(service)

	body := strings.NewReader(`{"quantity": 10000, "order_ref": "order-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/reservations", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestCorrect_RequiresNewStock(t *testing.T) {
	router := newStockTestRouter(&mockStockService{})

	body := strings.NewReader(`{"operator_id": "op-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/corrections", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCorrect_NoOpReturnsNoContent(t *testing.T) {
	service := &mockStockService{
		correctFunc: func(ctx context.Context, unitID string, target int, operatorID string) (*model.LedgerEntry, error) {
			return nil, nil
		},
	}
	router := newStockTestRouter(service)

	body := strings.NewReader(`{"new_stock": 10, "operator_id": "op-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/u1/corrections", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestGet_ReturnsUnit(t *testing.T) {
	service := &mockStockService{
		getFunc: func(ctx context.Context, unitID string) (*model.StockUnit, error) {
			return &model.StockUnit{ID: unitID, Name: "Front row", Stock: 3, Status: model.StockLow}, nil
		},
	}
	router := newStockTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data model.StockUnit `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Status != model.StockLow {
		t.Errorf("expected status %s, got %s", model.StockLow, resp.Data.Status)
	}
}

func TestGet_UnknownUnit(t *testing.T) {
	service := &mockStockService{
		getFunc: func(ctx context.Context, unitID string) (*model.StockUnit, error) {
			return nil, apperrors.NotFoundWithID("Stock unit", unitID)
		},
	}
	router := newStockTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock/u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
