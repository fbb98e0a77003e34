package handler

import (
	"encoding/json"
	"net/http"

	"fanline/internal/stock/service"
	"fanline/internal/stock/validator"
	apperrors "fanline/pkg/errors"
	httputil "fanline/pkg/http"
	"fanline/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type StockHandler struct {
	service   service.StockService
	validator *validator.StockValidator
	log       *logger.Logger
}

func NewStockHandler(service service.StockService, v *validator.StockValidator, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service:   service,
		validator: v,
		log:       log,
	}
}

func (h *StockHandler) decodeMutation(w http.ResponseWriter, r *http.Request, handlerName string) (*validator.MutationRequest, bool) {
	var req validator.MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", handlerName, "operation", "WriteJSON", "error", writeErr)
		}
		return nil, false
	}

	if err := h.validator.ValidateMutation(&req); err != nil {
		if writeErr := httputil.WriteError(w, apperrors.Validation("Invalid request", map[string]any{"error": err.Error()})); writeErr != nil {
			h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
		}
		return nil, false
	}

	return &req, true
}

func (h *StockHandler) Reserve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, ok := h.decodeMutation(w, r, "Reserve")
	if !ok {
		return
	}

	entry, err := h.service.Reserve(r.Context(), ps.ByName("unit_id"), req.Quantity, req.OrderRef)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reserve", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *StockHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, ok := h.decodeMutation(w, r, "Release")
	if !ok {
		return
	}

	entry, err := h.service.Release(r.Context(), ps.ByName("unit_id"), req.Quantity, req.OrderRef, req.Reason)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Release", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Release", "operation", "WriteCreated", "error", err)
	}
}

func (h *StockHandler) Correct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, ok := h.decodeMutation(w, r, "Correct")
	if !ok {
		return
	}
	if req.NewStock == nil {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("new_stock is required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Correct", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	entry, err := h.service.Correct(r.Context(), ps.ByName("unit_id"), *req.NewStock, req.OperatorID)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Correct", "operation", "WriteError", "error", writeErr)
		}
		return
	}
	if entry == nil {
		// Stock already at target.
		httputil.WriteNoContent(w)
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Correct", "operation", "WriteCreated", "error", err)
	}
}

func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	unit, err := h.service.Get(r.Context(), ps.ByName("unit_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Get", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, unit); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *StockHandler) Ledger(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Ledger", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	entries, err := h.service.Ledger(r.Context(), ps.ByName("unit_id"), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Ledger", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, entries); err != nil {
		h.log.Error("failed to write success response", "handler", "Ledger", "operation", "WriteSuccess", "error", err)
	}
}

func (h *StockHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/stock/:unit_id/reservations", h.Reserve)
	router.POST("/api/v1/stock/:unit_id/releases", h.Release)
	router.POST("/api/v1/stock/:unit_id/corrections", h.Correct)
	router.GET("/api/v1/stock/:unit_id", h.Get)
	router.GET("/api/v1/stock/:unit_id/ledger", h.Ledger)
}
