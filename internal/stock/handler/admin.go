package handler

import (
	"encoding/json"
	"net/http"

	"fanline/internal/stock/service"
	httputil "fanline/pkg/http"
	"fanline/pkg/logger"
	"fanline/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AdminHandler struct {
	service service.AdminService
	log     *logger.Logger
}

func NewAdminHandler(service service.AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log,
	}
}

func (h *AdminHandler) CreateResource(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var resource model.Resource
	if err := json.NewDecoder(r.Body).Decode(&resource); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CreateResource", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.CreateResource(r.Context(), &resource); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateResource", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, resource); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateResource", "operation", "WriteCreated", "error", err)
	}
}

func (h *AdminHandler) GetResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	resource, err := h.service.GetResource(r.Context(), ps.ByName("id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetResource", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, resource); err != nil {
		h.log.Error("failed to write success response", "handler", "GetResource", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdminHandler) CreateUnit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var unit model.StockUnit
	if err := json.NewDecoder(r.Body).Decode(&unit); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "CreateUnit", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.CreateUnit(r.Context(), &unit); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CreateUnit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, unit); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateUnit", "operation", "WriteCreated", "error", err)
	}
}

func (h *AdminHandler) ListAuditIssues(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListAuditIssues", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	issues, total, err := h.service.ListAuditIssues(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListAuditIssues", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, issues, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListAuditIssues", "operation", "WritePaginated", "error", err)
	}
}

type recoveryRequest struct {
	Action string `json:"action"`
}

func (h *AdminHandler) RecoverOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req recoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "RecoverOrder", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	order, err := h.service.RecoverOrder(r.Context(), ps.ByName("order_id"), req.Action)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "RecoverOrder", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, order); err != nil {
		h.log.Error("failed to write success response", "handler", "RecoverOrder", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AdminHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/resources", h.CreateResource)
	router.GET("/api/v1/admin/resources/:id", h.GetResource)
	router.POST("/api/v1/admin/units", h.CreateUnit)
	router.GET("/api/v1/admin/audit-issues", h.ListAuditIssues)
	router.POST("/api/v1/admin/orders/:order_id/recovery", h.RecoverOrder)
}
