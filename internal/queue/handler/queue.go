package handler

import (
	"net/http"

	checkoutservice "fanline/internal/checkout/service"
	"fanline/internal/queue/service"
	httputil "fanline/pkg/http"
	"fanline/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type QueueHandler struct {
	queue     service.QueueService
	admission service.AdmissionService
	throttle  checkoutservice.ThrottleService
	log       *logger.Logger
}

func NewQueueHandler(
	queue service.QueueService,
	admission service.AdmissionService,
	throttle checkoutservice.ThrottleService,
	log *logger.Logger,
) *QueueHandler {
	return &QueueHandler{
		queue:     queue,
		admission: admission,
		throttle:  throttle,
		log:       log,
	}
}

func (h *QueueHandler) Join(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	entry, err := h.queue.Join(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Join", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "Join", "operation", "WriteCreated", "error", err)
	}
}

func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.queue.Leave(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id")); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Leave", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *QueueHandler) State(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	state, err := h.queue.State(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "State", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, state); err != nil {
		h.log.Error("failed to write success response", "handler", "State", "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) TryAdmit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := h.admission.TryAdmit(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "TryAdmit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "TryAdmit", "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) AcquireCheckout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := h.throttle.Acquire(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "AcquireCheckout", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, session); err != nil {
		h.log.Error("failed to write created response", "handler", "AcquireCheckout", "operation", "WriteCreated", "error", err)
	}
}

func (h *QueueHandler) ReleaseCheckout(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.throttle.Release(r.Context(), ps.ByName("resource_id"), ps.ByName("participant_id")); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ReleaseCheckout", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *QueueHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/queues/:resource_id/participants/:participant_id", h.Join)
	router.DELETE("/api/v1/queues/:resource_id/participants/:participant_id", h.Leave)
	router.GET("/api/v1/queues/:resource_id/participants/:participant_id", h.State)
	router.POST("/api/v1/queues/:resource_id/participants/:participant_id/admission", h.TryAdmit)
	router.POST("/api/v1/checkouts/:resource_id/participants/:participant_id", h.AcquireCheckout)
	router.DELETE("/api/v1/checkouts/:resource_id/participants/:participant_id", h.ReleaseCheckout)
}
