package handlers

import (
	"errors"
	"net/http"

	"github.com/cogmem/kos/internal/api/middleware"
	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/service"
	"github.com/cogmem/kos/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHandler exposes manual triggers for the background loops and
// outbox recovery. Useful for operations and tests; the loops run on
// their own schedules regardless.
type AdminHandler struct {
	maintenance *service.MaintenanceService
	evaluator   *service.EvaluatorService
	outbox      domain.OutboxStore
}

func NewAdminHandler(maintenance *service.MaintenanceService, evaluator *service.EvaluatorService, outbox domain.OutboxStore) *AdminHandler {
	return &AdminHandler{maintenance: maintenance, evaluator: evaluator, outbox: outbox}
}

func (h *AdminHandler) TriggerDecay(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.maintenance.RunDecayForTenant(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "decay run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) TriggerEvaluation(w http.ResponseWriter, r *http.Request) {
	if err := h.evaluator.RunOnce(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "evaluation run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "evaluated"})
}

func (h *AdminHandler) FailedOutboxEvents(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	events, err := h.outbox.FailedEvents(r.Context(), &tenant.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list outbox events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AdminHandler) RetryOutboxEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if err := h.outbox.RetryFailed(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found or not failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to retry event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}
