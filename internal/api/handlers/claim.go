package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cogmem/kos/internal/api/middleware"
	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/service"
	"github.com/cogmem/kos/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ClaimHandler struct {
	claims      domain.ClaimStore
	maintenance *service.MaintenanceService
}

func NewClaimHandler(claims domain.ClaimStore, maintenance *service.MaintenanceService) *ClaimHandler {
	return &ClaimHandler{claims: claims, maintenance: maintenance}
}

func (h *ClaimHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	claim, err := h.claims.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load claim")
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// ListByEntity returns all claims about one subject entity, conflicts
// included.
func (h *ClaimHandler) ListByEntity(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entityID, err := uuid.Parse(chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	claims, err := h.claims.ListByEntity(r.Context(), entityID, tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list claims")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

type mergeRequest struct {
	SurvivorID    string   `json:"survivor_id"`
	SupersededIDs []string `json:"superseded_ids"`
	Reason        string   `json:"reason,omitempty"`
}

func (h *ClaimHandler) Merge(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	survivorID, err := uuid.Parse(req.SurvivorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid survivor_id")
		return
	}
	if len(req.SupersededIDs) == 0 {
		writeError(w, http.StatusBadRequest, "superseded_ids is required")
		return
	}

	superseded := make([]uuid.UUID, 0, len(req.SupersededIDs))
	for _, raw := range req.SupersededIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid superseded id")
			return
		}
		superseded = append(superseded, id)
	}

	if err := h.maintenance.Merge(r.Context(), tenant.ID, survivorID, superseded, req.Reason); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "claim not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "merge failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "merged"})
}
