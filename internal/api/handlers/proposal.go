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

type ProposalHandler struct {
	proposals domain.ProposalStore
	steps     domain.RestructureStepStore
	executor  *service.ExecutorService
}

func NewProposalHandler(proposals domain.ProposalStore, steps domain.RestructureStepStore, executor *service.ExecutorService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, steps: steps, executor: executor}
}

func (h *ProposalHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	proposals, err := h.proposals.ListPending(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list proposals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (h *ProposalHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	proposal, err := h.proposals.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "proposal not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load proposal")
		return
	}

	steps, err := h.steps.ListByProposal(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": proposal, "steps": steps})
}

// Approve is the human gate: nothing restructures without it.
func (h *ProposalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	if err := h.executor.Approve(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "proposal not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "proposal is not pending")
		default:
			writeError(w, http.StatusInternalServerError, "restructure failed: "+err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "in_progress"})
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	var req rejectRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.executor.Reject(r.Context(), id, req.Reason); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "proposal not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "proposal is not pending")
		default:
			writeError(w, http.StatusInternalServerError, "failed to reject proposal")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
