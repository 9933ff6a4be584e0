package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cogmem/kos/internal/api/middleware"
	"github.com/cogmem/kos/internal/domain"
	"github.com/cogmem/kos/internal/service"
	"github.com/google/uuid"
)

type OutcomeHandler struct {
	svc *service.OutcomeService
}

func NewOutcomeHandler(svc *service.OutcomeService) *OutcomeHandler {
	return &OutcomeHandler{svc: svc}
}

type recordOutcomeRequest struct {
	OutcomeType string         `json:"outcome_type"`
	Source      string         `json:"source,omitempty"`
	StrategyID  string         `json:"strategy_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Metrics     map[string]any `json:"metrics,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

func (h *OutcomeHandler) Record(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req recordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome := &domain.OutcomeEvent{
		TenantID:    tenant.ID,
		OutcomeType: domain.OutcomeType(req.OutcomeType),
		Source:      domain.OutcomeSource(req.Source),
		Metrics:     req.Metrics,
		Context:     req.Context,
	}
	if req.StrategyID != "" {
		id, err := uuid.Parse(req.StrategyID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy_id")
			return
		}
		outcome.StrategyID = &id
	}
	if req.WorkflowID != "" {
		outcome.WorkflowID = &req.WorkflowID
	}
	if req.AgentID != "" {
		outcome.AgentID = &req.AgentID
	}

	if err := h.svc.Record(r.Context(), outcome); err != nil {
		if strings.Contains(err.Error(), "invalid") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to record outcome")
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}
