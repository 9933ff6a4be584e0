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

type StrategyHandler struct {
	svc      *service.StrategyService
	resolver *service.StrategyResolver
}

func NewStrategyHandler(svc *service.StrategyService, resolver *service.StrategyResolver) *StrategyHandler {
	return &StrategyHandler{svc: svc, resolver: resolver}
}

type createStrategyRequest struct {
	ScopeType       string                 `json:"scope_type"`
	ScopeID         string                 `json:"scope_id"`
	RetrievalPolicy domain.RetrievalPolicy `json:"retrieval_policy"`
	DocumentPolicy  domain.DocumentPolicy  `json:"document_policy"`
	VectorPolicy    domain.VectorPolicy    `json:"vector_policy"`
	GraphPolicy     domain.GraphPolicy     `json:"graph_policy"`
	ClaimPolicy     domain.ClaimPolicy     `json:"claim_policy"`
	ArtifactPolicy  domain.ArtifactPolicy  `json:"artifact_policy"`
	Rationale       string                 `json:"rationale,omitempty"`
}

func (h *StrategyHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidScopeType(req.ScopeType) {
		writeError(w, http.StatusBadRequest, "invalid scope_type")
		return
	}
	if req.ScopeID == "" {
		writeError(w, http.StatusBadRequest, "scope_id is required")
		return
	}

	strategy := &domain.MemoryStrategy{
		ScopeType:       domain.StrategyScopeType(req.ScopeType),
		ScopeID:         req.ScopeID,
		RetrievalPolicy: req.RetrievalPolicy,
		DocumentPolicy:  req.DocumentPolicy,
		VectorPolicy:    req.VectorPolicy,
		GraphPolicy:     req.GraphPolicy,
		ClaimPolicy:     req.ClaimPolicy,
		ArtifactPolicy:  req.ArtifactPolicy,
		CreatedBy:       domain.CreatorHuman,
		Rationale:       req.Rationale,
	}

	if err := h.svc.Create(r.Context(), tenant.ID, strategy); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create strategy")
		return
	}
	writeJSON(w, http.StatusCreated, strategy)
}

func (h *StrategyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	if err := h.svc.Activate(r.Context(), tenant.ID, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "strategy not found")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "concurrent activation, retry")
		default:
			writeError(w, http.StatusInternalServerError, "failed to activate strategy")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *StrategyHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	strategy, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load strategy")
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (h *StrategyHandler) ListByScope(w http.ResponseWriter, r *http.Request) {
	scopeType := r.URL.Query().Get("scope_type")
	scopeID := r.URL.Query().Get("scope_id")
	if !domain.ValidScopeType(scopeType) || scopeID == "" {
		writeError(w, http.StatusBadRequest, "scope_type and scope_id are required")
		return
	}
	includeDeprecated := r.URL.Query().Get("include_deprecated") == "true"

	strategies, err := h.svc.ListByScope(r.Context(), domain.StrategyScopeType(scopeType), scopeID, includeDeprecated)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list strategies")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": strategies})
}

// Resolve walks the scope chain for the caller's tenant and returns the
// governing strategy.
func (h *StrategyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID := r.URL.Query().Get("project_id")
	workflowID := r.URL.Query().Get("workflow_id")

	strategy, err := h.resolver.Resolve(r.Context(), tenant.ID, projectID, workflowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve strategy")
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}
