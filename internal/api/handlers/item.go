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

type ItemHandler struct {
	kernel   *service.KernelService
	items    domain.ItemStore
	passages domain.PassageStore
}

func NewItemHandler(kernel *service.KernelService, items domain.ItemStore, passages domain.PassageStore) *ItemHandler {
	return &ItemHandler{kernel: kernel, items: items, passages: passages}
}

type ingestRequest struct {
	SourceType string         `json:"source_type"`
	SourceRef  string         `json:"source_ref,omitempty"`
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ProjectID  string         `json:"project_id,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
}

func (h *ItemHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.kernel.Ingest(r.Context(), tenant.ID, service.IngestInput{
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
		Title:      req.Title,
		Content:    req.Content,
		Metadata:   req.Metadata,
		ProjectID:  req.ProjectID,
		WorkflowID: req.WorkflowID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}

	status := http.StatusCreated
	if item.Status == domain.ItemRejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, item)
}

func (h *ItemHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.items.GetByID(r.Context(), id, tenant.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 0)

	items, err := h.items.ListByTenant(r.Context(), tenant.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ItemHandler) Passages(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	passages, err := h.passages.GetByItem(r.Context(), id, tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list passages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passages": passages})
}
