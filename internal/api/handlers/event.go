package handlers

import (
	"net/http"
	"strings"

	"github.com/cogmem/kos/internal/api/middleware"
	"github.com/cogmem/kos/internal/domain"
)

type EventHandler struct {
	events domain.KernelEventStore
}

func NewEventHandler(events domain.KernelEventStore) *EventHandler {
	return &EventHandler{events: events}
}

// List returns the tenant's decision log, newest first. Optional
// "types" is a comma-separated event type filter.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var types []domain.KernelEventType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, domain.KernelEventType(t))
			}
		}
	}
	limit := queryInt(r, "limit", 100, 500)

	events, err := h.events.ListByTenant(r.Context(), tenant.ID, types, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
