package handler

import (
	"net/http"

	"github.com/capitalize-ai/task-agent/internal/tools"
)

// ToolHandler exposes the tool catalogue.
type ToolHandler struct {
	registry *tools.Registry
}

// NewToolHandler creates a new tool handler.
func NewToolHandler(registry *tools.Registry) *ToolHandler {
	return &ToolHandler{registry: registry}
}

// List handles GET /api/v1/tools
func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": h.registry.Definitions(),
	})
}
