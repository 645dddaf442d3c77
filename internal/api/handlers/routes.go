package handlers

import (
	"log/slog"
	"net/http"

	"zone-routing-service/internal/services"
)

type RouteHandler struct {
	Svc    *services.Orchestrator
	Logger *slog.Logger
}

// Optimize solves one zone's routing problem and returns the plans.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req services.OptimizeRoutesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.Svc.OptimizeRoutes(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.Logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
