package handlers

import (
	"log/slog"
	"net/http"

	"zone-routing-service/internal/services"
)

type ZoneHandler struct {
	Svc    *services.Orchestrator
	Logger *slog.Logger
}

// Generate runs one zoning strategy over a city and returns the persisted
// result.
func (h *ZoneHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req services.GenerateZonesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.Svc.GenerateZones(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.Logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
