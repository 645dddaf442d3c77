package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"zone-routing-service/internal/ports"
	"zone-routing-service/internal/services"
)

type RunHandler struct {
	Svc    *services.Orchestrator
	Logger *slog.Logger
}

// List enumerates persisted runs, newest first, narrowed by query filters.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	filters := ports.RunFilters{
		Type:   q.Get("type"),
		City:   q.Get("city"),
		Zone:   q.Get("zone"),
		Search: q.Get("search"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}

	runs, err := h.Svc.ListRuns(r.Context(), filters)
	if err != nil {
		writeDomainError(w, r, h.Logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"runs": runs})
}

// Export streams one file of a run: GET /runs/{id}/export/{file}.
func (h *RunHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/runs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "export" || parts[0] == "" || parts[2] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	runID, fileName := parts[0], parts[2]

	rc, err := h.Svc.FetchExport(r.Context(), runID, fileName)
	if err != nil {
		writeDomainError(w, r, h.Logger, err)
		return
	}
	defer rc.Close()

	if strings.HasSuffix(fileName, ".json") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(fileName))

	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("export stream interrupted", "run", runID, "file", fileName, "err", err)
	}
}
