package api

import (
	"log/slog"
	"net/http"

	"zone-routing-service/internal/api/handlers"
	"zone-routing-service/internal/services"
)

// NewRouter wires HTTP handlers with their dependencies and returns an
// http.Handler. This is the API composition root; handlers stay unaware of
// concrete adapters.
func NewRouter(svc *services.Orchestrator, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	zones := &handlers.ZoneHandler{Svc: svc, Logger: logger}
	routes := &handlers.RouteHandler{Svc: svc, Logger: logger}
	runs := &handlers.RunHandler{Svc: svc, Logger: logger}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/zones", zones.Generate)
	mux.HandleFunc("/routes", routes.Optimize)
	mux.HandleFunc("/runs", runs.List)
	mux.HandleFunc("/runs/", runs.Export)

	return loggingMiddleware(logger, mux)
}
