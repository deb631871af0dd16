package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/V4T54L/txn-watch/internal/adapter/api/handler"
	"github.com/V4T54L/txn-watch/internal/adapter/api/middleware"
)

// NewRouter creates and configures the HTTP router for the monitor service.
func NewRouter(
	logger *slog.Logger,
	monitorHandler *handler.MonitorHandler,
	sseBroker *handler.SSEBroker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", monitorHandler.HealthCheck)
	r.Handle("/events", sseBroker)

	r.Route("/api", func(r chi.Router) {
		r.Get("/transactions", monitorHandler.ListTransactions)
		r.Delete("/transactions", monitorHandler.ClearTransactions)
		r.Get("/transactions/{tid}", monitorHandler.GetTransaction)
		r.Delete("/transactions/{tid}", monitorHandler.DeleteTransaction)
		r.Get("/stats", monitorHandler.GetStats)
		r.Get("/settings", monitorHandler.GetSettings)
		r.Patch("/settings", monitorHandler.UpdateSettings)
		r.Get("/stream", monitorHandler.GetStream)
		r.Put("/stream", monitorHandler.SetStream)
	})

	return r
}
