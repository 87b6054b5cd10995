package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chaincalc/internal/calculator"
	"chaincalc/internal/handlers"
	"chaincalc/internal/observability"
	"chaincalc/internal/stream"
)

func NewRouter(calc *calculator.Handlers, hub *stream.Hub) http.Handler {

	r := chi.NewRouter()

	r.Use(observability.RequestIDMiddleware)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.LoggingMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", handlers.Health)

	r.Handle("/metrics", observability.PrometheusHandler())

	calculator.RegisterRoutes(r, calc)

	r.Get("/calculator/stream", stream.NewHandler(hub, calc.CurrentSnapshot).ServeHTTP)

	return r
}
