package calculator

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts all calculator endpoints onto the given router
// under the /calculator prefix.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/calculator", func(r chi.Router) {
		r.Post("/input", h.Input)
		r.Post("/operation", h.Operation)
		r.Post("/clear", h.ClearChain)
		r.Post("/steps", h.InsertStep)
		r.Patch("/steps/{id}", h.UpdateStep)
		r.Get("/history", h.History)
		r.Get("/display", h.Display)
	})
}
