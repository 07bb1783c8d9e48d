package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all valuation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/snapshot", h.HandleGetSnapshot)
		r.Get("/allocation", h.HandleGetAllocation)
	})
	r.Get("/history/{symbol}", h.HandleGetHistory)
}
