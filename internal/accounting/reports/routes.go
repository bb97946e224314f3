package reports

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/profit-loss", h.profitAndLoss)
	r.Get("/ledger/{accountID}", h.ledger)
}
