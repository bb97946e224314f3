package coa

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes chart of accounts maintenance over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator(), now: time.Now}
}

// MountRoutes attaches group and account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups", h.listGroups)
	r.Post("/groups", h.createGroup)
	r.Put("/groups/{id}", h.updateGroup)
	r.Delete("/groups/{id}", h.deleteGroup)

	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Post("/accounts/activate", h.setActive(true))
	r.Post("/accounts/deactivate", h.setActive(false))
	r.Get("/accounts/{id}", h.getAccount)
	r.Put("/accounts/{id}", h.updateAccount)
	r.Delete("/accounts/{id}", h.deleteAccount)
	r.Get("/accounts/{id}/balance", h.balance)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return httpx.ValidationFromStruct(h.validator.Struct(dst))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var in GroupInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	g, err := h.service.CreateGroup(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in GroupInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	g, err := h.service.UpdateGroup(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var in AccountInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in AccountInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	acc, err := h.service.UpdateAccount(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setActiveRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setActiveRequest
		if err := h.decode(r, &req); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		changed, err := h.service.SetActive(r.Context(), req.IDs, active)
		if err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"changed": changed})
	}
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	asOf := h.now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		if asOf, err = httpx.ParseDate("as_of", raw); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	bal, err := h.service.BalanceAsOf(r.Context(), id, asOf)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "as_of": asOf.Format(httpx.DateLayout), "balance": bal})
}
