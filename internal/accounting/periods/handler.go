package periods

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes period locking and fiscal year lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountPeriodRoutes attaches accounting period routes.
func (h *Handler) MountPeriodRoutes(r chi.Router) {
	r.Post("/{id}/lock", h.lock)
	r.Post("/{id}/unlock", h.unlock)
}

// MountFiscalYearRoutes attaches fiscal year routes.
func (h *Handler) MountFiscalYearRoutes(r chi.Router) {
	r.Get("/", h.listYears)
	r.Post("/", h.createYear)
	r.Get("/{id}/periods", h.listPeriods)
	r.Post("/{id}/periods", h.createPeriod)
	r.Post("/{id}/activate", h.activate)
	r.Post("/{id}/close", h.close)
}

type rangeRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func decodeRange(r *http.Request) (rangeRequest, time.Time, time.Time, error) {
	var req rangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, time.Time{}, time.Time{}, err
	}
	start, err := httpx.ParseDate("start_date", req.StartDate)
	if err != nil {
		return req, time.Time{}, time.Time{}, err
	}
	end, err := httpx.ParseDate("end_date", req.EndDate)
	if err != nil {
		return req, time.Time{}, time.Time{}, err
	}
	return req, start, end, nil
}

func (h *Handler) createYear(w http.ResponseWriter, r *http.Request) {
	req, start, end, err := decodeRange(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	fy, err := h.service.CreateFiscalYear(r.Context(), FiscalYearInput{Name: req.Name, StartDate: start, EndDate: end})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, fy)
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	req, start, end, err := decodeRange(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	p, err := h.service.CreatePeriod(r.Context(), PeriodInput{FiscalYearID: id, Name: req.Name, StartDate: start, EndDate: end})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *Handler) setLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var p Period
	if locked {
		p, err = h.service.LockPeriod(r.Context(), id, actor)
	} else {
		p, err = h.service.UnlockPeriod(r.Context(), id, actor)
	}
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ListFiscalYears(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_years": out})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.ListPeriods(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	fy, err := h.service.ActivateFiscalYear(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fy)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	fy, err := h.service.CloseFiscalYear(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fy)
}
