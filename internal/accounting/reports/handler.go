package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler serves report queries over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := h.service.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		var err error
		if asOf, err = httpx.ParseDate("as_of", raw); err != nil {
			httpx.RespondError(w, r, h.logger, err)
			return
		}
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	start, err := httpx.QueryDate(r, "start")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	end, err := httpx.QueryDate(r, "end")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), start, end)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	accountID, err := httpx.IDParam(r, "accountID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	query := LedgerQuery{AccountID: accountID}
	if query.Start, err = httpx.OptionalDate("start", q.Get("start")); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if query.End, err = httpx.OptionalDate("end", q.Get("end")); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if raw := q.Get("party"); raw != "" {
		partyID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || partyID <= 0 {
			httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: invalid party", httpx.ErrBadRequest))
			return
		}
		query.PartyID = &partyID
	}
	ledger, err := h.service.Ledger(r.Context(), query)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}
