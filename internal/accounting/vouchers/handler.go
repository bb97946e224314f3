package vouchers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes the voucher engine over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

type draftRequest struct {
	Type          Type        `json:"voucher_type"`
	Date          string      `json:"date"`
	EffectiveDate string      `json:"effective_date"`
	PeriodID      *int64      `json:"accounting_period_id"`
	PartyID       *int64      `json:"party_id"`
	Narration     string      `json:"narration"`
	Reference     string      `json:"reference"`
	Lines         []LineInput `json:"lines"`
}

func (req draftRequest) input() (DraftInput, error) {
	date, err := httpx.ParseDate("date", req.Date)
	if err != nil {
		return DraftInput{}, err
	}
	effective, err := httpx.OptionalDate("effective_date", req.EffectiveDate)
	if err != nil {
		return DraftInput{}, err
	}
	return DraftInput{
		Type:          req.Type,
		Date:          date,
		EffectiveDate: effective,
		PeriodID:      req.PeriodID,
		PartyID:       req.PartyID,
		Narration:     req.Narration,
		Reference:     req.Reference,
		Lines:         req.Lines,
	}, nil
}

type reverseRequest struct {
	ReversalDate    string `json:"reversal_date"`
	Type            Type   `json:"voucher_type"`
	PostImmediately bool   `json:"post_immediately"`
}

func (h *Handler) decodeDraft(r *http.Request) (DraftInput, error) {
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return DraftInput{}, err
	}
	in, err := req.input()
	if err != nil {
		return DraftInput{}, err
	}
	if err := httpx.ValidationFromStruct(h.validator.Struct(in)); err != nil {
		return DraftInput{}, err
	}
	return in, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	v, err := h.service.CreateDraft(r.Context(), in, actor)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Type: Type(q.Get("voucher_type"))}
	var err error
	if filter.From, err = httpx.OptionalDate("from", q.Get("from")); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if filter.To, err = httpx.OptionalDate("to", q.Get("to")); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	out, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vouchers": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in, err := h.decodeDraft(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	v, err := h.service.UpdateDraft(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id, actor int64, comments string) (Voucher, error) {
		return h.service.Submit(r.Context(), id, actor)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id, actor int64, comments string) (Voucher, error) {
		return h.service.ApproveAndPost(r.Context(), id, actor, comments)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request, id, actor int64, comments string) (Voucher, error) {
		return h.service.Reject(r.Context(), id, actor, comments)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(*http.Request, int64, int64, string) (Voucher, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var body CommentInput
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := httpx.ValidationFromStruct(h.validator.Struct(body)); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	v, err := fn(r, id, actor, body.Comments)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	date, err := httpx.OptionalDate("reversal_date", req.ReversalDate)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	v, err := h.service.CreateReversingVoucher(r.Context(), id, actor, ReverseInput{
		ReversalDate:    date,
		Type:            req.Type,
		PostImmediately: req.PostImmediately,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": out})
}
