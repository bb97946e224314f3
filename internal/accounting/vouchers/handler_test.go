package vouchers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func newVoucherRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/vouchers", NewHandler(nil, svc).MountRoutes)
	return r
}

func call(router http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func saleBody(day, debit, credit string) string {
	return fmt.Sprintf(`{
		"voucher_type": "SALES",
		"date": %q,
		"narration": "Counter sale",
		"lines": [
			{"account_id": %d, "dr_cr": "DEBIT", "amount": %q},
			{"account_id": %d, "dr_cr": "CREDIT", "amount": %q}
		]
	}`, day, cashID, debit, revenueID, credit)
}

func decodeVoucher(t *testing.T, rec *httptest.ResponseRecorder) Voucher {
	t.Helper()
	var v Voucher
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func TestHandlerDraftLifecycle(t *testing.T) {
	svc, repo, _ := fixture(t)
	router := newVoucherRouter(svc)

	rec := call(router, http.MethodPost, "/vouchers/", "", saleBody("2024-05-10", "100.00", "100.00"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(router, http.MethodPost, "/vouchers/", "42", saleBody("2024-05-10", "100.00", "100.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decodeVoucher(t, rec)
	require.Equal(t, StatusDraft, draft.Status)
	require.Equal(t, mayID, draft.PeriodID)
	require.Equal(t, actor, draft.CreatedBy)
	require.Len(t, draft.Lines, 2)
	path := fmt.Sprintf("/vouchers/%d", draft.ID)

	rec = call(router, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, draft.ID, decodeVoucher(t, rec).ID)

	update := strings.Replace(saleBody("2024-05-12", "75", "75"), "Counter sale", "Corrected sale", 1)
	rec = call(router, http.MethodPut, path, "42", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeVoucher(t, rec)
	require.Equal(t, "Corrected sale", updated.Narration)
	require.Equal(t, date(2024, 5, 12), updated.Date)
	require.True(t, updated.Lines[0].Amount.Equal(amount("75")))

	rec = call(router, http.MethodGet, "/vouchers/?status=DRAFT", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Vouchers []Voucher `json:"vouchers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Vouchers, 1)

	rec = call(router, http.MethodDelete, path, "42", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, repo.vouchers)
	require.Equal(t, http.StatusNotFound, call(router, http.MethodGet, path, "", "").Code)
}

func TestHandlerRejectsMalformedDrafts(t *testing.T) {
	svc, repo, _ := fixture(t)
	router := newVoucherRouter(svc)

	cases := map[string]string{
		"bad date":       saleBody("10/05/2024", "10", "10"),
		"zero amount":    saleBody("2024-05-10", "0", "10"),
		"unknown field":  `{"voucher_type":"SALES","date":"2024-05-10","colour":"red"}`,
		"no lines":       `{"voucher_type":"SALES","date":"2024-05-10","lines":[]}`,
		"unknown type":   strings.Replace(saleBody("2024-05-10", "10", "10"), "SALES", "BARTER", 1),
		"truncated json": `{"voucher_type":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := call(router, http.MethodPost, "/vouchers/", "42", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	require.Empty(t, repo.vouchers)

	rec := call(router, http.MethodGet, "/vouchers/?from=yesterday", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, http.StatusBadRequest, call(router, http.MethodGet, "/vouchers/abc", "", "").Code)
	require.Equal(t, http.StatusNotFound, call(router, http.MethodGet, "/vouchers/77", "", "").Code)
}

func TestHandlerSubmitApproveAndAudit(t *testing.T) {
	svc, _, queue := fixture(t)
	router := newVoucherRouter(svc)

	rec := call(router, http.MethodPost, "/vouchers/", "42", saleBody("2024-05-10", "100", "100"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeVoucher(t, rec).ID

	require.Equal(t, http.StatusUnauthorized, call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/submit", id), "", "").Code)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/submit", id), "42", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decodeVoucher(t, rec)
	require.Equal(t, StatusPendingApproval, submitted.Status)
	require.Equal(t, "SA-2024Q2-0001", submitted.NumberOrEmpty())

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/approve", id), "43", `{"comments":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusPosted, decodeVoucher(t, rec).Status)
	require.Equal(t, []int64{id}, queue.ids)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/approve", id), "43", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	problem := decodeProblem(t, rec)
	require.Equal(t, string(StatusPosted), problem.CurrentStatus)
	require.ElementsMatch(t, []string{string(StatusPendingApproval), string(StatusRejected)}, problem.ExpectedStatuses)

	rec = call(router, http.MethodGet, fmt.Sprintf("/vouchers/%d/approvals", id), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trail struct {
		Approvals []Approval `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trail))
	require.Len(t, trail.Approvals, 2)
	require.Equal(t, ActionApproved, trail.Approvals[1].Action)
	require.Equal(t, int64(43), trail.Approvals[1].UserID)
	require.Equal(t, "ok", trail.Approvals[1].Comments)
}

func TestHandlerSubmitErrors(t *testing.T) {
	svc, repo, _ := fixture(t)
	router := newVoucherRouter(svc)

	rec := call(router, http.MethodPost, "/vouchers/", "42", saleBody("2024-05-10", "100", "90"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unbalanced := decodeVoucher(t, rec).ID

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/submit", unbalanced), "42", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeProblem(t, rec).Fields, "lines")
	require.Equal(t, StatusDraft, repo.vouchers[unbalanced].Status)

	rec = call(router, http.MethodPost, "/vouchers/", "42", saleBody("2024-04-10", "50", "50"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	locked := decodeVoucher(t, rec).ID

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/submit", locked), "42", "")
	require.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())
	require.Equal(t, StatusDraft, repo.vouchers[locked].Status)

	require.Equal(t, http.StatusNotFound, call(router, http.MethodPost, "/vouchers/9999/submit", "42", "").Code)
}

func TestHandlerRejectAndResubmit(t *testing.T) {
	svc, _, _ := fixture(t)
	router := newVoucherRouter(svc)

	rec := call(router, http.MethodPost, "/vouchers/", "42", saleBody("2024-05-10", "10", "10"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeVoucher(t, rec).ID
	require.Equal(t, http.StatusOK, call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/submit", id), "42", "").Code)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/reject", id), "43", `{"comments":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeProblem(t, rec).Fields, "comments")

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/reject", id), "43", `{"comments":"wrong customer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusRejected, decodeVoucher(t, rec).Status)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/reject", id), "43", `{"comments":"again"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(StatusRejected), decodeProblem(t, rec).CurrentStatus)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/approve", id), "43", `{"comments":"fixed offline"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StatusPosted, decodeVoucher(t, rec).Status)
}

func TestHandlerReverse(t *testing.T) {
	svc, _, queue := fixture(t)
	router := newVoucherRouter(svc)
	original := postSale(t, svc, date(2024, 5, 10), "100")
	path := fmt.Sprintf("/vouchers/%d/reverse", original.ID)

	require.Equal(t, http.StatusUnauthorized, call(router, http.MethodPost, path, "", "").Code)

	rec := call(router, http.MethodPost, path, "42", `{"reversal_date":"01-06-2024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPost, path, "42", `{"reversal_date":"2024-04-15"}`)
	require.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())

	rec = call(router, http.MethodPost, path, "42", `{"voucher_type":"BARTER"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeProblem(t, rec).Fields, "voucher_type")

	rec = call(router, http.MethodPost, path, "42", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decodeVoucher(t, rec)
	require.Equal(t, StatusDraft, draft.Status)
	require.Equal(t, original.ID, *draft.ReversalOf)
	require.Equal(t, date(2024, 6, 15), draft.Date)

	rec = call(router, http.MethodPost, path, "42", `{"reversal_date":"2024-06-01","voucher_type":"GENERAL","post_immediately":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	posted := decodeVoucher(t, rec)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, "GE-2024Q2-0001", posted.NumberOrEmpty())
	require.Equal(t, []int64{original.ID, posted.ID}, queue.ids)

	rec = call(router, http.MethodPost, fmt.Sprintf("/vouchers/%d/reverse", draft.ID), "42", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(StatusDraft), decodeProblem(t, rec).CurrentStatus)
}
