package parties

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
)

func newPartyRouter(t *testing.T) (*memoryRepo, int64, http.Handler) {
	t.Helper()
	repo := newRepo()
	svc := NewService(repo, nil)
	p, err := svc.Create(context.Background(), Input{Type: coa.PartyTypeCustomer, Name: "Acme", IsActive: true, ControlAccountID: ptr(1), CreditLimit: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/parties", NewHandler(nil, svc).MountRoutes)
	return repo, p.ID, r
}

func TestHandlerBalance(t *testing.T) {
	repo, id, router := newPartyRouter(t)
	repo.debit = decimal.NewFromInt(700)
	repo.credit = decimal.NewFromInt(200)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parties/101/balance?as_of=2024-03-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Balance      Balance      `json:"balance"`
		CreditStatus CreditStatus `json:"credit_status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id, body.Balance.PartyID)
	require.True(t, body.Balance.Outstanding.Equal(decimal.NewFromInt(500)))
	require.Equal(t, CreditWithinLimit, body.CreditStatus)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parties/101/balance?as_of=31-03-2024", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parties/999/balance", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreditCheck(t *testing.T) {
	repo, _, router := newPartyRouter(t)
	repo.debit = decimal.NewFromInt(900)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/parties/101/credit-check", strings.NewReader(`{"amount":"100"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/parties/101/credit-check", strings.NewReader(`{"amount":"100.01"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"amount"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/parties/101/credit-check", strings.NewReader(`{"amount":"0"}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreateValidatesControlAccount(t *testing.T) {
	_, _, router := newPartyRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/parties/",
		strings.NewReader(`{"type":"SUPPLIER","name":"Vendor","is_active":true,"control_account_id":1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/parties/",
		strings.NewReader(`{"type":"SUPPLIER","name":"Vendor","is_active":true,"control_account_id":2,"email":"not-an-email"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"email"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/parties/",
		strings.NewReader(`{"type":"SUPPLIER","name":"Vendor","is_active":true,"control_account_id":2}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parties/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Vendor")
}
