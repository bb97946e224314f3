package periods

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newPeriodRouter(svc *Service) http.Handler {
	h := NewHandler(nil, svc)
	r := chi.NewRouter()
	r.Route("/periods", h.MountPeriodRoutes)
	r.Route("/fiscal-years", h.MountFiscalYearRoutes)
	return r
}

func serve(router http.Handler, method, path string, actor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLockUnlockAndClose(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	fy, p := seedYear(t, svc)
	router := newPeriodRouter(svc)
	lockPath := fmt.Sprintf("/periods/%d/lock", p.ID)
	closePath := fmt.Sprintf("/fiscal-years/%d/close", fy.ID)

	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodPost, lockPath, "").Code)

	rec := serve(router, http.MethodPost, closePath, "7")
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, serve(router, http.MethodPost, lockPath, "7").Code)
	require.Equal(t, http.StatusUnprocessableEntity, serve(router, http.MethodPost, lockPath, "7").Code)

	rec = serve(router, http.MethodPost, closePath, "7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, FiscalYearClosed, repo.years[fy.ID].Status)

	rec = serve(router, http.MethodPost, closePath, "7")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"current_status":"CLOSED"`)

	rec = serve(router, http.MethodPost, fmt.Sprintf("/periods/%d/unlock", p.ID), "7")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodPost, "/periods/999/lock", "7").Code)
}

func TestHandlerActivate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	fy, _ := seedYear(t, svc)
	router := newPeriodRouter(svc)

	rec := serve(router, http.MethodPost, fmt.Sprintf("/fiscal-years/%d/activate", fy.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, repo.years[fy.ID].IsActive)

	rec = serve(router, http.MethodGet, "/fiscal-years/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "FY2024")
}

func TestHandlerCreateYearAndPeriod(t *testing.T) {
	repo := newMemoryRepo()
	router := newPeriodRouter(NewService(repo, nil))

	req := httptest.NewRequest(http.MethodPost, "/fiscal-years/", strings.NewReader(`{"name":"FY2025","start_date":"2025-01-01","end_date":"2025-12-31"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, repo.years, 1)

	var fyID int64
	for id := range repo.years {
		fyID = id
	}
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/fiscal-years/%d/periods", fyID), strings.NewReader(`{"name":"2025-02","start_date":"2025-02-01","end_date":"2025-02-28"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/fiscal-years/%d/periods", fyID), strings.NewReader(`{"start_date":"2026-01-01","end_date":"2026-01-31"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/fiscal-years/", strings.NewReader(`{"name":"FY","start_date":"01/01/2025","end_date":"2025-12-31"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
