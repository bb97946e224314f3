package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func TestInTestModeFromImportedGuard(t *testing.T) {
	require.True(t, InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "0")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv("ODYSSEY_TEST_MODE", "1")
	RefreshTestMode()
	require.True(t, InTestMode())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://books.example.com,https://admin.example.com")
	t.Setenv("BALANCE_MAX_RETRY", "8")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, 15*time.Minute, cfg.OpeningBalanceTTL)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	require.Equal(t, 8, cfg.BalanceMaxRetry)
	require.Equal(t, 10, cfg.WorkerConcurrency)
	require.Equal(t, "0 3 * * *", cfg.GLIntegrityCron)
	require.Equal(t, "config/chart_of_accounts.yaml", cfg.COASeedFile)
	require.Equal(t, []string{"https://books.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNegativeRetry(t *testing.T) {
	t.Setenv("BALANCE_MAX_RETRY", "-1")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerRendersCritical(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json"})
	logger.Log(context.Background(), shared.LevelCritical, "account balance drift detected")
	logger.Error("plain error")

	out := buf.String()
	require.Contains(t, out, `"level":"CRITICAL"`)
	require.Contains(t, out, `"level":"ERROR"`)

	buf.Reset()
	newLogger(&buf, nil).Log(context.Background(), shared.LevelCritical, "boom", slog.Int64("voucher_id", 9))
	require.Contains(t, buf.String(), "level=CRITICAL")
	require.Contains(t, buf.String(), "voucher_id=9")
}

func newTestRouter() http.Handler {
	return NewRouter(RouterParams{
		Config:     &Config{AppEnv: "production", RateLimitPerMinute: 100, CORSAllowedOrigins: []string{"https://books.example.com"}},
		JobHandler: jobs.NewHandler(nil, nil),
		Metrics:    observability.NewMetrics(),
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queues":[]}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/vouchers", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Origin", "https://books.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-User-ID")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "https://books.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/vouchers", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRedirectsPlainHTTPInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://ledger.example.com/healthz", nil))
	require.Equal(t, http.StatusMovedPermanently, rec.Code)
}
