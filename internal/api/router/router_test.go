package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/physio-portal/internal/backend"
	httpmiddleware "github.com/wolfman30/physio-portal/internal/http/middleware"
	"github.com/wolfman30/physio-portal/internal/observability/metrics"
	"github.com/wolfman30/physio-portal/internal/portal"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	reg := prometheus.NewRegistry()
	portalMetrics := metrics.NewPortalMetrics(reg)
	h := portal.NewHandler(portal.Config{
		// Nothing in these tests reaches the backend.
		Backend:   backend.NewClient("http://127.0.0.1:1"),
		Sessions:  session.NewManager(session.NewMemoryStore(time.Hour), session.ManagerConfig{}, nil, logger),
		Boards:    viewstate.NewRegistry(),
		Metrics:   portalMetrics,
		Logger:    logger,
		CSRFField: CSRFField,
	})

	cfg := &Config{
		Logger:         logger,
		Portal:         h,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected request id header")
	}
}

func TestRouterProtectedRoutesRedirectToLogin(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/paciente", "/paciente/realizados", "/fisio", "/fisio/pacientes/1"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("%s: expected 303, got %d", path, rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != session.LoginPath {
			t.Fatalf("%s: expected redirect to %s, got %q", path, session.LoginPath, loc)
		}
	}
}

func TestRouterNotFound(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/no-existe", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("expected html error page, got %q", rr.Header().Get("Content-Type"))
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm("/login", url.Values{}))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty login, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `physio_portal_actions_total{action="login",outcome="invalid"} 1`) {
		t.Fatalf("expected login action counter in metrics output:\n%s", rr.Body.String())
	}
}

func TestRouterCSRFRejectsTokenlessPost(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	router := newTestRouter(t, func(cfg *Config) { cfg.CSRFKey = key })

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, postForm("/login", url.Values{"correo": {"ana@example.com"}, "contrasena": {"secreto123"}}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected login page, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `name="csrf_token"`) {
		t.Fatalf("expected csrf field in login form")
	}
}

func TestRouterLoginRateLimit(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	router := newTestRouter(t, func(cfg *Config) { cfg.LoginLimiter = limiter })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, postForm("/login", url.Values{}))
		codes = append(codes, rr.Code)
		if i == 1 && rr.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After on throttled login")
		}
	}
	if codes[0] != http.StatusUnprocessableEntity || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [422 429], got %v", codes)
	}
}
