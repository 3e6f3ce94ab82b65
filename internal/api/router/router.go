package router

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	httpmiddleware "github.com/wolfman30/physio-portal/internal/http/middleware"
	"github.com/wolfman30/physio-portal/internal/portal"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Portal             *portal.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// CSRFKey enables CSRF protection of every form when set (32 bytes).
	CSRFKey      []byte
	CookieSecure bool

	// LoginLimiter throttles POST /login per client IP when set.
	LoginLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if len(cfg.CSRFKey) > 0 {
		r.Use(csrfProtect(cfg.CSRFKey, cfg.CookieSecure))
	}

	h := cfg.Portal
	r.NotFound(h.NotFound)

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", h.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/", h.Home)
		public.Get("/login", h.LoginPage)
		if cfg.LoginLimiter != nil {
			public.With(httpmiddleware.RateLimit(cfg.LoginLimiter, http.HandlerFunc(h.LoginThrottled))).Post("/login", h.Login)
		} else {
			public.Post("/login", h.Login)
		}
		public.Post("/logout", h.Logout)
		public.Get("/recuperar", h.RecoverPage)
		public.Post("/recuperar", h.Recover)
	})

	r.Mount("/paciente", h.PatientRoutes())
	r.Mount("/fisio", h.TherapistRoutes())

	return r
}

// csrfProtect wraps gorilla/csrf. Without secure cookies the portal is
// served over plain HTTP, which the origin check must be told about.
func csrfProtect(key []byte, secure bool) func(http.Handler) http.Handler {
	protect := csrf.Protect(key,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "La sesión del formulario expiró. Recarga la página e intenta de nuevo.", http.StatusForbidden)
		})),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		if secure {
			return protected
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protected.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// CSRFField is the template field helper handed to the portal.
func CSRFField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}
