// Package portal serves the patient and therapist pages.
package portal

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/wolfman30/physio-portal/internal/audit"
	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/render"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// Backend is the part of the clinic REST API the portal uses.
type Backend interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	GetPatient(ctx context.Context, cedula string) (*backend.Patient, error)
	GetTherapist(ctx context.Context) (*backend.Therapist, error)
	ListExercises(ctx context.Context) ([]backend.Exercise, error)
	ListAssigned(ctx context.Context, cedula string) ([]backend.AssignedTherapy, error)
	ListCompleted(ctx context.Context, cedula string) ([]backend.CompletedTherapy, error)
	MarkCompleted(ctx context.Context, therapyID int) (backend.Ack, error)
	RateTherapy(ctx context.Context, rating backend.Rating) (backend.Ack, error)
	ListRatings(ctx context.Context, cedula string) ([]backend.RatingRecord, error)
	GroupProgress(ctx context.Context, cedula, therapistID string) ([]backend.GroupProgress, error)
	AssignExercises(ctx context.Context, req backend.AssignRequest) (backend.Ack, error)
	UpdateProfile(ctx context.Context, cedula string, update backend.ProfileUpdate) (backend.Ack, error)
	ChangePassword(ctx context.Context, req backend.ChangePasswordRequest) (backend.Ack, error)
	RecoverPassword(ctx context.Context, email string) (backend.Ack, error)
}

// Auditor records user actions and reads them back for progress reports.
type Auditor interface {
	LogLogin(ctx context.Context, subject, userType string) error
	LogLogout(ctx context.Context, subject string) error
	LogTherapyCompleted(ctx context.Context, subject string, therapyID int) error
	LogTherapyRated(ctx context.Context, subject string, therapyID, pain, sensation, fatigue int) error
	LogProfileUpdated(ctx context.Context, subject string) error
	LogPasswordChanged(ctx context.Context, subject string) error
	LogExercisesAssigned(ctx context.Context, therapist, patient string, exerciseIDs []int) error
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
}

// Metrics counts user actions.
type Metrics interface {
	ObserveAction(action, outcome string)
	SetViewStates(n int)
}

// Action outcomes.
const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
)

type noopMetrics struct{}

func (noopMetrics) ObserveAction(string, string) {}
func (noopMetrics) SetViewStates(int)            {}

// Config wires a Handler.
type Config struct {
	Backend  Backend
	Sessions *session.Manager
	Boards   *viewstate.Registry
	Renderer *render.Renderer
	Audit    Auditor
	Metrics  Metrics
	// Stale is told about list responses that lost a race; may be nil.
	Stale  viewstate.StaleObserver
	Logger *logging.Logger
	// CSRFField returns the hidden form field carrying the CSRF token.
	CSRFField func(*http.Request) template.HTML
}

// Handler serves every portal page.
type Handler struct {
	backend   Backend
	sessions  *session.Manager
	boards    *viewstate.Registry
	loader    *viewstate.Loader
	renderer  *render.Renderer
	audit     Auditor
	metrics   Metrics
	logger    *logging.Logger
	csrfField func(*http.Request) template.HTML
}

// NewHandler creates a portal handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Backend == nil || cfg.Sessions == nil {
		panic("portal: backend and session manager are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Boards == nil {
		cfg.Boards = viewstate.NewRegistry()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.MustNew()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewService(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.CSRFField == nil {
		cfg.CSRFField = func(*http.Request) template.HTML { return "" }
	}
	return &Handler{
		backend:   cfg.Backend,
		sessions:  cfg.Sessions,
		boards:    cfg.Boards,
		loader:    viewstate.NewLoader(cfg.Backend, cfg.Stale, cfg.Logger),
		renderer:  cfg.Renderer,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		csrfField: cfg.CSRFField,
	}
}

// Home sends signed-in users to their dashboard and everyone else to login.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if s, err := h.sessions.Load(r); err == nil {
		h.redirect(w, r, s.HomePath())
		return
	}
	h.redirect(w, r, session.LoginPath)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "error", render.ErrorView{
		Page:    render.Page{Title: "Página no encontrada"},
		Message: "La página que buscas no existe.",
	})
}

// current returns the session placed by the guard and its board.
func (h *Handler) current(r *http.Request) (*session.Session, *viewstate.Board, context.Context) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		// Routes using current are always behind session.Guard.
		panic("portal: handler reached without a session")
	}
	b := h.boards.Get(s.ID)
	h.metrics.SetViewStates(h.boards.Len())
	return s, b, backend.WithBearer(r.Context(), s.Token)
}

func (h *Handler) page(r *http.Request, s *session.Session, b *viewstate.Board, title string) render.Page {
	p := render.Page{Title: title, CSRFField: h.csrfField(r)}
	if s != nil {
		p.User = &render.User{Name: s.DisplayName, Type: s.UserType}
	}
	if b != nil {
		p.Flash = b.TakeFlash()
	}
	return p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, name, data); err != nil {
		h.logger.Error("failed to render page", "page", name, "path", r.URL.Path, "error", err)
		http.Error(w, backend.GenericMessage, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// fail logs err and returns the message to show the user.
func (h *Handler) fail(r *http.Request, action string, err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		h.logger.Warn("backend rejected action", "action", action, "status", apiErr.Status, "path", r.URL.Path)
	} else {
		h.logger.Error("action failed", "action", action, "error", err, "path", r.URL.Path)
	}
	h.metrics.ObserveAction(action, outcomeFailed)
	return backend.UserMessage(err)
}

func (h *Handler) logAudit(action string, err error) {
	if err != nil {
		h.logger.Error("failed to write audit event", "action", action, "error", err)
	}
}
