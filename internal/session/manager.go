package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/physio-portal/pkg/logging"
)

// LoginPath is where requests without a usable session are sent.
const LoginPath = "/login"

// ManagerConfig controls the session cookie.
type ManagerConfig struct {
	CookieName string
	Secure     bool
	TTL        time.Duration
}

// Manager binds stored sessions to a browser cookie.
type Manager struct {
	store    Store
	cfg      ManagerConfig
	verifier *TokenVerifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewManager creates a manager. verifier may be nil to skip token checks.
func NewManager(store Store, cfg ManagerConfig, verifier *TokenVerifier, logger *logging.Logger) *Manager {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "portal_session"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, cfg: cfg, verifier: verifier, logger: logger, now: time.Now}
}

// Start persists s under a fresh id and sets the cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if !s.Valid() {
		return ErrInvalid
	}
	s.ID = uuid.New().String()
	s.CreatedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	http.SetCookie(w, m.cookie(s.ID, m.cfg.TTL))
	return nil
}

// Update re-saves s, refreshing its expiry.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	if !s.Valid() || s.ID == "" {
		return ErrInvalid
	}
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	return nil
}

// Load returns the session of r. Missing cookies and unknown ids yield
// ErrNotFound; a stored session without token or subject yields ErrInvalid;
// an expired token deletes the session and yields ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Get(r.Context(), c.Value)
	if err != nil {
		return nil, err
	}
	if !s.Valid() {
		return nil, ErrInvalid
	}
	if _, err := m.verifier.Verify(s.Token); err != nil {
		if errors.Is(err, ErrExpired) {
			if delErr := m.store.Delete(r.Context(), s.ID); delErr != nil {
				m.logger.Warn("failed to delete expired session", "error", delErr)
			}
		}
		return nil, err
	}
	return s, nil
}

// Clear removes every persisted key of the session of r and expires the
// cookie. It returns the id that was cleared, if any.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) (string, error) {
	http.SetCookie(w, m.cookie("", -1))
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return "", nil
	}
	if err := m.store.Delete(r.Context(), c.Value); err != nil {
		return c.Value, fmt.Errorf("session: clear: %w", err)
	}
	return c.Value, nil
}

func (m *Manager) cookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	switch {
	case ttl < 0:
		c.MaxAge = -1
	case ttl > 0:
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

// Guard lets a request through only with a valid session of userType (any
// type when empty). Everything else is redirected to the login page before
// the handler runs.
func (m *Manager) Guard(userType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Load(r)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					m.logger.Info("session rejected", "error", err, "path", r.URL.Path)
				}
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			if userType != "" && s.UserType != userType {
				m.logger.Info("session user type mismatch", "want", userType, "got", s.UserType, "path", r.URL.Path)
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
