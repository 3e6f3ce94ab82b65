package portal

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/profile"
	"github.com/wolfman30/physio-portal/internal/render"
	"github.com/wolfman30/physio-portal/internal/session"
)

// Login form messages.
const (
	msgLoginRequired    = "Ingresa tu correo y contraseña"
	msgLoginBadEmail    = "Ingrese un correo electrónico válido (ejemplo: usuario@dominio.com)"
	msgLoginBadCreds    = "Correo o contraseña incorrectos"
	msgLoginUnknownType = "Tipo de usuario no reconocido"
	msgLoginThrottled   = "Demasiados intentos. Espera un momento e intenta de nuevo."
	msgRecoverSent      = "Si el correo está registrado, recibirás instrucciones para restablecer tu contraseña."
)

// LoginPage handles GET /login.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if s, err := h.sessions.Load(r); err == nil {
		h.redirect(w, r, s.HomePath())
		return
	}
	h.render(w, r, http.StatusOK, "login", render.LoginView{Page: h.page(r, nil, nil, "Iniciar sesión")})
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("correo"))
	password := r.PostFormValue("contrasena")

	view := render.LoginView{Page: h.page(r, nil, nil, "Iniciar sesión"), Email: email}
	switch {
	case email == "" || password == "":
		view.Error = msgLoginRequired
	case !profile.ValidEmail(email):
		view.Error = msgLoginBadEmail
	}
	if view.Error != "" {
		h.metrics.ObserveAction("login", outcomeInvalid)
		h.render(w, r, http.StatusUnprocessableEntity, "login", view)
		return
	}

	resp, err := h.backend.Login(r.Context(), backend.LoginRequest{Email: email, Password: password})
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, backend.ErrUnauthorized) {
			h.metrics.ObserveAction("login", outcomeInvalid)
			view.Error = msgLoginBadCreds
		} else {
			status = http.StatusBadGateway
			view.Error = h.fail(r, "login", err)
		}
		h.render(w, r, status, "login", view)
		return
	}

	sess := &session.Session{
		Token:       resp.BearerToken(),
		UserType:    resp.UserType,
		DisplayName: resp.Name,
		SubjectID:   resp.SubjectID(),
	}
	if sess.UserType != session.UserPatient && sess.UserType != session.UserTherapist {
		h.logger.Warn("login returned unknown user type", "tipo_usuario", resp.UserType)
		h.metrics.ObserveAction("login", outcomeFailed)
		view.Error = msgLoginUnknownType
		h.render(w, r, http.StatusUnauthorized, "login", view)
		return
	}
	if err := h.sessions.Start(r.Context(), w, sess); err != nil {
		view.Error = h.fail(r, "login", err)
		h.render(w, r, http.StatusInternalServerError, "login", view)
		return
	}

	h.logAudit("login", h.audit.LogLogin(r.Context(), sess.SubjectID, sess.UserType))
	h.metrics.ObserveAction("login", outcomeOK)
	h.logger.Info("user signed in", "user_type", sess.UserType, "session_id", sess.ID)
	h.redirect(w, r, sess.HomePath())
}

// LoginThrottled renders the login form when the rate limit rejects a POST.
func (h *Handler) LoginThrottled(w http.ResponseWriter, r *http.Request) {
	h.metrics.ObserveAction("login", "throttled")
	h.render(w, r, http.StatusTooManyRequests, "login", render.LoginView{
		Page:  h.page(r, nil, nil, "Iniciar sesión"),
		Email: strings.TrimSpace(r.PostFormValue("correo")),
		Error: msgLoginThrottled,
	})
}

// Logout handles POST /logout. Every persisted key of the session and its
// view state are dropped.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if s, err := h.sessions.Load(r); err == nil {
		subject = s.SubjectID
	}
	id, err := h.sessions.Clear(w, r)
	if err != nil {
		h.logger.Error("failed to clear session", "error", err)
	}
	if id != "" {
		h.boards.Drop(id)
		h.metrics.SetViewStates(h.boards.Len())
	}
	if subject != "" {
		h.logAudit("logout", h.audit.LogLogout(r.Context(), subject))
	}
	h.redirect(w, r, session.LoginPath)
}

// RecoverPage handles GET /recuperar.
func (h *Handler) RecoverPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "recover", render.RecoverView{Page: h.page(r, nil, nil, "Recuperar contraseña")})
}

// Recover handles POST /recuperar.
func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	view := render.RecoverView{Page: h.page(r, nil, nil, "Recuperar contraseña"), Email: email}
	if !profile.ValidEmail(email) {
		h.metrics.ObserveAction("recover_password", outcomeInvalid)
		view.Error = msgLoginBadEmail
		h.render(w, r, http.StatusUnprocessableEntity, "recover", view)
		return
	}
	if _, err := h.backend.RecoverPassword(r.Context(), email); err != nil && !errors.Is(err, backend.ErrNotFound) {
		view.Error = h.fail(r, "recover_password", err)
		h.render(w, r, http.StatusBadGateway, "recover", view)
		return
	}
	// Unknown addresses get the same answer as known ones.
	h.metrics.ObserveAction("recover_password", outcomeOK)
	view.Notice = msgRecoverSent
	view.Email = ""
	h.render(w, r, http.StatusOK, "recover", view)
}
