package portal

import (
	"errors"
	"net/http"

	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/profile"
	"github.com/wolfman30/physio-portal/internal/render"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
)

const (
	msgProfileSaved    = "Perfil actualizado correctamente"
	msgProfileLoad     = "No se pudo cargar tu perfil"
	msgPasswordChanged = "Contraseña actualizada correctamente"
)

// Profile handles GET /paciente/perfil. Fresh data is loaded only while the
// form is in view mode.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	view := render.ProfileView{}
	editor := b.Editor()
	if editor.Mode() == profile.ModeView {
		patient, err := h.backend.GetPatient(ctx, s.SubjectID)
		if err != nil {
			h.logger.Warn("failed to load profile", "error", err)
			view.Error = msgProfileLoad
		} else {
			editor.Load(fieldsFrom(s.SubjectID, patient))
		}
	}
	h.renderProfile(w, r, s, b, http.StatusOK, view)
}

func fieldsFrom(cedula string, p *backend.Patient) profile.Fields {
	return profile.Fields{Cedula: cedula, Name: p.Name, Email: p.Email, Phone: p.Phone}
}

func (h *Handler) renderProfile(w http.ResponseWriter, r *http.Request, s *session.Session, b *viewstate.Board, status int, view render.ProfileView) {
	editor := b.Editor()
	view.Page = h.page(r, s, b, "Mi perfil")
	view.Fields = editor.Current()
	if view.Fields.Cedula == "" {
		view.Fields.Cedula = s.SubjectID
	}
	view.Editing = editor.Mode() == profile.ModeEdit
	h.render(w, r, status, "profile", view)
}

// EditProfile handles POST /paciente/perfil/editar.
func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	editor := b.Editor()
	if !editor.Loaded() {
		patient, err := h.backend.GetPatient(ctx, s.SubjectID)
		if err != nil {
			b.SetFlash(flashError, h.fail(r, "edit_profile", err))
			h.redirect(w, r, "/paciente/perfil")
			return
		}
		editor.Load(fieldsFrom(s.SubjectID, patient))
	}
	if err := editor.Begin(); err != nil && !errors.Is(err, profile.ErrAlreadyEditing) {
		h.logger.Error("failed to start profile edit", "error", err)
	}
	h.redirect(w, r, "/paciente/perfil")
}

// CancelProfile handles POST /paciente/perfil/cancelar.
func (h *Handler) CancelProfile(w http.ResponseWriter, r *http.Request) {
	_, b, _ := h.current(r)
	if _, err := b.Editor().Cancel(); err != nil && !errors.Is(err, profile.ErrNotEditing) {
		h.logger.Error("failed to cancel profile edit", "error", err)
	}
	h.redirect(w, r, "/paciente/perfil")
}

// SaveProfile handles POST /paciente/perfil.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	draft := profile.Fields{
		Name:  r.PostFormValue("nombre"),
		Email: r.PostFormValue("correo"),
		Phone: r.PostFormValue("telefono"),
	}

	err := b.Editor().Save(ctx, draft, h.backend)
	var invalid *profile.ValidationError
	switch {
	case err == nil:
	case errors.Is(err, profile.ErrNotEditing):
		h.redirect(w, r, "/paciente/perfil")
		return
	case errors.As(err, &invalid):
		h.metrics.ObserveAction("update_profile", outcomeInvalid)
		h.renderProfile(w, r, s, b, http.StatusUnprocessableEntity, render.ProfileView{Errors: invalid.Fields})
		return
	default:
		h.renderProfile(w, r, s, b, http.StatusBadGateway, render.ProfileView{Error: h.fail(r, "update_profile", err)})
		return
	}

	saved := b.Editor().Current()
	if saved.Name != "" && saved.Name != s.DisplayName {
		s.DisplayName = saved.Name
		if err := h.sessions.Update(r.Context(), s); err != nil {
			h.logger.Warn("failed to refresh session name", "error", err)
		}
	}
	b.SetFlash(flashSuccess, msgProfileSaved)
	h.metrics.ObserveAction("update_profile", outcomeOK)
	h.logAudit("update_profile", h.audit.LogProfileUpdated(r.Context(), s.SubjectID))
	h.redirect(w, r, "/paciente/perfil")
}

// ChangePassword handles POST /paciente/contrasena.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	current := r.PostFormValue("contrasena_actual")
	next := r.PostFormValue("nueva_contrasena")
	if err := profile.ValidatePasswordChange(current, next, r.PostFormValue("confirmar_contrasena")); err != nil {
		h.metrics.ObserveAction("change_password", outcomeInvalid)
		h.renderProfile(w, r, s, b, http.StatusUnprocessableEntity, render.ProfileView{PasswordError: err.Error()})
		return
	}

	if _, err := h.backend.ChangePassword(ctx, backend.ChangePasswordRequest{Current: current, New: next}); err != nil {
		h.renderProfile(w, r, s, b, http.StatusBadGateway, render.ProfileView{PasswordError: h.fail(r, "change_password", err)})
		return
	}

	b.SetFlash(flashSuccess, msgPasswordChanged)
	h.metrics.ObserveAction("change_password", outcomeOK)
	h.logAudit("change_password", h.audit.LogPasswordChanged(r.Context(), s.SubjectID))
	h.redirect(w, r, "/paciente/perfil")
}
