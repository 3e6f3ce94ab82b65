package portal

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-portal/internal/profile"
	"github.com/wolfman30/physio-portal/internal/render"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
)

// Flash kinds.
const (
	flashSuccess = "success"
	flashError   = "error"
)

const (
	msgMarkedDone   = "¡Ejercicio marcado como realizado!"
	msgRated        = "¡Gracias! Tu calificación fue registrada."
	msgBadTherapyID = "Ejercicio no válido"
)

// PatientHome handles GET /paciente.
func (h *Handler) PatientHome(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, "/paciente/asignados")
}

// Assigned handles GET /paciente/asignados. A region query only re-filters
// the cached list; without one both lists are fetched again.
func (h *Handler) Assigned(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	h.applyFilter(ctx, r, s, b, viewstate.Assigned)
	page := h.page(r, s, b, "Ejercicios asignados")
	h.render(w, r, http.StatusOK, "assigned", render.NewAssignedView(page, b.Snapshot()))
}

// Completed handles GET /paciente/realizados.
func (h *Handler) Completed(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	h.applyFilter(ctx, r, s, b, viewstate.Completed)
	page := h.page(r, s, b, "Ejercicios realizados")
	h.render(w, r, http.StatusOK, "completed", render.NewCompletedView(page, b.Snapshot()))
}

func (h *Handler) applyFilter(ctx context.Context, r *http.Request, s *session.Session, b *viewstate.Board, list viewstate.List) {
	region, filtering := r.URL.Query()["region"]
	if filtering {
		b.SetFilter(list, region[0])
	}
	snap := b.Snapshot()
	loaded := snap.AssignedLoaded && snap.CompletedLoaded
	if filtering && loaded {
		return
	}
	h.refresh(ctx, s, b)
}

func (h *Handler) refresh(ctx context.Context, s *session.Session, b *viewstate.Board, lists ...viewstate.List) {
	if err := h.loader.Refresh(ctx, b, s.SubjectID, lists...); err != nil {
		h.logger.Warn("exercise lists refreshed with errors", "session_id", s.ID, "error", err)
	}
}

func therapyID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errors.New("portal: invalid therapy id")
	}
	return id, nil
}

// MarkDone handles POST /paciente/terapias/{id}/realizado. On success the
// control is disabled and both lists are fetched again; on failure nothing
// changes but the flash message.
func (h *Handler) MarkDone(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	id, err := therapyID(r)
	if err != nil {
		h.metrics.ObserveAction("mark_completed", outcomeInvalid)
		b.SetFlash(flashError, msgBadTherapyID)
		h.redirect(w, r, "/paciente/asignados")
		return
	}

	ack, err := h.backend.MarkCompleted(ctx, id)
	if err != nil {
		b.SetFlash(flashError, h.fail(r, "mark_completed", err))
		h.redirect(w, r, "/paciente/asignados")
		return
	}

	b.MarkDoneLocally(id)
	msg := ack.Text()
	if msg == "" {
		msg = msgMarkedDone
	}
	b.SetFlash(flashSuccess, msg)
	h.metrics.ObserveAction("mark_completed", outcomeOK)
	h.logAudit("mark_completed", h.audit.LogTherapyCompleted(r.Context(), s.SubjectID, id))
	h.refresh(ctx, s, b)
	h.redirect(w, r, "/paciente/asignados")
}

// Rate handles POST /paciente/terapias/{id}/calificacion.
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id, err := therapyID(r)
	if err != nil {
		h.metrics.ObserveAction("rate_therapy", outcomeInvalid)
		b.SetFlash(flashError, msgBadTherapyID)
		h.redirect(w, r, "/paciente/realizados")
		return
	}
	rating, err := profile.ParseRating(id,
		r.PostFormValue("dolor"),
		r.PostFormValue("sensacion"),
		r.PostFormValue("cansancio"),
		r.PostFormValue("observaciones"),
	)
	if err != nil {
		h.metrics.ObserveAction("rate_therapy", outcomeInvalid)
		b.SetFlash(flashError, err.Error())
		h.redirect(w, r, "/paciente/realizados")
		return
	}

	if _, err := h.backend.RateTherapy(ctx, rating); err != nil {
		b.SetFlash(flashError, h.fail(r, "rate_therapy", err))
		h.redirect(w, r, "/paciente/realizados")
		return
	}

	b.SetFlash(flashSuccess, msgRated)
	h.metrics.ObserveAction("rate_therapy", outcomeOK)
	h.logAudit("rate_therapy", h.audit.LogTherapyRated(r.Context(), s.SubjectID, id, rating.Pain, rating.Sensation, rating.Fatigue))
	h.refresh(ctx, s, b, viewstate.Completed)
	h.redirect(w, r, "/paciente/realizados")
}
