package portal

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/physio-portal/internal/audit"
	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/render"
)

const (
	msgTherapistLoad   = "No se pudo cargar la información del fisioterapeuta"
	msgPatientLoad     = "No se pudo cargar la información del paciente"
	msgCedulaRequired  = "Ingresa la cédula del paciente"
	msgPickExercise    = "Selecciona al menos un ejercicio"
	msgCatalogLoad     = "No se pudo cargar el catálogo de ejercicios"
	msgAssignedFormat  = "Se asignaron %d ejercicios al paciente %s"
	msgBadExerciseID   = "Ejercicio no válido"
	msgPatientNotFound = "No se encontró un paciente con esa cédula"
)

const recentActivityLimit = 10

// TherapistHome handles GET /fisio.
func (h *Handler) TherapistHome(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	view := render.TherapistView{}
	therapist, err := h.backend.GetTherapist(ctx)
	if err != nil {
		h.logger.Warn("failed to load therapist", "error", err)
		view.Error = msgTherapistLoad
		view.Therapist = backend.Therapist{Name: s.DisplayName, Cedula: s.SubjectID}
	} else {
		view.Therapist = *therapist
	}
	view.Page = h.page(r, s, b, "Panel del fisioterapeuta")
	h.render(w, r, http.StatusOK, "therapist", view)
}

// FindPatient handles GET /fisio/pacientes?cedula=.
func (h *Handler) FindPatient(w http.ResponseWriter, r *http.Request) {
	_, b, _ := h.current(r)
	cedula := strings.TrimSpace(r.URL.Query().Get("cedula"))
	if cedula == "" {
		b.SetFlash(flashError, msgCedulaRequired)
		h.redirect(w, r, "/fisio")
		return
	}
	h.redirect(w, r, "/fisio/pacientes/"+url.PathEscape(cedula))
}

// PatientProgress handles GET /fisio/pacientes/{cedula}. The reads run
// concurrently and each one failing only blanks its own section.
func (h *Handler) PatientProgress(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	cedula := strings.TrimSpace(chi.URLParam(r, "cedula"))
	view := render.ProgressView{Cedula: cedula}

	// A plain Group: sections load independently, so no shared cancellation.
	var (
		g         errgroup.Group
		assigned  []backend.AssignedTherapy
		completed []backend.CompletedTherapy
		errs      [5]error
	)
	g.Go(func() error {
		view.Patient, errs[0] = h.backend.GetPatient(ctx, cedula)
		return errs[0]
	})
	g.Go(func() error {
		assigned, errs[1] = h.backend.ListAssigned(ctx, cedula)
		return errs[1]
	})
	g.Go(func() error {
		completed, errs[2] = h.backend.ListCompleted(ctx, cedula)
		return errs[2]
	})
	g.Go(func() error {
		view.Groups, errs[3] = h.backend.GroupProgress(ctx, cedula, s.SubjectID)
		return errs[3]
	})
	g.Go(func() error {
		view.Ratings, errs[4] = h.backend.ListRatings(ctx, cedula)
		return errs[4]
	})
	// The audit log is local and optional; its failure never shows.
	g.Go(func() error {
		events, err := h.audit.QueryEvents(r.Context(), audit.Filter{SubjectID: cedula, Limit: recentActivityLimit})
		if err != nil {
			h.logger.Warn("failed to load patient activity", "error", err)
			return nil
		}
		view.Activity = events
		return nil
	})

	status := http.StatusOK
	if err := g.Wait(); err != nil {
		h.logger.Warn("patient progress loaded with errors", "error", errors.Join(errs[:]...))
		view.Error = msgPatientLoad
		if errors.Is(errs[0], backend.ErrNotFound) {
			view.Error = msgPatientNotFound
			status = http.StatusNotFound
		}
	}
	view.Assigned = len(assigned)
	view.Completed = len(completed)
	view.Percent = render.ProgressPercent(view.Completed, view.Assigned)
	view.Page = h.page(r, s, b, "Progreso del paciente")
	h.render(w, r, status, "progress", view)
}

// AssignPage handles GET /fisio/asignar.
func (h *Handler) AssignPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.renderAssign(w, r, http.StatusOK, strings.TrimSpace(q.Get("cedula")), q.Get("region"), nil, "")
}

func (h *Handler) renderAssign(w http.ResponseWriter, r *http.Request, status int, cedula, region string, selected map[int]bool, message string) {
	s, b, ctx := h.current(r)
	catalog, err := h.backend.ListExercises(ctx)
	if err != nil {
		h.logger.Warn("failed to load exercise catalog", "error", err)
		if message == "" {
			message = msgCatalogLoad
		}
	}
	view := render.NewAssignView(h.page(r, s, b, "Asignar ejercicios"), cedula, region, catalog, selected)
	view.Error = message
	h.render(w, r, status, "assign", view)
}

// Assign handles POST /fisio/asignar.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	s, b, ctx := h.current(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	cedula := strings.TrimSpace(r.PostFormValue("cedula_paciente"))

	selected := map[int]bool{}
	ids := make([]int, 0, len(r.PostForm["ejercicios"]))
	for _, raw := range r.PostForm["ejercicios"] {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			h.metrics.ObserveAction("assign_exercises", outcomeInvalid)
			h.renderAssign(w, r, http.StatusUnprocessableEntity, cedula, "", selected, msgBadExerciseID)
			return
		}
		if !selected[id] {
			selected[id] = true
			ids = append(ids, id)
		}
	}

	switch {
	case cedula == "":
		h.metrics.ObserveAction("assign_exercises", outcomeInvalid)
		h.renderAssign(w, r, http.StatusUnprocessableEntity, cedula, "", selected, msgCedulaRequired)
		return
	case len(ids) == 0:
		h.metrics.ObserveAction("assign_exercises", outcomeInvalid)
		h.renderAssign(w, r, http.StatusUnprocessableEntity, cedula, "", selected, msgPickExercise)
		return
	}

	if _, err := h.backend.AssignExercises(ctx, backend.AssignRequest{PatientCedula: cedula, ExerciseIDs: ids}); err != nil {
		h.renderAssign(w, r, http.StatusBadGateway, cedula, "", selected, h.fail(r, "assign_exercises", err))
		return
	}

	b.SetFlash(flashSuccess, fmt.Sprintf(msgAssignedFormat, len(ids), cedula))
	h.metrics.ObserveAction("assign_exercises", outcomeOK)
	h.logAudit("assign_exercises", h.audit.LogExercisesAssigned(r.Context(), s.SubjectID, cedula, ids))
	h.redirect(w, r, "/fisio/pacientes/"+url.PathEscape(cedula))
}
