package portal

import (
	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/physio-portal/internal/session"
)

// PatientRoutes serves /paciente; every route requires a patient session.
func (h *Handler) PatientRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessions.Guard(session.UserPatient))
	r.Get("/", h.PatientHome)
	r.Get("/asignados", h.Assigned)
	r.Get("/realizados", h.Completed)
	r.Post("/terapias/{id}/realizado", h.MarkDone)
	r.Post("/terapias/{id}/calificacion", h.Rate)
	r.Get("/perfil", h.Profile)
	r.Post("/perfil", h.SaveProfile)
	r.Post("/perfil/editar", h.EditProfile)
	r.Post("/perfil/cancelar", h.CancelProfile)
	r.Post("/contrasena", h.ChangePassword)
	return r
}

// TherapistRoutes serves /fisio; every route requires a therapist session.
func (h *Handler) TherapistRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessions.Guard(session.UserTherapist))
	r.Get("/", h.TherapistHome)
	r.Get("/pacientes", h.FindPatient)
	r.Get("/pacientes/{cedula}", h.PatientProgress)
	r.Get("/asignar", h.AssignPage)
	r.Post("/asignar", h.Assign)
	return r
}
