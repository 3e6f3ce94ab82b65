package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-portal/internal/audit"
	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/session"
	"github.com/wolfman30/physio-portal/internal/viewstate"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

type failure struct {
	status int
	detail string
}

// fakeClinic is an in-memory clinic backend.
type fakeClinic struct {
	mu        sync.Mutex
	users     map[string]backend.LoginResponse
	patient   backend.Patient
	therapist backend.Therapist
	assigned  []backend.AssignedTherapy
	completed []backend.CompletedTherapy
	groups    []backend.GroupProgress
	ratings   []backend.RatingRecord
	catalog   []map[string]any
	fail      map[string]failure
	calls     map[string]int
	bodies    map[string][]byte
	queries   map[string]url.Values
	bearers   []string
}

func newFakeClinic() *fakeClinic {
	return &fakeClinic{
		users: map[string]backend.LoginResponse{
			"ana@example.com":  {Token: "tok-ana", UserType: "paciente", Name: "Ana", Cedula: "123"},
			"ruiz@example.com": {AccessToken: "tok-ruiz", UserType: "fisio", Name: "Dr. Ruiz", UserID: "999"},
			"raro@example.com": {Token: "tok-raro", UserType: "admin", Name: "Raro", Cedula: "1"},
		},
		patient:   backend.Patient{Name: "Ana", Email: "ana@example.com", Phone: "555-0100"},
		therapist: backend.Therapist{Cedula: "999", Name: "Dr. Ruiz", Email: "ruiz@example.com", Status: "activo"},
		assigned: []backend.AssignedTherapy{
			{TherapyID: 1, Exercise: backend.Exercise{ID: 10, Name: "Rotación de hombro", Region: "Hombro", Repetitions: 10}},
			{TherapyID: 2, Exercise: backend.Exercise{ID: 20, Name: "Sentadilla", Region: "Rodilla", Repetitions: 12}},
		},
		completed: []backend.CompletedTherapy{
			{TherapyID: 3, Exercise: backend.Exercise{ID: 30, Name: "Puente", Region: "Cadera"}, CompletedOn: "2026-03-05"},
		},
		groups: []backend.GroupProgress{{Group: 1, Total: 4, Completed: 2, Pending: 2, Percent: 50}},
		catalog: []map[string]any{
			{"id_ejercicio": 10, "nombre": "Rotación de hombro", "parte_cuerpo": "Hombro"},
			{"id_ejercicio": 20, "nombre": "Sentadilla", "parte_cuerpo": "Rodilla"},
		},
		fail:    map[string]failure{},
		calls:   map[string]int{},
		bodies:  map[string][]byte{},
		queries: map[string]url.Values{},
	}
}

func (f *fakeClinic) failOp(op string, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = failure{status: status, detail: detail}
}

func (f *fakeClinic) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClinic) body(op string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[op]
}

// record notes the call and reports whether it should fail.
func (f *fakeClinic) record(op string, w http.ResponseWriter, r *http.Request) bool {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls[op]++
	f.bodies[op] = body
	f.queries[op] = r.URL.Query()
	f.bearers = append(f.bearers, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	fail, failing := f.fail[op]
	f.mu.Unlock()
	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.status)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": fail.detail})
	}
	return failing
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeClinic) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if f.record("login", w, r) {
			return
		}
		var req backend.LoginRequest
		_ = json.Unmarshal(f.body("login"), &req)
		f.mu.Lock()
		user, ok := f.users[req.Email]
		f.mu.Unlock()
		if !ok || req.Password != "secreto123" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Credenciales inválidas"})
			return
		}
		writeJSON(w, user)
	})
	r.Get("/auth/info-fisioterapeuta", func(w http.ResponseWriter, r *http.Request) {
		if f.record("therapist", w, r) {
			return
		}
		writeJSON(w, f.therapist)
	})
	r.Post("/auth/cambiar-contrasena", func(w http.ResponseWriter, r *http.Request) {
		if f.record("password", w, r) {
			return
		}
		writeJSON(w, map[string]string{"mensaje": "ok"})
	})
	r.Post("/auth/recuperar-contrasena", func(w http.ResponseWriter, r *http.Request) {
		if f.record("recover", w, r) {
			return
		}
		writeJSON(w, map[string]string{"mensaje": "enviado"})
	})
	r.Get("/paciente/ejercicios", func(w http.ResponseWriter, r *http.Request) {
		if f.record("catalog", w, r) {
			return
		}
		writeJSON(w, f.catalog)
	})
	r.Get("/paciente/ejercicios-asignados/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("assigned", w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.assigned)
	})
	r.Get("/paciente/ejercicios-completados/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("completed", w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.completed)
	})
	r.Put("/paciente/marcar-realizado/{id}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("mark", w, r) {
			return
		}
		id, _ := strconv.Atoi(chi.URLParam(r, "id"))
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, a := range f.assigned {
			if a.TherapyID == id {
				f.assigned = append(f.assigned[:i:i], f.assigned[i+1:]...)
				f.completed = append(f.completed, backend.CompletedTherapy{
					TherapyID:   id,
					Exercise:    a.Exercise,
					CompletedOn: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
				})
				writeJSON(w, map[string]string{"mensaje": "Ejercicio marcado como realizado"})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"detail": "Terapia no encontrada"})
	})
	r.Post("/paciente/calificar-ejercicio", func(w http.ResponseWriter, r *http.Request) {
		if f.record("rate", w, r) {
			return
		}
		writeJSON(w, map[string]string{"mensaje": "ok"})
	})
	r.Post("/paciente/asignar-ejercicio", func(w http.ResponseWriter, r *http.Request) {
		if f.record("assign", w, r) {
			return
		}
		writeJSON(w, map[string]string{"mensaje": "ok"})
	})
	r.Get("/paciente/ejercicios-por-grupo/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("groups", w, r) {
			return
		}
		writeJSON(w, f.groups)
	})
	r.Get("/paciente/calificaciones/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("ratings", w, r) {
			return
		}
		writeJSON(w, f.ratings)
	})
	r.Get("/paciente/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("patient", w, r) {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, f.patient)
	})
	r.Put("/paciente/{cedula}", func(w http.ResponseWriter, r *http.Request) {
		if f.record("update", w, r) {
			return
		}
		var update backend.ProfileUpdate
		_ = json.Unmarshal(f.body("update"), &update)
		f.mu.Lock()
		f.patient.Name, f.patient.Email, f.patient.Phone = update.Name, update.Email, update.Phone
		f.mu.Unlock()
		writeJSON(w, map[string]string{"mensaje": "ok"})
	})
	return r
}

type recordingAudit struct {
	mu      sync.Mutex
	events  []string
	history []audit.Event
	queries []audit.Filter
}

func (a *recordingAudit) add(event string) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	return nil
}

func (a *recordingAudit) LogLogin(_ context.Context, subject, userType string) error {
	return a.add("login:" + subject + ":" + userType)
}
func (a *recordingAudit) LogLogout(_ context.Context, subject string) error {
	return a.add("logout:" + subject)
}
func (a *recordingAudit) LogTherapyCompleted(_ context.Context, subject string, id int) error {
	return a.add("completed:" + subject + ":" + strconv.Itoa(id))
}
func (a *recordingAudit) LogTherapyRated(_ context.Context, subject string, id, _, _, _ int) error {
	return a.add("rated:" + subject + ":" + strconv.Itoa(id))
}
func (a *recordingAudit) LogProfileUpdated(_ context.Context, subject string) error {
	return a.add("profile:" + subject)
}
func (a *recordingAudit) LogPasswordChanged(_ context.Context, subject string) error {
	return a.add("password:" + subject)
}
func (a *recordingAudit) LogExercisesAssigned(_ context.Context, therapist, patient string, ids []int) error {
	return a.add("assigned:" + therapist + ":" + patient + ":" + strconv.Itoa(len(ids)))
}

func (a *recordingAudit) QueryEvents(_ context.Context, filter audit.Filter) ([]audit.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries = append(a.queries, filter)
	var out []audit.Event
	for _, e := range a.history {
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (a *recordingAudit) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

type harness struct {
	t        *testing.T
	clinic   *fakeClinic
	handler  *Handler
	mux      http.Handler
	sessions *session.Manager
	boards   *viewstate.Registry
	audit    *recordingAudit
	cookie   *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clinic := newFakeClinic()
	srv := httptest.NewServer(clinic.routes())
	t.Cleanup(srv.Close)

	quiet := logging.New("error")
	sessions := session.NewManager(session.NewMemoryStore(time.Hour), session.ManagerConfig{CookieName: "sid"}, nil, quiet)
	boards := viewstate.NewRegistry()
	rec := &recordingAudit{}
	h := NewHandler(Config{
		Backend:  backend.NewClient(srv.URL, backend.WithLogger(quiet)),
		Sessions: sessions,
		Boards:   boards,
		Audit:    rec,
		Logger:   quiet,
	})

	mux := chi.NewRouter()
	mux.Get("/", h.Home)
	mux.Get("/login", h.LoginPage)
	mux.Post("/login", h.Login)
	mux.Post("/logout", h.Logout)
	mux.Get("/recuperar", h.RecoverPage)
	mux.Post("/recuperar", h.Recover)
	mux.Mount("/paciente", h.PatientRoutes())
	mux.Mount("/fisio", h.TherapistRoutes())

	return &harness{t: t, clinic: clinic, handler: h, mux: mux, sessions: sessions, boards: boards, audit: rec}
}

func (h *harness) signIn(userType, subject, name string) {
	h.t.Helper()
	rec := httptest.NewRecorder()
	token := "tok-ana"
	if userType == session.UserTherapist {
		token = "tok-ruiz"
	}
	err := h.sessions.Start(context.Background(), rec, &session.Session{
		Token: token, UserType: userType, DisplayName: name, SubjectID: subject,
	})
	require.NoError(h.t, err)
	h.cookie = rec.Result().Cookies()[0]
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return h.serve(req)
}

func (h *harness) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.serve(req)
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func httpRequestWith(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		req.AddCookie(c)
	}
	return req
}
