package render

import (
	"html/template"
	"math"

	"github.com/wolfman30/physio-portal/internal/audit"
	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/profile"
	"github.com/wolfman30/physio-portal/internal/viewstate"
)

// Page is the chrome shared by every page.
type Page struct {
	Title     string
	CSRFField template.HTML
	User      *User
	Flash     *viewstate.Flash
}

// User is the signed-in person shown in the navigation bar.
type User struct {
	Name string
	Type string
}

// Therapist reports whether the user is a therapist.
func (u *User) Therapist() bool {
	return u != nil && u.Type == "fisio"
}

// LoginView is the login form.
type LoginView struct {
	Page
	Email string
	Error string
}

// RecoverView is the password recovery form.
type RecoverView struct {
	Page
	Email  string
	Error  string
	Notice string
}

// FilterBar is the row of region buttons above a list.
type FilterBar struct {
	Action  string
	Current string
	Regions []string
	// Hidden carries extra query values through a filter change.
	Hidden map[string]string
}

func newFilterBar(action, current string) FilterBar {
	regions := make([]string, 0, len(viewstate.BodyRegions)+1)
	regions = append(regions, viewstate.FilterAll)
	regions = append(regions, viewstate.BodyRegions...)
	return FilterBar{Action: action, Current: current, Regions: regions}
}

// AssignedView is the list of pending exercises.
type AssignedView struct {
	Page
	Filters FilterBar
	Items   []backend.AssignedTherapy
	Done    map[int]bool
	Error   string
	Loaded  bool
}

// NewAssignedView filters the assigned list of s by its current region.
func NewAssignedView(p Page, s viewstate.Snapshot) AssignedView {
	return AssignedView{
		Page:    p,
		Filters: newFilterBar("/paciente/asignados", s.AssignedFilter),
		Items:   viewstate.Filter(s.Assigned, s.AssignedFilter),
		Done:    s.Done,
		Error:   s.AssignedErr,
		Loaded:  s.AssignedLoaded,
	}
}

// CompletedView is the list of finished exercises.
type CompletedView struct {
	Page
	Filters FilterBar
	Items   []backend.CompletedTherapy
	Error   string
	Loaded  bool
}

// NewCompletedView filters the completed list of s by its current region.
func NewCompletedView(p Page, s viewstate.Snapshot) CompletedView {
	return CompletedView{
		Page:    p,
		Filters: newFilterBar("/paciente/realizados", s.CompletedFilter),
		Items:   viewstate.Filter(s.Completed, s.CompletedFilter),
		Error:   s.CompletedErr,
		Loaded:  s.CompletedLoaded,
	}
}

// ProfileView is the profile form together with the password form.
type ProfileView struct {
	Page
	Fields        profile.Fields
	Editing       bool
	Errors        map[string]string
	Error         string
	PasswordError string
}

// TherapistView is the therapist landing page.
type TherapistView struct {
	Page
	Therapist backend.Therapist
	Error     string
}

// ProgressView is the progress report of one patient.
type ProgressView struct {
	Page
	Cedula    string
	Patient   *backend.Patient
	Assigned  int
	Completed int
	Percent   int
	Groups    []backend.GroupProgress
	Ratings   []backend.RatingRecord
	Activity  []audit.Event
	Error     string
}

// AssignView is the exercise assignment form.
type AssignView struct {
	Page
	Filters  FilterBar
	Cedula   string
	Catalog  []backend.Exercise
	Selected map[int]bool
	Error    string
}

// NewAssignView filters the catalog by region.
func NewAssignView(p Page, cedula, region string, catalog []backend.Exercise, selected map[int]bool) AssignView {
	region = viewstate.NormalizeRegion(region)
	bar := newFilterBar("/fisio/asignar", region)
	if cedula != "" {
		bar.Hidden = map[string]string{"cedula": cedula}
	}
	return AssignView{
		Page:     p,
		Filters:  bar,
		Cedula:   cedula,
		Catalog:  viewstate.Filter(catalog, region),
		Selected: selected,
	}
}

// ErrorView is a full-page error.
type ErrorView struct {
	Page
	Message string
}

// ProgressPercent is completed over the total, rounded, or 0 with no exercises.
func ProgressPercent(completed, assigned int) int {
	total := completed + assigned
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
