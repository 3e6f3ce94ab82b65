// Package render turns view models into HTML pages. Rendering is a pure
// function of its input: the same view always produces the same bytes.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/wolfman30/physio-portal/internal/audit"
	"github.com/wolfman30/physio-portal/internal/viewstate"
)

//go:embed templates
var files embed.FS

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses the embedded templates. Every page gets its own clone of the
// layout and partials so their "content" blocks do not collide.
func New() (*Renderer, error) {
	base, err := template.New("base").Funcs(funcMap()).ParseFS(files, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse layout: %w", err)
	}

	pageFiles, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("render: glob pages: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, f := range pageFiles {
		name := strings.TrimSuffix(path.Base(f), ".html")
		if name == "layout" {
			continue
		}
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("render: clone layout: %w", err)
		}
		if _, err := clone.ParseFS(files, f); err != nil {
			return nil, fmt.Errorf("render: parse %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &Renderer{pages: pages}, nil
}

// MustNew is New for program start-up.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render writes page name with data. The page is buffered so a template
// error never leaves a half-written response.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("render: page %q not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render: execute %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// pageNames lists the page names known to the renderer.
func (r *Renderer) pageNames() []string {
	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	return names
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatDate renders a backend date as dd/mm/yyyy, "Sin fecha" when empty.
// Unrecognised values are shown as received.
func FormatDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Sin fecha"
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return raw
}

// RegionLabel is the button text of a filter tag.
func RegionLabel(tag string) string {
	if tag == viewstate.FilterAll {
		return "Todos"
	}
	return tag
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate":  FormatDate,
		"regionLabel": RegionLabel,
		"deref": func(p *int) int {
			if p == nil {
				return 0
			}
			return *p
		},
		"scores":     func() []int { return []int{1, 2, 3, 4, 5} },
		"eventLabel": EventLabel,
		"formatTime": func(t time.Time) string { return t.Local().Format("02/01/2006 15:04") },
	}
}

var eventLabels = map[audit.EventType]string{
	audit.EventLogin:             "Inició sesión",
	audit.EventLogout:            "Cerró sesión",
	audit.EventTherapyCompleted:  "Completó un ejercicio",
	audit.EventTherapyRated:      "Calificó un ejercicio",
	audit.EventProfileUpdated:    "Actualizó su perfil",
	audit.EventPasswordChanged:   "Cambió su contraseña",
	audit.EventExercisesAssigned: "Asignó ejercicios",
}

// EventLabel names an audit event for people. Unknown types are shown raw.
func EventLabel(t audit.EventType) string {
	if label, ok := eventLabels[t]; ok {
		return label
	}
	return string(t)
}
