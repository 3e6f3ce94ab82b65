// Package profile implements the view/edit/save/cancel cycle of the patient
// profile form.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/physio-portal/internal/backend"
)

// Mode is the state of the profile form.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "view"
}

var (
	ErrAlreadyEditing = errors.New("profile: already editing")
	ErrNotEditing     = errors.New("profile: not editing")
)

// Fields are the editable profile values. Cedula is shown but never edited.
type Fields struct {
	Cedula string
	Name   string
	Email  string
	Phone  string
}

func (f Fields) trimmed() Fields {
	return Fields{
		Cedula: f.Cedula,
		Name:   strings.TrimSpace(f.Name),
		Email:  strings.TrimSpace(f.Email),
		Phone:  strings.TrimSpace(f.Phone),
	}
}

// Writer persists a profile.
type Writer interface {
	UpdateProfile(ctx context.Context, cedula string, update backend.ProfileUpdate) (backend.Ack, error)
}

// Editor holds the form state and the pre-edit snapshot.
type Editor struct {
	mu       sync.Mutex
	mode     Mode
	current  Fields
	snapshot Fields
	loaded   bool
}

// NewEditor returns an editor in view mode with no data.
func NewEditor() *Editor {
	return &Editor{}
}

// Load replaces the displayed values with fresh backend data. It is ignored
// while editing so an in-progress edit is not clobbered.
func (e *Editor) Load(f Fields) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeEdit {
		return
	}
	e.current = f
	e.loaded = true
}

// Loaded reports whether Load has been called.
func (e *Editor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Mode returns the current mode.
func (e *Editor) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Current returns the values to display.
func (e *Editor) Current() Fields {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Begin switches to edit mode and snapshots the current values.
func (e *Editor) Begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeEdit {
		return ErrAlreadyEditing
	}
	e.snapshot = e.current
	e.mode = ModeEdit
	return nil
}

// Cancel restores the snapshot and returns to view mode.
func (e *Editor) Cancel() (Fields, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != ModeEdit {
		return e.current, ErrNotEditing
	}
	e.current = e.snapshot
	e.mode = ModeView
	return e.current, nil
}

// Save validates draft and writes it once. On a validation or write failure
// the editor stays in edit mode showing draft so the user can retry.
func (e *Editor) Save(ctx context.Context, draft Fields, w Writer) error {
	e.mu.Lock()
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return ErrNotEditing
	}
	draft = draft.trimmed()
	draft.Cedula = e.snapshot.Cedula
	e.current = draft
	e.mu.Unlock()

	if err := Validate(draft); err != nil {
		return err
	}

	update := backend.ProfileUpdate{Name: draft.Name, Email: draft.Email, Phone: draft.Phone}
	if _, err := w.UpdateProfile(ctx, draft.Cedula, update); err != nil {
		return fmt.Errorf("profile: save: %w", err)
	}

	e.mu.Lock()
	e.current = draft
	e.mode = ModeView
	e.mu.Unlock()
	return nil
}
