// Package session persists who is signed in and guards the pages that need
// a signed-in user.
package session

import (
	"context"
	"errors"
	"time"
)

// User types issued by the backend.
const (
	UserPatient   = "paciente"
	UserTherapist = "fisio"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrInvalid  = errors.New("session: invalid")
	ErrExpired  = errors.New("session: token expired")
)

// Session is the persisted identity of a signed-in user.
type Session struct {
	ID          string    `json:"id"`
	Token       string    `json:"token"`
	UserType    string    `json:"tipo_usuario"`
	DisplayName string    `json:"nombre"`
	SubjectID   string    `json:"cedula"`
	CreatedAt   time.Time `json:"created_at"`
}

// Valid reports whether s carries both a token and a subject id.
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.SubjectID != ""
}

// HomePath is the dashboard of the session's user type.
func (s *Session) HomePath() string {
	if s != nil && s.UserType == UserTherapist {
		return "/fisio"
	}
	return "/paciente"
}

// Store persists sessions by id. Get returns ErrNotFound for unknown or
// expired ids; Delete of an unknown id is not an error.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type ctxKey string

const sessionKey ctxKey = "physio.session"

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session placed by Guard.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
