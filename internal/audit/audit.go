// Package audit records who did what in the portal.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// EventType names an audited action.
type EventType string

const (
	EventLogin             EventType = "session.login"
	EventLogout            EventType = "session.logout"
	EventTherapyCompleted  EventType = "therapy.completed"
	EventTherapyRated      EventType = "therapy.rated"
	EventProfileUpdated    EventType = "profile.updated"
	EventPasswordChanged   EventType = "profile.password_changed"
	EventExercisesAssigned EventType = "exercises.assigned"
)

// Event is an immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	SubjectID string          `json:"subject_id"`
	TargetID  string          `json:"target_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows QueryEvents.
type Filter struct {
	SubjectID string
	EventType EventType
	Limit     int
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service writes audit events to Postgres. A nil Service, or one without a
// database, drops events.
type Service struct {
	db  db
	now func() time.Time
}

// NewService creates an audit service backed by a pgx pool or connection.
func NewService(db db) *Service {
	return &Service{db: db, now: time.Now}
}

// LogEvent records event, filling in the id and timestamp when unset.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	details := []byte(event.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}

	query := `
		INSERT INTO portal_audit_events (
			id, event_type, subject_id, target_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query,
		event.ID,
		string(event.EventType),
		event.SubjectID,
		event.TargetID,
		details,
		event.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

func (s *Service) logWithDetails(ctx context.Context, typ EventType, subject, target string, details any) error {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	return s.LogEvent(ctx, Event{EventType: typ, SubjectID: subject, TargetID: target, Details: raw})
}

// LogLogin records a successful sign-in.
func (s *Service) LogLogin(ctx context.Context, subject, userType string) error {
	return s.logWithDetails(ctx, EventLogin, subject, "", map[string]string{"tipo_usuario": userType})
}

// LogLogout records a sign-out.
func (s *Service) LogLogout(ctx context.Context, subject string) error {
	return s.logWithDetails(ctx, EventLogout, subject, "", nil)
}

// LogTherapyCompleted records a patient marking an exercise as done.
func (s *Service) LogTherapyCompleted(ctx context.Context, subject string, therapyID int) error {
	return s.logWithDetails(ctx, EventTherapyCompleted, subject, strconv.Itoa(therapyID), nil)
}

// LogTherapyRated records the scores given to a completed exercise.
func (s *Service) LogTherapyRated(ctx context.Context, subject string, therapyID, pain, sensation, fatigue int) error {
	return s.logWithDetails(ctx, EventTherapyRated, subject, strconv.Itoa(therapyID), map[string]int{
		"dolor":     pain,
		"sensacion": sensation,
		"cansancio": fatigue,
	})
}

// LogProfileUpdated records a profile save. Field values are not stored.
func (s *Service) LogProfileUpdated(ctx context.Context, subject string) error {
	return s.logWithDetails(ctx, EventProfileUpdated, subject, subject, nil)
}

// LogPasswordChanged records a password change.
func (s *Service) LogPasswordChanged(ctx context.Context, subject string) error {
	return s.logWithDetails(ctx, EventPasswordChanged, subject, subject, nil)
}

// LogExercisesAssigned records a therapist assigning exercises to a patient.
func (s *Service) LogExercisesAssigned(ctx context.Context, therapist, patient string, exerciseIDs []int) error {
	return s.logWithDetails(ctx, EventExercisesAssigned, therapist, patient, map[string][]int{"ejercicios": exerciseIDs})
}

// QueryEvents returns the newest events matching filter.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := `
		SELECT id, event_type, subject_id, target_id, details, created_at
		FROM portal_audit_events
		WHERE subject_id = $1
	`
	args := []any{filter.SubjectID}
	if filter.EventType != "" {
		query += " AND event_type = $2"
		args = append(args, string(filter.EventType))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			details []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.SubjectID, &e.TargetID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.EventType = EventType(typ)
		e.Details = details
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}
