// Package backend is a typed client for the clinic REST API
// ({backend}/paciente/... and {backend}/auth/...).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/physio-portal/pkg/logging"
)

const maxErrorBody = 64 << 10

// Observer receives one call per backend request.
type Observer interface {
	ObserveBackendRequest(operation string, status int, elapsed time.Duration)
}

// Client is an HTTP client for the clinic backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
	observer   Observer
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver reports request outcomes, typically to metrics.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient creates a backend client rooted at baseURL (e.g. "http://localhost:8000").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
		tracer: otel.Tracer("physio.internal.backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bearerKey struct{}

// WithBearer attaches the session token sent as Authorization on every request made with ctx.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPatient fetches a patient by cedula.
func (c *Client) GetPatient(ctx context.Context, cedula string) (*Patient, error) {
	var p Patient
	if err := c.do(ctx, "get_patient", http.MethodGet, "/paciente/"+url.PathEscape(cedula), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTherapist returns the therapist owning the bearer token in ctx.
func (c *Client) GetTherapist(ctx context.Context) (*Therapist, error) {
	var t Therapist
	if err := c.do(ctx, "get_therapist", http.MethodGet, "/auth/info-fisioterapeuta", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListExercises returns the full exercise catalog.
func (c *Client) ListExercises(ctx context.Context) ([]Exercise, error) {
	var wire []catalogExercise
	if err := c.do(ctx, "list_exercises", http.MethodGet, "/paciente/ejercicios", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]Exercise, len(wire))
	for i, e := range wire {
		out[i] = e.Exercise
		if out[i].Region == "" {
			out[i].Region = e.BodyPart
		}
	}
	return out, nil
}

// ListAssigned returns the pending assignments of a patient in backend order.
func (c *Client) ListAssigned(ctx context.Context, cedula string) ([]AssignedTherapy, error) {
	var items []AssignedTherapy
	if err := c.do(ctx, "list_assigned", http.MethodGet, "/paciente/ejercicios-asignados/"+url.PathEscape(cedula), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListCompleted returns the completed assignments of a patient in backend order.
func (c *Client) ListCompleted(ctx context.Context, cedula string) ([]CompletedTherapy, error) {
	var items []CompletedTherapy
	if err := c.do(ctx, "list_completed", http.MethodGet, "/paciente/ejercicios-completados/"+url.PathEscape(cedula), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkCompleted marks a therapy assignment as done.
func (c *Client) MarkCompleted(ctx context.Context, therapyID int) (Ack, error) {
	var ack Ack
	err := c.do(ctx, "mark_completed", http.MethodPut, "/paciente/marcar-realizado/"+itoa(therapyID), nil, &ack)
	return ack, err
}

// RateTherapy stores the patient's rating of a completed therapy.
func (c *Client) RateTherapy(ctx context.Context, rating Rating) (Ack, error) {
	var ack Ack
	err := c.do(ctx, "rate_therapy", http.MethodPost, "/paciente/calificar-ejercicio", rating, &ack)
	return ack, err
}

// ListRatings returns every rating a patient has submitted.
func (c *Client) ListRatings(ctx context.Context, cedula string) ([]RatingRecord, error) {
	var items []RatingRecord
	if err := c.do(ctx, "list_ratings", http.MethodGet, "/paciente/calificaciones/"+url.PathEscape(cedula), nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GroupProgress returns per-group progress of a patient as seen by a therapist.
func (c *Client) GroupProgress(ctx context.Context, cedula, therapistID string) ([]GroupProgress, error) {
	path := "/paciente/ejercicios-por-grupo/" + url.PathEscape(cedula)
	if therapistID != "" {
		path += "?fisio_id=" + url.QueryEscape(therapistID)
	}
	var groups []GroupProgress
	if err := c.do(ctx, "group_progress", http.MethodGet, path, nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AssignExercises assigns catalog exercises to a patient.
func (c *Client) AssignExercises(ctx context.Context, req AssignRequest) (Ack, error) {
	var ack Ack
	err := c.do(ctx, "assign_exercises", http.MethodPost, "/paciente/asignar-ejercicio", req, &ack)
	return ack, err
}

// UpdateProfile overwrites the patient's contact data. Last write wins.
func (c *Client) UpdateProfile(ctx context.Context, cedula string, update ProfileUpdate) (Ack, error) {
	var ack Ack
	err := c.do(ctx, "update_profile", http.MethodPut, "/paciente/"+url.PathEscape(cedula), update, &ack)
	return ack, err
}

// ChangePassword changes the password of the bearer in ctx.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) (Ack, error) {
	var ack Ack
	err := c.do(ctx, "change_password", http.MethodPost, "/auth/cambiar-contrasena", req, &ack)
	return ack, err
}

// RecoverPassword asks the backend to email a new password.
func (c *Client) RecoverPassword(ctx context.Context, email string) (Ack, error) {
	var ack Ack
	body := map[string]string{"email": email}
	err := c.do(ctx, "recover_password", http.MethodPost, "/auth/recuperar-contrasena", body, &ack)
	return ack, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	))
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendRequest(op, status, time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
		}
	}()

	var body io.Reader
	if in != nil {
		payload, mErr := json.Marshal(in)
		if mErr != nil {
			return fmt.Errorf("backend: %s: marshal request: %w", op, mErr)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: %s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := bearerFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status < 200 || status > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Op: op, Status: status, Detail: parseDetail(raw)}
		c.logger.Warn("backend request failed", "operation", op, "status", status, "detail", apiErr.Detail)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("backend: %s: decode response: %w", op, err)
	}
	c.logger.Debug("backend request completed", "operation", op, "status", status)
	return nil
}
