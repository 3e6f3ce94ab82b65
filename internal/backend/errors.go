package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized matches any backend response with status 401.
	ErrUnauthorized = errors.New("backend: unauthorized")

	// ErrNotFound matches any backend response with status 404.
	ErrNotFound = errors.New("backend: not found")
)

// GenericMessage is shown when the backend gave no usable detail.
const GenericMessage = "No fue posible completar la solicitud. Intenta de nuevo."

// APIError is a non-2xx response from the clinic backend.
type APIError struct {
	Op     string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("backend: %s: status %d: %s", e.Op, e.Status, e.Detail)
}

// Is lets callers use errors.Is with the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// UserMessage returns the text to show inline for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return GenericMessage
}

// parseDetail extracts FastAPI's "detail" field, which is either a string or
// a list of validation errors. Anything else yields "".
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
