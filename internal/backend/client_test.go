package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	codes []int
}

func (o *recordingObserver) ObserveBackendRequest(op string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op)
	o.codes = append(o.codes, status)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with defaults", func(t *testing.T) {
		client := NewClient("http://localhost:8000")
		require.NotNil(t, client)
		assert.Equal(t, "http://localhost:8000", client.baseURL)
		assert.NotNil(t, client.tracer)
	})

	t.Run("creates client with custom HTTP client", func(t *testing.T) {
		custom := &http.Client{Timeout: time.Second}
		client := NewClient("http://localhost:8000", WithHTTPClient(custom))
		assert.Same(t, custom, client.httpClient)
	})
}

func TestClient_ListAssigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/paciente/ejercicios-asignados/1020", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id_terapia": 7, "id_ejercicio": 1, "nombre": "Elevación lateral", "extremidad": "Hombro",
			 "descripcion": "Brazos rectos", "repeticiones": 12, "url_video": "https://v.example/1.mp4"},
			{"id_terapia": 8, "id_ejercicio": 2, "nombre": "Sentadilla", "extremidad": "Rodilla",
			 "descripcion": "Media", "repeticiones": null, "url_video": null}
		]`))
	}))
	defer server.Close()

	obs := &recordingObserver{}
	client := NewClient(server.URL, WithObserver(obs))
	items, err := client.ListAssigned(WithBearer(context.Background(), "tok-1"), "1020")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 7, items[0].TherapyID)
	assert.Equal(t, "Hombro", items[0].Region)
	assert.Equal(t, 12, items[0].Repetitions)
	assert.Equal(t, "https://v.example/1.mp4", items[0].VideoURL)
	assert.Equal(t, 0, items[1].Repetitions)
	assert.Empty(t, items[1].VideoURL)

	assert.Equal(t, []string{"list_assigned"}, obs.calls)
	assert.Equal(t, []int{http.StatusOK}, obs.codes)
}

func TestClient_ListCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paciente/ejercicios-completados/1020", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id_terapia": 3, "grupo_terapia": 2, "id_ejercicio": 5, "nombre": "Puente",
			"extremidad": "Lumbar", "descripcion": "", "repeticiones": 10,
			"fecha_realizacion": "2025-03-04", "observaciones": "Sin dolor"}]`))
	}))
	defer server.Close()

	items, err := NewClient(server.URL).ListCompleted(context.Background(), "1020")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].TherapyID)
	assert.Equal(t, 2, items[0].Group)
	assert.Equal(t, "2025-03-04", items[0].CompletedOn)
	assert.Equal(t, "Sin dolor", items[0].Observations)
	assert.Nil(t, items[0].Rating)
}

func TestClient_ListExercisesNormalizesRegion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paciente/ejercicios", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id_ejercicio": 1, "nombre": "Giro", "descripcion": "d", "parte_cuerpo": "Cervical"}]`))
	}))
	defer server.Close()

	items, err := NewClient(server.URL).ListExercises(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Cervical", items[0].Region)
}

func TestClient_MarkCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/paciente/marcar-realizado/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Terapia marcada como completada", "id_terapia": 42})
	}))
	defer server.Close()

	ack, err := NewClient(server.URL).MarkCompleted(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Terapia marcada como completada", ack.Text())
}

func TestClient_PostsJSONBodies(t *testing.T) {
	var got AssignRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/paciente/asignar-ejercicio", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"mensaje": "Ejercicios asignados correctamente"}`))
	}))
	defer server.Close()

	ack, err := NewClient(server.URL).AssignExercises(context.Background(), AssignRequest{PatientCedula: "99", ExerciseIDs: []int{1, 3}})
	require.NoError(t, err)
	assert.Equal(t, "Ejercicios asignados correctamente", ack.Text())
	assert.Equal(t, "99", got.PatientCedula)
	assert.Equal(t, []int{1, 3}, got.ExerciseIDs)
}

func TestClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ana@example.com", req.Email)
		assert.Equal(t, "secreto123", req.Password)
		_, _ = w.Write([]byte(`{"access_token": "jwt", "tipo_usuario": "paciente", "nombre": "Ana", "usuario_id": 1020}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", resp.BearerToken())
	assert.Equal(t, "1020", resp.SubjectID())
	assert.Equal(t, "paciente", resp.UserType)
}

func TestClient_GroupProgressPassesTherapist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paciente/ejercicios-por-grupo/55", r.URL.Path)
		assert.Equal(t, "77", r.URL.Query().Get("fisio_id"))
		_, _ = w.Write([]byte(`[{"grupo_terapia": 1, "total_ejercicios": 4, "completados": 1, "pendientes": 3, "progreso_porcentaje": 25.0}]`))
	}))
	defer server.Close()

	groups, err := NewClient(server.URL).GroupProgress(context.Background(), "55", "77")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 25.0, groups[0].Percent)
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		sentinel   error
	}{
		{"string detail", http.StatusNotFound, `{"detail": "Paciente no encontrado"}`, "Paciente no encontrado", ErrNotFound},
		{"validation list", http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}, {"msg": "bad email"}]}`, "field required; bad email", nil},
		{"unparseable body", http.StatusInternalServerError, `<html>oops</html>`, "", nil},
		{"unauthorized", http.StatusUnauthorized, `{"detail": "Token inválido"}`, "Token inválido", ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).GetPatient(context.Background(), "1")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			if tt.wantDetail == "" {
				assert.Equal(t, GenericMessage, UserMessage(err))
			} else {
				assert.Equal(t, tt.wantDetail, UserMessage(err))
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	obs := &recordingObserver{}
	_, err := NewClient(url, WithObserver(obs)).ListAssigned(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, GenericMessage, UserMessage(err))
	assert.Equal(t, []int{0}, obs.codes)
}

func TestIDUnmarshal(t *testing.T) {
	var v struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "0012", "b": 345, "c": null}`), &v))
	assert.Equal(t, ID("0012"), v.A)
	assert.Equal(t, ID("345"), v.B)
	assert.Equal(t, ID(""), v.C)
}

func TestTherapistActive(t *testing.T) {
	assert.True(t, Therapist{Status: "activo"}.Active())
	assert.True(t, Therapist{}.Active())
	assert.False(t, Therapist{Status: "Inactivo"}.Active())
}
