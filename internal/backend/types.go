package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is an identifier the backend serializes either as a JSON string or a number.
type ID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Patient is the profile record served by GET /paciente/{cedula}.
type Patient struct {
	Name            string `json:"nombre"`
	Email           string `json:"correo"`
	Phone           string `json:"telefono"`
	ClinicalHistory string `json:"historiaclinica,omitempty"`
}

// Therapist is the record served by GET /auth/info-fisioterapeuta.
type Therapist struct {
	Cedula string `json:"cedula"`
	Name   string `json:"nombre"`
	Email  string `json:"correo"`
	Phone  string `json:"telefono"`
	Status string `json:"estado"`
}

// Active reports whether the therapist account has been paid for.
func (t Therapist) Active() bool {
	return t.Status == "" || !strings.EqualFold(t.Status, "inactivo")
}

// Exercise is immutable reference data from the exercise catalog.
type Exercise struct {
	ID          int    `json:"id_ejercicio"`
	Name        string `json:"nombre"`
	Region      string `json:"extremidad"`
	Description string `json:"descripcion"`
	Repetitions int    `json:"repeticiones"`
	VideoURL    string `json:"url_video,omitempty"`
}

// catalogExercise is the wire shape of GET /paciente/ejercicios, which names
// the region column parte_cuerpo.
type catalogExercise struct {
	Exercise
	BodyPart string `json:"parte_cuerpo"`
}

// AssignedTherapy joins a therapy assignment with its exercise.
type AssignedTherapy struct {
	TherapyID int `json:"id_terapia"`
	Exercise
	Status string `json:"estado,omitempty"`
}

// CompletedTherapy is an assignment after completion.
type CompletedTherapy struct {
	TherapyID int `json:"id_terapia"`
	Group     int `json:"grupo_terapia,omitempty"`
	Exercise
	CompletedOn  string  `json:"fecha_realizacion"`
	Observations string  `json:"observaciones,omitempty"`
	Rating       *Rating `json:"calificacion,omitempty"`
}

// Rating captures how the patient felt doing an exercise, each on a 1-5 scale.
type Rating struct {
	TherapyID    int    `json:"id_terapia"`
	Pain         int    `json:"dolor"`
	Sensation    int    `json:"sensacion"`
	Fatigue      int    `json:"cansancio"`
	Observations string `json:"observaciones,omitempty"`
}

// RatingRecord is a row of GET /paciente/calificaciones/{cedula}.
type RatingRecord struct {
	Exercise     string `json:"ejercicio"`
	Pain         *int   `json:"dolor"`
	Sensation    *int   `json:"sensacion"`
	Fatigue      *int   `json:"cansancio"`
	Observations string `json:"observaciones"`
	CompletedAt  string `json:"fecha_realizado"`
}

// GroupProgress summarizes one therapy group of a patient.
type GroupProgress struct {
	Group     int     `json:"grupo_terapia"`
	Total     int     `json:"total_ejercicios"`
	Completed int     `json:"completados"`
	Pending   int     `json:"pendientes"`
	Percent   float64 `json:"progreso_porcentaje"`
	StartedOn string  `json:"fecha_inicio"`
	EndedOn   string  `json:"fecha_fin"`
	Status    string  `json:"estado"`
}

// LoginRequest is posted to /auth/login.
type LoginRequest struct {
	Email    string `json:"correo"`
	Password string `json:"contrasena"`
}

// LoginResponse is the body of a successful login. Versions of the backend
// disagree on the token and subject field names, so all of them are read.
type LoginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	UserType    string `json:"tipo_usuario"`
	Name        string `json:"nombre"`
	Cedula      ID     `json:"cedula"`
	UserID      ID     `json:"usuario_id"`
}

// BearerToken returns whichever token field the backend populated.
func (r LoginResponse) BearerToken() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

// SubjectID prefers cedula over usuario_id.
func (r LoginResponse) SubjectID() string {
	if r.Cedula != "" {
		return r.Cedula.String()
	}
	return r.UserID.String()
}

// ProfileUpdate is the body of PUT /paciente/{cedula}.
type ProfileUpdate struct {
	Name  string `json:"nombre"`
	Email string `json:"correo"`
	Phone string `json:"telefono"`
}

// ChangePasswordRequest is posted to /auth/cambiar-contrasena.
type ChangePasswordRequest struct {
	Current string `json:"contrasena_actual"`
	New     string `json:"nueva_contrasena"`
}

// AssignRequest is posted to /paciente/asignar-ejercicio.
type AssignRequest struct {
	PatientCedula string `json:"cedula_paciente"`
	ExerciseIDs   []int  `json:"ejercicios"`
}

// Ack is the generic acknowledgement body; the backend uses both spellings.
type Ack struct {
	Mensaje string `json:"mensaje"`
	Message string `json:"message"`
}

// Text returns the acknowledgement message, if any.
func (a Ack) Text() string {
	if a.Mensaje != "" {
		return a.Mensaje
	}
	return a.Message
}

func itoa(n int) string { return strconv.Itoa(n) }

// BodyRegion is the region tag used for filtering.
func (e Exercise) BodyRegion() string { return e.Region }
