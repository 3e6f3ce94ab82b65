package profile

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Password length bounds; bcrypt ignores bytes past 72.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

var (
	ErrPasswordMismatch = errors.New("Las contraseñas no coinciden")
	ErrPasswordTooShort = errors.New("La nueva contraseña debe tener al menos 8 caracteres")
	ErrPasswordTooLong  = errors.New("La contraseña debe tener máximo 72 caracteres")
	ErrPasswordRequired = errors.New("Ingresa tu contraseña actual")
)

// ValidationError maps form fields to the message shown next to them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "profile: invalid fields: " + strings.Join(parts, ", ")
}

// ValidEmail reports whether s has the shape user@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// Validate checks required fields and the email shape.
func Validate(f Fields) error {
	problems := map[string]string{}
	if strings.TrimSpace(f.Name) == "" {
		problems["nombre"] = "Este campo es obligatorio"
	}
	switch email := strings.TrimSpace(f.Email); {
	case email == "":
		problems["correo"] = "Este campo es obligatorio"
	case !ValidEmail(email):
		problems["correo"] = "Ingrese un correo electrónico válido (ejemplo: usuario@dominio.com)"
	}
	if strings.TrimSpace(f.Phone) == "" {
		problems["telefono"] = "Este campo es obligatorio"
	}
	if len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	return nil
}

// ValidatePasswordChange runs the checks done before asking the backend to
// change a password.
func ValidatePasswordChange(current, next, confirm string) error {
	switch {
	case current == "":
		return ErrPasswordRequired
	case next != confirm:
		return ErrPasswordMismatch
	case len(next) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(next) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
