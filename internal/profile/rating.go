package profile

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/physio-portal/internal/backend"
)

// Rating scale and observation limit.
const (
	MinScore             = 1
	MaxScore             = 5
	MaxObservationLength = 500
)

var (
	ErrScoreRange       = errors.New("Las calificaciones deben estar entre 1 y 5")
	ErrObservationsSize = errors.New("Las observaciones no pueden superar 500 caracteres")
)

// ParseRating builds a rating from raw form values.
func ParseRating(therapyID int, pain, sensation, fatigue, observations string) (backend.Rating, error) {
	scores := make([]int, 0, 3)
	for _, raw := range []string{pain, sensation, fatigue} {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < MinScore || n > MaxScore {
			return backend.Rating{}, ErrScoreRange
		}
		scores = append(scores, n)
	}
	observations = strings.TrimSpace(observations)
	if utf8.RuneCountInString(observations) > MaxObservationLength {
		return backend.Rating{}, ErrObservationsSize
	}
	return backend.Rating{
		TherapyID:    therapyID,
		Pain:         scores[0],
		Sensation:    scores[1],
		Fatigue:      scores[2],
		Observations: observations,
	}, nil
}
