package viewstate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/pkg/logging"
)

// Inline messages shown when a list cannot be fetched.
const (
	AssignedLoadError  = "Error al cargar los ejercicios asignados"
	CompletedLoadError = "Error al cargar los ejercicios completados"
)

// Source reads the two exercise lists of a patient.
type Source interface {
	ListAssigned(ctx context.Context, cedula string) ([]backend.AssignedTherapy, error)
	ListCompleted(ctx context.Context, cedula string) ([]backend.CompletedTherapy, error)
}

// StaleObserver is told about responses discarded because a newer fetch was issued.
type StaleObserver interface {
	ObserveStaleResponse(list string)
}

// Loader fetches lists from a Source into boards.
type Loader struct {
	src    Source
	stale  StaleObserver
	logger *logging.Logger
}

// NewLoader creates a loader. stale may be nil.
func NewLoader(src Source, stale StaleObserver, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{src: src, stale: stale, logger: logger}
}

// Refresh fetches the requested lists concurrently (both when none are given)
// and applies each response to b if it is still the newest. A failed list
// keeps its previous items and gets an inline error; the other list is
// unaffected. The returned error joins every fetch failure.
func (l *Loader) Refresh(ctx context.Context, b *Board, cedula string, lists ...List) error {
	if len(lists) == 0 {
		lists = []List{Assigned, Completed}
	}

	// A plain Group: one list failing must not cancel the other fetch.
	var g errgroup.Group
	errs := make([]error, len(lists))
	for i, list := range lists {
		ticket := b.Begin(list)
		g.Go(func() error {
			errs[i] = l.fetch(ctx, b, ticket, cedula)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context, b *Board, t Ticket, cedula string) error {
	var (
		applied bool
		err     error
	)
	switch t.List {
	case Assigned:
		var items []backend.AssignedTherapy
		if items, err = l.src.ListAssigned(ctx, cedula); err == nil {
			applied = b.ApplyAssigned(t, items)
		} else {
			applied = b.Fail(t, AssignedLoadError)
		}
	case Completed:
		var items []backend.CompletedTherapy
		if items, err = l.src.ListCompleted(ctx, cedula); err == nil {
			applied = b.ApplyCompleted(t, items)
		} else {
			applied = b.Fail(t, CompletedLoadError)
		}
	default:
		return fmt.Errorf("viewstate: unknown list %d", t.List)
	}

	if !applied {
		l.logger.Debug("discarded stale list response", "list", t.List.String(), "seq", t.Seq)
		if l.stale != nil {
			l.stale.ObserveStaleResponse(t.List.String())
		}
	}
	if err != nil {
		return fmt.Errorf("viewstate: load %s: %w", t.List, err)
	}
	return nil
}
