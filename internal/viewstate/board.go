package viewstate

import (
	"slices"
	"sync"
	"time"

	"github.com/wolfman30/physio-portal/internal/backend"
	"github.com/wolfman30/physio-portal/internal/profile"
)

// List identifies one of the two exercise lists.
type List int

const (
	Assigned List = iota
	Completed
)

func (l List) String() string {
	if l == Completed {
		return "completed"
	}
	return "assigned"
}

// Ticket is issued when a fetch starts. Only the newest ticket of a list may
// apply its response.
type Ticket struct {
	List List
	Seq  uint64
}

// Flash is a one-shot message shown on the next render.
type Flash struct {
	Kind string // "success" or "error"
	Text string
}

// Snapshot is an immutable copy of a board, ready to render.
type Snapshot struct {
	Assigned        []backend.AssignedTherapy
	Completed       []backend.CompletedTherapy
	AssignedErr     string
	CompletedErr    string
	AssignedFilter  string
	CompletedFilter string
	AssignedLoaded  bool
	CompletedLoaded bool
	// Done holds therapy ids marked complete locally whose control must render disabled.
	Done map[int]bool
}

// Board is the view state of one session.
type Board struct {
	mu         sync.Mutex
	seq        [2]uint64
	loaded     [2]bool
	errs       [2]string
	filters    [2]string
	assigned   []backend.AssignedTherapy
	completed  []backend.CompletedTherapy
	done       map[int]bool
	flash      *Flash
	editor     *profile.Editor
	lastAccess time.Time
}

// NewBoard returns an empty board with both filters set to FilterAll.
func NewBoard() *Board {
	return &Board{
		filters:    [2]string{FilterAll, FilterAll},
		done:       map[int]bool{},
		editor:     profile.NewEditor(),
		lastAccess: time.Now(),
	}
}

// Begin issues a ticket for a new fetch of l, superseding older ones.
func (b *Board) Begin(l List) Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[l]++
	return Ticket{List: l, Seq: b.seq[l]}
}

func (b *Board) current(t Ticket) bool {
	return b.seq[t.List] == t.Seq
}

// ApplyAssigned replaces the assigned list wholesale. It reports false and
// changes nothing when t has been superseded.
func (b *Board) ApplyAssigned(t Ticket, items []backend.AssignedTherapy) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.List != Assigned || !b.current(t) {
		return false
	}
	b.assigned = slices.Clone(items)
	b.loaded[Assigned] = true
	b.errs[Assigned] = ""

	still := map[int]bool{}
	for _, item := range items {
		if b.done[item.TherapyID] {
			still[item.TherapyID] = true
		}
	}
	b.done = still
	return true
}

// ApplyCompleted replaces the completed list wholesale.
func (b *Board) ApplyCompleted(t Ticket, items []backend.CompletedTherapy) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.List != Completed || !b.current(t) {
		return false
	}
	b.completed = slices.Clone(items)
	b.loaded[Completed] = true
	b.errs[Completed] = ""
	return true
}

// Fail records an inline error for the list of t, leaving its items untouched.
func (b *Board) Fail(t Ticket, message string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.current(t) {
		return false
	}
	b.errs[t.List] = message
	return true
}

// SetFilter selects the region shown for l.
func (b *Board) SetFilter(l List, region string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters[l] = NormalizeRegion(region)
}

// MarkDoneLocally disables the control of a therapy until the backend stops
// listing it as assigned.
func (b *Board) MarkDoneLocally(therapyID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done[therapyID] = true
}

// SetFlash stores a message for the next render.
func (b *Board) SetFlash(kind, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flash = &Flash{Kind: kind, Text: text}
}

// TakeFlash returns and clears the pending message.
func (b *Board) TakeFlash() *Flash {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.flash
	b.flash = nil
	return f
}

// Editor returns the profile editor of the session.
func (b *Board) Editor() *profile.Editor {
	return b.editor
}

// Snapshot copies the board. Assigned items whose therapy id already appears
// in the completed list are left out so an item is never shown in both.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	completedIDs := make(map[int]struct{}, len(b.completed))
	for _, c := range b.completed {
		completedIDs[c.TherapyID] = struct{}{}
	}
	assigned := make([]backend.AssignedTherapy, 0, len(b.assigned))
	for _, a := range b.assigned {
		if _, dup := completedIDs[a.TherapyID]; dup {
			continue
		}
		assigned = append(assigned, a)
	}
	done := make(map[int]bool, len(b.done))
	for id := range b.done {
		done[id] = true
	}

	return Snapshot{
		Assigned:        assigned,
		Completed:       slices.Clone(b.completed),
		AssignedErr:     b.errs[Assigned],
		CompletedErr:    b.errs[Completed],
		AssignedFilter:  b.filters[Assigned],
		CompletedFilter: b.filters[Completed],
		AssignedLoaded:  b.loaded[Assigned],
		CompletedLoaded: b.loaded[Completed],
		Done:            done,
	}
}

func (b *Board) touch(now time.Time) {
	b.mu.Lock()
	b.lastAccess = now
	b.mu.Unlock()
}

func (b *Board) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAccess.Before(cutoff)
}
