package viewstate

import (
	"context"
	"sync"
	"time"
)

// Registry maps session ids to their boards.
type Registry struct {
	mu     sync.Mutex
	boards map[string]*Board
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[string]*Board),
		now:    time.Now,
	}
}

// Get returns the board of sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *Board {
	r.mu.Lock()
	b, ok := r.boards[sessionID]
	if !ok {
		b = NewBoard()
		r.boards[sessionID] = b
	}
	r.mu.Unlock()
	b.touch(r.now())
	return b
}

// Drop forgets the board of sessionID.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.boards, sessionID)
	r.mu.Unlock()
}

// Len returns the number of live boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// Sweep drops boards idle for longer than ttl and returns how many were
// removed. A non-positive ttl disables sweeping.
func (r *Registry) Sweep(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, b := range r.boards {
		if b.idleSince(cutoff) {
			delete(r.boards, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done. It returns at once when
// ttl or interval is not positive.
func (r *Registry) Run(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ttl)
		}
	}
}
