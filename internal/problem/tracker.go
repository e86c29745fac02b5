// Package problem tracks the problem snapshot each chat surface reports.
package problem

import (
	"sync"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/identity"
)

// ChangeFunc is called with the previous and the new snapshot of a surface.
type ChangeFunc func(old, current domain.Problem)

type subscriber struct {
	id int64
	fn ChangeFunc
}

// Tracker keeps the latest problem snapshot per surface and notifies subscribers
// whenever a surface reports a different one.
type Tracker struct {
	mu        sync.RWMutex
	current   map[string]domain.Problem
	subs      map[string][]subscriber
	nextSubID int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		current: make(map[string]domain.Problem),
		subs:    make(map[string][]subscriber),
	}
}

// Current returns the latest snapshot for surfaceID, or the zero Problem.
func (t *Tracker) Current(surfaceID string) domain.Problem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current[surfaceID]
}

// Update records p for surfaceID. Subscribers run synchronously, outside the
// tracker lock, only when the snapshot differs from the previous one.
// It reports whether anything changed.
func (t *Tracker) Update(surfaceID string, p domain.Problem) bool {
	t.mu.Lock()
	old, seen := t.current[surfaceID]
	if seen && old == p {
		t.mu.Unlock()
		return false
	}
	t.current[surfaceID] = p
	subs := append([]subscriber(nil), t.subs[surfaceID]...)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(old, p)
	}
	return true
}

// OnChange registers fn for surfaceID and returns a function that removes it.
func (t *Tracker) OnChange(surfaceID string, fn ChangeFunc) func() {
	t.mu.Lock()
	t.nextSubID++
	id := t.nextSubID
	t.subs[surfaceID] = append(t.subs[surfaceID], subscriber{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subs[surfaceID]
		for i, s := range subs {
			if s.id == id {
				t.subs[surfaceID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(t.subs[surfaceID]) == 0 {
			delete(t.subs, surfaceID)
		}
	}
}

// Forget drops the snapshot and subscribers of surfaceID.
func (t *Tracker) Forget(surfaceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, surfaceID)
	delete(t.subs, surfaceID)
}

// Source returns a read-only view of one surface's snapshot.
func (t *Tracker) Source(surfaceID string) identity.ProblemSource {
	return surfaceSource{t: t, surfaceID: surfaceID}
}

type surfaceSource struct {
	t         *Tracker
	surfaceID string
}

func (s surfaceSource) CurrentProblem() domain.Problem {
	return s.t.Current(s.surfaceID)
}
