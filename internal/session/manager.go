package session

import (
	"sort"
	"sync"
	"time"

	"github.com/ashureev/doubt-solver/internal/domain"
	"github.com/ashureev/doubt-solver/internal/identity"
	"github.com/ashureev/doubt-solver/internal/problem"
)

// CleanupCallback is called after a surface has been removed.
type CleanupCallback func(surfaceID string)

type managedSurface struct {
	ctrl        *Controller
	unsubscribe func()
}

// Manager owns one Controller per chat surface. Controllers are created on first
// use and subscribed to problem changes of their surface.
type Manager struct {
	tracker  *problem.Tracker
	renderer Renderer
	deps     Deps

	mu        sync.RWMutex
	surfaces  map[string]*managedSurface
	onRemoved []CleanupCallback
}

// NewManager creates a manager whose controllers read problems from tracker and
// display through renderer.
func NewManager(tracker *problem.Tracker, renderer Renderer, deps Deps) *Manager {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	return &Manager{
		tracker:  tracker,
		renderer: renderer,
		deps:     deps.withDefaults(),
		surfaces: make(map[string]*managedSurface),
	}
}

// OnRemove registers cb to run whenever a surface is removed.
func (m *Manager) OnRemove(cb CleanupCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemoved = append(m.onRemoved, cb)
}

// Get returns the controller for surfaceID, creating it if needed.
func (m *Manager) Get(surfaceID string) *Controller {
	m.mu.RLock()
	s, ok := m.surfaces[surfaceID]
	m.mu.RUnlock()
	if ok {
		return s.ctrl
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.surfaces[surfaceID]; ok {
		return s.ctrl
	}

	ctrl := NewController(surfaceID, m.tracker.Source(surfaceID), m.renderer, m.deps)
	unsubscribe := m.tracker.OnChange(surfaceID, func(_, current domain.Problem) {
		ctrl.ProblemChanged(identity.ForProblem(current))
	})
	m.surfaces[surfaceID] = &managedSurface{ctrl: ctrl, unsubscribe: unsubscribe}
	m.deps.Logger.Debug("Chat surface registered", "surface_id", surfaceID)
	return ctrl
}

// Lookup returns the controller for surfaceID without creating one.
func (m *Manager) Lookup(surfaceID string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surfaces[surfaceID]
	if !ok {
		return nil, false
	}
	return s.ctrl, true
}

// Remove closes the surface and forgets everything known about it.
func (m *Manager) Remove(surfaceID, reason string) {
	m.mu.Lock()
	s, ok := m.surfaces[surfaceID]
	delete(m.surfaces, surfaceID)
	callbacks := append([]CleanupCallback(nil), m.onRemoved...)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.unsubscribe()
	s.ctrl.Close(reason)
	m.tracker.Forget(surfaceID)
	for _, cb := range callbacks {
		cb(surfaceID)
	}
	m.deps.Logger.Info("Chat surface removed", "surface_id", surfaceID, "reason", reason)
}

// Surfaces returns snapshots of every known surface ordered by surface ID.
func (m *Manager) Surfaces() []domain.SurfaceSnapshot {
	m.mu.RLock()
	ctrls := make([]*Controller, 0, len(m.surfaces))
	for _, s := range m.surfaces {
		ctrls = append(ctrls, s.ctrl)
	}
	m.mu.RUnlock()

	out := make([]domain.SurfaceSnapshot, 0, len(ctrls))
	for _, c := range ctrls {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurfaceID < out[j].SurfaceID })
	return out
}

// RemoveIdle removes surfaces unused for longer than ttl and returns their IDs.
func (m *Manager) RemoveIdle(ttl time.Duration, now time.Time) []string {
	m.mu.RLock()
	var idle []string
	for id, s := range m.surfaces {
		if now.Sub(s.ctrl.LastActivity()) > ttl {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	sort.Strings(idle)
	for _, id := range idle {
		m.Remove(id, ReasonIdle)
	}
	return idle
}

// CloseAll removes every surface.
func (m *Manager) CloseAll(reason string) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.surfaces))
	for id := range m.surfaces {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Remove(id, reason)
	}
	if len(ids) > 0 {
		m.deps.Logger.Info("Closed chat surfaces", "count", len(ids), "reason", reason)
	}
}
