// Package registry tracks the cancellation handles of in-flight runs.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAlreadyRunning is returned by Register when the run ID is taken.
	ErrAlreadyRunning = errors.New("run already running")

	// ErrNotFound is returned by Cancel when no run is registered under the ID.
	ErrNotFound = errors.New("run not found")
)

// Handle is the cancellation side of a live run.
// Terminate must be idempotent and safe to call after the run finished.
type Handle interface {
	Terminate()
}

// Registry maps run IDs to the handles of active runs.
// At most one handle is held per run ID.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// New creates an empty run registry.
func New() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
	}
}

// Register stores h under runID. It fails with ErrAlreadyRunning if the
// ID is already present.
func (r *Registry) Register(runID string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[runID]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, runID)
	}
	r.handles[runID] = h
	return nil
}

// Lookup returns the handle registered under runID.
func (r *Registry) Lookup(runID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[runID]
	return h, ok
}

// Unregister removes runID. Removing an absent ID is a no-op.
func (r *Registry) Unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, runID)
}

// Cancel terminates the run registered under runID. The lock is held
// across lookup and Terminate so the handle cannot be swapped for a new
// run with the same ID in between.
func (r *Registry) Cancel(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[runID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, runID)
	}
	h.Terminate()
	return nil
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// IDs returns the registered run IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
