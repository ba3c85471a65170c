package targets

import (
	"context"
	"sort"
	"sync"

	"eventrouter/pkg/errors"
)

// Descriptor is the public view of a registered target.
type Descriptor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type entry struct {
	target Target
	kind   string
}

type Registry struct {
	mu      sync.RWMutex
	targets map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]entry)}
}

func (r *Registry) Register(kind string, t Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID() == "" {
		return errors.ErrValidation.WithMessage("target id is required")
	}
	if _, exists := r.targets[t.ID()]; exists {
		return errors.ErrConflict.WithMessage("target already registered: " + t.ID())
	}
	r.targets[t.ID()] = entry{target: t, kind: kind}
	return nil
}

func (r *Registry) Get(id string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.targets[id]
	return e.target, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[id]; !ok {
		return false
	}
	delete(r.targets, id)
	return true
}

// List returns descriptors sorted by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.targets))
	for id, e := range r.targets {
		out = append(out, Descriptor{ID: id, Type: e.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type starter interface {
	Start()
	Stop(ctx context.Context) int
	Wait()
}

// Start launches the workers of every background target. They run until
// Stop, independent of any caller context.
func (r *Registry) Start() {
	for _, s := range r.starters() {
		s.Start()
	}
}

// Stop lets background targets work off their buffers until ctx is done and
// abandons the rest. It returns the number of abandoned envelopes.
func (r *Registry) Stop(ctx context.Context) int {
	abandoned := 0
	for _, s := range r.starters() {
		abandoned += s.Stop(ctx)
	}
	return abandoned
}

// Wait blocks until the background workers have exited.
func (r *Registry) Wait() {
	for _, s := range r.starters() {
		s.Wait()
	}
}

func (r *Registry) starters() []starter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []starter
	for _, e := range r.targets {
		if s, ok := e.target.(starter); ok {
			out = append(out, s)
		}
	}
	return out
}
