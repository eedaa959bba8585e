package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handle tracks one admitted monitor. It stays in the registry from admission until
// the monitor has fully returned, whether it is still waiting for a pool slot or running.
type Handle struct {
	ID         string
	Path       string
	AdmittedAt time.Time

	startedAt atomic.Int64 // unix nanos; zero while pending
	done      chan struct{}
	err       error
}

// Started reports whether the monitor holds a pool slot.
func (h *Handle) Started() bool { return h.startedAt.Load() != 0 }

// StartedAt is the zero time while the handle is pending.
func (h *Handle) StartedAt() time.Time {
	if ns := h.startedAt.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Time{}
}

// Done is closed after the handle has been removed from the registry.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is valid after Done is closed.
func (h *Handle) Err() error { return h.err }

func (h *Handle) markStarted() { h.startedAt.Store(time.Now().UnixNano()) }

// Info is a point-in-time view of a handle.
type Info struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	State      string    `json:"state"`
	AdmittedAt time.Time `json:"admittedAt"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
}

// Registry maps playlist paths to their admitted monitor. It is the only state shared
// between the directory watcher and running monitors.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Reserve admits path if no monitor holds it. Check and insert happen under one lock.
func (r *Registry) Reserve(path string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handles[path]; exists {
		return nil, false
	}
	h := &Handle{
		ID:         uuid.NewString(),
		Path:       path,
		AdmittedAt: time.Now(),
		done:       make(chan struct{}),
	}
	r.handles[path] = h
	return h, true
}

// Release removes h and closes its Done channel. A handle that was already
// replaced or released is left alone.
func (r *Registry) Release(h *Handle, err error) {
	r.mu.Lock()
	current, ok := r.handles[h.Path]
	if !ok || current != h {
		r.mu.Unlock()
		return
	}
	delete(r.handles, h.Path)
	h.err = err
	r.mu.Unlock()
	close(h.done)
}

func (r *Registry) Contains(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[path]
	return ok
}

func (r *Registry) Get(path string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[path]
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Snapshot lists every admitted handle ordered by path.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.handles))
	for _, h := range r.handles {
		info := Info{ID: h.ID, Path: h.Path, State: "pending", AdmittedAt: h.AdmittedAt}
		if h.Started() {
			info.State = "running"
			info.StartedAt = h.StartedAt()
		}
		infos = append(infos, info)
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}
