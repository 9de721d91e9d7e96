package dedupe

import "sync"

// Outcome of registering a destination key.
type Outcome int

const (
	// Accepted means the key was unseen and is now bound to the source.
	Accepted Outcome = iota
	// AlreadyUploaded means the key is already bound to the same source.
	AlreadyUploaded
	// Conflict means the key is bound to a different source. The new write must be dropped.
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case AlreadyUploaded:
		return "AlreadyUploaded"
	case Conflict:
		return "Conflict"
	}
	return "Unknown"
}

// Registry binds each destination key to the single source that produced it for
// the lifetime of a run. Bindings are never removed.
type Registry struct {
	mutex sync.Mutex
	bound map[string]string
	order []string
}

func NewRegistry() *Registry {
	return &Registry{bound: map[string]string{}}
}

// Register binds key to source if unseen. For a key already bound, it returns
// the existing source along with AlreadyUploaded or Conflict.
func (r *Registry) Register(key, source string) (Outcome, string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	existing, found := r.bound[key]
	if !found {
		r.bound[key] = source
		r.order = append(r.order, key)
		return Accepted, source
	}
	if existing == source {
		return AlreadyUploaded, existing
	}
	return Conflict, existing
}

// Source returns the source bound to key, if any.
func (r *Registry) Source(key string) (string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	source, ok := r.bound[key]
	return source, ok
}

func (r *Registry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.bound)
}

// Keys returns bound keys in registration order.
func (r *Registry) Keys() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}
