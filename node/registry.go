package node

import (
	"sync"

	"github.com/flowcore/wfengine/errs"
)

// Registry is a catalog of node implementations keyed by type identifier,
// generalized from the teacher's Engine.nodes map (graph/engine.go) into a
// standalone, concurrency-safe component shared across multiple workflow
// schemas. Lookup is O(1).
type Registry struct {
	mu    sync.RWMutex
	nodes map[TypeID]Node
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[TypeID]Node)}
}

// Register adds impl to the catalog under its TypeID. Registration fails
// with a Configuration error if the identifier is already registered.
func (r *Registry) Register(impl Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := impl.TypeID()
	if id == "" {
		return errs.Configuration("type_id", "node type identifier must not be empty")
	}
	if _, exists := r.nodes[id]; exists {
		return errs.Configuration("type_id", "node type already registered: "+string(id))
	}
	r.nodes[id] = impl
	return nil
}

// Lookup returns the implementation registered under id, if any.
func (r *Registry) Lookup(id TypeID) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.nodes[id]
	return impl, ok
}

// MustLookup is Lookup but returning a NodeNotFound error instead of a bool,
// for call sites that need an error return (the scheduler's hot path).
func (r *Registry) MustLookup(id TypeID) (Node, error) {
	impl, ok := r.Lookup(id)
	if !ok {
		return nil, errs.NodeNotFound(string(id))
	}
	return impl, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[id]
	return ok
}

// IDs returns all registered type identifiers, in no particular order.
func (r *Registry) IDs() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeID, 0, len(r.nodes))
	for id := range r.nodes {
		out = append(out, id)
	}
	return out
}
