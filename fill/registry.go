// Package fill implements the External Filler: resolving opaque datum
// tokens referenced by an event's externally-declared columns into
// materialized payloads, via a registry of pluggable handler constructors
// and a per-resource prefetch cache.
package fill

import (
	"sync"

	"github.com/bluesky/databroker/docmodel"
)

// Handler materializes datum_kwargs into a dense array or scalar. One
// Handler instance is constructed per resource and reused across all of
// that resource's datums.
type Handler interface {
	Call(datumKwargs map[string]interface{}) (interface{}, error)
}

// Constructor builds a Handler from a resolved (resource_path, root,
// resource_kwargs) triple. Root has already had any configured
// old_root->new_root substitution applied.
type Constructor func(resourcePath, root string, resourceKwargs map[string]interface{}) (Handler, error)

// Registry is the process-wide, spec→constructor capability table. Writes
// (Register/Deregister) are expected to be rare and are serialized by mu;
// readers take an immutable snapshot via lookup so concurrent Fill calls
// never block on the registry lock for longer than a map read.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor for spec. Registering over an existing spec
// without overwrite=true fails with docmodel.KindDuplicateHandler.
func (r *Registry) Register(spec string, ctor Constructor, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[spec]; exists && !overwrite {
		return &docmodel.Error{
			Kind:    docmodel.KindDuplicateHandler,
			Message: "handler already registered for spec " + spec,
		}
	}
	r.constructors[spec] = ctor
	return nil
}

// Deregister removes the constructor for spec, if any.
func (r *Registry) Deregister(spec string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.constructors, spec)
}

func (r *Registry) lookup(spec string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[spec]
	return ctor, ok
}
