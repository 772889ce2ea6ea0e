package shaderjob

import (
	"sort"
	"sync"
)

// BindFunc uploads the arguments of a launch call into b.
type BindFunc func(b Binder, args []any) error

// UpdateFunc copies written buffers from b back into the arguments and
// releases b.
type UpdateFunc func(b Binder, args []any) error

// Binding is the runtime half of one generated artifact.
type Binding struct {
	// Key is the resource key of the kernel, "<namespace>/<id>".
	Key string
	// Kernel is the kernel index inside the resource. Always 0.
	Kernel int
	// Generation is the registry generation the glue was produced at.
	Generation uint64
	// Buffers is the number of storage buffers the kernel declares.
	Buffers int
	// Extent is the literal extent the kernel was compiled with.
	Extent Dims
	Bind   BindFunc
	Update UpdateFunc
	// Groups returns the workgroup counts to dispatch.
	Groups func() Dims
}

// Registry maps artifact ids to their bindings. Generated code fills it
// through its Register function; an Executor reads it.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[int]Binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[int]Binding)}
}

// Register records b under id, replacing any earlier binding.
func (r *Registry) Register(id int, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[id] = b
}

// Lookup returns the binding registered under id.
func (r *Registry) Lookup(id int) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[id]
	return b, ok
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.bindings))
	for id := range r.bindings {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of registered bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
