package catalog

import (
	"fmt"
	"sync"

	"github.com/bindevz/toolrt/runtime/tools"
)

// ErrNotFound mirrors the teacher store's not-found sentinel so callers can
// use errors.Is against a single well-known value.
var ErrNotFound = fmt.Errorf("catalog: tool not found")

// Registry is an in-memory, concurrency-safe tool catalog. It is populated
// once at startup via Register and is read-only for the remainder of the
// process lifetime; the mutex exists for safe concurrent reads during
// startup races, not because registrations are expected at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[tools.Ident]ToolSpec
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[tools.Ident]ToolSpec)}
}

// Register adds or replaces a tool's specification.
func (r *Registry) Register(spec ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = spec
}

// Lookup retrieves a tool's specification by name.
func (r *Registry) Lookup(name tools.Ident) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.tools[name]
	return spec, ok
}

// Names returns every registered tool name, for exposure-list filtering.
func (r *Registry) Names() []tools.Ident {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Ident, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
