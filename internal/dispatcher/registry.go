package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/webinspector/internal/protocol/value"
)

// Handler executes one command. A nil result is sent as an empty object.
type Handler func(ctx context.Context, params *value.Object) (*value.Object, error)

// Registry maps exact method names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a method name. It panics if the method is
// already registered or h is nil.
func (r *Registry) Register(method string, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("dispatcher: nil handler for %s", method))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[method]; exists {
		panic(fmt.Sprintf("dispatcher: duplicate handler for %s", method))
	}
	r.handlers[method] = h
}

// Get returns the handler for a method.
func (r *Registry) Get(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Has returns true if a handler is registered for the method.
func (r *Registry) Has(method string) bool {
	_, ok := r.Get(method)
	return ok
}

// List returns all registered method names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domains returns the distinct domain prefixes ("DOM", "Debugger", ...) of
// the registered methods, sorted.
func (r *Registry) Domains() []string {
	seen := make(map[string]bool)
	var domains []string
	for _, name := range r.List() {
		domain, _, ok := strings.Cut(name, ".")
		if !ok || seen[domain] {
			continue
		}
		seen[domain] = true
		domains = append(domains, domain)
	}
	return domains
}

// Count returns the number of registered methods.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
