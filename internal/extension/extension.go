// Package extension implements the `_namespace/method` extension
// registry: registration, dispatch, and the namespace grouping advertised
// in the initialize response's `_meta`, per spec section 4.2 and the
// glossary's "Extension method/notification" entry.
package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler processes one extension method or notification call.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry is a concurrent name->handler map requiring every registered
// name to start with "_". Duplicate registration overwrites.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty extension registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs h under name, which must begin with "_".
func (r *Registry) Register(name string, h Handler) error {
	if !strings.HasPrefix(name, "_") {
		return fmt.Errorf("extension: method name %q must begin with '_'", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// Dispatch invokes the handler registered for method, if any.
func (r *Registry) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("extension: no handler registered for %q", method)
	}
	return h(ctx, params)
}

// Namespaces groups every registered method/notification by the segment
// before its first "/", for advertisement in initialize's `_meta`.
func (r *Registry) Namespaces() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string)
	for name := range r.handlers {
		ns := name
		if idx := strings.Index(name, "/"); idx >= 0 {
			ns = name[:idx]
		}
		ns = strings.TrimPrefix(ns, "_")
		out[ns] = append(out[ns], name)
	}
	for ns := range out {
		sort.Strings(out[ns])
	}
	return out
}
