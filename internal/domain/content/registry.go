package content

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps content types to the handler responsible for them.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds mimeType to h, replacing any earlier binding.
func (r *Registry) Register(mimeType string, h Handler) {
	key := NormalizeType(mimeType)
	r.mu.Lock()
	r.handlers[key] = h
	r.mu.Unlock()
}

// Get returns the handler for mimeType or ErrUnsupported.
func (r *Registry) Get(mimeType string) (Handler, error) {
	key := NormalizeType(mimeType)
	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	if !ok || key == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
	return h, nil
}

// Types returns the registered content types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}

// NormalizeType lower-cases mimeType and strips parameters and whitespace.
func NormalizeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
