package task

import (
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/ragbench/internal/domain"
)

// Registry maps task types to their handlers. It is filled at startup and
// read by the worker on every dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.TaskType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.TaskType]Handler)}
}

// Register adds the handler for taskType. Each type has at most one handler.
func (r *Registry) Register(taskType domain.TaskType, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if taskType == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, domain.ErrEmptyTaskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[taskType]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, taskType)
	}
	r.handlers[taskType] = h
	return nil
}

// Lookup returns the handler for taskType.
func (r *Registry) Lookup(taskType domain.TaskType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TaskType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
