package tools

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrToolNotFound is returned when calling a tool that is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrDuplicateTool is returned when registering a name twice.
	ErrDuplicateTool = errors.New("tool already registered")
)

// Registry manages the collection of available tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewDefaultRegistry creates a registry holding the built-in tools. The
// clock and the weather stub read the current time from now; nil means
// time.Now.
func NewDefaultRegistry(now func() time.Time) *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		NewCalculator(),
		NewClock(now),
		NewReverser(),
		NewWeather(now),
	} {
		// built-in names are unique
		_ = r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return errors.New("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return errors.Wrapf(ErrDuplicateTool, "%q", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Call executes a tool by name.
func (r *Registry) Call(ctx context.Context, name, input string) (string, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", errors.Wrapf(ErrToolNotFound, "%q", name)
	}
	return tool.Call(ctx, input)
}
