package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slighter12/dataset-mcp-go/logger"
	"github.com/slighter12/dataset-mcp-go/mcp"
	"github.com/slighter12/dataset-mcp-go/tools/types"
)

var (
	ErrDuplicateName     = errors.New("duplicate tool name")
	ErrRegistryFrozen    = errors.New("tool registry is frozen")
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// Registry maps tool names to descriptors. It is filled during discovery,
// frozen, and read-only afterwards.
type Registry struct {
	mutex  sync.RWMutex
	index  map[string]int
	tools  []types.Descriptor
	frozen bool
}

// NewRegistry creates an empty registry in the loading phase.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register inserts a descriptor. The first registration of a name wins;
// later ones fail with ErrDuplicateName and leave the registry unchanged.
func (r *Registry) Register(d types.Descriptor) error {
	if d.Handler == nil {
		return fmt.Errorf("%w: %q has no handler", ErrInvalidDescriptor, d.Name)
	}
	if !d.Prepared() {
		if err := d.Prepare(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, d.Name)
	}
	if i, exists := r.index[d.Name]; exists {
		return fmt.Errorf("%w: %q already registered from %s", ErrDuplicateName, d.Name, r.tools[i].Source)
	}

	r.index[d.Name] = len(r.tools)
	r.tools = append(r.tools, d)
	logger.Debug("Tool registered", "name", d.Name, "source", d.Source)
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (types.Descriptor, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	i, exists := r.index[name]
	if !exists {
		return types.Descriptor{}, false
	}
	return r.tools[i], true
}

// List returns a copy of all descriptors in registration order.
func (r *Registry) List() []types.Descriptor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]types.Descriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

// Tools returns the listing entries advertised to clients.
func (r *Registry) Tools() []mcp.Tool {
	descriptors := r.List()
	out := make([]mcp.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Tool())
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.tools))
	for _, d := range r.tools {
		names = append(names, d.Name)
	}
	return names
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tools)
}

// Freeze ends the loading phase. It is idempotent.
func (r *Registry) Freeze() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.frozen {
		r.frozen = true
		logger.Debug("Tool registry frozen", "count", len(r.tools))
	}
}

func (r *Registry) Frozen() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.frozen
}
