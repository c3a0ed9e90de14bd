package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

// Binding kinds accepted in the handler block of a tool-definition file.
const (
	KindBuiltin = "builtin"
	KindExec    = "exec"
)

var ErrUnknownHandler = errors.New("unknown handler")

// Factory builds the handler for one tool-definition file.
type Factory func(binding types.Binding) (types.Handler, error)

// Catalog holds the handler factories a tool-definition file can bind to.
// Builtin factories are keyed by name; a kind-level factory (empty name)
// serves every binding of that kind.
type Catalog struct {
	mutex     sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

func catalogKey(kind, name string) string {
	return strings.ToLower(strings.TrimSpace(kind)) + "/" + strings.TrimSpace(name)
}

// Register adds a factory. Registering the same kind and name twice is an
// error.
func (c *Catalog) Register(kind, name string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("factory for %s/%s cannot be nil", kind, name)
	}
	if strings.TrimSpace(kind) == "" {
		return errors.New("factory kind cannot be empty")
	}
	key := catalogKey(kind, name)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, exists := c.factories[key]; exists {
		return fmt.Errorf("factory %s already registered", key)
	}
	c.factories[key] = factory
	return nil
}

// MustRegister is Register for wiring code where a failure is a programming
// error.
func (c *Catalog) MustRegister(kind, name string, factory Factory) {
	if err := c.Register(kind, name, factory); err != nil {
		panic(err)
	}
}

// Resolve builds the handler for a binding.
func (c *Catalog) Resolve(binding types.Binding) (types.Handler, error) {
	kind := binding.Spec.Type
	if strings.TrimSpace(kind) == "" {
		return nil, fmt.Errorf("%w: handler type is required", ErrUnknownHandler)
	}

	c.mutex.RLock()
	factory, exists := c.factories[catalogKey(kind, binding.Spec.Name)]
	if !exists {
		factory, exists = c.factories[catalogKey(kind, "")]
	}
	c.mutex.RUnlock()

	if !exists {
		if binding.Spec.Name != "" {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownHandler, kind, binding.Spec.Name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, kind)
	}

	handler, err := factory(binding)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("factory %s returned no handler", catalogKey(kind, binding.Spec.Name))
	}
	return handler, nil
}

// Names lists the registered factory keys, sorted.
func (c *Catalog) Names() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.factories))
	for key := range c.factories {
		names = append(names, strings.TrimSuffix(key, "/"))
	}
	sort.Strings(names)
	return names
}
