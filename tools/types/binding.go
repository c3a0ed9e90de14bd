package types

import (
	"fmt"
	"time"
)

// HandlerSpec is the `handler:` block of a tool-definition file.
type HandlerSpec struct {
	Type    string            `yaml:"type" json:"type"`
	Name    string            `yaml:"name,omitempty" json:"name,omitempty"`
	Options map[string]any    `yaml:"options,omitempty" json:"options,omitempty"`
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Timeout string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ParseTimeout returns the handler-level timeout, zero when unset.
func (s HandlerSpec) ParseTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid handler timeout %q: %w", s.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid handler timeout %q: must not be negative", s.Timeout)
	}
	return d, nil
}

// Binding is everything a handler factory sees about the tool it builds.
type Binding struct {
	ToolName string
	Source   string
	// Dir is the directory holding the definition file; relative exec
	// commands resolve against it.
	Dir  string
	Spec HandlerSpec
}

// Option returns a string handler option, or def when absent.
func (b Binding) Option(key, def string) string {
	if v, ok := b.Spec.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}
