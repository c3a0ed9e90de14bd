package types

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/slighter12/dataset-mcp-go/mcp"
)

var (
	ErrInvalidName   = errors.New("invalid tool name")
	ErrInvalidSchema = errors.New("invalid input schema")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Handler executes a tool against arguments that already passed schema
// validation.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Descriptor is the registry record for one tool. It is built once during
// discovery and never mutated after registration.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema *jsonschema.Schema
	Annotations *mcp.ToolAnnotations
	Handler     Handler
	// Source is the definition file the descriptor was loaded from.
	Source string

	resolved *jsonschema.Resolved
}

// ValidName reports whether name is acceptable as a tool name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Prepare checks the name and resolves the input schema. A nil schema is
// treated as an empty object schema.
func (d *Descriptor) Prepare() error {
	if !ValidName(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	if d.InputSchema == nil {
		d.InputSchema = &jsonschema.Schema{Type: "object"}
	}
	if d.InputSchema.Type != "object" {
		return fmt.Errorf("%w: type must be \"object\", got %q", ErrInvalidSchema, d.InputSchema.Type)
	}
	resolved, err := d.InputSchema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	d.resolved = resolved
	return nil
}

// Prepared reports whether Prepare succeeded.
func (d Descriptor) Prepared() bool {
	return d.resolved != nil
}

// ValidateArguments checks args against the resolved input schema.
func (d Descriptor) ValidateArguments(args map[string]any) error {
	if d.resolved == nil {
		return fmt.Errorf("%w: schema for %q was not resolved", ErrInvalidSchema, d.Name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return d.resolved.Validate(args)
}

// Tool returns the listing entry advertised to clients.
func (d Descriptor) Tool() mcp.Tool {
	return mcp.Tool{
		Name:        d.Name,
		Title:       d.Title,
		Description: d.Description,
		InputSchema: d.InputSchema,
		Annotations: d.Annotations,
	}
}
