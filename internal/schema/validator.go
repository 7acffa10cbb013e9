// Package schema compiles tool parameter schemas and validates tool
// arguments against them.
package schema

import (
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrValidation is wrapped by every argument validation failure.
var ErrValidation = errors.New("schema validation failed")

// ErrInvalidSchema is returned by Compile for a schema that cannot be resolved.
var ErrInvalidSchema = errors.New("invalid parameter schema")

// Object builds an object schema from its properties and required names.
func Object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// Contract is a resolved parameter schema. Safe for concurrent use.
type Contract struct {
	resolved *jsonschema.Resolved
}

// Compile resolves s for validation. A nil schema accepts any object.
// s must not be modified afterwards.
func Compile(s *jsonschema.Schema) (*Contract, error) {
	if s == nil {
		s = Object(nil)
	}
	if s.Type != "object" {
		return nil, fmt.Errorf("%w: parameters must be an object schema, got %q", ErrInvalidSchema, s.Type)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Contract{resolved: resolved}, nil
}

// Schema returns the compiled schema.
func (c *Contract) Schema() *jsonschema.Schema {
	return c.resolved.Schema()
}

// Validate checks decoded arguments against the contract.
func (c *Contract) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if err := c.resolved.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
