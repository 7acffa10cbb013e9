// Package tools holds the functions the model may invoke mid-conversation.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"voice-relay-service/internal/realtime"
	"voice-relay-service/internal/schema"
)

var (
	ErrDuplicateTool    = errors.New("duplicate tool name")
	ErrInvalidTool      = errors.New("invalid tool definition")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrHandlerPanic     = errors.New("tool handler panicked")
)

// Args is the decoded argument object of a tool call.
type Args map[string]any

// String returns the named argument if it is a string.
func (a Args) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// Handler runs one tool call. The result must be JSON serializable.
type Handler func(ctx context.Context, args Args) (any, error)

// Tool is a declared function and its implementation. A nil Parameters
// schema accepts any argument object.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     Handler

	contract *schema.Contract // set by NewRegistry
}

// Registry maps tool names to tools. Read-only once built.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry, rejecting duplicate or incomplete tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("%w: %q needs a name and a handler", ErrInvalidTool, t.Name)
		}
		if _, exists := r.tools[t.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		if t.Parameters == nil {
			t.Parameters = schema.Object(nil)
		}
		contract, err := schema.Compile(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTool, t.Name, err)
		}
		t.contract = contract
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Lookup finds a tool by exact name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Definitions returns the tool schema in registration order.
func (r *Registry) Definitions() []realtime.ToolDefinition {
	defs := make([]realtime.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, realtime.ToolDefinition{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return defs
}

// Execute parses rawArgs, validates them, runs the handler and returns the
// JSON output to hand back to the model. Output is always valid JSON: any
// failure becomes {"error": "..."} and is also returned as err.
func (r *Registry) Execute(ctx context.Context, t Tool, rawArgs string) (output []byte, err error) {
	args, err := parseArgs(rawArgs)
	if err == nil {
		err = r.validate(t, args)
	}
	if err != nil {
		return errorOutput(err), err
	}

	result, err := invoke(ctx, t.Handler, args)
	if err != nil {
		return errorOutput(err), err
	}

	output, err = json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("encode %s result: %w", t.Name, err)
		return errorOutput(err), err
	}
	return output, nil
}

func (r *Registry) validate(t Tool, args Args) error {
	contract := t.contract
	if contract == nil {
		registered, ok := r.tools[t.Name]
		if !ok {
			return fmt.Errorf("%w: %s is not registered", ErrInvalidTool, t.Name)
		}
		contract = registered.contract
	}
	if err := contract.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func invoke(ctx context.Context, h Handler, args Args) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return h(ctx, args)
}

func parseArgs(raw string) (Args, error) {
	if strings.TrimSpace(raw) == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args == nil {
		return Args{}, nil
	}
	return args, nil
}

func errorOutput(err error) []byte {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return out
}
