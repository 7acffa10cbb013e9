package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func orderContract(t *testing.T) *Contract {
	t.Helper()
	c, err := Compile(Object(map[string]*jsonschema.Schema{
		"order_id": {Type: "string"},
		"quantity": {Type: "integer"},
		"express":  {Type: "boolean"},
		"channel":  {Type: "string", Enum: []any{"phone", "web"}},
	}, "order_id"))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func TestContract_Validate(t *testing.T) {
	c := orderContract(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"valid minimal", map[string]any{"order_id": "12345"}, ""},
		{"valid full", map[string]any{"order_id": "1", "quantity": float64(2), "express": true, "channel": "web"}, ""},
		{"undeclared property allowed", map[string]any{"order_id": "1", "note": "x"}, ""},
		{"missing required", map[string]any{}, "order_id"},
		{"nil args", nil, "order_id"},
		{"null required", map[string]any{"order_id": nil}, "type"},
		{"wrong type", map[string]any{"order_id": float64(12345)}, "type"},
		{"fractional integer", map[string]any{"order_id": "1", "quantity": 1.5}, "integer"},
		{"enum mismatch", map[string]any{"order_id": "1", "channel": "fax"}, "enum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q in %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestCompile(t *testing.T) {
	c, err := Compile(nil)
	if err != nil {
		t.Fatalf("Compile(nil): %v", err)
	}
	if err := c.Validate(map[string]any{"anything": 1.0}); err != nil {
		t.Errorf("empty contract rejected args: %v", err)
	}
	if c.Schema().Type != "object" {
		t.Errorf("expected object schema, got %q", c.Schema().Type)
	}

	if _, err := Compile(&jsonschema.Schema{Type: "string"}); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema for non-object, got %v", err)
	}
}
