package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"switchd/internal/domain"
)

// Payload schemas of the built-in methods.
var methodSchemas = map[string]string{
	"switch.get": `{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`,
	"switch.toggle": `{
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`,
	"switch.refresh": `{
		"type": "object",
		"properties": {"id": {"type": "string", "minLength": 1}}
	}`,
	"switch.test": `{
		"type": "object",
		"required": ["id", "role"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"role": {"type": "string", "enum": ["on", "off", "single", "status"]}
		}
	}`,
	"switch.history": `{
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"limit": {"type": "integer", "minimum": 0, "maximum": 1000}
		}
	}`,
}

// SchemaRegistry holds compiled JSON schemas for RPC payloads. Methods
// without a schema accept any payload.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry compiles the built-in method schemas.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
	for method, raw := range methodSchemas {
		if err := r.Register(method, []byte(raw)); err != nil {
			panic(fmt.Sprintf("gateway: built-in schema %s: %v", method, err))
		}
	}
	return r
}

// Register compiles and installs the schema for method.
func (r *SchemaRegistry) Register(method string, raw []byte) error {
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	r.mu.Lock()
	r.schemas[method] = schema
	r.mu.Unlock()
	return nil
}

// Validate checks payload against the schema of method. An empty payload is
// validated as an empty object.
func (r *SchemaRegistry) Validate(method string, payload json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[method]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var data any = map[string]any{}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &data); err != nil {
			return domain.NewDomainError(method, domain.ErrRPCInvalidPayload, err.Error())
		}
	}
	result := schema.Validate(data)
	if !result.IsValid() {
		return domain.NewDomainError(method, domain.ErrRPCInvalidPayload, fmt.Sprintf("%s", result.Error()))
	}
	return nil
}
