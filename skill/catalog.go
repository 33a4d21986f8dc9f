package skill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/samber/lo"
)

// Catalog holds the tools advertised to the model, in registration order,
// together with their compiled argument schemas.
type Catalog struct {
	mu       sync.RWMutex
	specs    []llm.ToolSpec
	resolved map[string]*jsonschema.Resolved
}

// NewCatalog compiles the given specs into a catalog.
func NewCatalog(specs ...llm.ToolSpec) (*Catalog, error) {
	c := &Catalog{resolved: make(map[string]*jsonschema.Resolved, len(specs))}
	for _, spec := range specs {
		if err := c.Add(spec); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add compiles and appends a spec. Names must be unique.
func (c *Catalog) Add(spec llm.ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	resolved, err := compileSchema(spec.Schema)
	if err != nil {
		return fmt.Errorf("tool %s: %w", spec.Name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.resolved[spec.Name]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	c.specs = append(c.specs, spec)
	c.resolved[spec.Name] = resolved
	return nil
}

// Specs returns the catalog in registration order.
func (c *Catalog) Specs() []llm.ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.ToolSpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Names returns the tool names in registration order.
func (c *Catalog) Names() []string {
	return lo.Map(c.Specs(), func(s llm.ToolSpec, _ int) string { return s.Name })
}

// Validate checks a tool call against the catalog. Empty arguments are read
// as an empty object. Failures are validation errors.
func (c *Catalog) Validate(name string, args json.RawMessage) (json.RawMessage, error) {
	c.mu.RLock()
	resolved, ok := c.resolved[name]
	c.mu.RUnlock()
	if !ok {
		return nil, validationError("unknown tool %q", name)
	}

	args = bytes.TrimSpace(args)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("arguments for %q are not valid JSON", name), Cause: err}
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("arguments for %q do not match schema", name), Cause: err}
	}
	return args, nil
}

func compileSchema(schema llm.ToolSchema) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(schema.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}
	return resolved, nil
}

// SchemaFromMap converts a decoded JSON-Schema object into an llm.ToolSchema.
// Keywords other than type, properties and required land in ExtraFields.
func SchemaFromMap(m map[string]any) llm.ToolSchema {
	schema := llm.ToolSchema{
		Type:        "object",
		Properties:  make(map[string]interface{}),
		ExtraFields: make(map[string]interface{}),
	}
	for k, v := range m {
		switch k {
		case "type":
			if t, ok := v.(string); ok && t != "" {
				schema.Type = t
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				schema.Properties = props
			}
		case "required":
			schema.Required = toStrings(v)
		default:
			schema.ExtraFields[k] = v
		}
	}
	return schema
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		return lo.FilterMap(vals, func(item any, _ int) (string, bool) {
			s, ok := item.(string)
			return s, ok
		})
	default:
		return nil
	}
}
