package enrich

import "github.com/connerohnesorge/spry/internal/errs"

// FieldSpec describes one entry of a Partial's argsSchema.
type FieldSpec struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Schema validates a Partial's locals against its declared argsSchema
// (spec §4.4.2). A nil Schema always validates.
type Schema map[string]FieldSpec

func schemaFromAttrs(attrs map[string]any) Schema {
	if len(attrs) == 0 {
		return nil
	}

	schema := make(Schema, len(attrs))

	for name, raw := range attrs {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		spec := FieldSpec{}
		if t, ok := m["type"].(string); ok {
			spec.Type = t
		}
		if r, ok := m["required"].(bool); ok {
			spec.Required = r
		}

		schema[name] = spec
	}

	if len(schema) == 0 {
		return nil
	}

	return schema
}

// Validate reports the first locals mismatch against s, or nil.
// identity labels the owning Partial in the returned error.
func (s Schema) Validate(identity string, locals map[string]any) error {
	for name, spec := range s {
		val, present := locals[name]

		if spec.Required && !present {
			return &errs.SchemaValidationError{Identity: identity, Field: name, Reason: "required but missing"}
		}

		if !present || spec.Type == "" {
			continue
		}

		if !matchesType(val, spec.Type) {
			return &errs.SchemaValidationError{Identity: identity, Field: name, Reason: "expected type " + spec.Type}
		}
	}

	return nil
}

func matchesType(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)

		return ok
	case "number":
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case "boolean", "bool":
		_, ok := v.(bool)

		return ok
	case "array":
		_, ok := v.([]any)

		return ok
	case "object":
		_, ok := v.(map[string]any)

		return ok
	default:
		return true
	}
}
