package schema

import (
	"fmt"
	"os"

	"finvault/e2ee/consts/errs"

	"gopkg.in/yaml.v3"
)

// Parse builds a Schema from its dictionary form, as decoded from YAML,
// JSON or msgpack:
//
//	transaction:
//	  date: string
//	  amount: integer
//	  tags: [string]
//	  splits: [split]
func Parse(raw any) (*Schema, error) {
	top, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: schema must be a map of models, got %T", errs.ErrInvalidSchema, raw)
	}

	models := make(map[string]Fields, len(top))
	for name, def := range top {
		fieldMap, ok := asMap(def)
		if !ok {
			return nil, fmt.Errorf("%w: model %q must be a map of fields, got %T", errs.ErrInvalidSchema, name, def)
		}

		fields := make(Fields, len(fieldMap))
		for field, v := range fieldMap {
			t, err := parseType(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", errs.ErrInvalidSchema, name, field, err)
			}
			fields[field] = t
		}
		models[name] = fields
	}

	return New(models)
}

func parseType(v any) (FieldType, error) {
	switch v := v.(type) {
	case string:
		return parseName(v)
	case []any:
		if len(v) != 1 {
			return nil, fmt.Errorf("array type must have exactly one element, got %d", len(v))
		}
		name, ok := v[0].(string)
		if !ok {
			return nil, fmt.Errorf("array element type must be a name, got %T", v[0])
		}
		elem, err := parseName(name)
		if err != nil {
			return nil, err
		}
		return ArrayOf{Elem: elem}, nil
	default:
		return nil, fmt.Errorf("field type must be a name or a one-element list, got %T", v)
	}
}

func parseName(name string) (FieldType, error) {
	if name == "" {
		return nil, fmt.Errorf("empty type name")
	}
	if kind, ok := ParseKind(name); ok {
		return Primitive{Kind: kind}, nil
	}
	return ModelRef{Model: name}, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Load reads a schema file. JSON is valid YAML, so both work.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw any
	if err = yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidSchema, err)
	}
	return Parse(raw)
}
