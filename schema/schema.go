package schema

import (
	"fmt"
	"maps"
	"slices"

	"finvault/e2ee/consts/errs"

	"github.com/sahilm/fuzzy"
)

type Kind int

const (
	String Kind = iota
	Integer
	Boolean
)

var kindNames = map[Kind]string{
	String:  "string",
	Integer: "integer",
	Boolean: "boolean",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// FieldType is one of Primitive, ModelRef or ArrayOf.
type FieldType interface {
	fieldType()
	String() string
}

type Primitive struct {
	Kind Kind
}

// ModelRef points at another model of the same schema, or its own.
type ModelRef struct {
	Model string
}

// ArrayOf holds a Primitive or a ModelRef. Arrays of arrays are not allowed.
type ArrayOf struct {
	Elem FieldType
}

func (Primitive) fieldType() {}
func (ModelRef) fieldType() {}
func (ArrayOf) fieldType() {}

func (t Primitive) String() string { return t.Kind.String() }

func (t ModelRef) String() string { return t.Model }

func (t ArrayOf) String() string {
	if t.Elem == nil {
		return "[]"
	}
	return "[" + t.Elem.String() + "]"
}

// Fields maps a field name to its type. Only fields listed here are ever
// encrypted; everything else on an instance is left alone.
type Fields map[string]FieldType

// Schema is a validated registry of models.
type Schema struct {
	models map[string]Fields
}

// New validates models and copies them into a Schema.
func New(models map[string]Fields) (*Schema, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models declared", errs.ErrInvalidSchema)
	}

	s := &Schema{models: make(map[string]Fields, len(models))}
	for name, fields := range models {
		if name == "" {
			return nil, fmt.Errorf("%w: empty model name", errs.ErrInvalidSchema)
		}
		if fields == nil {
			return nil, fmt.Errorf("%w: model %q has no field map", errs.ErrInvalidSchema, name)
		}
		s.models[name] = maps.Clone(fields)
	}

	for _, name := range s.Models() {
		fields := s.models[name]
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			if err := s.check(fields[field], false); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", errs.ErrInvalidSchema, name, field, err)
			}
		}
	}

	return s, nil
}

func (s *Schema) check(t FieldType, inArray bool) error {
	switch t := t.(type) {
	case Primitive:
		if _, ok := kindNames[t.Kind]; !ok {
			return fmt.Errorf("unknown primitive %s", t.Kind)
		}
	case ModelRef:
		if _, ok := s.models[t.Model]; !ok {
			return fmt.Errorf("undeclared model %q%s", t.Model, s.hint(t.Model))
		}
	case ArrayOf:
		if inArray {
			return fmt.Errorf("arrays cannot be nested")
		}
		if t.Elem == nil {
			return fmt.Errorf("array type needs exactly one element type")
		}
		return s.check(t.Elem, true)
	default:
		return fmt.Errorf("missing field type")
	}
	return nil
}

func (s *Schema) hint(name string) string {
	if match := s.Suggest(name); match != "" {
		return fmt.Sprintf(" (did you mean %q?)", match)
	}
	return ""
}

// >>>

func (s *Schema) Model(name string) (Fields, bool) {
	fields, ok := s.models[name]
	return fields, ok
}

func (s *Schema) Has(name string) bool {
	_, ok := s.models[name]
	return ok
}

// Models returns the declared model names, sorted.
func (s *Schema) Models() []string {
	return slices.Sorted(maps.Keys(s.models))
}

// Suggest returns the declared model closest to name, or "".
func (s *Schema) Suggest(name string) string {
	matches := fuzzy.Find(name, s.Models())
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// Raw returns the schema in its dictionary form: model -> field -> type,
// where a type is a string or a one-element list of strings. Parse(Raw())
// returns an equal schema.
func (s *Schema) Raw() map[string]any {
	raw := make(map[string]any, len(s.models))
	for name, fields := range s.models {
		m := make(map[string]any, len(fields))
		for field, t := range fields {
			if arr, ok := t.(ArrayOf); ok {
				m[field] = []any{arr.Elem.String()}
				continue
			}
			m[field] = t.String()
		}
		raw[name] = m
	}
	return raw
}
