package transform

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/schema"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FieldFunc transforms the stringified value of one declared field.
type FieldFunc func(ctx context.Context, value, field string) (string, error)

// fieldPlan is one declared field of a model, resolved once per schema.
type fieldPlan struct {
	name string
	typ  schema.FieldType
}

// Transformer walks JSON-like payloads (map[string]any, []any and scalars)
// along a schema. It keeps no state besides the schema.
type Transformer struct {
	schema *schema.Schema
	plans  map[string][]fieldPlan
}

func New(s *schema.Schema) *Transformer {
	t := &Transformer{
		schema: s,
		plans:  make(map[string][]fieldPlan),
	}
	for _, model := range s.Models() {
		fields, _ := s.Model(model)
		plan := make([]fieldPlan, 0, len(fields))
		for _, name := range slices.Sorted(maps.Keys(fields)) {
			plan = append(plan, fieldPlan{name: name, typ: fields[name]})
		}
		t.plans[model] = plan
	}
	return t
}

func (t *Transformer) Schema() *schema.Schema {
	return t.schema
}

// Format parses s and checks its model against the schema.
func (t *Transformer) Format(s string) (Format, error) {
	f, err := ParseFormat(s)
	if err != nil {
		return Format{}, err
	}
	if !t.schema.Has(f.Model) {
		return Format{}, t.unknownModel(f.Model)
	}
	return f, nil
}

func (t *Transformer) unknownModel(model string) error {
	models := t.schema.Models()
	ranks := fuzzy.RankFindNormalizedFold(model, models)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return fmt.Errorf("%w: %q (did you mean %q?)", errs.ErrUnknownModel, model, ranks[0].Target)
	}
	return fmt.Errorf("%w: %q", errs.ErrUnknownModel, model)
}

// >>>

// Apply returns a transformed copy of payload: fn is called on every field
// the schema declares for the model, recursing into nested models.
// Undeclared fields and null sub-models are kept as they are. The payload
// itself is never modified.
func (t *Transformer) Apply(ctx context.Context, payload any, format string, fn FieldFunc) (any, error) {
	f, err := t.Format(format)
	if err != nil {
		return nil, err
	}
	if err = CheckShape(payload, f.Shape); err != nil {
		return nil, err
	}

	out := Clone(payload)
	if err = t.apply(ctx, out, f, fn); err != nil {
		return nil, err
	}
	return out, nil
}

// apply works in place on an already cloned value.
func (t *Transformer) apply(ctx context.Context, v any, f Format, fn FieldFunc) error {
	switch f.Shape {
	case Single:
		obj, ok := v.(map[string]any)
		if !ok {
			return shapeErr(v, f)
		}
		return t.single(ctx, obj, f.Model, fn)
	case Array:
		arr, ok := v.([]any)
		if !ok {
			return shapeErr(v, f)
		}
		for i, el := range arr {
			obj, ok := el.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: element %d of %s is %T", errs.ErrShapeMismatch, i, f, el)
			}
			if err := t.single(ctx, obj, f.Model, fn); err != nil {
				return err
			}
		}
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return shapeErr(v, f)
		}
		for _, key := range slices.Sorted(maps.Keys(m)) {
			obj, ok := m[key].(map[string]any)
			if !ok {
				return fmt.Errorf("%w: value %q of %s is %T", errs.ErrShapeMismatch, key, f, m[key])
			}
			if err := t.single(ctx, obj, f.Model, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transformer) single(ctx context.Context, obj map[string]any, model string, fn FieldFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, field := range t.plans[model] {
		v, ok := obj[field.name]
		if !ok {
			continue
		}

		switch typ := field.typ.(type) {
		case schema.Primitive:
			out, err := fn(ctx, Stringify(v), field.name)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", model, field.name, err)
			}
			obj[field.name] = out

		case schema.ModelRef:
			if v == nil {
				continue
			}
			if err := t.apply(ctx, v, Format{Shape: Single, Model: typ.Model}, fn); err != nil {
				return fmt.Errorf("%s.%s: %w", model, field.name, err)
			}

		case schema.ArrayOf:
			if v == nil {
				continue
			}
			if ref, ok := typ.Elem.(schema.ModelRef); ok {
				if err := t.apply(ctx, v, Format{Shape: Array, Model: ref.Model}, fn); err != nil {
					return fmt.Errorf("%s.%s: %w", model, field.name, err)
				}
				continue
			}

			arr, ok := v.([]any)
			if !ok {
				return fmt.Errorf("%w: %s.%s is %T, not an array", errs.ErrShapeMismatch, model, field.name, v)
			}
			for i, el := range arr {
				out, err := fn(ctx, Stringify(el), field.name)
				if err != nil {
					return fmt.Errorf("%s.%s[%d]: %w", model, field.name, i, err)
				}
				arr[i] = out
			}
		}
	}
	return nil
}

// >>>

// CheckShape reports errs.ErrShapeMismatch when the top level of payload
// does not have the given shape.
func CheckShape(payload any, shape Shape) error {
	switch shape {
	case Single:
		if _, ok := payload.(map[string]any); ok {
			return nil
		}
	case Array:
		if arr, ok := payload.([]any); ok {
			for i, el := range arr {
				if _, ok := el.(map[string]any); !ok {
					return fmt.Errorf("%w: array element %d is %T, not an object", errs.ErrShapeMismatch, i, el)
				}
			}
			return nil
		}
	case Map:
		if m, ok := payload.(map[string]any); ok {
			for key, el := range m {
				if _, ok := el.(map[string]any); !ok {
					return fmt.Errorf("%w: map value %q is %T, not an object", errs.ErrShapeMismatch, key, el)
				}
			}
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown shape %q", errs.ErrInvalidFormat, shape)
	}
	return fmt.Errorf("%w: %s payload cannot be a %T", errs.ErrShapeMismatch, shape, payload)
}

func shapeErr(v any, f Format) error {
	return fmt.Errorf("%w: %s cannot be a %T", errs.ErrShapeMismatch, f, v)
}

// Clone deep copies maps and slices. Scalars are shared.
func Clone(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			out[k] = Clone(el)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = Clone(el)
		}
		return out
	default:
		return v
	}
}

// Stringify renders a field value the way it is fed to a FieldFunc. A nil
// value becomes the "null" sentinel.
func Stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
