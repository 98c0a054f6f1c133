package transform

import (
	"fmt"
	"strconv"

	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/schema"
)

// ConvertStringsToTypes undoes the stringification of decrypted payloads:
// integer fields become int64, boolean fields bool, and the "null" sentinel
// becomes nil on every primitive field. Values that are not strings are
// left alone.
func (t *Transformer) ConvertStringsToTypes(payload any, format string) (any, error) {
	f, err := t.Format(format)
	if err != nil {
		return nil, err
	}
	if err = CheckShape(payload, f.Shape); err != nil {
		return nil, err
	}

	out := Clone(payload)
	if err = t.convert(out, f); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transformer) convert(v any, f Format) error {
	switch f.Shape {
	case Single:
		obj, ok := v.(map[string]any)
		if !ok {
			return shapeErr(v, f)
		}
		return t.convertSingle(obj, f.Model)
	case Array:
		arr, ok := v.([]any)
		if !ok {
			return shapeErr(v, f)
		}
		for _, el := range arr {
			obj, ok := el.(map[string]any)
			if !ok {
				return shapeErr(el, f.With(Single))
			}
			if err := t.convertSingle(obj, f.Model); err != nil {
				return err
			}
		}
	case Map:
		m, ok := v.(map[string]any)
		if !ok {
			return shapeErr(v, f)
		}
		for _, el := range m {
			obj, ok := el.(map[string]any)
			if !ok {
				return shapeErr(el, f.With(Single))
			}
			if err := t.convertSingle(obj, f.Model); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transformer) convertSingle(obj map[string]any, model string) error {
	for _, field := range t.plans[model] {
		v, ok := obj[field.name]
		if !ok || v == nil {
			continue
		}

		switch typ := field.typ.(type) {
		case schema.Primitive:
			out, err := toType(v, typ.Kind)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", model, field.name, err)
			}
			obj[field.name] = out

		case schema.ModelRef:
			if err := t.convert(v, Format{Shape: Single, Model: typ.Model}); err != nil {
				return fmt.Errorf("%s.%s: %w", model, field.name, err)
			}

		case schema.ArrayOf:
			switch elem := typ.Elem.(type) {
			case schema.ModelRef:
				if err := t.convert(v, Format{Shape: Array, Model: elem.Model}); err != nil {
					return fmt.Errorf("%s.%s: %w", model, field.name, err)
				}
			case schema.Primitive:
				arr, ok := v.([]any)
				if !ok {
					return fmt.Errorf("%w: %s.%s is %T, not an array", errs.ErrShapeMismatch, model, field.name, v)
				}
				for i, el := range arr {
					out, err := toType(el, elem.Kind)
					if err != nil {
						return fmt.Errorf("%s.%s[%d]: %w", model, field.name, i, err)
					}
					arr[i] = out
				}
			}
		}
	}
	return nil
}

func toType(v any, kind schema.Kind) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if s == consts.NullSentinel {
		return nil, nil
	}

	switch kind {
	case schema.Integer:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", errs.ErrConversion, s)
		}
		return n, nil
	case schema.Boolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", errs.ErrConversion, s)
		}
		return b, nil
	default:
		return s, nil
	}
}
