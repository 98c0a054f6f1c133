package transform

import (
	"fmt"
	"strings"

	"finvault/e2ee/consts/errs"
)

type Shape string

const (
	Single Shape = "single"
	Array  Shape = "array"
	Map    Shape = "map"
)

func (s Shape) valid() bool {
	return s == Single || s == Array || s == Map
}

// Format is a parsed payload format descriptor, "<shape>-<model>".
type Format struct {
	Shape Shape
	Model string
}

func (f Format) String() string {
	return string(f.Shape) + "-" + f.Model
}

// With returns f with its shape replaced.
func (f Format) With(shape Shape) Format {
	f.Shape = shape
	return f
}

func ParseFormat(s string) (Format, error) {
	shape, model, ok := strings.Cut(s, "-")
	if !ok || model == "" {
		return Format{}, fmt.Errorf("%w: %q is not <shape>-<model>", errs.ErrInvalidFormat, s)
	}
	f := Format{Shape: Shape(shape), Model: model}
	if !f.Shape.valid() {
		return Format{}, fmt.Errorf("%w: unknown shape %q in %q", errs.ErrInvalidFormat, shape, s)
	}
	return f, nil
}
