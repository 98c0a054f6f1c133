package transform

import (
	"errors"
	"reflect"
	"testing"

	"finvault/e2ee/consts/errs"
)

func TestConvertStringsToTypes(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{
		"id":          "123",
		"date":        "2020",
		"description": "null",
		"amount":      "-1500",
		"cleared":     "true",
		"tags":        []any{"a", "null"},
		"category":    map[string]any{"name": "null"},
		"splits": []any{
			map[string]any{"amount": "10", "cleared": "false"},
		},
	}

	out, err := tr.ConvertStringsToTypes(in, "single-transaction")
	if err != nil {
		t.Fatalf("ConvertStringsToTypes() error: %v", err)
	}

	want := map[string]any{
		"id":          "123",
		"date":        "2020",
		"description": nil,
		"amount":      int64(-1500),
		"cleared":     true,
		"tags":        []any{"a", nil},
		"category":    map[string]any{"name": nil},
		"splits": []any{
			map[string]any{"amount": int64(10), "cleared": false},
		},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("ConvertStringsToTypes() = %v, want %v", out, want)
	}
	if in["amount"] != "-1500" {
		t.Error("ConvertStringsToTypes() modified its input")
	}
}

func TestConvertStringsToTypes_Shapes(t *testing.T) {
	tr := New(financeSchema(t))

	arr := []any{map[string]any{"amount": "1"}, map[string]any{"amount": "null"}}
	out, err := tr.ConvertStringsToTypes(arr, "array-transaction")
	if err != nil {
		t.Fatalf("array error: %v", err)
	}
	want := []any{map[string]any{"amount": int64(1)}, map[string]any{"amount": nil}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("array = %v, want %v", out, want)
	}

	m := map[string]any{"k": map[string]any{"cleared": "1"}}
	out, err = tr.ConvertStringsToTypes(m, "map-transaction")
	if err != nil {
		t.Fatalf("map error: %v", err)
	}
	if got := out.(map[string]any)["k"].(map[string]any)["cleared"]; got != true {
		t.Errorf("map cleared = %v, want true", got)
	}
}

func TestConvertStringsToTypes_Errors(t *testing.T) {
	tr := New(financeSchema(t))

	tests := []struct {
		name    string
		payload any
		want    error
	}{
		{"bad integer", map[string]any{"amount": "12.5"}, errs.ErrConversion},
		{"bad boolean", map[string]any{"cleared": "maybe"}, errs.ErrConversion},
		{"wrong shape", []any{}, errs.ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tr.ConvertStringsToTypes(tt.payload, "single-transaction"); !errors.Is(err, tt.want) {
				t.Errorf("ConvertStringsToTypes() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConvertStringsToTypes_KeepsTypedValues(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{"amount": int64(5), "cleared": false}

	out, err := tr.ConvertStringsToTypes(in, "single-transaction")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("ConvertStringsToTypes() = %v, want %v", out, in)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"x", "x"},
		{true, "true"},
		{float64(2020), "2020"},
		{1.5, "1.5"},
		{int64(-3), "-3"},
		{uint8(7), "7"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
