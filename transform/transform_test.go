package transform

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"finvault/e2ee/cipher"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/core"
	"finvault/e2ee/schema"
)

func mustSchema(t *testing.T, raw map[string]any) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(raw)
	if err != nil {
		t.Fatalf("schema.Parse() error: %v", err)
	}
	return s
}

func financeSchema(t *testing.T) *schema.Schema {
	return mustSchema(t, map[string]any{
		"transaction": map[string]any{
			"date":        "string",
			"description": "string",
			"amount":      "integer",
			"cleared":     "boolean",
			"tags":        []any{"string"},
			"category":    "category",
			"splits":      []any{"transaction"},
		},
		"category": map[string]any{
			"name": "string",
		},
	})
}

// upper is a reversible stand-in for encryption.
func upper(_ context.Context, value, _ string) (string, error) {
	return "enc(" + value + ")", nil
}

func lower(_ context.Context, value, _ string) (string, error) {
	return strings.TrimSuffix(strings.TrimPrefix(value, "enc("), ")"), nil
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"single-transaction", Format{Single, "transaction"}, false},
		{"array-transaction", Format{Array, "transaction"}, false},
		{"map-category", Format{Map, "category"}, false},
		{"map-budget-line", Format{Map, "budget-line"}, false},
		{"list-transaction", Format{}, true},
		{"single", Format{}, true},
		{"single-", Format{}, true},
		{"", Format{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrInvalidFormat) {
					t.Errorf("ParseFormat(%q) error = %v, want ErrInvalidFormat", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormat(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestApply_Single(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{
		"id":          "123",
		"date":        "2020",
		"description": "a description",
		"amount":      float64(1500),
		"cleared":     true,
		"tags":        []any{"rent", "home"},
		"category":    map[string]any{"id": 7, "name": "housing"},
		"splits": []any{
			map[string]any{"id": "s1", "description": "half"},
		},
		"userId": "u1",
	}

	out, err := tr.Apply(context.Background(), in, "single-transaction", upper)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	want := map[string]any{
		"id":          "123",
		"date":        "enc(2020)",
		"description": "enc(a description)",
		"amount":      "enc(1500)",
		"cleared":     "enc(true)",
		"tags":        []any{"enc(rent)", "enc(home)"},
		"category":    map[string]any{"id": 7, "name": "enc(housing)"},
		"splits": []any{
			map[string]any{"id": "s1", "description": "enc(half)"},
		},
		"userId": "u1",
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Apply() = %v, want %v", out, want)
	}

	if in["date"] != "2020" || in["category"].(map[string]any)["name"] != "housing" {
		t.Error("Apply() modified its input")
	}
}

func TestApply_NullValues(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{"date": nil, "category": nil, "splits": nil}

	out, err := tr.Apply(context.Background(), in, "single-transaction", upper)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	want := map[string]any{"date": "enc(null)", "category": nil, "splits": nil}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Apply() = %v, want %v", out, want)
	}
}

func TestApply_ArrayAndMap(t *testing.T) {
	tr := New(financeSchema(t))

	arr := []any{
		map[string]any{"id": 1, "name": "a"},
		map[string]any{"id": 2, "name": "b"},
	}
	out, err := tr.Apply(context.Background(), arr, "array-category", upper)
	if err != nil {
		t.Fatalf("Apply(array) error: %v", err)
	}
	wantArr := []any{
		map[string]any{"id": 1, "name": "enc(a)"},
		map[string]any{"id": 2, "name": "enc(b)"},
	}
	if !reflect.DeepEqual(out, wantArr) {
		t.Errorf("Apply(array) = %v, want %v", out, wantArr)
	}

	m := map[string]any{
		"x": map[string]any{"name": "a"},
		"y": map[string]any{"name": "b"},
	}
	out, err = tr.Apply(context.Background(), m, "map-category", upper)
	if err != nil {
		t.Fatalf("Apply(map) error: %v", err)
	}
	wantMap := map[string]any{
		"x": map[string]any{"name": "enc(a)"},
		"y": map[string]any{"name": "enc(b)"},
	}
	if !reflect.DeepEqual(out, wantMap) {
		t.Errorf("Apply(map) = %v, want %v", out, wantMap)
	}
}

func TestApply_ShapeMismatch(t *testing.T) {
	tr := New(financeSchema(t))
	obj := map[string]any{"name": "a"}

	tests := []struct {
		name    string
		payload any
		format  string
	}{
		{"array as single", []any{obj}, "single-category"},
		{"object as array", obj, "array-category"},
		{"object of scalars as map", obj, "map-category"},
		{"array as map", []any{obj}, "map-category"},
		{"scalar as single", "a", "single-category"},
		{"array of scalars", []any{"a"}, "array-category"},
		{"nil", nil, "single-category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			fn := func(ctx context.Context, v, f string) (string, error) {
				calls++
				return v, nil
			}
			_, err := tr.Apply(context.Background(), tt.payload, tt.format, fn)
			if !errors.Is(err, errs.ErrShapeMismatch) {
				t.Errorf("Apply() error = %v, want ErrShapeMismatch", err)
			}
			if calls != 0 {
				t.Errorf("field function called %d times before the shape check", calls)
			}
		})
	}
}

func TestApply_NestedShapeMismatch(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{"category": []any{"not", "an", "object"}}

	if _, err := tr.Apply(context.Background(), in, "single-transaction", upper); !errors.Is(err, errs.ErrShapeMismatch) {
		t.Errorf("Apply() error = %v, want ErrShapeMismatch", err)
	}
}

func TestApply_UnknownModel(t *testing.T) {
	tr := New(financeSchema(t))

	_, err := tr.Apply(context.Background(), map[string]any{}, "single-transacton", upper)
	if !errors.Is(err, errs.ErrUnknownModel) {
		t.Fatalf("Apply() error = %v, want ErrUnknownModel", err)
	}
	if !strings.Contains(err.Error(), `"transaction"`) {
		t.Errorf("error %q should suggest transaction", err)
	}
}

func TestApply_FieldError(t *testing.T) {
	tr := New(financeSchema(t))
	boom := errors.New("boom")
	fn := func(ctx context.Context, v, f string) (string, error) {
		if f == "name" {
			return "", boom
		}
		return v, nil
	}

	_, err := tr.Apply(context.Background(), map[string]any{"category": map[string]any{"name": "x"}}, "single-transaction", fn)
	if !errors.Is(err, boom) {
		t.Fatalf("Apply() error = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "category.name") {
		t.Errorf("error %q should name the failing field", err)
	}
}

func TestApply_Canceled(t *testing.T) {
	tr := New(financeSchema(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Apply(ctx, map[string]any{"date": "x"}, "single-transaction", upper); !errors.Is(err, context.Canceled) {
		t.Errorf("Apply() error = %v, want context.Canceled", err)
	}
}

func TestApply_Deterministic(t *testing.T) {
	tr := New(financeSchema(t))
	in := []any{map[string]any{"date": "1", "tags": []any{"a"}}}

	a, _ := tr.Apply(context.Background(), in, "array-transaction", upper)
	b, _ := tr.Apply(context.Background(), in, "array-transaction", upper)
	if !reflect.DeepEqual(a, b) {
		t.Error("same input and function should give the same output")
	}
}

func TestApply_SelfReference(t *testing.T) {
	tr := New(mustSchema(t, map[string]any{
		"node": map[string]any{"label": "string", "children": []any{"node"}},
	}))
	in := map[string]any{
		"label": "root",
		"children": []any{
			map[string]any{"label": "leaf", "children": []any{}},
		},
	}

	out, err := tr.Apply(context.Background(), in, "single-node", upper)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	leaf := out.(map[string]any)["children"].([]any)[0].(map[string]any)
	if leaf["label"] != "enc(leaf)" {
		t.Errorf("leaf label = %v", leaf["label"])
	}
}

// >>>

func TestSingleTransactionScenario(t *testing.T) {
	c := cipher.NewAESGCMCipher(cipher.WithTestingIterations(1000))
	keys, err := core.GenerateKeysForNewUser(c, []byte("password 123"))
	if err != nil {
		t.Fatalf("GenerateKeysForNewUser() error: %v", err)
	}
	s := core.NewSession(c, nil)
	if err := s.Init(keys, []byte("password 123"), "user-1"); err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	tr := New(mustSchema(t, map[string]any{
		"transaction": map[string]any{"date": "string", "description": "string"},
	}))
	in := map[string]any{"id": "123", "date": "2020", "description": "a description"}

	encFn := func(_ context.Context, v, _ string) (string, error) { return s.Encrypt(v) }
	decFn := func(_ context.Context, v, _ string) (string, error) { return s.Decrypt(v) }

	enc, err := tr.Apply(context.Background(), in, "single-transaction", encFn)
	if err != nil {
		t.Fatalf("encrypt Apply() error: %v", err)
	}
	encObj := enc.(map[string]any)
	if encObj["id"] != "123" {
		t.Errorf("id = %v, want unchanged", encObj["id"])
	}
	for _, f := range []string{"date", "description"} {
		if encObj[f] == in[f] {
			t.Errorf("%s was not encrypted", f)
		}
	}

	dec, err := tr.Apply(context.Background(), enc, "single-transaction", decFn)
	if err != nil {
		t.Fatalf("decrypt Apply() error: %v", err)
	}
	if !reflect.DeepEqual(dec, in) {
		t.Errorf("round trip = %v, want %v", dec, in)
	}
}

func TestRoundTrip_Reversible(t *testing.T) {
	tr := New(financeSchema(t))
	in := map[string]any{"id": "9", "date": "2021", "tags": []any{"a", "b"}}

	enc, err := tr.Apply(context.Background(), in, "single-transaction", upper)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := tr.Apply(context.Background(), enc, "single-transaction", lower)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dec, in) {
		t.Errorf("round trip = %v, want %v", dec, in)
	}
}
