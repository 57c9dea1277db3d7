package docfill_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lvillar/docfill"
)

func TestFieldMapPreservesOrder(t *testing.T) {
	var m docfill.FieldMap
	in := `{"zeta":"z","alpha":1,"items":[{"b":"2","a":"1"}],"mid":true,"gone":null}`
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if diff := cmp.Diff([]string{"zeta", "alpha", "items", "mid", "gone"}, m.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}

	items, _ := m.Get("items")
	if !items.IsList() || len(items.Records()) != 1 {
		t.Fatalf("items = %v, want one record", items)
	}
	if diff := cmp.Diff([]string{"b", "a"}, items.Records()[0].Keys()); diff != "" {
		t.Errorf("record keys (-want +got):\n%s", diff)
	}

	gone, ok := m.Get("gone")
	if !ok || !gone.IsNull() {
		t.Errorf("gone = %v (present %v), want null", gone, ok)
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"zeta":"z","alpha":1,"items":[{"b":"2","a":"1"}],"mid":true,"gone":null}`
	if string(out) != want {
		t.Errorf("Marshal = %s, want %s", out, want)
	}
}

func TestFieldMapRejectsUnsupportedShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"object value", `{"a":{"b":1}}`},
		{"scalar list item", `{"a":["x"]}`},
		{"nested record value", `{"a":[{"b":[1]}]}`},
		{"not an object", `["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m docfill.FieldMap
			err := json.Unmarshal([]byte(tt.in), &m)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, docfill.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    docfill.Value
		want string
	}{
		{docfill.Number(100), "100"},
		{docfill.Number(12.5), "12.5"},
		{docfill.Number(0), "0"},
		{docfill.Number(-0.000001), "-0.000001"},
		{docfill.Number(1.5e-7), "1.5e-7"},
		{docfill.Number(1e21), "1e+21"},
		{docfill.Number(123456789012345680000), "123456789012345680000"},
		{docfill.Number(-2.5e100), "-2.5e+100"},
		{docfill.Bool(true), "true"},
		{docfill.String("héllo"), "héllo"},
		{docfill.Null(), ""},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestValueTruthy(t *testing.T) {
	if docfill.String("").Truthy() || docfill.Number(0).Truthy() || docfill.Null().Truthy() {
		t.Error("empty values should not be truthy")
	}
	if !docfill.String("0").Truthy() || !docfill.List().Truthy() {
		t.Error("non-empty string and list should be truthy")
	}
}

func TestFieldMapClone(t *testing.T) {
	m := docfill.NewFieldMap("items", []*docfill.Record{docfill.NewRecord("a", "1")})
	c := m.Clone()

	v, _ := c.Get("items")
	v.Records()[0].Set("a", docfill.String("changed"))
	c.Set("extra", docfill.Bool(true))

	orig, _ := m.Get("items")
	if got, _ := orig.Records()[0].Get("a"); got.String() != "1" {
		t.Errorf("original record changed to %q", got.String())
	}
	if m.Len() != 1 {
		t.Errorf("original gained keys: %v", m.Keys())
	}
}

func TestEmptyListMarshalsAsArray(t *testing.T) {
	m := docfill.NewFieldMap("items", []*docfill.Record{})
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"items":[]}` {
		t.Errorf("Marshal = %s", out)
	}
}
