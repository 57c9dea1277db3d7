package calc_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/calc"
)

func scalar(t *testing.T, m *docfill.FieldMap, name string) string {
	t.Helper()
	v, ok := m.Get(name)
	if !ok {
		t.Fatalf("field %q missing", name)
	}
	return v.String()
}

func TestApplyDefaultRate(t *testing.T) {
	fields := docfill.NewFieldMap(
		"client", "ACME",
		"prestations", []*docfill.Record{
			docfill.NewRecord("quantity", "2", "price", "100"),
			docfill.NewRecord("quantity", "1", "price", "50"),
		},
	)

	totals, ok := calc.Apply(&fields)
	if !ok {
		t.Fatal("expected line items to be found")
	}
	if totals.Lines != 2 {
		t.Errorf("lines = %d, want 2", totals.Lines)
	}

	got := map[string]string{
		"total_ht":  scalar(t, &fields, "total_ht"),
		"tva":       scalar(t, &fields, "tva"),
		"total_ttc": scalar(t, &fields, "total_ttc"),
	}
	want := map[string]string{
		"total_ht":  "250.00€",
		"tva":       "50.00€",
		"total_ttc": "300.00€",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}

	wantKeys := []string{"client", "prestations", "total_ht", "tva", "total_ttc"}
	if diff := cmp.Diff(wantKeys, fields.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyLineTotalsAppended(t *testing.T) {
	fields := docfill.NewFieldMap("prestations", []*docfill.Record{
		docfill.NewRecord("description", "Audit", "quantite", "3", "prix_unitaire", "12.50€"),
	})
	calc.Apply(&fields)

	v, _ := fields.Get("prestations")
	rec := v.Records()[0]
	if diff := cmp.Diff([]string{"description", "quantite", "prix_unitaire", "total_ht"}, rec.Keys()); diff != "" {
		t.Errorf("record keys (-want +got):\n%s", diff)
	}
	line, _ := rec.Get("total_ht")
	if line.String() != "37.50€" {
		t.Errorf("line total = %q, want 37.50€", line.String())
	}
}

func TestApplyExplicitTaxRate(t *testing.T) {
	fields := docfill.NewFieldMap(
		"tva_rate", "5.5 %",
		"prestations", []*docfill.Record{docfill.NewRecord("quantity", 4, "price", 25)},
	)
	calc.Apply(&fields)

	if got := scalar(t, &fields, "tva"); got != "5.50€" {
		t.Errorf("tva = %q, want 5.50€", got)
	}
	if got := scalar(t, &fields, "total_ttc"); got != "105.50€" {
		t.Errorf("total_ttc = %q, want 105.50€", got)
	}
}

func TestApplyUnparsableCountsAsZero(t *testing.T) {
	fields := docfill.NewFieldMap("prestations", []*docfill.Record{
		docfill.NewRecord("quantity", "many", "price", "100"),
		docfill.NewRecord("price", "10"),
		docfill.NewRecord("quantity", 2, "price", "10"),
	})
	totals, _ := calc.Apply(&fields)
	if totals.Subtotal != 20 {
		t.Errorf("subtotal = %v, want 20", totals.Subtotal)
	}
}

func TestApplyWithoutLines(t *testing.T) {
	fields := docfill.NewFieldMap("name", "John")
	if _, ok := calc.Apply(&fields); ok {
		t.Fatal("expected no line items")
	}
	if fields.Len() != 1 {
		t.Errorf("fields were modified: %v", fields.Keys())
	}
}

func TestCalculatorOptions(t *testing.T) {
	c := calc.New(calc.WithCurrency(" EUR"), calc.WithDefaultTaxRate(0.1), calc.WithLinesField("items"))
	fields := docfill.NewFieldMap("items", []*docfill.Record{docfill.NewRecord("quantity", 1, "price", 10)})
	c.Apply(&fields)
	if got := scalar(t, &fields, "total_ttc"); got != "11.00 EUR" {
		t.Errorf("total_ttc = %q, want 11.00 EUR", got)
	}
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.50", 12.5},
		{"12,50€", 12.5},
		{"€ 12.50", 12.5},
		{"3 ", 3},
		{"3", 3},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"1,234,567", 1234567},
		{"-4.5", -4.5},
		{"20 %", 20},
		{"", 0},
		{"abc", 0},
		{"-", 0},
		{"1.2.3", 1.2},
		{"5.", 5},
	}
	for _, tt := range tests {
		if got := calc.ParseLenient(tt.in); got != tt.want {
			t.Errorf("ParseLenient(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoerceDecoratedMatchesPlain(t *testing.T) {
	pairs := [][2]string{{"12,50€", "12.50"}, {"3 ", "3"}, {"$100", "100"}}
	for _, p := range pairs {
		decorated := calc.Coerce(docfill.String(p[0]))
		plain := calc.Coerce(docfill.String(p[1]))
		if decorated != plain {
			t.Errorf("Coerce(%q) = %v, Coerce(%q) = %v", p[0], decorated, p[1], plain)
		}
	}
}
