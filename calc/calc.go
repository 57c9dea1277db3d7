// Package calc computes derived invoice fields before a template is filled.
//
// When the field map carries a list of line items (by default under the
// "prestations" key), each line gets a formatted "total_ht" and the map gains
// the aggregate "total_ht", "tva" and "total_ttc" fields.
package calc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lvillar/docfill"
)

// Field names read and written by the calculator.
const (
	FieldLines    = "prestations"
	FieldTaxRate  = "tva_rate"
	FieldSubtotal = "total_ht"
	FieldTax      = "tva"
	FieldTotal    = "total_ttc"
	FieldLineSum  = "total_ht"
)

// DefaultTaxRate is applied when the payload has no tva_rate.
const DefaultTaxRate = 0.20

var (
	quantityKeys = []string{"quantity", "quantite"}
	priceKeys    = []string{"price", "prix_unitaire"}
)

// Totals summarizes the amounts computed for a payload.
type Totals struct {
	Lines    int
	Subtotal float64
	Tax      float64
	Total    float64
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithCurrency sets the suffix appended to formatted amounts (default "€").
func WithCurrency(suffix string) Option {
	return func(c *Calculator) { c.currency = suffix }
}

// WithDefaultTaxRate sets the tax rate (fraction, e.g. 0.2) used when the
// payload does not provide one.
func WithDefaultTaxRate(rate float64) Option {
	return func(c *Calculator) { c.defaultRate = rate }
}

// WithLinesField changes the name of the list field holding line items.
func WithLinesField(name string) Option {
	return func(c *Calculator) { c.linesField = name }
}

// Calculator derives line totals, subtotal, tax and total.
type Calculator struct {
	currency    string
	defaultRate float64
	linesField  string
}

// New returns a Calculator with the given options applied over the defaults.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		currency:    "€",
		defaultRate: DefaultTaxRate,
		linesField:  FieldLines,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply rewrites fields in place. It reports whether a line-item list was
// found; without one the map is left untouched. Apply never fails: values
// that cannot be read as numbers count as zero.
func (c *Calculator) Apply(fields *docfill.FieldMap) (Totals, bool) {
	v, ok := fields.Get(c.linesField)
	if !ok || !v.IsList() {
		return Totals{}, false
	}

	var t Totals
	for _, rec := range v.Records() {
		qty := Coerce(firstTruthy(rec, quantityKeys))
		price := Coerce(firstTruthy(rec, priceKeys))
		line := qty * price
		t.Subtotal += line
		t.Lines++
		rec.Set(FieldLineSum, docfill.String(c.Format(line)))
	}

	rate := c.defaultRate
	if r, ok := fields.Get(FieldTaxRate); ok && r.Truthy() {
		rate = Coerce(r) / 100
	}
	t.Tax = t.Subtotal * rate
	t.Total = t.Subtotal + t.Tax

	fields.Set(FieldSubtotal, docfill.String(c.Format(t.Subtotal)))
	fields.Set(FieldTax, docfill.String(c.Format(t.Tax)))
	fields.Set(FieldTotal, docfill.String(c.Format(t.Total)))
	return t, true
}

// Format renders an amount with two decimals and the currency suffix.
func (c *Calculator) Format(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64) + c.currency
}

// Apply runs a default Calculator over fields.
func Apply(fields *docfill.FieldMap) (Totals, bool) {
	return New().Apply(fields)
}

func firstTruthy(rec *docfill.Record, keys []string) docfill.Value {
	for _, k := range keys {
		if v, ok := rec.Get(k); ok && v.Truthy() {
			return v
		}
	}
	return docfill.Null()
}

// Coerce reads a value as a decimal number using the lenient policy: numbers
// pass through, booleans count as 1 or 0, and strings are stripped of
// everything except digits, '.', ',' and '-' before parsing. Unparsable input
// yields 0.
func Coerce(v docfill.Value) float64 {
	switch v.Kind() {
	case docfill.KindNumber:
		f, _ := v.Float()
		return f
	case docfill.KindBool:
		if v.Truthy() {
			return 1
		}
		return 0
	case docfill.KindString:
		return ParseLenient(v.String())
	default:
		return 0
	}
}

// ParseLenient extracts a decimal number from decorated text such as
// "12,50 €" or "1.234,56". When both '.' and ',' appear, the rightmost one is
// the decimal separator and the other is dropped as a thousands separator. A
// lone ',' is a decimal separator; repeated ',' without '.' are thousands
// separators. The longest valid numeric prefix is parsed.
func ParseLenient(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := normalizeSeparators(b.String())
	f, ok := parsePrefix(cleaned)
	if !ok {
		return 0
	}
	return f
}

func normalizeSeparators(s string) string {
	dot := strings.LastIndexByte(s, '.')
	comma := strings.LastIndexByte(s, ',')
	switch {
	case comma < 0:
		return s
	case dot < 0:
		if strings.Count(s, ",") == 1 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	default:
		return strings.ReplaceAll(s, ",", "")
	}
}

// parsePrefix parses the longest prefix of s of the form -?digits[.digits].
func parsePrefix(s string) (float64, bool) {
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		frac := end + 1
		for frac < len(s) && s[frac] >= '0' && s[frac] <= '9' {
			frac++
			digits++
		}
		if frac > end+1 {
			end = frac
		} else if digits > 0 {
			end++
		}
	}
	if digits == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String implements fmt.Stringer for log output.
func (t Totals) String() string {
	return fmt.Sprintf("lines=%d subtotal=%.2f tax=%.2f total=%.2f", t.Lines, t.Subtotal, t.Tax, t.Total)
}
