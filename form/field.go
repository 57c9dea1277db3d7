// Package form fills interactive AcroForm fields of existing PDF documents.
//
// Fields are read and written through pdfcpu's form JSON exchange format:
// the template's fields are exported, the requested values are coerced to
// each field's type, and the result is filled back into the document.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lvillar/docfill/internal/pdfdoc"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FieldType specifies the type of a form field.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeDate     FieldType = "date"
	TypeCheckbox FieldType = "checkbox"
	TypeCombo    FieldType = "combobox"
	TypeRadio    FieldType = "radio"
	TypeList     FieldType = "listbox"
)

// Group keys of pdfcpu's form JSON and the field type each one holds.
var groupTypes = map[string]FieldType{
	"textfield":        TypeText,
	"datefield":        TypeDate,
	"checkbox":         TypeCheckbox,
	"combobox":         TypeCombo,
	"radiobuttongroup": TypeRadio,
	"listbox":          TypeList,
}

// Field describes one AcroForm field of a template.
type Field struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Type    FieldType `json:"type"`
	Value   string    `json:"value"`
	Options []string  `json:"options,omitempty"`
	Pages   []int     `json:"pages,omitempty"`
	Locked  bool      `json:"locked,omitempty"`
}

// exported is pdfcpu's form JSON kept generic so that attributes this
// package does not interpret survive the round trip into FillForm.
type exported struct {
	Header json.RawMessage                `json:"header,omitempty"`
	Forms  []map[string][]map[string]any `json:"forms"`
}

// Fields lists the AcroForm fields of template, sorted by name. A PDF
// without an AcroForm has no fields.
func Fields(template []byte) ([]Field, error) {
	doc, ok, err := export(template)
	if err != nil || !ok {
		return nil, err
	}

	var fields []Field
	for _, f := range doc.Forms {
		for group, entries := range f {
			typ, known := groupTypes[group]
			if !known {
				continue
			}
			for _, e := range entries {
				fields = append(fields, describe(typ, e))
			}
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields, nil
}

// export runs pdfcpu's form export. ok is false when the document has no
// AcroForm fields.
func export(template []byte) (*exported, bool, error) {
	ctx, err := pdfdoc.Open(template)
	if err != nil {
		return nil, false, err
	}
	if !hasAcroForm(ctx.RootDict) {
		return nil, false, nil
	}

	var buf bytes.Buffer
	if err := api.ExportFormJSON(bytes.NewReader(template), &buf, "template", pdfdoc.Config()); err != nil {
		return nil, false, fmt.Errorf("form: exporting fields: %w", err)
	}
	var doc exported
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, false, fmt.Errorf("form: decoding exported fields: %w", err)
	}
	return &doc, len(doc.Forms) > 0, nil
}

func hasAcroForm(root types.Dict) bool {
	if root == nil {
		return false
	}
	_, ok := root.Find("AcroForm")
	return ok
}

func describe(typ FieldType, e map[string]any) Field {
	f := Field{
		ID:      str(e["id"]),
		Name:    str(e["name"]),
		Type:    typ,
		Options: strs(e["options"]),
		Pages:   ints(e["pages"]),
	}
	f.Locked, _ = e["locked"].(bool)
	switch typ {
	case TypeCheckbox:
		v, _ := e["value"].(bool)
		f.Value = fmt.Sprint(v)
	case TypeList:
		vals := strs(e["values"])
		if len(vals) > 0 {
			f.Value = vals[0]
		}
	default:
		f.Value = str(e["value"])
	}
	return f
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strs(v any) []string {
	list, _ := v.([]any)
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func ints(v any) []int {
	list, _ := v.([]any)
	var out []int
	for _, item := range list {
		if n, ok := item.(float64); ok {
			out = append(out, int(n))
		}
	}
	return out
}
