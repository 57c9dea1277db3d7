package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/internal/pdfdoc"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

type target struct {
	typ   FieldType
	entry map[string]any
}

// Option configures a Fill call.
type Option func(*options)

type options struct {
	timestamp time.Time
}

// WithTimestamp sets the modification date written to filled documents
// (default: Unix epoch). The file identifier is derived from the content, so
// equal inputs and timestamps give equal bytes.
func WithTimestamp(t time.Time) Option {
	return func(o *options) { o.timestamp = t }
}

// Fill writes fields into the AcroForm of template and returns the filled
// document. Fields are matched by full name, then by pdfcpu field id. Unknown
// names, null or list values, and locked fields are skipped and reported. When
// the template has no AcroForm, or nothing matched, the template is returned
// unchanged.
func Fill(template []byte, fields docfill.FieldMap, opts ...Option) ([]byte, docfill.Report, error) {
	o := options{timestamp: time.Unix(0, 0).UTC()}
	for _, opt := range opts {
		opt(&o)
	}
	var rep docfill.Report

	doc, ok, err := export(template)
	if err != nil {
		return nil, rep, err
	}
	if !ok {
		for name := range fields.All() {
			rep.MarkSkipped(name, "document has no form fields")
		}
		return template, rep, nil
	}

	targets := index(doc)
	for name, val := range fields.All() {
		t, found := targets[name]
		switch {
		case !found:
			rep.MarkSkipped(name, "no form field with this name")
		case val.IsNull():
			rep.MarkSkipped(name, "no value")
		case val.IsList():
			rep.MarkSkipped(name, "list values cannot fill a form field")
		case t.entry["locked"] == true:
			rep.MarkSkipped(name, "field is locked")
		default:
			assign(t, val)
			rep.MarkFilled(name)
		}
	}
	if len(rep.Filled) == 0 {
		return template, rep, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, rep, fmt.Errorf("form: encoding field values: %w", err)
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(template), bytes.NewReader(data), &out, pdfdoc.WriteConfig()); err != nil {
		return nil, rep, fmt.Errorf("form: filling fields: %w", err)
	}
	return pdfdoc.Pin(out.Bytes(), o.timestamp), rep, nil
}

func index(doc *exported) map[string]target {
	byName := make(map[string]target)
	byID := make(map[string]target)
	for _, f := range doc.Forms {
		for group, entries := range f {
			typ, known := groupTypes[group]
			if !known {
				continue
			}
			for _, e := range entries {
				t := target{typ: typ, entry: e}
				if name := str(e["name"]); name != "" {
					byName[name] = t
				}
				if id := str(e["id"]); id != "" {
					byID[id] = t
				}
			}
		}
	}
	for id, t := range byID {
		if _, taken := byName[id]; !taken {
			byName[id] = t
		}
	}
	return byName
}

// assign stores val into the exported entry using the representation pdfcpu
// expects for the field type.
func assign(t target, val docfill.Value) {
	switch t.typ {
	case TypeCheckbox:
		t.entry["value"] = Checked(val)
	case TypeList:
		t.entry["values"] = []string{val.String()}
	default:
		t.entry["value"] = val.String()
	}
}

// Checked reports whether val turns a checkbox on: true, "true", "1" or 1.
func Checked(val docfill.Value) bool {
	switch val.Kind() {
	case docfill.KindBool:
		return val.Truthy()
	case docfill.KindNumber:
		f, _ := val.Float()
		return f == 1
	case docfill.KindString:
		s := val.String()
		return s == "true" || s == "1"
	default:
		return false
	}
}
