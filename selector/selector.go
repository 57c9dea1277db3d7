// Package selector fills HTML templates by writing field values into DOM
// nodes addressed with CSS selectors.
//
// Two modes exist. Fill uses a declared VariableSet that binds each field to a
// selector, with list variables cloning a template node once per record.
// FillAuto needs no declarations: scalar fields resolve by id, class or
// data-field attribute, and list fields expand the first table body
// positionally. Fields that resolve to nothing are skipped, never errors.
package selector

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/lvillar/docfill"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed, mutable HTML template.
type Document struct {
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("selector: parsing HTML: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serializes the document to w.
func (d *Document) Render(w io.Writer) error {
	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("selector: rendering HTML: %w", err)
	}
	return nil
}

// String serializes the document.
func (d *Document) String() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Fill applies fields to the document through the declared variables, in
// declaration order. Variables without a value, with a value of the wrong
// shape, or whose selector matches nothing are skipped.
func Fill(doc *Document, variables []docfill.Variable, fields docfill.FieldMap) docfill.Report {
	var rep docfill.Report
	for _, v := range variables {
		val, ok := fields.Get(v.Name)
		if !ok || val.IsNull() {
			rep.MarkSkipped(v.Name, "no value")
			continue
		}

		sel, err := compile(v.Selector)
		if err != nil {
			rep.MarkSkipped(v.Name, "invalid selector %q: %v", v.Selector, err)
			continue
		}

		switch v.Type {
		case docfill.VariableText:
			if !val.IsScalar() {
				rep.MarkSkipped(v.Name, "text variable received a %s", val.Kind())
				continue
			}
			el := query(doc.root, sel)
			if el == nil {
				rep.MarkSkipped(v.Name, "selector %q matched nothing", v.Selector)
				continue
			}
			setText(el, val.String())
			rep.MarkFilled(v.Name)

		case docfill.VariableList:
			if !val.IsList() {
				rep.MarkSkipped(v.Name, "list variable received a %s", val.Kind())
				continue
			}
			tpl := query(doc.root, sel)
			if tpl == nil || tpl.Parent == nil {
				rep.MarkSkipped(v.Name, "selector %q matched nothing", v.Selector)
				continue
			}
			expandList(tpl, v.ListFields, val.Records())
			rep.MarkFilled(v.Name)

		default:
			rep.MarkSkipped(v.Name, "unknown variable type %q", v.Type)
		}
	}
	return rep
}

// expandList detaches the template node and appends one populated clone per
// record to its former parent.
func expandList(tpl *html.Node, listFields []string, records []*docfill.Record) {
	parent := tpl.Parent
	parent.RemoveChild(tpl)

	for _, rec := range records {
		item := clone(tpl)
		for i, field := range listFields {
			val, ok := rec.Get(field)
			if !ok || val.IsNull() {
				continue
			}
			if target := listTarget(item, field, i); target != nil {
				setText(target, val.String())
			}
		}
		parent.AppendChild(item)
	}
}

// listTarget finds where a list sub-field goes inside a cloned item: a
// [data-field] descendant, else a descendant carrying the field as class,
// else for table rows the index-th direct cell.
func listTarget(item *html.Node, field string, index int) *html.Node {
	if n := query(item, byDataField(field)); n != nil {
		return n
	}
	if n := query(item, byClass(field)); n != nil {
		return n
	}
	if isElement(item, atom.Tr) {
		cells := childCells(item)
		if index < len(cells) {
			return cells[index]
		}
	}
	return nil
}
