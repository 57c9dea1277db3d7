package selector

import (
	"regexp"

	"github.com/lvillar/docfill"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FillAuto applies fields without declared variables, in field order.
//
// A list field expands the first <tbody> of the document: its first <tr> is
// the row template, the body is emptied, and each record's values are written
// into the row's <td> cells by position in the record's key order. A scalar
// field is written into the first element whose id, class or data-field
// attribute equals the field name, tried in that order.
func FillAuto(doc *Document, fields docfill.FieldMap) docfill.Report {
	var rep docfill.Report
	for name, val := range fields.All() {
		switch {
		case val.IsNull():
			rep.MarkSkipped(name, "no value")

		case val.IsList():
			if fillTableBody(doc.root, val.Records()) {
				rep.MarkFilled(name)
			} else {
				rep.MarkSkipped(name, "no <tbody> row template")
			}

		default:
			el := resolveScalar(doc.root, name)
			if el == nil {
				rep.MarkSkipped(name, "no element with id, class or data-field %q", name)
				continue
			}
			setText(el, val.String())
			rep.MarkFilled(name)
		}
	}
	return rep
}

func resolveScalar(root *html.Node, name string) *html.Node {
	if n := query(root, byID(name)); n != nil {
		return n
	}
	if n := query(root, byClass(name)); n != nil {
		return n
	}
	return query(root, byDataField(name))
}

func fillTableBody(root *html.Node, records []*docfill.Record) bool {
	tbody := query(root, byTag(atom.Tbody))
	if tbody == nil {
		return false
	}
	tpl := query(tbody, byTag(atom.Tr))
	if tpl == nil {
		return false
	}
	tpl = clone(tpl)
	removeChildren(tbody)

	for _, rec := range records {
		row := clone(tpl)
		values := rec.Values()
		for i, cell := range queryAll(row, byTag(atom.Td)) {
			if i < len(values) && !values[i].IsNull() {
				setText(cell, values[i].String())
			}
		}
		tbody.AppendChild(row)
	}
	return true
}

var primaryColorDecl = regexp.MustCompile(`--primary-color:\s*#[0-9a-fA-F]{6};`)

// ColorPattern matches the colors accepted by ApplyPrimaryColor.
var ColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ApplyPrimaryColor replaces the first "--primary-color: #RRGGBB;"
// declaration inside the document's first <style> element. It reports whether
// a replacement happened.
func ApplyPrimaryColor(doc *Document, color string) bool {
	style := query(doc.root, byTag(atom.Style))
	if style == nil {
		return false
	}
	css := textContent(style)
	loc := primaryColorDecl.FindStringIndex(css)
	if loc == nil {
		return false
	}
	setText(style, css[:loc[0]]+"--primary-color: "+color+";"+css[loc[1]:])
	return true
}
