// Package zone draws field values into absolute rectangles of an existing PDF.
//
// Each page of the template is imported with gofpdi as a form XObject and
// redrawn at its MediaBox size; zones are then drawn on top in declared order.
// Text zones use the Helvetica core font. Barcode zones (qrcode, code128, pdf417) scale the
// symbol into the zone rectangle.
package zone

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/internal/pdfdoc"
)

// Default page size used when the template page carries no MediaBox (A4).
const (
	defaultPageWidth  = 595.28
	defaultPageHeight = 841.89
)

// Option configures a Fill call.
type Option func(*options)

type options struct {
	padding   float64
	font      string
	timestamp time.Time
}

// WithPadding sets the inset in points between the zone edge and left or right
// aligned text, and the baseline lift from the zone bottom (default 2).
func WithPadding(p float64) Option {
	return func(o *options) { o.padding = p }
}

// WithFont selects the core font family used for text zones (default
// Helvetica).
func WithFont(family string) Option {
	return func(o *options) { o.font = family }
}

// WithTimestamp fixes the creation and modification dates written to the
// output. Equal timestamps make repeated fills reproducible.
func WithTimestamp(t time.Time) Option {
	return func(o *options) { o.timestamp = t }
}

// Fill draws fields into zones of the PDF template and returns the new
// document. Zones are validated against the template first: a zone whose page
// lies outside the document rejects the whole request with
// docfill.ErrValidation. Unparsable templates wrap docfill.ErrInvalidTemplate.
func Fill(ctx context.Context, template []byte, zones []docfill.Zone, fields docfill.FieldMap, opts ...Option) ([]byte, docfill.Report, error) {
	o := options{padding: 2, font: "Helvetica", timestamp: time.Unix(0, 0).UTC()}
	for _, opt := range opts {
		opt(&o)
	}

	pageCount, err := pdfdoc.PageCount(template)
	if err != nil {
		return nil, docfill.Report{}, err
	}
	if err := checkZones(zones, pageCount); err != nil {
		return nil, docfill.Report{}, err
	}

	byPage := make(map[int][]docfill.Zone)
	for _, z := range zones {
		byPage[z.Page] = append(byPage[z.Page], z)
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(o.timestamp)
	pdf.SetModificationDate(o.timestamp)

	imp, sizes, err := importPages(pdf, template, pageCount)
	if err != nil {
		return nil, docfill.Report{}, err
	}

	d := &drawer{pdf: pdf, opts: o, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	var rep docfill.Report
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		size := sizes[page-1]
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: size.w, Ht: size.h})
		imp.use(pdf, page, size)
		for _, z := range byPage[page] {
			d.draw(&rep, z, fields, size.h)
		}
	}

	if pdf.Err() {
		return nil, rep, fmt.Errorf("zone: drawing: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, rep, fmt.Errorf("zone: writing PDF: %w", err)
	}
	return buf.Bytes(), rep, nil
}

func checkZones(zones []docfill.Zone, pageCount int) error {
	for _, z := range zones {
		if err := z.Validate(); err != nil {
			return err
		}
		if z.Page > pageCount {
			return docfill.Validationf("zone %q: page %d is beyond the document's %d pages", z.Name, z.Page, pageCount)
		}
	}
	return nil
}
