package zone

import (
	"math"

	"codeberg.org/go-pdf/fpdf"
	"codeberg.org/go-pdf/fpdf/contrib/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/lvillar/docfill"
)

// pdf417Columns is the data column count used for PDF417 symbols.
const pdf417Columns = 10

type drawer struct {
	pdf  *fpdf.Fpdf
	opts options
	tr   func(string) string
}

func (d *drawer) draw(rep *docfill.Report, z docfill.Zone, fields docfill.FieldMap, pageH float64) {
	val, ok := fields.Get(z.Name)
	switch {
	case !ok || val.IsNull():
		rep.MarkSkipped(z.Name, "no value")
		return
	case val.IsList():
		rep.MarkSkipped(z.Name, "list values cannot be drawn into a zone")
		return
	}

	text := val.String()
	switch z.Format {
	case docfill.FormatQRCode, docfill.FormatCode128, docfill.FormatPDF417:
		if err := d.drawBarcode(z, text); err != nil {
			rep.MarkSkipped(z.Name, "%s: %v", z.Format, err)
			return
		}
	default:
		d.drawText(z, text, pageH)
	}
	rep.MarkFilled(z.Name)
}

func (d *drawer) drawText(z docfill.Zone, text string, pageH float64) {
	size := z.EffectiveFontSize()
	d.pdf.SetFont(d.opts.font, "", size)
	d.pdf.SetTextColor(0, 0, 0)

	s := d.tr(text)
	x, y := Position(z, pageH, d.pdf.GetStringWidth(s), d.opts.padding)
	d.pdf.Text(x, y, s)
}

// Position returns where text of width textWidth is drawn inside z, as the
// left edge and baseline in top-left page coordinates. The baseline sits
// padding above the zone bottom; horizontal placement follows the zone
// alignment with padding applied to left and right aligned text.
func Position(z docfill.Zone, pageHeight, textWidth, padding float64) (x, y float64) {
	switch z.Alignment {
	case docfill.AlignCenter:
		x = z.X + (z.Width-textWidth)/2
	case docfill.AlignRight:
		x = z.X + z.Width - textWidth - padding
	default:
		x = z.X + padding
	}

	// PDF user space has its origin at the bottom-left corner.
	baseline := pageHeight - z.Y - z.Height + padding
	return x, pageHeight - baseline
}

func (d *drawer) drawBarcode(z docfill.Zone, code string) error {
	var key string
	switch z.Format {
	case docfill.FormatQRCode:
		key = barcode.RegisterQR(d.pdf, code, qr.M, qr.Unicode)
	case docfill.FormatCode128:
		key = barcode.RegisterCode128(d.pdf, code)
	case docfill.FormatPDF417:
		key = barcode.RegisterPdf417(d.pdf, code, pdf417Columns, 2)
	}
	if d.pdf.Err() {
		err := d.pdf.Error()
		d.pdf.ClearError()
		return err
	}

	x, y, w, h := z.X, z.Y, z.Width, z.Height
	if z.Format == docfill.FormatQRCode {
		side := math.Min(w, h)
		x += (w - side) / 2
		y += (h - side) / 2
		w, h = side, side
	}
	barcode.Barcode(d.pdf, key, x, y, w, h, false)
	return nil
}
