package zone_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/google/go-cmp/cmp"
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/internal/pdfdoc"
	"github.com/lvillar/docfill/zone"
)

// createTemplate generates an A4 PDF with the given number of pages.
func createTemplate(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 14)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 14)
		pdf.Text(40, 60, fmt.Sprintf("Template page %d", i))
		pdf.SetFont("Times", "B", 10)
		pdf.Text(40, 80, "Conditions")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("creating template: %v", err)
	}
	return buf.Bytes()
}

func invoiceZones() []docfill.Zone {
	return []docfill.Zone{
		{ID: "1", Name: "client", X: 50, Y: 100, Width: 200, Height: 20, Page: 1},
		{ID: "2", Name: "total", X: 350, Y: 700, Width: 150, Height: 20, Page: 2, Alignment: docfill.AlignRight, FontSize: 14},
		{ID: "3", Name: "missing", X: 50, Y: 200, Width: 100, Height: 20, Page: 1},
	}
}

func TestFill(t *testing.T) {
	tpl := createTemplate(t, 2)
	fields := docfill.NewFieldMap("client", "Société Générale", "total", 300)

	out, rep, err := zone.Fill(context.Background(), tpl, invoiceZones(), fields)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}

	n, err := pdfdoc.PageCount(out)
	if err != nil {
		t.Fatalf("reading filled PDF: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pages, got %d", n)
	}
	if diff := cmp.Diff([]string{"client", "total"}, rep.Filled); diff != "" {
		t.Errorf("filled (-want +got):\n%s", diff)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0].Field != "missing" {
		t.Errorf("skipped = %+v", rep.Skipped)
	}
	t.Logf("Filled PDF: %d bytes (template: %d bytes)", len(out), len(tpl))
}

func TestFillSkipsListValues(t *testing.T) {
	tpl := createTemplate(t, 1)
	zones := []docfill.Zone{{Name: "items", X: 10, Y: 10, Width: 100, Height: 20, Page: 1}}
	fields := docfill.NewFieldMap("items", []*docfill.Record{docfill.NewRecord("a", "1")})

	_, rep, err := zone.Fill(context.Background(), tpl, zones, fields)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if len(rep.Filled) != 0 || len(rep.Skipped) != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestFillPageOutOfRange(t *testing.T) {
	tpl := createTemplate(t, 1)
	zones := []docfill.Zone{{Name: "client", X: 10, Y: 10, Width: 100, Height: 20, Page: 3}}

	_, _, err := zone.Fill(context.Background(), tpl, zones, docfill.NewFieldMap("client", "x"))
	if !errors.Is(err, docfill.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestFillInvalidTemplate(t *testing.T) {
	_, _, err := zone.Fill(context.Background(), []byte("not a pdf"), invoiceZones(), docfill.NewFieldMap())
	if !errors.Is(err, docfill.ErrInvalidTemplate) {
		t.Fatalf("err = %v, want ErrInvalidTemplate", err)
	}
}

func TestFillCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := zone.Fill(ctx, createTemplate(t, 1), nil, docfill.NewFieldMap())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFillBarcodes(t *testing.T) {
	tpl := createTemplate(t, 1)
	zones := []docfill.Zone{
		{Name: "ref", X: 400, Y: 40, Width: 80, Height: 80, Page: 1, Format: docfill.FormatQRCode},
		{Name: "sku", X: 50, Y: 500, Width: 200, Height: 40, Page: 1, Format: docfill.FormatCode128},
		{Name: "label", X: 50, Y: 600, Width: 200, Height: 60, Page: 1, Format: docfill.FormatPDF417},
	}
	fields := docfill.NewFieldMap("ref", "INV-2026-001", "sku", "ABC-123", "label", "facture 42")

	out, rep, err := zone.Fill(context.Background(), tpl, zones, fields)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if diff := cmp.Diff([]string{"ref", "sku", "label"}, rep.Filled); diff != "" {
		t.Errorf("filled (-want +got):\n%s", diff)
	}
	if _, err := pdfdoc.PageCount(out); err != nil {
		t.Errorf("filled PDF is invalid: %v", err)
	}
}

func TestFillReproducible(t *testing.T) {
	tpl := createTemplate(t, 2)
	zones := append(invoiceZones(), docfill.Zone{
		Name: "ref", X: 400, Y: 40, Width: 80, Height: 80, Page: 1, Format: docfill.FormatQRCode,
	})
	fields := docfill.NewFieldMap("client", "ACME", "total", "300.00€", "ref", "INV-7")

	first, _, err := zone.Fill(context.Background(), tpl, zones, fields)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if n, err := pdfdoc.PageCount(first); err != nil || n != 2 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	for i := 0; i < 10; i++ {
		out, _, err := zone.Fill(context.Background(), tpl, zones, fields)
		if err != nil {
			t.Fatalf("Fill #%d: %v", i, err)
		}
		if !bytes.Equal(out, first) {
			t.Fatalf("fill #%d differs from the first fill", i)
		}
	}
}

func TestFillTimestamp(t *testing.T) {
	tpl := createTemplate(t, 1)
	fields := docfill.NewFieldMap("client", "ACME")
	a, _, err := zone.Fill(context.Background(), tpl, invoiceZones()[:1], fields)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := zone.Fill(context.Background(), tpl, invoiceZones()[:1], fields,
		zone.WithTimestamp(time.Date(2026, 1, 2, 12, 4, 5, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("timestamp option did not change the output")
	}
	if !bytes.Contains(b, []byte("20260102")) {
		t.Error("creation date not written")
	}
}

func TestPosition(t *testing.T) {
	const pageH = 842.0
	z := docfill.Zone{X: 100, Y: 200, Width: 200, Height: 20}

	tests := []struct {
		align docfill.Alignment
		wantX float64
	}{
		{docfill.AlignLeft, 102},
		{"", 102},
		{docfill.AlignCenter, 100 + (200-50)/2.0},
		{docfill.AlignRight, 100 + 200 - 50 - 2},
	}
	for _, tt := range tests {
		z.Alignment = tt.align
		x, y := zone.Position(z, pageH, 50, 2)
		if x != tt.wantX {
			t.Errorf("%q: x = %v, want %v", tt.align, x, tt.wantX)
		}
		// Bottom-left baseline pageH - y - h + 2 converted to top-left space.
		if want := pageH - (pageH - 200 - 20 + 2); y != want {
			t.Errorf("%q: y = %v, want %v", tt.align, y, want)
		}
	}
}
