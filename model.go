// Package docfill fills PDF and HTML document templates with data supplied by
// webhook calls.
//
// The root package holds the shared data model: the FieldMap payload, PDF
// zones, HTML variables, and the error taxonomy. The resolvers live in
// subpackages:
//
//   - calc: derived invoice fields (line totals, tax, grand total)
//   - zone: draws field values into rectangles of an existing PDF
//   - selector: writes field values into CSS-selected nodes of an HTML document
//   - form: fills interactive AcroForm fields of a PDF
//   - render: prints HTML to PDF through headless Chrome
//
// The fill package combines them into request-scoped operations that the
// server (HTTP) and mcp (Model Context Protocol) packages expose.
package docfill

import (
	"fmt"
	"strings"
)

// Alignment controls the horizontal placement of text inside a zone.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// ZoneFormat selects how a zone's value is drawn.
type ZoneFormat string

const (
	FormatText    ZoneFormat = "text"
	FormatQRCode  ZoneFormat = "qrcode"
	FormatCode128 ZoneFormat = "code128"
	FormatPDF417  ZoneFormat = "pdf417"
)

// DefaultFontSize is used for zones that do not declare a font size.
const DefaultFontSize = 12

// Zone is an absolute rectangle on a PDF page where a field value is drawn.
// Coordinates are PDF points with the origin at the top-left corner of the
// page, as captured by the zone editor.
type Zone struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Page      int        `json:"page"` // 1-based
	FontSize  float64    `json:"fontSize,omitempty"`
	Alignment Alignment  `json:"alignment,omitempty"`
	Format    ZoneFormat `json:"format,omitempty"`
}

// EffectiveFontSize returns the zone font size or DefaultFontSize.
func (z Zone) EffectiveFontSize() float64 {
	if z.FontSize > 0 {
		return z.FontSize
	}
	return DefaultFontSize
}

// Validate checks the zone invariants: page >= 1, positive size, known
// alignment and format.
func (z Zone) Validate() error {
	if z.Name == "" {
		return Validationf("zone %q: missing name", z.ID)
	}
	if z.Page < 1 {
		return Validationf("zone %q: page must be >= 1, got %d", z.Name, z.Page)
	}
	if z.Width <= 0 || z.Height <= 0 {
		return Validationf("zone %q: width and height must be positive", z.Name)
	}
	switch z.Alignment {
	case "", AlignLeft, AlignCenter, AlignRight:
	default:
		return Validationf("zone %q: unknown alignment %q", z.Name, z.Alignment)
	}
	switch z.Format {
	case "", FormatText, FormatQRCode, FormatCode128, FormatPDF417:
	default:
		return Validationf("zone %q: unknown format %q", z.Name, z.Format)
	}
	return nil
}

// ZoneSet is the persisted collection of zones for one PDF template.
type ZoneSet struct {
	TemplateName string `json:"templateName"`
	Zones        []Zone `json:"zones"`
}

// Validate checks every zone of the set.
func (s ZoneSet) Validate() error {
	for _, z := range s.Zones {
		if err := z.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// VariableType distinguishes scalar and repeated HTML variables.
type VariableType string

const (
	VariableText VariableType = "text"
	VariableList VariableType = "list"
)

// Variable binds a field name to a CSS selector in an HTML template.
type Variable struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Selector   string       `json:"selector"`
	Type       VariableType `json:"type"`
	ListFields []string     `json:"listFields,omitempty"`
}

// Validate checks that the variable has a name, a selector and a known type.
func (v Variable) Validate() error {
	if v.Name == "" {
		return Validationf("variable %q: missing name", v.ID)
	}
	if strings.TrimSpace(v.Selector) == "" {
		return Validationf("variable %q: missing selector", v.Name)
	}
	switch v.Type {
	case VariableText, VariableList:
	default:
		return Validationf("variable %q: unknown type %q", v.Name, v.Type)
	}
	return nil
}

// VariableSet is the persisted collection of variables for one HTML template.
type VariableSet struct {
	TemplateName string     `json:"templateName"`
	Variables    []Variable `json:"variables"`
}

// Validate checks every variable of the set.
func (s VariableSet) Validate() error {
	for _, v := range s.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TemplateKind is derived from a template file extension.
type TemplateKind int

const (
	TemplateUnknown TemplateKind = iota
	TemplatePDF
	TemplateHTML
)

// KindOf returns the template kind for a file name.
func KindOf(name string) TemplateKind {
	switch {
	case strings.HasSuffix(name, ".pdf"):
		return TemplatePDF
	case strings.HasSuffix(name, ".html"):
		return TemplateHTML
	default:
		return TemplateUnknown
	}
}

// ValidateName rejects file names that could escape the documents root or
// that do not name a PDF or HTML template.
func ValidateName(name string) error {
	if name == "" {
		return Validationf("missing file name")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return Validationf("invalid file name %q", name)
	}
	if KindOf(name) == TemplateUnknown {
		return Validationf("only PDF and HTML files are allowed: %q", name)
	}
	return nil
}

// ContentType returns the MIME type served for a template or artifact name.
func ContentType(name string) string {
	switch KindOf(name) {
	case TemplatePDF:
		return "application/pdf"
	case TemplateHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// BaseName strips the template extension.
func BaseName(name string) string {
	return strings.TrimSuffix(strings.TrimSuffix(name, ".html"), ".pdf")
}

func (k TemplateKind) String() string {
	switch k {
	case TemplatePDF:
		return "PDF"
	case TemplateHTML:
		return "HTML"
	default:
		return fmt.Sprintf("TemplateKind(%d)", int(k))
	}
}
