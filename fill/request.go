package fill

import (
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/selector"
)

// Request is the body of every fill call.
type Request struct {
	TemplateName string           `json:"templateName"`
	Fields       docfill.FieldMap `json:"fields"`
	PrimaryColor string           `json:"primaryColor,omitempty"`
}

// Validate checks that the request names a template of the given kind and
// carries at least one field. Failures wrap docfill.ErrValidation.
func (r Request) Validate(kind docfill.TemplateKind) error {
	if r.TemplateName == "" {
		return docfill.Validationf("templateName is required")
	}
	if r.Fields.Len() == 0 {
		return docfill.Validationf("fields are required")
	}
	if err := docfill.ValidateName(r.TemplateName); err != nil {
		return err
	}
	if got := docfill.KindOf(r.TemplateName); kind != docfill.TemplateUnknown && got != kind {
		return docfill.Validationf("template %q is not of type %s", r.TemplateName, kind)
	}
	if r.PrimaryColor != "" && !selector.ColorPattern.MatchString(r.PrimaryColor) {
		return docfill.Validationf("primaryColor must look like #RRGGBB, got %q", r.PrimaryColor)
	}
	return nil
}

// Artifact is a filled document.
type Artifact struct {
	Data        []byte
	ContentType string
	FileName    string
	// URL and Key are set once the artifact has been published.
	URL    string
	Key    string
	Report docfill.Report
}

func newArtifact(fileName string, data []byte, rep docfill.Report) *Artifact {
	return &Artifact{
		Data:        data,
		ContentType: docfill.ContentType(fileName),
		FileName:    fileName,
		Report:      rep,
	}
}
