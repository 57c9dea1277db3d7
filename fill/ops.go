package fill

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/form"
	"github.com/lvillar/docfill/selector"
	"github.com/lvillar/docfill/store"
	"github.com/lvillar/docfill/zone"
	"go.uber.org/zap"
)

// FillForm writes the request fields into the AcroForm fields of a PDF
// template.
func (s *Service) FillForm(ctx context.Context, req Request) (*Artifact, error) {
	const op = "FillForm"
	start := time.Now()
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tpl, fields, err := s.prepare(op, req, docfill.TemplatePDF)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	out, rep, err := form.Fill(tpl, fields, form.WithTimestamp(s.docTime))
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, docfill.Wrap(op, err)
	}
	s.logReport(op, req.TemplateName, rep, start)
	return newArtifact("filled_"+req.TemplateName, out, rep), nil
}

// FillZones draws the request fields into the zones saved for a PDF template.
// A template without a saved zone set wraps docfill.ErrNotFound.
func (s *Service) FillZones(ctx context.Context, req Request) (*Artifact, error) {
	const op = "FillZones"
	start := time.Now()
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tpl, fields, err := s.prepare(op, req, docfill.TemplatePDF)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	set, found, err := s.templates.ZoneSet(req.TemplateName)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	if !found {
		return nil, docfill.Wrap(op, docfill.NotFoundf("no zones defined for %q", req.TemplateName))
	}

	out, rep, err := zone.Fill(ctx, tpl, set.Zones, fields, zone.WithTimestamp(s.docTime))
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	s.logReport(op, req.TemplateName, rep, start)
	return newArtifact("filled_"+req.TemplateName, out, rep), nil
}

// FillHTML fills an HTML template through its saved variable set and returns
// the resulting HTML.
func (s *Service) FillHTML(ctx context.Context, req Request) (*Artifact, error) {
	const op = "FillHTML"
	start := time.Now()
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	html, rep, err := s.fillDeclared(ctx, op, req)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	s.logReport(op, req.TemplateName, rep, start)
	return newArtifact("filled_"+req.TemplateName, []byte(html), rep), nil
}

// FillHTMLToPDF fills an HTML template through its saved variable set and
// prints the result to PDF.
func (s *Service) FillHTMLToPDF(ctx context.Context, req Request) (*Artifact, error) {
	const op = "FillHTMLToPDF"
	start := time.Now()
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	html, rep, err := s.fillDeclared(ctx, op, req)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	out, err := s.render(ctx, html)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	s.logReport(op, req.TemplateName, rep, start)
	return newArtifact("filled_"+docfill.BaseName(req.TemplateName)+".pdf", out, rep), nil
}

// FillHTMLAuto fills an HTML template by convention, without a variable set:
// list fields expand the first table body and scalars land on the element
// whose id, class or data-field matches the field name. The result is
// printed to PDF.
func (s *Service) FillHTMLAuto(ctx context.Context, req Request) (*Artifact, error) {
	const op = "FillHTMLAuto"
	start := time.Now()
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	tpl, fields, err := s.prepare(op, req, docfill.TemplateHTML)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	doc, err := selector.Parse(bytes.NewReader(tpl))
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	rep := selector.FillAuto(doc, fields)
	s.applyColor(doc, req)

	html, err := doc.String()
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	out, err := s.render(ctx, html)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	s.logReport(op, req.TemplateName, rep, start)
	return newArtifact("facture_"+docfill.BaseName(req.TemplateName)+".pdf", out, rep), nil
}

// FormFields lists the AcroForm fields of a PDF template.
func (s *Service) FormFields(name string) ([]form.Field, error) {
	const op = "FormFields"
	if err := docfill.ValidateName(name); err != nil {
		return nil, docfill.Wrap(op, err)
	}
	if docfill.KindOf(name) != docfill.TemplatePDF {
		return nil, docfill.Wrap(op, docfill.Validationf("template %q is not of type %s", name, docfill.TemplatePDF))
	}
	tpl, err := s.templates.Read(name)
	if err != nil {
		return nil, docfill.Wrap(op, err)
	}
	fields, err := form.Fields(tpl)
	return fields, docfill.Wrap(op, err)
}

// Publish uploads a to the object store and records its key and URL. On
// failure a is left untouched and the error wraps docfill.ErrUpload so the
// caller can still hand out the bytes.
func (s *Service) Publish(ctx context.Context, a *Artifact) error {
	const op = "Publish"
	if s.objects == nil {
		return docfill.Wrap(op, fmt.Errorf("%w: no object store configured", docfill.ErrUpload))
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	key := store.NewKey(a.FileName)
	url, err := s.objects.Put(ctx, key, a.Data)
	if err != nil {
		s.log.Warn("publishing artifact failed",
			zap.String("file", a.FileName),
			zap.Error(err))
		return docfill.Wrap(op, fmt.Errorf("%w: %v", docfill.ErrUpload, err))
	}
	a.Key, a.URL = key, url
	s.log.Info("artifact published",
		zap.String("file", a.FileName),
		zap.String("url", url),
		zap.Int("bytes", len(a.Data)))
	return nil
}

func (s *Service) fillDeclared(ctx context.Context, op string, req Request) (string, docfill.Report, error) {
	tpl, fields, err := s.prepare(op, req, docfill.TemplateHTML)
	if err != nil {
		return "", docfill.Report{}, err
	}
	set, found, err := s.templates.VariableSet(req.TemplateName)
	if err != nil {
		return "", docfill.Report{}, err
	}
	if !found {
		return "", docfill.Report{}, docfill.NotFoundf("no variables defined for %q", req.TemplateName)
	}
	if err := ctx.Err(); err != nil {
		return "", docfill.Report{}, err
	}

	doc, err := selector.Parse(bytes.NewReader(tpl))
	if err != nil {
		return "", docfill.Report{}, err
	}
	rep := selector.Fill(doc, set.Variables, fields)
	s.applyColor(doc, req)
	html, err := doc.String()
	return html, rep, err
}

func (s *Service) applyColor(doc *selector.Document, req Request) {
	if req.PrimaryColor == "" {
		return
	}
	if !selector.ApplyPrimaryColor(doc, req.PrimaryColor) {
		s.log.Debug("template has no --primary-color declaration",
			zap.String("template", req.TemplateName))
	}
}

func (s *Service) render(ctx context.Context, html string) ([]byte, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("%w: no renderer configured", docfill.ErrRender)
	}
	return s.renderer.Render(ctx, html, s.renderOpts)
}
