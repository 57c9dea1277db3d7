// Package fill runs request-scoped template fills.
//
// A Service loads the named template, runs the invoice calculator over the
// request fields, hands them to the resolver for the template type and
// optionally prints HTML to PDF or publishes the result to an object store.
// Each operation runs under a deadline that covers every step.
package fill

import (
	"context"
	"time"

	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/calc"
	"github.com/lvillar/docfill/render"
	"github.com/lvillar/docfill/store"
	"go.uber.org/zap"
)

// TemplateSource provides templates and their saved zone and variable sets.
// *store.Templates implements it.
type TemplateSource interface {
	List() ([]string, error)
	Read(name string) ([]byte, error)
	ZoneSet(name string) (docfill.ZoneSet, bool, error)
	VariableSet(name string) (docfill.VariableSet, bool, error)
}

// DefaultTimeout bounds a fill operation when no other deadline applies.
const DefaultTimeout = 60 * time.Second

// Service performs fills.
type Service struct {
	templates  TemplateSource
	renderer   render.Renderer
	objects    store.ObjectStore
	calc       *calc.Calculator
	log        *zap.Logger
	timeout    time.Duration
	docTime    time.Time
	renderOpts render.Options
}

// Option configures a Service.
type Option func(*Service)

// WithRenderer sets the HTML to PDF renderer. Without one, operations that
// print HTML fail with docfill.ErrRender.
func WithRenderer(r render.Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// WithObjectStore sets where Publish uploads artifacts.
func WithObjectStore(o store.ObjectStore) Option {
	return func(s *Service) { s.objects = o }
}

// WithCalculator replaces the default invoice calculator.
func WithCalculator(c *calc.Calculator) Option {
	return func(s *Service) { s.calc = c }
}

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTimeout sets the per-operation deadline (default DefaultTimeout).
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRenderOptions sets the print settings used for HTML to PDF output.
func WithRenderOptions(o render.Options) Option {
	return func(s *Service) { s.renderOpts = o }
}

// DocumentTime is the creation and modification date written into generated
// PDFs unless WithDocumentTime overrides it. A fixed date keeps repeated
// fills of the same request byte for byte identical.
var DocumentTime = time.Unix(0, 0).UTC()

// WithDocumentTime sets the date stamped into generated PDFs.
func WithDocumentTime(t time.Time) Option {
	return func(s *Service) { s.docTime = t }
}

// New returns a Service reading templates from src.
func New(src TemplateSource, opts ...Option) *Service {
	s := &Service{
		templates:  src,
		calc:       calc.New(),
		log:        zap.NewNop(),
		timeout:    DefaultTimeout,
		docTime:    DocumentTime,
		renderOpts: render.A4(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Templates lists the stored template names.
func (s *Service) Templates() ([]string, error) {
	return s.templates.List()
}

// Zones returns the zones saved for a PDF template; an absent set is empty.
func (s *Service) Zones(name string) ([]docfill.Zone, error) {
	set, _, err := s.templates.ZoneSet(name)
	return set.Zones, err
}

// Variables returns the variables saved for an HTML template; an absent set is
// empty.
func (s *Service) Variables(name string) ([]docfill.Variable, error) {
	set, _, err := s.templates.VariableSet(name)
	return set.Variables, err
}

func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// prepare validates req against the expected template kind, loads the
// template and returns a copy of the fields with derived invoice fields.
func (s *Service) prepare(op string, req Request, kind docfill.TemplateKind) ([]byte, docfill.FieldMap, error) {
	if err := req.Validate(kind); err != nil {
		return nil, docfill.FieldMap{}, err
	}
	tpl, err := s.templates.Read(req.TemplateName)
	if err != nil {
		return nil, docfill.FieldMap{}, err
	}

	fields := req.Fields.Clone()
	if totals, ok := s.calc.Apply(&fields); ok {
		s.log.Debug("derived invoice fields",
			zap.String("op", op),
			zap.String("template", req.TemplateName),
			zap.Stringer("totals", totals))
	}
	return tpl, fields, nil
}

func (s *Service) logReport(op, template string, rep docfill.Report, start time.Time) {
	s.log.Info("template filled",
		zap.String("op", op),
		zap.String("template", template),
		zap.Int("filled", len(rep.Filled)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Duration("elapsed", time.Since(start)))
	for _, sk := range rep.Skipped {
		s.log.Debug("field skipped",
			zap.String("op", op),
			zap.String("field", sk.Field),
			zap.String("reason", sk.Reason))
	}
}
