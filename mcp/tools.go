package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/fill"
)

// RegisterTools adds the docfill tools backed by svc.
func RegisterTools(s *Server, svc *fill.Service) {
	s.AddTool(listTemplatesTool(svc))
	s.AddTool(getZonesTool(svc))
	s.AddTool(getVariablesTool(svc))
	s.AddTool(listFormFieldsTool(svc))
	s.AddTool(fillTool("fill_pdf_form",
		"Fill the AcroForm fields of a stored PDF template. Text fields receive the value as text, checkboxes are checked for true, \"true\", \"1\" or 1, dropdowns and radio groups select the value. Returns the PDF as base64 or writes it to outputPath.",
		svc.FillForm))
	s.AddTool(fillTool("fill_pdf_zones",
		"Draw field values into the zones saved for a stored PDF template. Zone fields with a barcode format are drawn as barcodes. Returns the PDF as base64 or writes it to outputPath.",
		svc.FillZones))
	s.AddTool(fillHTMLTool(svc))
	s.AddTool(fillHTMLAutoTool(svc))
}

var templateParam = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"template": map[string]any{
			"type":        "string",
			"description": "Template file name, e.g. facture.html",
		},
	},
	"required": []string{"template"},
}

func fillSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"templateName": map[string]any{
			"type":        "string",
			"description": "Template file name",
		},
		"fields": map[string]any{
			"type":        "object",
			"description": "Field values: strings, numbers, booleans, null, or arrays of flat objects for repeating rows. Key order is kept.",
		},
		"outputPath": map[string]any{
			"type":        "string",
			"description": "Optional file path to write the result to. If omitted, the result is returned inline.",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"templateName", "fields"},
	}
}

var primaryColorParam = map[string]any{
	"type":        "string",
	"description": "Optional #RRGGBB color replacing the template's --primary-color",
}

type templateArgs struct {
	Template string `json:"template"`
}

func decodeTemplate(raw json.RawMessage) (string, error) {
	var args templateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}
	if args.Template == "" {
		return "", fmt.Errorf("missing 'template' argument")
	}
	return args.Template, nil
}

type fillArgs struct {
	fill.Request
	OutputPath string `json:"outputPath"`
	ToPDF      bool   `json:"toPdf"`
	Upload     bool   `json:"upload"`
}

func decodeFill(raw json.RawMessage) (fillArgs, error) {
	var args fillArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("decoding arguments: %w", err)
	}
	return args, nil
}

func jsonResult(v any) (ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolResult{}, fmt.Errorf("encoding result: %w", err)
	}
	return textResult("%s", data), nil
}

func listTemplatesTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "list_templates",
		Description: "List the stored PDF and HTML templates.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
			names, err := svc.Templates()
			if err != nil {
				return ToolResult{}, err
			}
			return jsonResult(names)
		},
	}
}

func getZonesTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "get_zones",
		Description: "Return the fill zones saved for a PDF template (empty if none).",
		InputSchema: templateParam,
		Handler: func(_ context.Context, raw json.RawMessage) (ToolResult, error) {
			name, err := decodeTemplate(raw)
			if err != nil {
				return ToolResult{}, err
			}
			zones, err := svc.Zones(name)
			if err != nil {
				return ToolResult{}, err
			}
			return jsonResult(zones)
		},
	}
}

func getVariablesTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "get_variables",
		Description: "Return the selector-bound variables saved for an HTML template (empty if none).",
		InputSchema: templateParam,
		Handler: func(_ context.Context, raw json.RawMessage) (ToolResult, error) {
			name, err := decodeTemplate(raw)
			if err != nil {
				return ToolResult{}, err
			}
			vars, err := svc.Variables(name)
			if err != nil {
				return ToolResult{}, err
			}
			return jsonResult(vars)
		},
	}
}

func listFormFieldsTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "list_form_fields",
		Description: "List the AcroForm fields of a PDF template with their type, current value and options.",
		InputSchema: templateParam,
		Handler: func(_ context.Context, raw json.RawMessage) (ToolResult, error) {
			name, err := decodeTemplate(raw)
			if err != nil {
				return ToolResult{}, err
			}
			fields, err := svc.FormFields(name)
			if err != nil {
				return ToolResult{}, err
			}
			return jsonResult(map[string]any{"fieldCount": len(fields), "fields": fields})
		},
	}
}

func fillTool(name, description string, fn func(context.Context, fill.Request) (*fill.Artifact, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: fillSchema(nil),
		Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			args, err := decodeFill(raw)
			if err != nil {
				return ToolResult{}, err
			}
			a, err := fn(ctx, args.Request)
			if err != nil {
				return ToolResult{}, err
			}
			return artifactResult(a, args.OutputPath)
		},
	}
}

func fillHTMLTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "fill_html",
		Description: "Fill a stored HTML template through its saved variables. Returns the HTML, or a PDF when toPdf is true.",
		InputSchema: fillSchema(map[string]any{
			"primaryColor": primaryColorParam,
			"toPdf": map[string]any{
				"type":        "boolean",
				"description": "Print the filled HTML to PDF",
			},
		}),
		Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			args, err := decodeFill(raw)
			if err != nil {
				return ToolResult{}, err
			}
			fn := svc.FillHTML
			if args.ToPDF {
				fn = svc.FillHTMLToPDF
			}
			a, err := fn(ctx, args.Request)
			if err != nil {
				return ToolResult{}, err
			}
			return artifactResult(a, args.OutputPath)
		},
	}
}

func fillHTMLAutoTool(svc *fill.Service) Tool {
	return Tool{
		Name:        "fill_html_auto",
		Description: "Fill an HTML invoice template by convention (elements whose id, class or data-field match the field names, line items into the first table body), compute line totals, tax and total, and print it to PDF. With upload, the PDF is published and its URL returned.",
		InputSchema: fillSchema(map[string]any{
			"primaryColor": primaryColorParam,
			"upload": map[string]any{
				"type":        "boolean",
				"description": "Publish the PDF to the object store and return its URL",
			},
		}),
		Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			args, err := decodeFill(raw)
			if err != nil {
				return ToolResult{}, err
			}
			a, err := svc.FillHTMLAuto(ctx, args.Request)
			if err != nil {
				return ToolResult{}, err
			}
			if args.Upload {
				err := svc.Publish(ctx, a)
				if err == nil {
					return textResult("PDF published: %s (%s)", a.URL, a.FileName), nil
				}
				if !errors.Is(err, docfill.ErrUpload) {
					return ToolResult{}, err
				}
			}
			return artifactResult(a, args.OutputPath)
		},
	}
}

func summary(a *fill.Artifact) string {
	s := fmt.Sprintf("%s (%d bytes), %d fields filled", a.FileName, len(a.Data), len(a.Report.Filled))
	if len(a.Report.Skipped) > 0 {
		skipped := make([]string, len(a.Report.Skipped))
		for i, sk := range a.Report.Skipped {
			skipped[i] = sk.Field
		}
		s += fmt.Sprintf(", skipped: %s", strings.Join(skipped, ", "))
	}
	return s
}

// artifactResult writes a to path, or returns it inline: HTML as text, PDF as
// base64.
func artifactResult(a *fill.Artifact, path string) (ToolResult, error) {
	if path != "" {
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing file: %w", err)
		}
		return textResult("Wrote %s to %s", summary(a), path), nil
	}

	if docfill.KindOf(a.FileName) == docfill.TemplateHTML {
		return ToolResult{Content: []ContentBlock{
			{Type: "text", Text: summary(a)},
			{Type: "text", Text: string(a.Data), MIMEType: a.ContentType},
		}}, nil
	}
	encoded := base64.StdEncoding.EncodeToString(a.Data)
	return textResult("%s. Base64 data:\n%s", summary(a), encoded), nil
}
