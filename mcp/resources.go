package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/lvillar/docfill/fill"
)

// RegisterResources adds the docfill resources backed by svc. Resources use
// the docfill:// scheme; per-template resources take the template name as a
// query parameter, e.g. docfill://zones?template=contrat.pdf.
func RegisterResources(s *Server, svc *fill.Service) {
	s.AddResource(Resource{
		URI:         "docfill://templates",
		Name:        "Templates",
		Description: "Names of the stored PDF and HTML templates.",
		MIMEType:    "application/json",
		Handler: func(_ context.Context, uri string, _ url.Values) ([]ResourceContent, error) {
			names, err := svc.Templates()
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, names)
		},
	})

	s.AddResource(Resource{
		URI:         "docfill://zones",
		Name:        "Zone set",
		Description: "Fill zones of a PDF template: docfill://zones?template=contrat.pdf",
		MIMEType:    "application/json",
		Handler: func(_ context.Context, uri string, q url.Values) ([]ResourceContent, error) {
			name, err := templateQuery(q)
			if err != nil {
				return nil, err
			}
			zones, err := svc.Zones(name)
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, map[string]any{"templateName": name, "zones": zones})
		},
	})

	s.AddResource(Resource{
		URI:         "docfill://variables",
		Name:        "Variable set",
		Description: "Selector-bound variables of an HTML template: docfill://variables?template=facture.html",
		MIMEType:    "application/json",
		Handler: func(_ context.Context, uri string, q url.Values) ([]ResourceContent, error) {
			name, err := templateQuery(q)
			if err != nil {
				return nil, err
			}
			vars, err := svc.Variables(name)
			if err != nil {
				return nil, err
			}
			return jsonContent(uri, map[string]any{"templateName": name, "variables": vars})
		},
	})
}

func templateQuery(q url.Values) (string, error) {
	name := q.Get("template")
	if name == "" {
		return "", fmt.Errorf("missing 'template' parameter in URI")
	}
	return name, nil
}

func jsonContent(uri string, v any) ([]ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource: %w", err)
	}
	return []ResourceContent{{URI: uri, MIMEType: "application/json", Text: string(data)}}, nil
}
