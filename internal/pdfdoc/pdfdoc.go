// Package pdfdoc validates PDF templates with pdfcpu before they are imported
// or filled.
package pdfdoc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lvillar/docfill"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Config returns a relaxed pdfcpu configuration. pdfcpu's on-disk config
// directory is disabled on first use.
func Config() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open parses and validates data. Failures wrap docfill.ErrInvalidTemplate.
func Open(data []byte) (*model.Context, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty PDF", docfill.ErrInvalidTemplate)
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), Config())
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF: %v", docfill.ErrInvalidTemplate, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: validating PDF: %v", docfill.ErrInvalidTemplate, err)
	}
	return ctx, nil
}

// PageCount returns the number of pages of a valid PDF.
func PageCount(data []byte) (int, error) {
	ctx, err := Open(data)
	if err != nil {
		return 0, err
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("%w: PDF has no pages", docfill.ErrInvalidTemplate)
	}
	return ctx.PageCount, nil
}

// WriteConfig is Config for documents pdfcpu writes. Object and xref streams
// are disabled so the info dictionary and trailer stay uncompressed for Pin.
func WriteConfig() *model.Configuration {
	conf := Config()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

var (
	datePattern = regexp.MustCompile(`/(?:CreationDate|ModDate)\s*\((?:D:)?(\d{4,14})([^)]*)\)`)
	idPattern   = regexp.MustCompile(`/ID\s*\[\s*<([0-9A-Fa-f]+)>\s*<([0-9A-Fa-f]+)>\s*\]`)
)

// Pin replaces the clock derived values pdfcpu writes, the info dates and the
// file identifier, so that equal inputs give equal bytes. Dates become t in
// UTC and the identifier a digest of the rest of the document. Every value
// keeps its length, so cross-reference offsets stay valid.
func Pin(data []byte, t time.Time) []byte {
	out := bytes.Clone(data)
	stamp := t.UTC().Format("20060102150405")

	for _, m := range datePattern.FindAllSubmatchIndex(out, -1) {
		digits := out[m[2]:m[3]]
		copy(digits, stamp[:min(len(digits), len(stamp))])
		for i := m[4]; i < m[5]; i++ {
			switch c := out[i]; {
			case c >= '0' && c <= '9':
				out[i] = '0'
			case c == '-':
				out[i] = '+'
			}
		}
	}

	ids := idPattern.FindAllSubmatchIndex(out, -1)
	for _, m := range ids {
		for _, g := range [][2]int{{m[2], m[3]}, {m[4], m[5]}} {
			for i := g[0]; i < g[1]; i++ {
				out[i] = '0'
			}
		}
	}
	if len(ids) == 0 {
		return out
	}
	sum := sha256.Sum256(out)
	digest := strings.Repeat(hex.EncodeToString(sum[:]), 2)
	for _, m := range ids {
		for _, g := range [][2]int{{m[2], m[3]}, {m[4], m[5]}} {
			copy(out[g[0]:g[1]], digest[:min(g[1]-g[0], len(digest))])
		}
	}
	return out
}
