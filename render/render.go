// Package render prints HTML documents to PDF.
//
// Chrome drives a headless browser through the DevTools protocol. Bounded
// caps concurrent renders and applies a per-render timeout, and Cached keeps
// rendered documents in Redis keyed by content. The wrappers compose:
//
//	r := render.Cached(render.Bounded(chrome, 2, 30*time.Second), store, time.Hour, log)
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string, opts Options) ([]byte, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, html string, opts Options) ([]byte, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, html string, opts Options) ([]byte, error) {
	return f(ctx, html, opts)
}

// Margins are page margins in inches.
type Margins struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Options control the printed page. Dimensions are in inches.
type Options struct {
	PaperWidth      float64 `json:"paperWidth"`
	PaperHeight     float64 `json:"paperHeight"`
	Margins         Margins `json:"margins"`
	PrintBackground bool    `json:"printBackground"`
	Landscape       bool    `json:"landscape"`
}

const mmPerInch = 25.4

// MM converts millimetres to inches.
func MM(mm float64) float64 { return mm / mmPerInch }

// A4 returns the invoice print settings: A4 paper, 20mm top and bottom
// margins, 15mm side margins, backgrounds printed.
func A4() Options {
	return Options{
		PaperWidth:  MM(210),
		PaperHeight: MM(297),
		Margins: Margins{
			Top:    MM(20),
			Right:  MM(15),
			Bottom: MM(20),
			Left:   MM(15),
		},
		PrintBackground: true,
	}
}

// Key returns a content hash of html and opts.
func Key(html string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(html))
	b, _ := json.Marshal(opts)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
