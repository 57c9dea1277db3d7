package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// cleanupTimeout bounds closing a render's tab and browser context.
const cleanupTimeout = 5 * time.Second

// ChromeConfig selects the browser used by Chrome.
type ChromeConfig struct {
	// ControlURL connects to an already running browser when set.
	ControlURL string
	// Bin is the browser executable to launch. Empty lets the launcher find
	// or download one.
	Bin string
}

// Chrome renders through a headless Chrome. The browser is started on first
// use and shared by all renders; each render gets its own incognito context.
type Chrome struct {
	cfg ChromeConfig
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewChrome returns a Chrome renderer. No browser is started until the first
// Render.
func NewChrome(cfg ChromeConfig, log *zap.Logger) *Chrome {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chrome{cfg: cfg, log: log}
}

func (c *Chrome) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return c.browser, nil
		}
		c.log.Warn("stale browser connection, reconnecting")
		_ = c.browser.Close()
		c.browser = nil
	}

	controlURL := c.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true).NoSandbox(true)
		if c.cfg.Bin != "" {
			l = l.Bin(c.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launching chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("render: connecting to chrome: %w", err)
	}
	c.log.Info("browser connected", zap.String("control_url", controlURL))
	c.browser = b
	return b, nil
}

// Render loads html into a fresh page and prints it.
func (c *Chrome) Render(ctx context.Context, html string, opts Options) ([]byte, error) {
	b, err := c.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("render: incognito context: %w", err)
	}
	// Cleanup runs detached from ctx: a render cut short by its deadline
	// must still dispose of its tab and context.
	defer c.dispose("browser context", func(ctx context.Context) error {
		return incognito.Context(ctx).Close()
	})

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("render: creating page: %w", err)
	}
	defer c.dispose("page", func(ctx context.Context) error {
		return page.Context(ctx).Close()
	})

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("render: loading document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("render: waiting for load: %w", err)
	}

	stream, err := page.PDF(printRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("render: printing: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("render: reading PDF stream: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render: browser produced an empty PDF")
	}
	return data, nil
}

func (c *Chrome) dispose(target string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		c.log.Warn("render cleanup failed", zap.String("target", target), zap.Error(err))
	}
}

func printRequest(opts Options) *proto.PagePrintToPDF {
	f := func(v float64) *float64 { return &v }
	return &proto.PagePrintToPDF{
		Landscape:       opts.Landscape,
		PrintBackground: opts.PrintBackground,
		PaperWidth:      f(opts.PaperWidth),
		PaperHeight:     f(opts.PaperHeight),
		MarginTop:       f(opts.Margins.Top),
		MarginRight:     f(opts.Margins.Right),
		MarginBottom:    f(opts.Margins.Bottom),
		MarginLeft:      f(opts.Margins.Left),
	}
}

// Close shuts the browser down if one was started.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}
