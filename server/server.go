// Package server exposes template management and the fill webhooks over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lvillar/docfill/fill"
	"github.com/lvillar/docfill/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the HTTP surface.
type Config struct {
	// RequestTimeout bounds every request, including rendering.
	RequestTimeout time.Duration
	AllowedOrigins []string
	// WebhookRate and WebhookBurst size the token bucket shared by the
	// webhook routes.
	WebhookRate  rate.Limit
	WebhookBurst int
	// MaxUploadBytes caps template uploads (default 32 MiB).
	MaxUploadBytes int64
}

// Server wires the HTTP routes to the template store and fill service.
type Server struct {
	templates *store.Templates
	fills     *fill.Service
	objects   store.ObjectStore
	cfg       Config
	limiter   *rate.Limiter
	log       *zap.Logger
}

// New returns a Server. objects may be nil, in which case /artifacts serves
// nothing.
func New(templates *store.Templates, fills *fill.Service, objects store.ObjectStore, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.WebhookRate <= 0 {
		cfg.WebhookRate = rate.Inf
	}
	if cfg.WebhookBurst < 1 {
		cfg.WebhookBurst = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		templates: templates,
		fills:     fills,
		objects:   objects,
		cfg:       cfg,
		limiter:   rate.NewLimiter(cfg.WebhookRate, cfg.WebhookBurst),
		log:       log,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(s.corsConfig()))
	r.Use(s.deadline())
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes

	r.GET("/healthz", s.health)
	r.GET("/documents/*filename", s.document)
	r.GET("/artifacts/:key", s.artifact)

	api := r.Group("/api")
	{
		api.POST("/upload", s.upload)
		api.GET("/upload", s.listTemplates)
		api.GET("/zones", s.getZones)
		api.POST("/zones", s.saveZones)
		api.GET("/html-variables", s.getVariables)
		api.POST("/html-variables", s.saveVariables)
	}

	hooks := api.Group("/webhook", s.rateLimit())
	{
		hooks.GET("/fill-pdf", s.formFields)
		hooks.POST("/fill-pdf", s.fillPDF)
		hooks.POST("/fill-pdf-custom", s.fillPDFCustom)
		hooks.POST("/fill-html", s.fillHTML)
		hooks.POST("/fill-html-pdf", s.fillHTMLPDF)
		hooks.POST("/fill-html-auto", s.fillHTMLAuto)
		hooks.POST("/fill-html-auto-upload", s.fillHTMLAutoUpload)
	}

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", headerFilled, headerSkipped},
		MaxAge:        12 * time.Hour,
	}
	if len(s.cfg.AllowedOrigins) == 1 && s.cfg.AllowedOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.cfg.AllowedOrigins
	}
	return cfg
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
