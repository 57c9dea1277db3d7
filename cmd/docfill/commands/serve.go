package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lvillar/docfill/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(d.templates, d.fills, d.objects, server.Config{
		RequestTimeout: cfg.RequestTimeout(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebhookRate:    rate.Limit(cfg.Server.WebhookRate),
		WebhookBurst:   cfg.Server.WebhookBurst,
	}, logger.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting docfill",
			zap.String("addr", cfg.Server.Addr),
			zap.String("documents", cfg.Documents.Dir),
			zap.Int64("max_concurrent_renders", cfg.Render.MaxConcurrent))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		d.close(context.Background(), logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// The browser goes last so in-flight renders can finish.
	d.close(shutdownCtx, logger)
	return nil
}
