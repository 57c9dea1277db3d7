package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/lvillar/docfill/fill"
	"github.com/lvillar/docfill/internal/config"
	"github.com/lvillar/docfill/render"
	"github.com/lvillar/docfill/store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// deps is the dependency graph shared by serve and mcp.
type deps struct {
	templates *store.Templates
	objects   store.ObjectStore
	fills     *fill.Service
	closers   []func(context.Context) error
}

func buildDeps(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deps, error) {
	d := &deps{}

	templates, err := store.NewTemplates(cfg.Documents.Dir)
	if err != nil {
		return nil, err
	}
	d.templates = templates

	objects, err := d.openObjects(ctx, cfg, log)
	if err != nil {
		d.close(ctx, log)
		return nil, err
	}
	d.objects = objects

	chrome := render.NewChrome(render.ChromeConfig{
		Bin:        cfg.Render.ChromeBin,
		ControlURL: cfg.Render.ControlURL,
	}, log.Named("chrome"))
	d.closers = append(d.closers, func(context.Context) error { return chrome.Close() })

	var renderer render.Renderer = render.Bounded(chrome, cfg.Render.MaxConcurrent, cfg.RenderTimeout())
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		d.closers = append(d.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, renders will not be cached until it recovers",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		renderer = render.Cached(renderer, render.NewRedisStore(client), cfg.CacheTTL(), log.Named("cache"))
	}

	d.fills = fill.New(templates,
		fill.WithRenderer(renderer),
		fill.WithObjectStore(objects),
		fill.WithTimeout(cfg.RequestTimeout()),
		fill.WithLogger(log.Named("fill")),
	)
	return d, nil
}

func (d *deps) openObjects(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.ObjectStore, error) {
	oc := cfg.Objects
	switch oc.Backend {
	case config.BackendGridFS:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(oc.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		d.closers = append(d.closers, client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("pinging mongo: %w", err)
		}
		log.Info("publishing artifacts to GridFS",
			zap.String("database", oc.Database), zap.String("bucket", oc.Bucket))
		return store.NewGridFSObjects(client.Database(oc.Database), oc.Bucket, oc.BaseURL)
	default:
		log.Info("publishing artifacts to a local directory", zap.String("dir", oc.Dir))
		return store.NewDirObjects(oc.Dir, oc.BaseURL)
	}
}

// close releases resources in reverse order.
func (d *deps) close(ctx context.Context, log *zap.Logger) {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
