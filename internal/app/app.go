package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orderline/internal/config"
	"orderline/internal/db"
	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/identity"
	"orderline/internal/logger"
	"orderline/internal/media"
	"orderline/internal/metrics"
	"orderline/internal/migrate"
	"orderline/internal/notify"
)

// BootstrapAdminID is the actor ol init grants admin to.
const BootstrapAdminID = "local-admin"

// App holds everything a command or the server needs, wired from one config.
type App struct {
	Workspace string
	Config    *config.Config
	Log       *zap.Logger
	DB        *sql.DB
	Engine    engine.Engine
	Metrics   *metrics.Metrics
	Media     media.Store
	MediaDir  string

	closers []func() error
}

// Open loads the workspace config (defaults when absent), opens and migrates
// the store, and wires the engine with its collaborators.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, workspace, cfg)
}

func OpenWithConfig(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	cfg.ApplyEnv(nil)
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &App{Workspace: workspace, Config: cfg, Log: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	if err := migrate.Migrate(conn, cfg.Database.Driver); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(conn, cfg)
	e.Log = log
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		e.Metrics = a.Metrics
	}
	if rc := cfg.Notify.Redis; rc.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		pub := notify.NewRedisPublisher(rdb, log, rc.Channel)
		e.Notifier = pub
		a.closers = append(a.closers, pub.Close)
		log.Info("publishing workflow events to redis", zap.String("addr", rc.Addr), zap.String("channel", pub.Channel()))
	}
	a.Engine = e

	if err := a.openMedia(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openMedia(ctx context.Context) error {
	mc := a.Config.Media
	switch mc.Backend {
	case "s3":
		store, err := media.NewS3Store(ctx, media.S3Options{
			Region:          mc.S3.Region,
			Bucket:          mc.S3.Bucket,
			Endpoint:        mc.S3.Endpoint,
			PublicURL:       mc.S3.PublicURL,
			PathStyle:       mc.S3.PathStyle,
			AccessKeyID:     mc.S3.AccessKeyID,
			SecretAccessKey: mc.S3.SecretAccessKey,
		}, a.Log)
		if err != nil {
			return fmt.Errorf("media: %w", err)
		}
		a.Media = store
	default:
		dir := mc.Local.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(a.Workspace, dir)
		}
		a.MediaDir = dir
		a.Media = media.LocalStore{Dir: dir, BaseURL: mc.Local.BaseURL}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// EnsureBootstrapAdmin makes id an admin so a fresh workspace has someone who
// can manage actors. It is a no-op when id already holds the role.
func EnsureBootstrapAdmin(ctx context.Context, e engine.Engine, id string) error {
	if id == "" {
		id = BootstrapAdminID
	}
	a, err := e.Directory.Get(ctx, id)
	switch {
	case errors.Is(err, identity.ErrUnknownActor):
		if err := e.Directory.Upsert(ctx, domain.Actor{ID: id, Name: "Local admin"}); err != nil {
			return fmt.Errorf("create %s: %w", id, err)
		}
	case err != nil:
		return err
	case a.HasRole(domain.RoleAdmin):
		return nil
	}
	return e.Directory.Grant(ctx, id, domain.RoleAdmin)
}
