package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/events"
	"orderline/internal/identity"
	"orderline/internal/logger"
	"orderline/internal/metrics"
	"orderline/internal/notify"
	"orderline/internal/repo"
	"orderline/internal/workflow"
)

// Engine is the only writer of work items. Every mutation runs in one
// transaction: load, authorize, check the graph, write conditionally, append
// the audit event, commit. Notifications go out after the commit.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Registry  *workflow.Registry
	Perms     *auth.Table
	Directory *identity.Directory
	Notifier  notify.Publisher
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Config    *config.Config
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	driver := cfg.Database.Driver
	r := repo.Repo{DB: db, Driver: driver}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{Driver: driver},
		Registry:  workflow.Default(),
		Perms:     auth.DefaultTable(),
		Directory: identity.NewDirectory(r, cfg.Identity.CacheSize, cfg.Identity.CacheTTL),
		Notifier:  notify.Nop{},
		Log:       zap.NewNop(),
		Config:    cfg,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// log prefers the request-scoped logger, which already carries the request
// and actor ids.
func (e Engine) log(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	l := e.Log
	if l == nil {
		l = zap.NewNop()
	}
	if id := logger.GetRequestID(ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if id := logger.GetActorID(ctx); id != "" {
		l = l.With(zap.String("actor_id", id))
	}
	return l
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	return tx, nil
}

func (e Engine) commit(tx *sql.Tx) error {
	return storeErr(tx.Commit())
}

// loadItem reads an item, optionally insisting on its kind. An item of the
// wrong kind is reported as not found.
func (e Engine) loadItem(ctx context.Context, q repo.Querier, id string, kind domain.Kind) (domain.WorkItem, error) {
	it, err := e.Repo.GetItem(ctx, q, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.WorkItem{}, notFound(id)
	}
	if err != nil {
		return domain.WorkItem{}, storeErr(err)
	}
	if kind != "" && it.Kind != kind {
		return domain.WorkItem{}, notFound(id)
	}
	return it, nil
}

func (e Engine) graph(kind domain.Kind) (workflow.Graph, error) {
	g, ok := e.Registry.Graph(kind)
	if !ok {
		return workflow.Graph{}, validationError("kind", "unknown item kind %q", kind)
	}
	return g, nil
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, typ string, it domain.WorkItem, actorID string, payload events.EventPayload) (*domain.Event, error) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	evt, err := w.Append(ctx, tx, typ, it.Kind, it.ID, actorID, payload)
	if err != nil {
		return nil, storeErr(err)
	}
	return &evt, nil
}

// publish is best effort: the change is already committed.
func (e Engine) publish(ctx context.Context, evt *domain.Event) {
	if evt == nil || e.Notifier == nil {
		return
	}
	if err := e.Notifier.Publish(ctx, *evt); err != nil {
		e.log(ctx).Warn("notification publish failed",
			zap.String("type", evt.Type),
			zap.String("item_id", evt.ItemID),
			zap.Error(err))
	}
}

func (e Engine) fail(ctx context.Context, op string, err error) error {
	kind := KindOf(err)
	e.Metrics.Failure(op, string(kind))
	if kind == KindStoreUnavailable {
		e.log(ctx).Error("store failure", zap.String("op", op), zap.Error(errors.Unwrap(err)))
	}
	return err
}

func (e Engine) authorize(s auth.Subject, op auth.Operation, it domain.WorkItem) error {
	return forbidden(e.Perms.Authorize(s, op, it))
}
