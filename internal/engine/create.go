package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/events"
	"orderline/internal/identity"
)

// CreateOrderOptions are parameters for creating an order. OwnerUserID
// defaults to the acting customer.
type CreateOrderOptions struct {
	OwnerUserID string
	Payload     domain.OrderPayload
	Notes       string
}

type CreateQuoteOptions struct {
	OwnerUserID string
	Payload     domain.QuotePayload
	Notes       string
}

func (e Engine) CreateOrder(ctx context.Context, actor auth.Subject, opts CreateOrderOptions) (domain.WorkItem, error) {
	id := uuid.New().String()
	p := opts.Payload
	if p.OrderNumber == "" {
		p.OrderNumber = "ORD-" + strings.ToUpper(id[:8])
	}
	if field, bad := p.NegativeAmount(); bad {
		return domain.WorkItem{}, e.fail(ctx, "create", validationError(field, "%s must not be negative", field))
	}
	if err := validateStruct(&p); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	p.Recompute()
	return e.create(ctx, actor, id, domain.KindOrder, opts.OwnerUserID, &p, opts.Notes)
}

func (e Engine) CreateQuote(ctx context.Context, actor auth.Subject, opts CreateQuoteOptions) (domain.WorkItem, error) {
	p := opts.Payload
	if err := validateStruct(&p); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	return e.create(ctx, actor, uuid.New().String(), domain.KindQuote, opts.OwnerUserID, &p, opts.Notes)
}

func (e Engine) create(ctx context.Context, actor auth.Subject, id string, kind domain.Kind, owner string, payload domain.Payload, notes string) (domain.WorkItem, error) {
	g, err := e.graph(kind)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	if owner == "" {
		owner = actor.ID
	}
	now := e.now()
	it := domain.WorkItem{
		ID:               id,
		Kind:             kind,
		OwnerUserID:      owner,
		Status:           g.Initial,
		StatusTimestamps: map[domain.Status]time.Time{g.Initial: now},
		Payload:          payload,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		it.Notes = &notes
	}
	if err := e.authorize(actor, auth.OpCreate, it); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	if owner != actor.ID && e.Directory != nil {
		if _, err := e.Directory.Get(ctx, owner); err != nil {
			if errors.Is(err, identity.ErrUnknownActor) {
				err = validationError("owner_user_id", "unknown owner %s", owner)
			}
			return domain.WorkItem{}, e.fail(ctx, "create", storeErr(err))
		}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", storeErr(err))
	}
	evt, err := e.appendEvent(ctx, tx, events.ItemCreated, it, actor.ID, events.EventPayload{
		"status":        string(it.Status),
		"owner_user_id": owner,
	})
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "create", err)
	}
	e.publish(ctx, evt)
	return it, nil
}
