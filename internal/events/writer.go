package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"orderline/internal/db"
	"orderline/internal/domain"
)

const (
	ItemCreated      = "item.created"
	ItemTransitioned = "item.transitioned"
	ItemUpdated      = "item.updated"
	ItemClaimed      = "item.claimed"
	ItemReleased     = "item.released"
	ItemAssigned     = "item.assigned"
	ItemUnassigned   = "item.unassigned"
	ItemReassigned   = "item.reassigned"
)

// Querier is the slice of *sql.Tx the writer needs.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Writer struct {
	Driver string
	Now    func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction and returns it.
func (w Writer) Append(ctx context.Context, q Querier, evtType string, kind domain.Kind, itemID, actorID string, payload EventPayload) (domain.Event, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.Event{
		TS:      w.Now().UTC(),
		Type:    evtType,
		Kind:    kind,
		ItemID:  itemID,
		ActorID: actorID,
		Payload: payload,
	}
	err = q.QueryRowContext(ctx, db.Rebind(w.Driver, `INSERT INTO events(ts,type,item_kind,item_id,actor_id,payload_json) VALUES (?,?,?,?,?,?) RETURNING id`),
		evt.TS.Format("2006-01-02T15:04:05.000000000Z"), evtType, string(kind), itemID, actorID, string(data)).Scan(&evt.ID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("append event: %w", err)
	}
	return evt, nil
}
