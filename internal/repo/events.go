package repo

import (
	"context"
	"encoding/json"
	"strings"

	"orderline/internal/domain"
)

type EventFilter struct {
	Kind   domain.Kind
	ItemID string
	Type   string
	Limit  int
}

// LatestEvents returns the newest events first.
func (r Repo) LatestEvents(ctx context.Context, q Querier, f EventFilter) ([]domain.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Kind != "" {
		clauses = append(clauses, "item_kind=?")
		args = append(args, string(f.Kind))
	}
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	query := `SELECT id, ts, type, item_kind, item_id, actor_id, payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.querier(q).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []domain.Event{}
	for rows.Next() {
		var (
			e             domain.Event
			ts, kind, raw string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Type, &kind, &e.ItemID, &e.ActorID, &raw); err != nil {
			return nil, err
		}
		e.Kind = domain.Kind(kind)
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		e.Payload = map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.Payload); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
