package repo

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"orderline/internal/domain"
)

// UpsertActor inserts the actor or refreshes its profile fields.
func (r Repo) UpsertActor(ctx context.Context, q Querier, a domain.Actor) error {
	if a.ID == "" {
		return errors.New("actor id required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO actors(id,name,email,avatar_url,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, avatar_url=excluded.avatar_url`),
		a.ID, nullable(a.Name), nullable(a.Email), nullable(a.AvatarURL), formatTime(a.CreatedAt))
	return err
}

// EnsureActor inserts a bare actor row if none exists.
func (r Repo) EnsureActor(ctx context.Context, q Querier, actorID string, now time.Time) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO actors(id, created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`), actorID, formatTime(now))
	return err
}

func (r Repo) GrantRole(ctx context.Context, q Querier, actorID string, role domain.Role) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO actor_roles(actor_id, role) VALUES (?,?) ON CONFLICT(actor_id, role) DO NOTHING`), actorID, string(role))
	return err
}

func (r Repo) RevokeRole(ctx context.Context, q Querier, actorID string, role domain.Role) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM actor_roles WHERE actor_id=? AND role=?`), actorID, string(role))
	return err
}

func (r Repo) GetActor(ctx context.Context, q Querier, id string) (domain.Actor, error) {
	actors, err := r.GetActors(ctx, q, []string{id})
	if err != nil {
		return domain.Actor{}, err
	}
	a, ok := actors[id]
	if !ok {
		return domain.Actor{}, ErrNotFound
	}
	return a, nil
}

// GetActors loads many actors with their roles in two queries. Unknown ids
// are absent from the result.
func (r Repo) GetActors(ctx context.Context, q Querier, ids []string) (map[string]domain.Actor, error) {
	out := map[string]domain.Actor{}
	if len(ids) == 0 {
		return out, nil
	}
	q = r.querier(q)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	in := placeholders(len(ids))
	rows, err := q.QueryContext(ctx, r.q(`SELECT id, name, email, avatar_url, created_at FROM actors WHERE id IN (`+in+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	roleRows, err := q.QueryContext(ctx, r.q(`SELECT actor_id, role FROM actor_roles WHERE actor_id IN (`+in+`) ORDER BY role`), args...)
	if err != nil {
		return nil, err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var actorID, role string
		if err := roleRows.Scan(&actorID, &role); err != nil {
			return nil, err
		}
		if a, ok := out[actorID]; ok {
			a.Roles = append(a.Roles, domain.Role(role))
			out[actorID] = a
		}
	}
	return out, roleRows.Err()
}

func (r Repo) ListActors(ctx context.Context, q Querier) ([]domain.Actor, error) {
	rows, err := r.querier(q).QueryContext(ctx, `SELECT id FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	byID, err := r.GetActors(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Actor, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func scanActor(s rowScanner) (domain.Actor, error) {
	var (
		a                      domain.Actor
		name, email, avatarURL sql.NullString
		created                string
	)
	if err := s.Scan(&a.ID, &name, &email, &avatarURL, &created); err != nil {
		return a, err
	}
	a.Name, a.Email, a.AvatarURL = name.String, email.String, avatarURL.String
	ts, err := parseTime(created)
	if err != nil {
		return a, err
	}
	a.CreatedAt = ts
	a.Roles = []domain.Role{}
	return a, nil
}
