// Package identity resolves actors and their roles for the workflow engine.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"orderline/internal/domain"
	"orderline/internal/repo"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Minute
)

var ErrUnknownActor = errors.New("unknown actor")

// Directory reads actors through a bounded, expiring cache. Writes go
// straight to the store and evict the cached entry.
type Directory struct {
	repo  repo.Repo
	cache *expirable.LRU[string, domain.Actor]
	now   func() time.Time
}

func NewDirectory(r repo.Repo, size int, ttl time.Duration) *Directory {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Directory{
		repo:  r,
		cache: expirable.NewLRU[string, domain.Actor](size, nil, ttl),
		now:   time.Now,
	}
}

// Resolve returns the known actors among ids. Unknown ids are absent.
func (d *Directory) Resolve(ctx context.Context, ids ...string) (map[string]domain.Actor, error) {
	out := make(map[string]domain.Actor, len(ids))
	var missing []string
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if a, ok := d.cache.Get(id); ok {
			out[id] = a
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := d.repo.GetActors(ctx, nil, missing)
	if err != nil {
		return nil, err
	}
	for id, a := range loaded {
		d.cache.Add(id, a)
		out[id] = a
	}
	return out, nil
}

// Get returns one actor or ErrUnknownActor.
func (d *Directory) Get(ctx context.Context, id string) (domain.Actor, error) {
	actors, err := d.Resolve(ctx, id)
	if err != nil {
		return domain.Actor{}, err
	}
	a, ok := actors[id]
	if !ok {
		return domain.Actor{}, ErrUnknownActor
	}
	return a, nil
}

// Roles returns the roles of id; an unknown actor has none.
func (d *Directory) Roles(ctx context.Context, id string) ([]domain.Role, error) {
	a, err := d.Get(ctx, id)
	if errors.Is(err, ErrUnknownActor) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.Roles, nil
}

func (d *Directory) Upsert(ctx context.Context, a domain.Actor) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = d.now().UTC()
	}
	defer d.cache.Remove(a.ID)
	return d.repo.UpsertActor(ctx, nil, a)
}

// Ensure creates a bare actor row when id is new.
func (d *Directory) Ensure(ctx context.Context, id string) error {
	defer d.cache.Remove(id)
	return d.repo.EnsureActor(ctx, nil, id, d.now().UTC())
}

func (d *Directory) Grant(ctx context.Context, id string, role domain.Role) error {
	if _, err := d.Get(ctx, id); err != nil {
		return err
	}
	defer d.cache.Remove(id)
	return d.repo.GrantRole(ctx, nil, id, role)
}

func (d *Directory) Revoke(ctx context.Context, id string, role domain.Role) error {
	defer d.cache.Remove(id)
	return d.repo.RevokeRole(ctx, nil, id, role)
}

func (d *Directory) List(ctx context.Context) ([]domain.Actor, error) {
	return d.repo.ListActors(ctx, nil)
}

// Profile projects an actor for display. Email is only included when
// showEmail is set.
func Profile(a domain.Actor, showEmail bool) *domain.Profile {
	p := &domain.Profile{ID: a.ID, Name: a.Name, AvatarURL: a.AvatarURL}
	if showEmail {
		p.Email = a.Email
	}
	return p
}
