package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/identity"
	"orderline/internal/repo"
)

// Subject resolves the roles of actorID into an authorization subject. An
// unknown actor is a subject without roles.
func (e Engine) Subject(ctx context.Context, actorID string) (auth.Subject, error) {
	roles, err := e.Directory.Roles(ctx, actorID)
	if err != nil {
		return auth.Subject{}, storeErr(err)
	}
	return auth.Subject{ID: actorID, Roles: roles}, nil
}

// Me returns the caller's own actor record.
func (e Engine) Me(ctx context.Context, actorID string) (domain.Actor, error) {
	a, err := e.Directory.Get(ctx, actorID)
	if errors.Is(err, identity.ErrUnknownActor) {
		return domain.Actor{ID: actorID, Roles: []domain.Role{}}, nil
	}
	if err != nil {
		return domain.Actor{}, storeErr(err)
	}
	return a, nil
}

func (e Engine) requireActorAdmin(actor auth.Subject) error {
	return e.authorize(actor, auth.OpManageActors, domain.WorkItem{})
}

func (e Engine) ListActors(ctx context.Context, actor auth.Subject) ([]domain.Actor, error) {
	if err := e.requireActorAdmin(actor); err != nil {
		return nil, e.fail(ctx, "actors", err)
	}
	actors, err := e.Directory.List(ctx)
	if err != nil {
		return nil, e.fail(ctx, "actors", storeErr(err))
	}
	return actors, nil
}

// SaveActor creates or updates an actor profile and grants roles.
func (e Engine) SaveActor(ctx context.Context, actor auth.Subject, a domain.Actor) (domain.Actor, error) {
	if err := e.requireActorAdmin(actor); err != nil {
		return domain.Actor{}, e.fail(ctx, "actors", err)
	}
	a.ID = strings.TrimSpace(a.ID)
	if a.ID == "" {
		return domain.Actor{}, e.fail(ctx, "actors", validationError("id", "id is required"))
	}
	if a.Email != "" {
		if err := validatorInstance().Var(a.Email, "email"); err != nil {
			return domain.Actor{}, e.fail(ctx, "actors", validationError("email", "email must be a valid email"))
		}
	}
	for _, r := range a.Roles {
		if _, ok := domain.ParseRole(string(r)); !ok {
			return domain.Actor{}, e.fail(ctx, "actors", validationError("roles", "unknown role %q", r))
		}
	}
	if err := e.Directory.Upsert(ctx, a); err != nil {
		return domain.Actor{}, e.fail(ctx, "actors", storeErr(err))
	}
	for _, r := range a.Roles {
		if err := e.Directory.Grant(ctx, a.ID, r); err != nil {
			return domain.Actor{}, e.fail(ctx, "actors", storeErr(err))
		}
	}
	return e.Me(ctx, a.ID)
}

func (e Engine) GrantRole(ctx context.Context, actor auth.Subject, actorID string, role domain.Role) (domain.Actor, error) {
	return e.changeRole(ctx, actor, actorID, role, true)
}

func (e Engine) RevokeRole(ctx context.Context, actor auth.Subject, actorID string, role domain.Role) (domain.Actor, error) {
	return e.changeRole(ctx, actor, actorID, role, false)
}

func (e Engine) changeRole(ctx context.Context, actor auth.Subject, actorID string, role domain.Role, grant bool) (domain.Actor, error) {
	if err := e.requireActorAdmin(actor); err != nil {
		return domain.Actor{}, e.fail(ctx, "actors", err)
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return domain.Actor{}, e.fail(ctx, "actors", validationError("role", "unknown role %q", role))
	}
	var err error
	if grant {
		err = e.Directory.Grant(ctx, actorID, role)
	} else {
		err = e.Directory.Revoke(ctx, actorID, role)
	}
	if errors.Is(err, identity.ErrUnknownActor) {
		return domain.Actor{}, e.fail(ctx, "actors", newError(KindNotFound, "actor %s not found", actorID))
	}
	if err != nil {
		return domain.Actor{}, e.fail(ctx, "actors", storeErr(err))
	}
	return e.Me(ctx, actorID)
}

// CreateAPIKey issues a new key for actorID and returns the plaintext once.
func (e Engine) CreateAPIKey(ctx context.Context, actor auth.Subject, actorID, name string) (domain.APIKey, string, error) {
	if err := e.requireActorAdmin(actor); err != nil {
		return domain.APIKey{}, "", e.fail(ctx, "api_keys", err)
	}
	if _, err := e.Directory.Get(ctx, actorID); err != nil {
		if errors.Is(err, identity.ErrUnknownActor) {
			return domain.APIKey{}, "", e.fail(ctx, "api_keys", newError(KindNotFound, "actor %s not found", actorID))
		}
		return domain.APIKey{}, "", e.fail(ctx, "api_keys", storeErr(err))
	}
	plain := fmt.Sprintf("ol_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().Truncate(time.Second),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", e.fail(ctx, "api_keys", storeErr(err))
	}
	return key, plain, nil
}

// ActorForAPIKey maps a presented key to its actor id.
func (e Engine) ActorForAPIKey(ctx context.Context, plain string) (string, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, nil, repo.HashAPIKey(plain))
	if err != nil {
		return "", storeErr(err)
	}
	return key.ActorID, nil
}
