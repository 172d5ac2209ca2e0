package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/repo"
)

type actorPath struct {
	ID string `path:"id"`
}

type actorOutput struct {
	Body domain.Actor `json:"body"`
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit log across items (admin)",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Kind   string `query:"kind"`
		ItemID string `query:"item_id"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		evts, err := e.AuditLog(ctx, s, repo.EventFilter{
			Kind:   domain.Kind(input.Kind),
			ItemID: input.ItemID,
			Type:   input.Type,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: nonNilSlice(evts)}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Describe the authenticated caller",
		Tags:        []string{"actors"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthenticated", "authentication required", nil)
		}
		a, err := e.Me(ctx, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		if len(p.Roles) > 0 {
			a.Roles = p.Roles
		}
		a.Roles = nonNilSlice(a.Roles)
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{Actor: a, Source: p.Source}}, nil
	})
}

func registerActors(api huma.API, e engine.Engine, authCfg AuthConfig) {
	tags := []string{"actors"}
	adminErrors := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity}

	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors (admin)",
		Tags:        tags,
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body ActorsResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		actors, err := e.ListActors(ctx, s)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorsResponse `json:"body"`
		}{Body: ActorsResponse{Actors: nonNilSlice(actors)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-actor",
		Method:      http.MethodPut,
		Path:        "/actors/{id}",
		Summary:     "Create or update an actor profile (admin)",
		Tags:        tags,
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		ID   string    `path:"id"`
		Body ActorBody `json:"body"`
	}) (*actorOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SaveActor(ctx, s, input.Body.actor(input.ID))
		if err != nil {
			return nil, handleError(err)
		}
		return &actorOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/roles",
		Summary:     "Grant a role (admin)",
		Tags:        tags,
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		ID   string   `path:"id"`
		Body RoleBody `json:"body"`
	}) (*actorOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GrantRole(ctx, s, input.ID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &actorOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodDelete,
		Path:        "/actors/{id}/roles/{role}",
		Summary:     "Revoke a role (admin)",
		Tags:        tags,
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Role string `path:"role"`
	}) (*actorOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RevokeRole(ctx, s, input.ID, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &actorOutput{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/actors/{id}/api-keys",
		Summary:       "Issue an API key; the key is only returned once (admin)",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body APIKeyBody `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		key, plain, err := e.CreateAPIKey(ctx, s, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{APIKey: key, Key: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-token",
		Method:        http.MethodPost,
		Path:          "/actors/{id}/tokens",
		Summary:       "Mint a bearer token carrying the actor's roles (admin)",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
		Errors:        adminErrors,
	}, func(ctx context.Context, input *actorPath) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if !s.IsAdmin() {
			return nil, newAPIError(http.StatusForbidden, string(engine.KindForbidden), "only admins may mint tokens", nil)
		}
		a, err := e.Me(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.CreatedAt.IsZero() {
			return nil, newAPIError(http.StatusNotFound, string(engine.KindNotFound), "actor "+input.ID+" not found", nil)
		}
		ttl := authCfg.TokenTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		now := time.Now().UTC()
		token, err := SignToken(authCfg.JWTSecret, a.ID, a.Roles, ttl, now)
		if err != nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "token_unavailable", err.Error(), nil)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, ExpiresAt: now.Add(ttl).Truncate(time.Second)}}, nil
	})
}
