package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/engine/auth"
)

type itemKind struct {
	kind   domain.Kind
	plural string
}

var itemKinds = []itemKind{
	{kind: domain.KindOrder, plural: "orders"},
	{kind: domain.KindQuote, plural: "quotes"},
}

type itemPath struct {
	ID string `path:"id"`
}

type listQuery struct {
	Status     string `query:"status"`
	Search     string `query:"search"`
	AssigneeID string `query:"assignee_id"`
	Pool       bool   `query:"pool"`
	Page       int    `query:"page" default:"1" maximum:"1000000"`
	PageSize   int    `query:"page_size" default:"20"`
	Sort       string `query:"sort" default:"created_at"`
	Order      string `query:"order" default:"desc" enum:"asc,desc"`
}

func (q listQuery) filter(kind domain.Kind) engine.ListFilter {
	return engine.ListFilter{
		Kind:       kind,
		Status:     domain.Status(q.Status),
		Search:     q.Search,
		AssigneeID: q.AssigneeID,
		Pool:       q.Pool,
		Page:       q.Page,
		PageSize:   q.PageSize,
		SortBy:     q.Sort,
		SortDesc:   q.Order != "asc",
	}
}

type itemOutput struct {
	Body domain.WorkItem `json:"body"`
}

var mutationErrors = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusServiceUnavailable,
}

// itemAction adapts an engine operation on one item of kind k.
func itemAction(e engine.Engine, k itemKind, fn func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error)) func(context.Context, *itemPath) (*itemOutput, error) {
	return func(ctx context.Context, input *itemPath) (*itemOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ExpectKind(ctx, input.ID, k.kind); err != nil {
			return nil, handleError(err)
		}
		it, err := fn(ctx, s, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	}
}

func registerItems(api huma.API, e engine.Engine, k itemKind) {
	base := "/" + k.plural
	tags := []string{k.plural}

	huma.Register(api, huma.Operation{
		OperationID: "list-" + k.plural,
		Method:      http.MethodGet,
		Path:        base,
		Summary:     fmt.Sprintf("List %s visible to the caller", k.plural),
		Tags:        tags,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *listQuery) (*struct {
		Body domain.ItemPage `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.List(ctx, s, input.filter(k.kind))
		if err != nil {
			return nil, handleError(err)
		}
		page.Items = nonNilSlice(page.Items)
		return &struct {
			Body domain.ItemPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-" + k.plural,
		Method:      http.MethodGet,
		Path:        base + "/counts",
		Summary:     fmt.Sprintf("Count %s by status", k.plural),
		Tags:        tags,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *listQuery) (*struct {
		Body CountsResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := e.CountByStatus(ctx, s, input.filter(k.kind))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CountsResponse `json:"body"`
		}{Body: CountsResponse{Kind: k.kind, Counts: counts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + string(k.kind),
		Method:      http.MethodGet,
		Path:        base + "/{id}",
		Summary:     fmt.Sprintf("Get one %s", k.kind),
		Tags:        tags,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body domain.ItemView `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.Get(ctx, s, input.ID, k.kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ItemView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-" + string(k.kind),
		Method:      http.MethodPost,
		Path:        base + "/{id}/transitions",
		Summary:     fmt.Sprintf("Move a %s to another status", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body TransitionBody `json:"body"`
	}) (*itemOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Transition(ctx, input.Body.request(k.kind, input.ID, s))
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-" + string(k.kind),
		Method:      http.MethodPost,
		Path:        base + "/{id}/claim",
		Summary:     fmt.Sprintf("Claim an unassigned %s", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, itemAction(e, k, e.Claim))

	huma.Register(api, huma.Operation{
		OperationID: "release-" + string(k.kind),
		Method:      http.MethodPost,
		Path:        base + "/{id}/release",
		Summary:     fmt.Sprintf("Give up a claimed %s", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, itemAction(e, k, e.Release))

	huma.Register(api, huma.Operation{
		OperationID: "assign-" + string(k.kind),
		Method:      http.MethodPut,
		Path:        base + "/{id}/assignee",
		Summary:     fmt.Sprintf("Assign a %s (admin)", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body AssignBody `json:"body"`
	}) (*itemOutput, error) {
		return itemAction(e, k, func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error) {
			return e.Assign(ctx, s, id, input.Body.AssigneeID)
		})(ctx, &itemPath{ID: input.ID})
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-" + string(k.kind),
		Method:      http.MethodDelete,
		Path:        base + "/{id}/assignee",
		Summary:     fmt.Sprintf("Remove the assignee of a %s (admin)", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, itemAction(e, k, e.Unassign))

	huma.Register(api, huma.Operation{
		OperationID: "update-" + string(k.kind) + "-notes",
		Method:      http.MethodPatch,
		Path:        base + "/{id}/notes",
		Summary:     fmt.Sprintf("Update notes on a %s", k.kind),
		Tags:        tags,
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string    `path:"id"`
		Body NotesBody `json:"body"`
	}) (*itemOutput, error) {
		return itemAction(e, k, func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error) {
			return e.UpdateNotes(ctx, s, id, engine.NotesUpdate{AdminNotes: input.Body.AdminNotes, Notes: input.Body.Notes})
		})(ctx, &itemPath{ID: input.ID})
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-" + string(k.kind) + "-events",
		Method:      http.MethodGet,
		Path:        base + "/{id}/events",
		Summary:     fmt.Sprintf("Audit trail of a %s, newest first", k.kind),
		Tags:        tags,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		evts, err := e.ItemEvents(ctx, s, input.ID, k.kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: nonNilSlice(evts)}}, nil
	})
}

func registerOrderOps(api huma.API, e engine.Engine) {
	orders := itemKinds[0]
	huma.Register(api, huma.Operation{
		OperationID:   "create-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Create order",
		Tags:          []string{"orders"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateOrderRequest `json:"body"`
	}) (*itemOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.CreateOrder(ctx, s, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upload-shipping-proof",
		Method:      http.MethodPost,
		Path:        "/orders/{id}/shipping-proof",
		Summary:     "Attach the shipping proof image and mark the order shipped",
		Tags:        []string{"orders"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string  `path:"id"`
		Body URLBody `json:"body"`
	}) (*itemOutput, error) {
		return itemAction(e, orders, func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error) {
			return e.UploadShippingProof(ctx, s, id, input.Body.URL)
		})(ctx, &itemPath{ID: input.ID})
	})
}

func registerQuoteOps(api huma.API, e engine.Engine) {
	quotes := itemKinds[1]
	huma.Register(api, huma.Operation{
		OperationID:   "create-quote",
		Method:        http.MethodPost,
		Path:          "/quotes",
		Summary:       "Request a design quote",
		Tags:          []string{"quotes"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateQuoteRequest `json:"body"`
	}) (*itemOutput, error) {
		s, authErr := subjectFromContext(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.CreateQuote(ctx, s, input.Body.options())
		if err != nil {
			return nil, handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-quote",
		Method:      http.MethodPost,
		Path:        "/quotes/{id}/reassign",
		Summary:     "Hand a quote to another designer (admin)",
		Tags:        []string{"quotes"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body AssignBody `json:"body"`
	}) (*itemOutput, error) {
		return itemAction(e, quotes, func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error) {
			return e.Reassign(ctx, s, id, input.Body.AssigneeID)
		})(ctx, &itemPath{ID: input.ID})
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-primary-design",
		Method:      http.MethodPut,
		Path:        "/quotes/{id}/primary-design",
		Summary:     "Record the design delivered to the customer",
		Tags:        []string{"quotes"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string  `path:"id"`
		Body URLBody `json:"body"`
	}) (*itemOutput, error) {
		return itemAction(e, quotes, func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error) {
			return e.SetPrimaryDesign(ctx, s, id, input.Body.URL)
		})(ctx, &itemPath{ID: input.ID})
	})
}
