package engine

import (
	"context"
	"strings"

	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/identity"
	"orderline/internal/repo"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 1_000_000 // keeps (page-1)*size inside int range
)

// ListFilter selects items of one kind. Pool lists unassigned items the
// viewer could claim instead of the viewer's own items.
type ListFilter struct {
	Kind       domain.Kind
	Status     domain.Status
	Search     string
	AssigneeID string
	Pool       bool
	Page       int
	PageSize   int
	SortBy     string
	SortDesc   bool
}

// Get returns one item decorated with owner and assignee profiles. Callers
// who can neither read the item nor claim it get Forbidden.
func (e Engine) Get(ctx context.Context, viewer auth.Subject, itemID string, kind domain.Kind) (domain.ItemView, error) {
	it, err := e.loadItem(ctx, nil, itemID, kind)
	if err != nil {
		return domain.ItemView{}, e.fail(ctx, "get", err)
	}
	if !e.canSee(viewer, it) {
		return domain.ItemView{}, e.fail(ctx, "get", newError(KindForbidden, "not allowed to view this %s", it.Kind))
	}
	views, err := e.decorate(ctx, viewer, []domain.WorkItem{it})
	if err != nil {
		return domain.ItemView{}, e.fail(ctx, "get", err)
	}
	return views[0], nil
}

func (e Engine) canSee(viewer auth.Subject, it domain.WorkItem) bool {
	if e.Perms.Can(viewer, auth.OpRead, it) {
		return true
	}
	g, ok := e.Registry.Graph(it.Kind)
	if !ok {
		return false
	}
	rule := g.Assignment
	return viewer.HasRole(rule.Role) && it.AssigneeID == nil && rule.CanClaim(it.Status)
}

// scope turns a ListFilter into a store filter restricted to what viewer may see.
func (e Engine) scope(viewer auth.Subject, f ListFilter) (repo.ItemFilter, error) {
	g, err := e.graph(f.Kind)
	if err != nil {
		return repo.ItemFilter{}, err
	}
	if f.Status != "" && !g.Has(f.Status) {
		return repo.ItemFilter{}, validationError("status", "unknown %s status %q", f.Kind, f.Status)
	}
	switch f.SortBy {
	case "", "created_at", "updated_at":
	default:
		return repo.ItemFilter{}, validationError("sort", "sort must be created_at or updated_at")
	}
	if viewer.ID == "" {
		return repo.ItemFilter{}, newError(KindForbidden, "an authenticated actor is required")
	}
	rf := repo.ItemFilter{
		Kind:       f.Kind,
		Status:     f.Status,
		Search:     strings.TrimSpace(f.Search),
		AssigneeID: f.AssigneeID,
		SortBy:     f.SortBy,
		SortDesc:   f.SortDesc,
	}
	switch {
	case f.Pool:
		if !viewer.HasRole(g.Assignment.Role) && !viewer.IsAdmin() {
			return repo.ItemFilter{}, &Error{
				Kind:    KindForbidden,
				Message: "the " + string(f.Kind) + " pool requires the " + string(g.Assignment.Role) + " role",
				Details: map[string]any{"role": string(g.Assignment.Role)},
			}
		}
		rf.Unassigned = true
		rf.StatusIn = g.Assignment.Claimable
	case viewer.IsAdmin():
	default:
		rf.VisibleTo = viewer.ID
	}
	return rf, nil
}

// List returns one page of items visible to viewer.
func (e Engine) List(ctx context.Context, viewer auth.Subject, f ListFilter) (domain.ItemPage, error) {
	rf, err := e.scope(viewer, f)
	if err != nil {
		return domain.ItemPage{}, e.fail(ctx, "list", err)
	}
	page, size := normalizePage(f.Page, f.PageSize)
	rf.Limit = size
	rf.Offset = (page - 1) * size
	items, total, err := e.Repo.ListItems(ctx, nil, rf)
	if err != nil {
		return domain.ItemPage{}, e.fail(ctx, "list", storeErr(err))
	}
	views, err := e.decorate(ctx, viewer, items)
	if err != nil {
		return domain.ItemPage{}, e.fail(ctx, "list", err)
	}
	totalPages := (total + size - 1) / size
	return domain.ItemPage{
		Items:       views,
		Total:       total,
		Page:        page,
		PageSize:    size,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

// CountByStatus counts visible items per status of the kind, zeros included.
// The status in f is ignored so counts match the tabs of the same listing.
func (e Engine) CountByStatus(ctx context.Context, viewer auth.Subject, f ListFilter) (map[domain.Status]int, error) {
	f.Status = ""
	rf, err := e.scope(viewer, f)
	if err != nil {
		return nil, e.fail(ctx, "counts", err)
	}
	counts, err := e.Repo.CountItemsByStatus(ctx, nil, rf)
	if err != nil {
		return nil, e.fail(ctx, "counts", storeErr(err))
	}
	g, _ := e.Registry.Graph(f.Kind)
	out := make(map[domain.Status]int, len(g.Statuses))
	for _, s := range g.Statuses {
		out[s] = counts[s]
	}
	return out, nil
}

// ItemEvents returns the audit trail of one item, newest first.
func (e Engine) ItemEvents(ctx context.Context, viewer auth.Subject, itemID string, kind domain.Kind) ([]domain.Event, error) {
	it, err := e.loadItem(ctx, nil, itemID, kind)
	if err != nil {
		return nil, e.fail(ctx, "events", err)
	}
	if !e.Perms.Can(viewer, auth.OpRead, it) {
		return nil, e.fail(ctx, "events", newError(KindForbidden, "not allowed to view this %s", it.Kind))
	}
	evts, err := e.Repo.LatestEvents(ctx, nil, repo.EventFilter{ItemID: it.ID})
	if err != nil {
		return nil, e.fail(ctx, "events", storeErr(err))
	}
	return evts, nil
}

// AuditLog returns recent events across items. Admin only.
func (e Engine) AuditLog(ctx context.Context, viewer auth.Subject, f repo.EventFilter) ([]domain.Event, error) {
	if err := e.authorize(viewer, auth.OpAuditRead, domain.WorkItem{Kind: f.Kind}); err != nil {
		return nil, e.fail(ctx, "audit", err)
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	evts, err := e.Repo.LatestEvents(ctx, nil, f)
	if err != nil {
		return nil, e.fail(ctx, "audit", storeErr(err))
	}
	return evts, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// decorate attaches display profiles. Emails are only shown to admins and to
// the actor the profile belongs to.
func (e Engine) decorate(ctx context.Context, viewer auth.Subject, items []domain.WorkItem) ([]domain.ItemView, error) {
	ids := make([]string, 0, 2*len(items))
	for _, it := range items {
		ids = append(ids, it.OwnerUserID)
		if it.AssigneeID != nil {
			ids = append(ids, *it.AssigneeID)
		}
	}
	actors, err := e.Directory.Resolve(ctx, ids...)
	if err != nil {
		return nil, storeErr(err)
	}
	profile := func(id string) *domain.Profile {
		a, ok := actors[id]
		if !ok {
			return &domain.Profile{ID: id}
		}
		return identity.Profile(a, viewer.IsAdmin() || id == viewer.ID)
	}
	views := make([]domain.ItemView, len(items))
	for i, it := range items {
		views[i] = domain.ItemView{WorkItem: it, Owner: profile(it.OwnerUserID)}
		if it.AssigneeID != nil {
			views[i].Assignee = profile(*it.AssigneeID)
		}
	}
	return views, nil
}

// ExpectKind reports NotFound unless itemID exists and is of kind.
func (e Engine) ExpectKind(ctx context.Context, itemID string, kind domain.Kind) error {
	_, err := e.loadItem(ctx, nil, itemID, kind)
	return err
}
