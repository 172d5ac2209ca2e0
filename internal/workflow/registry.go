package workflow

import (
	"errors"
	"fmt"
	"sync"

	"orderline/internal/domain"
)

var (
	ErrUnknownKind       = errors.New("unknown item kind")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrIllegalTransition = errors.New("illegal transition")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	Kind domain.Kind
	From domain.Status
	To   domain.Status
	Err  error
}

func (e *TransitionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownKind):
		return fmt.Sprintf("unknown item kind %q", e.Kind)
	case errors.Is(e.Err, ErrInvalidStatus):
		return fmt.Sprintf("invalid %s status transition %s -> %s: unknown status", e.Kind, e.From, e.To)
	}
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// AssignmentRule says who may hold an item and in which statuses.
type AssignmentRule struct {
	Role       domain.Role
	Claimable  []domain.Status
	Assignable []domain.Status
	Releasable []domain.Status
	// LockOnPrimaryDesign blocks unassign once a primary design is recorded.
	LockOnPrimaryDesign bool
	Reassignable        bool
}

func (r AssignmentRule) CanClaim(s domain.Status) bool   { return contains(r.Claimable, s) }
func (r AssignmentRule) CanAssign(s domain.Status) bool  { return contains(r.Assignable, s) }
func (r AssignmentRule) CanRelease(s domain.Status) bool { return contains(r.Releasable, s) }

// Graph is the status machine of one item kind. A self edge marks a status
// that may be re-entered without re-stamping its timestamp.
type Graph struct {
	Initial    domain.Status
	Statuses   []domain.Status
	Edges      map[domain.Status][]domain.Status
	Assignment AssignmentRule
}

func (g Graph) Has(s domain.Status) bool { return contains(g.Statuses, s) }

func (g Graph) Next(from domain.Status) []domain.Status {
	return append([]domain.Status(nil), g.Edges[from]...)
}

func (g Graph) Allows(from, to domain.Status) bool {
	return contains(g.Edges[from], to)
}

func (g Graph) IsTerminal(s domain.Status) bool {
	return g.Has(s) && len(g.Edges[s]) == 0
}

func (g Graph) validate() error {
	if !g.Has(g.Initial) {
		return fmt.Errorf("initial status %s not declared", g.Initial)
	}
	for from, tos := range g.Edges {
		if !g.Has(from) {
			return fmt.Errorf("edge from undeclared status %s", from)
		}
		for _, to := range tos {
			if !g.Has(to) {
				return fmt.Errorf("edge %s -> %s targets undeclared status", from, to)
			}
		}
	}
	a := g.Assignment
	for _, set := range [][]domain.Status{a.Claimable, a.Assignable, a.Releasable} {
		for _, s := range set {
			if !g.Has(s) {
				return fmt.Errorf("assignment rule references undeclared status %s", s)
			}
		}
	}
	return nil
}

// Registry maps item kinds to their graphs.
type Registry struct {
	mu     sync.RWMutex
	graphs map[domain.Kind]Graph
	kinds  []domain.Kind
}

func NewRegistry() *Registry {
	return &Registry{graphs: map[domain.Kind]Graph{}}
}

// Default returns a registry holding the order and quote graphs.
func Default() *Registry {
	r := NewRegistry()
	if err := r.Register(domain.KindOrder, OrderGraph()); err != nil {
		panic(err)
	}
	if err := r.Register(domain.KindQuote, QuoteGraph()); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(kind domain.Kind, g Graph) error {
	if kind == "" {
		return errors.New("kind required")
	}
	if err := g.validate(); err != nil {
		return fmt.Errorf("%s graph: %w", kind, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.graphs[kind]; exists {
		return fmt.Errorf("%s graph already registered", kind)
	}
	r.graphs[kind] = g
	r.kinds = append(r.kinds, kind)
	return nil
}

func (r *Registry) Graph(kind domain.Kind) (Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[kind]
	return g, ok
}

func (r *Registry) Kinds() []domain.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Kind(nil), r.kinds...)
}

// IsValidTransition fails closed on unknown kinds and statuses.
func (r *Registry) IsValidTransition(kind domain.Kind, from, to domain.Status) bool {
	return r.Check(kind, from, to) == nil
}

func (r *Registry) Check(kind domain.Kind, from, to domain.Status) error {
	g, ok := r.Graph(kind)
	if !ok {
		return &TransitionError{Kind: kind, From: from, To: to, Err: ErrUnknownKind}
	}
	if !g.Has(from) || !g.Has(to) {
		return &TransitionError{Kind: kind, From: from, To: to, Err: ErrInvalidStatus}
	}
	if !g.Allows(from, to) {
		return &TransitionError{Kind: kind, From: from, To: to, Err: ErrIllegalTransition}
	}
	return nil
}

func contains(set []domain.Status, s domain.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
