package auth

import (
	"fmt"

	"orderline/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Kind       domain.Kind
}

func (e ForbiddenError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s on %s required", e.Permission, e.Kind)
}

type Operation string

const (
	OpAll           Operation = "*"
	OpCreate        Operation = "create"
	OpRead          Operation = "read"
	OpClaim         Operation = "claim"
	OpRelease       Operation = "release"
	OpAssign        Operation = "assign"
	OpReassign      Operation = "reassign"
	OpNotes         Operation = "notes"
	OpAdminNotes    Operation = "admin_notes"
	OpShippingProof Operation = "shipping_proof"
	OpPrimaryDesign Operation = "primary_design"
	OpAuditRead     Operation = "audit_read"
	OpManageActors  Operation = "manage_actors"
)

// TransitionOp is the permission needed to move an item into target.
func TransitionOp(target domain.Status) Operation {
	return Operation("transition:" + string(target))
}

// Relation narrows a grant to the caller's relationship with the item.
type Relation int

const (
	AnyItem Relation = iota
	OwnItem
	AssignedItem
)

// Grant allows Role to perform Op on Kind. Empty Kind matches every kind and
// empty From matches every current status.
type Grant struct {
	Role     domain.Role
	Op       Operation
	Kind     domain.Kind
	Relation Relation
	From     []domain.Status
}

// Subject is the authenticated caller.
type Subject struct {
	ID    string
	Roles []domain.Role
}

func (s Subject) HasRole(r domain.Role) bool {
	for _, have := range s.Roles {
		if have == r {
			return true
		}
	}
	return false
}

func (s Subject) IsAdmin() bool { return s.HasRole(domain.RoleAdmin) }

// Table is a declarative role x operation x kind permission table.
type Table struct {
	grants []Grant
}

func NewTable(grants ...Grant) *Table {
	return &Table{grants: append([]Grant(nil), grants...)}
}

func (t *Table) Allow(g Grant) {
	t.grants = append(t.grants, g)
}

func (t *Table) Grants() []Grant {
	return append([]Grant(nil), t.grants...)
}

// Authorize returns ForbiddenError unless some grant matches.
func (t *Table) Authorize(s Subject, op Operation, item domain.WorkItem) error {
	if s.ID != "" {
		for _, g := range t.grants {
			if g.matches(s, op, item) {
				return nil
			}
		}
	}
	return ForbiddenError{Permission: string(op), Kind: item.Kind}
}

// Can is Authorize without the error value.
func (t *Table) Can(s Subject, op Operation, item domain.WorkItem) bool {
	return t.Authorize(s, op, item) == nil
}

func (g Grant) matches(s Subject, op Operation, item domain.WorkItem) bool {
	if !s.HasRole(g.Role) {
		return false
	}
	if g.Op != OpAll && g.Op != op {
		return false
	}
	if g.Kind != "" && g.Kind != item.Kind {
		return false
	}
	if len(g.From) > 0 {
		found := false
		for _, st := range g.From {
			if st == item.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	switch g.Relation {
	case OwnItem:
		return item.OwnerUserID == s.ID
	case AssignedItem:
		return item.IsAssignedTo(s.ID)
	}
	return true
}

// DefaultTable is the storefront permission policy.
func DefaultTable() *Table {
	return NewTable(
		Grant{Role: domain.RoleAdmin, Op: OpAll},

		Grant{Role: domain.RoleCustomer, Op: OpCreate, Relation: OwnItem},
		Grant{Role: domain.RoleCustomer, Op: OpRead, Relation: OwnItem},
		Grant{Role: domain.RoleCustomer, Op: OpNotes, Relation: OwnItem},
		Grant{Role: domain.RoleCustomer, Op: TransitionOp(domain.StatusCanceled), Kind: domain.KindOrder, Relation: OwnItem, From: []domain.Status{domain.StatusPending}},
		Grant{Role: domain.RoleCustomer, Op: TransitionOp(domain.StatusApproved), Kind: domain.KindQuote, Relation: OwnItem},

		Grant{Role: domain.RoleShipper, Op: OpRead, Kind: domain.KindOrder, Relation: AssignedItem},
		Grant{Role: domain.RoleShipper, Op: OpClaim, Kind: domain.KindOrder},
		Grant{Role: domain.RoleShipper, Op: OpRelease, Kind: domain.KindOrder, Relation: AssignedItem},
		Grant{Role: domain.RoleShipper, Op: OpNotes, Kind: domain.KindOrder, Relation: AssignedItem},
		Grant{Role: domain.RoleShipper, Op: OpShippingProof, Kind: domain.KindOrder, Relation: AssignedItem},
		Grant{Role: domain.RoleShipper, Op: TransitionOp(domain.StatusShipped), Kind: domain.KindOrder, Relation: AssignedItem},

		Grant{Role: domain.RoleDesigner, Op: OpRead, Kind: domain.KindQuote, Relation: AssignedItem},
		Grant{Role: domain.RoleDesigner, Op: OpClaim, Kind: domain.KindQuote},
		Grant{Role: domain.RoleDesigner, Op: OpRelease, Kind: domain.KindQuote, Relation: AssignedItem},
		Grant{Role: domain.RoleDesigner, Op: OpNotes, Kind: domain.KindQuote, Relation: AssignedItem},
		Grant{Role: domain.RoleDesigner, Op: OpPrimaryDesign, Kind: domain.KindQuote, Relation: AssignedItem},
		Grant{Role: domain.RoleDesigner, Op: TransitionOp(domain.StatusReviewing), Kind: domain.KindQuote, Relation: AssignedItem},
	)
}
