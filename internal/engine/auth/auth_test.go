package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"orderline/internal/domain"
)

func ptr(s string) *string { return &s }

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	admin := Subject{ID: "adm", Roles: []domain.Role{domain.RoleAdmin}}
	alice := Subject{ID: "alice", Roles: []domain.Role{domain.RoleCustomer}}
	sam := Subject{ID: "sam", Roles: []domain.Role{domain.RoleShipper}}
	sid := Subject{ID: "sid", Roles: []domain.Role{domain.RoleShipper}}
	dana := Subject{ID: "dana", Roles: []domain.Role{domain.RoleDesigner}}

	order := domain.WorkItem{ID: "o1", Kind: domain.KindOrder, OwnerUserID: "alice", Status: domain.StatusShipping, AssigneeID: ptr("sam")}
	pending := domain.WorkItem{ID: "o2", Kind: domain.KindOrder, OwnerUserID: "alice", Status: domain.StatusPending}
	quote := domain.WorkItem{ID: "q1", Kind: domain.KindQuote, OwnerUserID: "alice", Status: domain.StatusQuoted, AssigneeID: ptr("dana")}

	tests := []struct {
		name    string
		subject Subject
		op      Operation
		item    domain.WorkItem
		want    bool
	}{
		{"admin anything", admin, TransitionOp(domain.StatusDelivered), order, true},
		{"assigned shipper ships", sam, TransitionOp(domain.StatusShipped), order, true},
		{"other shipper cannot ship", sid, TransitionOp(domain.StatusShipped), order, false},
		{"shipper cannot deliver", sam, TransitionOp(domain.StatusDelivered), order, false},
		{"any shipper may claim", sid, OpClaim, order, true},
		{"designer cannot claim orders", dana, OpClaim, order, false},
		{"owner cancels pending", alice, TransitionOp(domain.StatusCanceled), pending, true},
		{"owner cannot cancel shipping", alice, TransitionOp(domain.StatusCanceled), order, false},
		{"owner approves quote", alice, TransitionOp(domain.StatusApproved), quote, true},
		{"designer cannot quote", dana, TransitionOp(domain.StatusQuoted), quote, false},
		{"designer cannot reject", dana, TransitionOp(domain.StatusRejected), quote, false},
		{"assigned designer sets design", dana, OpPrimaryDesign, quote, true},
		{"customer reads own", alice, OpRead, quote, true},
		{"stranger cannot read", Subject{ID: "bob", Roles: []domain.Role{domain.RoleCustomer}}, OpRead, quote, false},
		{"customer creates own", alice, OpCreate, domain.WorkItem{Kind: domain.KindQuote, OwnerUserID: "alice"}, true},
		{"customer cannot create for others", alice, OpCreate, domain.WorkItem{Kind: domain.KindQuote, OwnerUserID: "bob"}, false},
		{"anonymous denied", Subject{}, OpRead, quote, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Can(tt.subject, tt.op, tt.item))
		})
	}
}

func TestForbiddenError(t *testing.T) {
	err := DefaultTable().Authorize(Subject{ID: "x", Roles: []domain.Role{domain.RoleCustomer}}, OpClaim, domain.WorkItem{Kind: domain.KindOrder})
	var fe ForbiddenError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "claim", fe.Permission)
	assert.Equal(t, "permission claim on order required", err.Error())
}

func TestAllowExtendsTable(t *testing.T) {
	table := DefaultTable()
	sam := Subject{ID: "sam", Roles: []domain.Role{domain.RoleShipper}}
	order := domain.WorkItem{Kind: domain.KindOrder, Status: domain.StatusShipped, AssigneeID: ptr("sam")}
	assert.False(t, table.Can(sam, TransitionOp(domain.StatusDelivered), order))
	table.Allow(Grant{Role: domain.RoleShipper, Op: TransitionOp(domain.StatusDelivered), Kind: domain.KindOrder, Relation: AssignedItem})
	assert.True(t, table.Can(sam, TransitionOp(domain.StatusDelivered), order))
}
