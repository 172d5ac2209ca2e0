package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderline/internal/domain"
)

func TestOrderTransitions(t *testing.T) {
	r := Default()
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusPending, domain.StatusProcessing, true},
		{domain.StatusProcessing, domain.StatusShipping, true},
		{domain.StatusShipping, domain.StatusShipped, true},
		{domain.StatusShipped, domain.StatusDelivered, true},
		{domain.StatusShipped, domain.StatusShipped, true},
		{domain.StatusPending, domain.StatusCanceled, true},
		{domain.StatusProcessing, domain.StatusCanceled, true},
		{domain.StatusShipping, domain.StatusCanceled, true},
		{domain.StatusShipped, domain.StatusCanceled, false},
		{domain.StatusDelivered, domain.StatusCanceled, false},
		{domain.StatusCanceled, domain.StatusPending, false},
		{domain.StatusPending, domain.StatusShipped, false},
		{domain.StatusPending, domain.StatusPending, false},
		{domain.StatusPending, domain.StatusQuoted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsValidTransition(domain.KindOrder, tt.from, tt.to))
		})
	}
}

func TestQuoteTransitions(t *testing.T) {
	r := Default()
	tests := []struct {
		from, to domain.Status
		want     bool
	}{
		{domain.StatusPending, domain.StatusReviewing, true},
		{domain.StatusReviewing, domain.StatusQuoted, true},
		{domain.StatusQuoted, domain.StatusApproved, true},
		{domain.StatusApproved, domain.StatusCompleted, true},
		{domain.StatusPending, domain.StatusRejected, true},
		{domain.StatusReviewing, domain.StatusRejected, true},
		{domain.StatusQuoted, domain.StatusRejected, true},
		{domain.StatusRejected, domain.StatusReviewing, true},
		{domain.StatusQuoted, domain.StatusQuoted, true},
		{domain.StatusApproved, domain.StatusRejected, false},
		{domain.StatusCompleted, domain.StatusReviewing, false},
		{domain.StatusPending, domain.StatusApproved, false},
		{domain.StatusRejected, domain.StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsValidTransition(domain.KindQuote, tt.from, tt.to))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	r := Default()
	order, _ := r.Graph(domain.KindOrder)
	quote, _ := r.Graph(domain.KindQuote)
	assert.True(t, order.IsTerminal(domain.StatusDelivered))
	assert.True(t, order.IsTerminal(domain.StatusCanceled))
	assert.False(t, order.IsTerminal(domain.StatusShipped))
	assert.True(t, quote.IsTerminal(domain.StatusCompleted))
	assert.False(t, quote.IsTerminal(domain.StatusRejected))

	for _, kind := range r.Kinds() {
		g, _ := r.Graph(kind)
		for _, from := range g.Statuses {
			if !g.IsTerminal(from) {
				continue
			}
			for _, to := range g.Statuses {
				assert.False(t, r.IsValidTransition(kind, from, to), "%s %s -> %s", kind, from, to)
			}
		}
	}
}

func TestCheckFailsClosed(t *testing.T) {
	r := Default()

	err := r.Check(domain.KindOrder, domain.StatusPending, "teleported")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.False(t, r.IsValidTransition(domain.KindOrder, "bogus", domain.StatusPending))

	err = r.Check("invoice", domain.StatusPending, domain.StatusProcessing)
	assert.True(t, errors.Is(err, ErrUnknownKind))

	err = r.Check(domain.KindOrder, domain.StatusDelivered, domain.StatusCanceled)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, "invalid order status transition delivered -> canceled", te.Error())
}

func TestRegisterNewKind(t *testing.T) {
	r := Default()
	returns := Graph{
		Initial:  "requested",
		Statuses: []domain.Status{"requested", "received", "refunded"},
		Edges: map[domain.Status][]domain.Status{
			"requested": {"received"},
			"received":  {"refunded"},
		},
	}
	require.NoError(t, r.Register("return", returns))
	assert.True(t, r.IsValidTransition("return", "requested", "received"))
	assert.False(t, r.IsValidTransition("return", "requested", "refunded"))
	assert.True(t, r.IsValidTransition(domain.KindOrder, domain.StatusPending, domain.StatusProcessing))

	assert.Error(t, r.Register("return", returns))
	assert.Error(t, r.Register("broken", Graph{
		Initial:  "a",
		Statuses: []domain.Status{"a"},
		Edges:    map[domain.Status][]domain.Status{"a": {"b"}},
	}))
}

func TestAssignmentRules(t *testing.T) {
	order := OrderGraph().Assignment
	assert.Equal(t, domain.RoleShipper, order.Role)
	assert.True(t, order.CanClaim(domain.StatusShipping))
	assert.False(t, order.CanClaim(domain.StatusProcessing))
	assert.True(t, order.CanRelease(domain.StatusShipping))
	assert.False(t, order.CanRelease(domain.StatusShipped))
	assert.False(t, order.CanRelease(domain.StatusDelivered))

	quote := QuoteGraph().Assignment
	assert.Equal(t, domain.RoleDesigner, quote.Role)
	assert.True(t, quote.LockOnPrimaryDesign)
	assert.True(t, quote.CanRelease(domain.StatusQuoted))
	assert.False(t, quote.CanRelease(domain.StatusCompleted))
}
