package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBreakdownTotal(t *testing.T) {
	b := PriceBreakdown{
		BasePrice:   decimal.NewFromInt(100000),
		SetupFee:    decimal.NewFromInt(5000),
		DesignFee:   decimal.RequireFromString("2500.50"),
		ShippingFee: decimal.NewFromInt(1500),
	}
	assert.True(t, b.Total().Equal(decimal.RequireFromString("109000.50")))

	_, neg := b.NegativeComponent()
	assert.False(t, neg)
	b.Tax = decimal.NewFromInt(-1)
	name, neg := b.NegativeComponent()
	assert.True(t, neg)
	assert.Equal(t, "tax", name)
}

func TestOrderPayloadRecompute(t *testing.T) {
	p := &OrderPayload{
		OrderNumber: "ORD-1",
		Items: []LineItem{
			{ProductID: "tee", Name: "Tee", Quantity: 2, UnitPrice: decimal.NewFromInt(150)},
			{ProductID: "hood", Name: "Hoodie", Quantity: 1, UnitPrice: decimal.NewFromInt(400)},
		},
		ShippingFee: decimal.NewFromInt(30),
	}
	p.Recompute()
	assert.True(t, p.Subtotal.Equal(decimal.NewFromInt(700)))
	assert.True(t, p.Total.Equal(decimal.NewFromInt(730)))
}

func TestDecodePayloadUsesItemKind(t *testing.T) {
	p, err := DecodePayload(KindQuote, []byte(`{"customer_name":"Ana","customer_email":"ana@example.com","product_type":"hoodie","quantity":12}`))
	require.NoError(t, err)
	q, ok := p.(*QuotePayload)
	require.True(t, ok)
	assert.Equal(t, 12, q.Quantity)

	_, err = DecodePayload(Kind("invoice"), []byte(`{}`))
	assert.Error(t, err)
}

func TestSearchText(t *testing.T) {
	p := &QuotePayload{CustomerName: "Ana Silva", CustomerEmail: "Ana@Example.com", ProductType: " Hoodie "}
	assert.Equal(t, "q-1 ana silva ana@example.com hoodie", SearchText("Q-1", p))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("designer")
	assert.True(t, ok)
	assert.Equal(t, RoleDesigner, r)
	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestItemViewDecodesPayloadByKind(t *testing.T) {
	data := []byte(`{
		"id": "o-1",
		"kind": "order",
		"owner_user_id": "cust-1",
		"status": "shipping",
		"assignee_id": "ship-1",
		"payload": {"order_number": "ORD-1", "items": [{"product_id": "tee", "name": "Tee", "quantity": 1, "unit_price": "150"}], "total": "150"},
		"version": 3,
		"owner": {"id": "cust-1", "name": "Ana"},
		"assignee": {"id": "ship-1"}
	}`)
	var v ItemView
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, "o-1", v.ID)
	assert.Equal(t, StatusShipping, v.Status)
	assert.Equal(t, int64(3), v.Version)
	require.NotNil(t, v.AssigneeID)
	assert.Equal(t, "ship-1", *v.AssigneeID)
	order, ok := v.Payload.(*OrderPayload)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", order.OrderNumber)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, v.Owner)
	assert.Equal(t, "Ana", v.Owner.Name)
	require.NotNil(t, v.Assignee)

	var bad WorkItem
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"invoice","payload":{}}`), &bad))
}
