package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the kind-specific body of a work item. The workflow never reads it.
type Payload interface {
	Kind() Kind
	SearchTerms() []string
}

type LineItem struct {
	ProductID      string          `json:"product_id" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	Size           string          `json:"size,omitempty"`
	Color          string          `json:"color,omitempty"`
	PrintPlacement string          `json:"print_placement,omitempty"`
	Quantity       int             `json:"quantity" validate:"gte=1"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type Address struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country" validate:"required"`
}

type OrderPayload struct {
	OrderNumber     string          `json:"order_number" validate:"required"`
	Items           []LineItem      `json:"items" validate:"required,min=1,dive"`
	ShippingAddress Address         `json:"shipping_address"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
}

func (*OrderPayload) Kind() Kind { return KindOrder }

func (p *OrderPayload) SearchTerms() []string {
	terms := []string{p.OrderNumber, p.ShippingAddress.Name, p.ShippingAddress.Phone, p.ShippingAddress.City}
	for _, it := range p.Items {
		terms = append(terms, it.Name)
	}
	return terms
}

// Recompute derives subtotal and total from the line items.
func (p *OrderPayload) Recompute() {
	subtotal := decimal.Zero
	for _, it := range p.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	p.Subtotal = subtotal
	p.Total = subtotal.Add(p.ShippingFee)
}

// NegativeAmount reports the first money field below zero.
func (p *OrderPayload) NegativeAmount() (string, bool) {
	if p.ShippingFee.IsNegative() {
		return "shipping_fee", true
	}
	for i, it := range p.Items {
		if it.UnitPrice.IsNegative() {
			return fmt.Sprintf("items[%d].unit_price", i), true
		}
	}
	return "", false
}

type QuotePayload struct {
	CustomerName        string     `json:"customer_name" validate:"required"`
	CustomerEmail       string     `json:"customer_email" validate:"required,email"`
	CustomerPhone       string     `json:"customer_phone,omitempty"`
	ProductType         string     `json:"product_type" validate:"required"`
	Quantity            int        `json:"quantity" validate:"gte=1"`
	Sizes               []string   `json:"sizes,omitempty"`
	Colors              []string   `json:"colors,omitempty"`
	PrintAreas          []string   `json:"print_areas,omitempty"`
	DesignDescription   string     `json:"design_description,omitempty"`
	ReferenceImageURLs  []string   `json:"reference_image_urls,omitempty" validate:"omitempty,dive,http_url"`
	DesiredDeliveryDate *time.Time `json:"desired_delivery_date,omitempty"`
}

func (*QuotePayload) Kind() Kind { return KindQuote }

func (p *QuotePayload) SearchTerms() []string {
	return []string{p.CustomerName, p.CustomerEmail, p.CustomerPhone, p.ProductType}
}

// SearchText builds the lowercase text matched by free-text search.
func SearchText(id string, p Payload) string {
	terms := []string{id}
	if p != nil {
		terms = append(terms, p.SearchTerms()...)
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return strings.Join(out, " ")
}

// DecodePayload decodes stored payload JSON using the owning item's kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindOrder:
		p = &OrderPayload{}
	case KindQuote:
		p = &QuotePayload{}
	default:
		return nil, fmt.Errorf("unknown item kind %q", kind)
	}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// UnmarshalJSON decodes the payload according to the item kind.
func (it *WorkItem) UnmarshalJSON(data []byte) error {
	type plain WorkItem
	var raw struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*it = WorkItem(raw.plain)
	it.Payload = nil
	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}
	p, err := DecodePayload(it.Kind, raw.Payload)
	if err != nil {
		return err
	}
	it.Payload = p
	return nil
}

// UnmarshalJSON decodes the profiles next to the embedded item.
func (v *ItemView) UnmarshalJSON(data []byte) error {
	if err := v.WorkItem.UnmarshalJSON(data); err != nil {
		return err
	}
	var people struct {
		Owner    *Profile `json:"owner"`
		Assignee *Profile `json:"assignee"`
	}
	if err := json.Unmarshal(data, &people); err != nil {
		return err
	}
	v.Owner, v.Assignee = people.Owner, people.Assignee
	return nil
}
