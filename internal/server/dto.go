package server

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/engine/auth"
)

// Request payloads. Fields are optional at the schema level so the engine
// reports missing values as validation failures with a field name.

type LineItemRequest struct {
	ProductID      string          `json:"product_id,omitempty"`
	Name           string          `json:"name,omitempty"`
	Size           string          `json:"size,omitempty"`
	Color          string          `json:"color,omitempty"`
	PrintPlacement string          `json:"print_placement,omitempty"`
	Quantity       int             `json:"quantity,omitempty"`
	UnitPrice      decimal.Decimal `json:"unit_price,omitempty"`
}

type AddressRequest struct {
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type CreateOrderRequest struct {
	OwnerUserID     string            `json:"owner_user_id,omitempty"`
	OrderNumber     string            `json:"order_number,omitempty"`
	Items           []LineItemRequest `json:"items,omitempty"`
	ShippingAddress AddressRequest    `json:"shipping_address,omitempty"`
	ShippingFee     decimal.Decimal   `json:"shipping_fee,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

type CreateQuoteRequest struct {
	OwnerUserID         string     `json:"owner_user_id,omitempty"`
	CustomerName        string     `json:"customer_name,omitempty"`
	CustomerEmail       string     `json:"customer_email,omitempty"`
	CustomerPhone       string     `json:"customer_phone,omitempty"`
	ProductType         string     `json:"product_type,omitempty"`
	Quantity            int        `json:"quantity,omitempty"`
	Sizes               []string   `json:"sizes,omitempty"`
	Colors              []string   `json:"colors,omitempty"`
	PrintAreas          []string   `json:"print_areas,omitempty"`
	DesignDescription   string     `json:"design_description,omitempty"`
	ReferenceImageURLs  []string   `json:"reference_image_urls,omitempty"`
	DesiredDeliveryDate *time.Time `json:"desired_delivery_date,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

type PriceBreakdownRequest struct {
	BasePrice   decimal.Decimal `json:"base_price,omitempty"`
	SetupFee    decimal.Decimal `json:"setup_fee,omitempty"`
	DesignFee   decimal.Decimal `json:"design_fee,omitempty"`
	RushFee     decimal.Decimal `json:"rush_fee,omitempty"`
	ShippingFee decimal.Decimal `json:"shipping_fee,omitempty"`
	Tax         decimal.Decimal `json:"tax,omitempty"`
}

type TransitionBody struct {
	Status           string                 `json:"status" minLength:"1"`
	QuotedPrice      *decimal.Decimal       `json:"quoted_price,omitempty"`
	PriceBreakdown   *PriceBreakdownRequest `json:"price_breakdown,omitempty"`
	RejectionReason  *string                `json:"rejection_reason,omitempty"`
	CancelReason     *string                `json:"cancel_reason,omitempty"`
	ShippingImageURL *string                `json:"shipping_image_url,omitempty"`
	AdminNotes       *string                `json:"admin_notes,omitempty"`
	Notes            *string                `json:"notes,omitempty"`
}

type AssignBody struct {
	AssigneeID string `json:"assignee_id" minLength:"1"`
}

type NotesBody struct {
	AdminNotes *string `json:"admin_notes,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type URLBody struct {
	URL string `json:"url" minLength:"1"`
}

type ActorBody struct {
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type RoleBody struct {
	Role string `json:"role" enum:"admin,shipper,designer,customer"`
}

type APIKeyBody struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type CountsResponse struct {
	Kind   domain.Kind           `json:"kind"`
	Counts map[domain.Status]int `json:"counts"`
}

type EventsResponse struct {
	Events []domain.Event `json:"events"`
}

type ActorsResponse struct {
	Actors []domain.Actor `json:"actors"`
}

type MeResponse struct {
	domain.Actor
	Source string `json:"source"`
}

type APIKeyResponse struct {
	domain.APIKey
	Key string `json:"key"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UploadResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
}

func (r CreateOrderRequest) options() engine.CreateOrderOptions {
	items := make([]domain.LineItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = domain.LineItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Size:           it.Size,
			Color:          it.Color,
			PrintPlacement: it.PrintPlacement,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
		}
	}
	a := r.ShippingAddress
	return engine.CreateOrderOptions{
		OwnerUserID: r.OwnerUserID,
		Notes:       r.Notes,
		Payload: domain.OrderPayload{
			OrderNumber: r.OrderNumber,
			Items:       items,
			ShippingAddress: domain.Address{
				Name:       a.Name,
				Phone:      a.Phone,
				Street:     a.Street,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
			},
			ShippingFee: r.ShippingFee,
		},
	}
}

func (r CreateQuoteRequest) options() engine.CreateQuoteOptions {
	return engine.CreateQuoteOptions{
		OwnerUserID: r.OwnerUserID,
		Notes:       r.Notes,
		Payload: domain.QuotePayload{
			CustomerName:        r.CustomerName,
			CustomerEmail:       r.CustomerEmail,
			CustomerPhone:       r.CustomerPhone,
			ProductType:         r.ProductType,
			Quantity:            r.Quantity,
			Sizes:               r.Sizes,
			Colors:              r.Colors,
			PrintAreas:          r.PrintAreas,
			DesignDescription:   r.DesignDescription,
			ReferenceImageURLs:  r.ReferenceImageURLs,
			DesiredDeliveryDate: r.DesiredDeliveryDate,
		},
	}
}

func (b TransitionBody) request(kind domain.Kind, id string, actor auth.Subject) engine.TransitionRequest {
	f := engine.TransitionFields{
		QuotedPrice:      b.QuotedPrice,
		RejectionReason:  b.RejectionReason,
		CancelReason:     b.CancelReason,
		ShippingImageURL: b.ShippingImageURL,
		AdminNotes:       b.AdminNotes,
		Notes:            b.Notes,
	}
	if pb := b.PriceBreakdown; pb != nil {
		f.PriceBreakdown = &domain.PriceBreakdown{
			BasePrice:   pb.BasePrice,
			SetupFee:    pb.SetupFee,
			DesignFee:   pb.DesignFee,
			RushFee:     pb.RushFee,
			ShippingFee: pb.ShippingFee,
			Tax:         pb.Tax,
		}
	}
	return engine.TransitionRequest{
		ItemID: id,
		Kind:   kind,
		Actor:  actor,
		Target: domain.Status(strings.TrimSpace(b.Status)),
		Fields: f,
	}
}

func (b ActorBody) actor(id string) domain.Actor {
	a := domain.Actor{ID: id, Name: b.Name, Email: b.Email, AvatarURL: b.AvatarURL}
	for _, r := range b.Roles {
		a.Roles = append(a.Roles, domain.Role(strings.TrimSpace(r)))
	}
	return a
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
