package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrder Kind = "order"
	KindQuote Kind = "quote"
)

type Status string

const (
	StatusPending Status = "pending"

	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"

	StatusReviewing Status = "reviewing"
	StatusQuoted    Status = "quoted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleShipper  Role = "shipper"
	RoleDesigner Role = "designer"
	RoleCustomer Role = "customer"
)

// ParseRole accepts the canonical role names only.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleShipper, RoleDesigner, RoleCustomer:
		return r, true
	}
	return "", false
}

type WorkItem struct {
	ID               string               `json:"id"`
	Kind             Kind                 `json:"kind"`
	OwnerUserID      string               `json:"owner_user_id"`
	AssigneeID       *string              `json:"assignee_id,omitempty"`
	Status           Status               `json:"status"`
	StatusTimestamps map[Status]time.Time `json:"status_timestamps"`
	QuotedPrice      *decimal.Decimal     `json:"quoted_price,omitempty"`
	PriceBreakdown   *PriceBreakdown      `json:"price_breakdown,omitempty"`
	PriceMismatch    bool                 `json:"price_mismatch,omitempty"`
	RejectionReason  *string              `json:"rejection_reason,omitempty"`
	CancelReason     *string              `json:"cancel_reason,omitempty"`
	ShippingImageURL *string              `json:"shipping_image_url,omitempty"`
	PrimaryDesignURL *string              `json:"primary_design_url,omitempty"`
	AdminNotes       *string              `json:"admin_notes,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
	Payload          Payload              `json:"payload"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// StampedAt returns when the item first entered status.
func (w WorkItem) StampedAt(s Status) (time.Time, bool) {
	ts, ok := w.StatusTimestamps[s]
	return ts, ok
}

func (w WorkItem) IsAssignedTo(actorID string) bool {
	return w.AssigneeID != nil && *w.AssigneeID == actorID
}

// PriceBreakdown itemizes a quoted price. Components are never negative.
type PriceBreakdown struct {
	BasePrice   decimal.Decimal `json:"base_price"`
	SetupFee    decimal.Decimal `json:"setup_fee"`
	DesignFee   decimal.Decimal `json:"design_fee"`
	RushFee     decimal.Decimal `json:"rush_fee"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Tax         decimal.Decimal `json:"tax"`
}

func (b PriceBreakdown) Total() decimal.Decimal {
	return decimal.Sum(b.BasePrice, b.SetupFee, b.DesignFee, b.RushFee, b.ShippingFee, b.Tax)
}

// NegativeComponent reports the json name of the first negative component.
func (b PriceBreakdown) NegativeComponent() (string, bool) {
	for _, c := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"base_price", b.BasePrice},
		{"setup_fee", b.SetupFee},
		{"design_fee", b.DesignFee},
		{"rush_fee", b.RushFee},
		{"shipping_fee", b.ShippingFee},
		{"tax", b.Tax},
	} {
		if c.value.IsNegative() {
			return c.name, true
		}
	}
	return "", false
}

type Actor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Roles     []Role    `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

func (a Actor) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Profile is the display projection of an actor.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type APIKey struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID      int64          `json:"id"`
	TS      time.Time      `json:"ts"`
	Type    string         `json:"type"`
	Kind    Kind           `json:"kind"`
	ItemID  string         `json:"item_id"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

type ItemView struct {
	WorkItem
	Owner    *Profile `json:"owner,omitempty"`
	Assignee *Profile `json:"assignee,omitempty"`
}

type ItemPage struct {
	Items       []ItemView `json:"items"`
	Total       int        `json:"total"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
	TotalPages  int        `json:"total_pages"`
	HasNextPage bool       `json:"has_next_page"`
	HasPrevPage bool       `json:"has_prev_page"`
}
