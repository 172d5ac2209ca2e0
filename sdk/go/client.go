package orderlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a minimal Orderline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Kind string

const (
	Order Kind = "order"
	Quote Kind = "quote"
)

func (k Kind) plural() string { return string(k) + "s" }

type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Item is an order or a quote. Payload is left raw; its shape depends on Kind.
type Item struct {
	ID               string               `json:"id"`
	Kind             Kind                 `json:"kind"`
	OwnerUserID      string               `json:"owner_user_id"`
	AssigneeID       *string              `json:"assignee_id,omitempty"`
	Status           string               `json:"status"`
	StatusTimestamps map[string]time.Time `json:"status_timestamps"`
	QuotedPrice      *decimal.Decimal     `json:"quoted_price,omitempty"`
	PriceMismatch    bool                 `json:"price_mismatch,omitempty"`
	RejectionReason  *string              `json:"rejection_reason,omitempty"`
	CancelReason     *string              `json:"cancel_reason,omitempty"`
	ShippingImageURL *string              `json:"shipping_image_url,omitempty"`
	PrimaryDesignURL *string              `json:"primary_design_url,omitempty"`
	AdminNotes       *string              `json:"admin_notes,omitempty"`
	Notes            *string              `json:"notes,omitempty"`
	Payload          json.RawMessage      `json:"payload"`
	Version          int64                `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Owner            *Profile             `json:"owner,omitempty"`
	Assignee         *Profile             `json:"assignee,omitempty"`
}

type ItemPage struct {
	Items       []Item `json:"items"`
	Total       int    `json:"total"`
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	TotalPages  int    `json:"total_pages"`
	HasNextPage bool   `json:"has_next_page"`
	HasPrevPage bool   `json:"has_prev_page"`
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

type Me struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles"`
	Source string   `json:"source"`
}

type LineItem struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Size           string          `json:"size,omitempty"`
	Color          string          `json:"color,omitempty"`
	PrintPlacement string          `json:"print_placement,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

type CreateOrderRequest struct {
	OwnerUserID     string          `json:"owner_user_id,omitempty"`
	OrderNumber     string          `json:"order_number,omitempty"`
	Items           []LineItem      `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Notes           string          `json:"notes,omitempty"`
}

type CreateQuoteRequest struct {
	OwnerUserID         string     `json:"owner_user_id,omitempty"`
	CustomerName        string     `json:"customer_name"`
	CustomerEmail       string     `json:"customer_email"`
	CustomerPhone       string     `json:"customer_phone,omitempty"`
	ProductType         string     `json:"product_type"`
	Quantity            int        `json:"quantity"`
	Sizes               []string   `json:"sizes,omitempty"`
	Colors              []string   `json:"colors,omitempty"`
	PrintAreas          []string   `json:"print_areas,omitempty"`
	DesignDescription   string     `json:"design_description,omitempty"`
	ReferenceImageURLs  []string   `json:"reference_image_urls,omitempty"`
	DesiredDeliveryDate *time.Time `json:"desired_delivery_date,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

type PriceBreakdown struct {
	BasePrice   decimal.Decimal `json:"base_price"`
	SetupFee    decimal.Decimal `json:"setup_fee"`
	DesignFee   decimal.Decimal `json:"design_fee"`
	RushFee     decimal.Decimal `json:"rush_fee"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Tax         decimal.Decimal `json:"tax"`
}

type TransitionRequest struct {
	Status           string           `json:"status"`
	QuotedPrice      *decimal.Decimal `json:"quoted_price,omitempty"`
	PriceBreakdown   *PriceBreakdown  `json:"price_breakdown,omitempty"`
	RejectionReason  *string          `json:"rejection_reason,omitempty"`
	CancelReason     *string          `json:"cancel_reason,omitempty"`
	ShippingImageURL *string          `json:"shipping_image_url,omitempty"`
	AdminNotes       *string          `json:"admin_notes,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

type ListOptions struct {
	Status     string
	Search     string
	AssigneeID string
	Pool       bool
	Page       int
	PageSize   int
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", o.Status)
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.AssigneeID != "" {
		q.Set("assignee_id", o.AssigneeID)
	}
	if o.Pool {
		q.Set("pool", "true")
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// APIError wraps non-2xx responses. Code is the error envelope code, e.g.
// "already_assigned".
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "orders", req, &resp)
	return resp, err
}

func (c *Client) CreateQuote(ctx context.Context, req CreateQuoteRequest) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "quotes", req, &resp)
	return resp, err
}

// List returns one page of items of kind visible to the caller.
func (c *Client) List(ctx context.Context, kind Kind, opts ListOptions) (ItemPage, error) {
	var resp ItemPage
	err := c.do(ctx, http.MethodGet, kind.plural()+opts.query(), nil, &resp)
	return resp, err
}

func (c *Client) Get(ctx context.Context, kind Kind, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodGet, c.itemPath(kind, id, ""), nil, &resp)
	return resp, err
}

func (c *Client) Transition(ctx context.Context, kind Kind, id string, req TransitionRequest) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, c.itemPath(kind, id, "transitions"), req, &resp)
	return resp, err
}

func (c *Client) Claim(ctx context.Context, kind Kind, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, c.itemPath(kind, id, "claim"), nil, &resp)
	return resp, err
}

func (c *Client) Release(ctx context.Context, kind Kind, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, c.itemPath(kind, id, "release"), nil, &resp)
	return resp, err
}

func (c *Client) Assign(ctx context.Context, kind Kind, id, assigneeID string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPut, c.itemPath(kind, id, "assignee"), map[string]string{"assignee_id": assigneeID}, &resp)
	return resp, err
}

func (c *Client) Unassign(ctx context.Context, kind Kind, id string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodDelete, c.itemPath(kind, id, "assignee"), nil, &resp)
	return resp, err
}

// Reassign hands a quote to another designer.
func (c *Client) Reassign(ctx context.Context, quoteID, designerID string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, c.itemPath(Quote, quoteID, "reassign"), map[string]string{"assignee_id": designerID}, &resp)
	return resp, err
}

func (c *Client) UploadShippingProof(ctx context.Context, orderID, imageURL string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, c.itemPath(Order, orderID, "shipping-proof"), map[string]string{"url": imageURL}, &resp)
	return resp, err
}

func (c *Client) SetPrimaryDesign(ctx context.Context, quoteID, designURL string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPut, c.itemPath(Quote, quoteID, "primary-design"), map[string]string{"url": designURL}, &resp)
	return resp, err
}

// Events returns the audit trail of one item, newest first.
func (c *Client) Events(ctx context.Context, kind Kind, id string) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, c.itemPath(kind, id, "events"), nil, &resp)
	return resp.Events, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) itemPath(kind Kind, id, action string) string {
	p := kind.plural() + "/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
