package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/events"
)

// TransitionFields are the optional fields that may accompany a status
// change. Which ones are required or allowed depends on the target status.
type TransitionFields struct {
	QuotedPrice      *decimal.Decimal
	PriceBreakdown   *domain.PriceBreakdown
	RejectionReason  *string
	CancelReason     *string
	ShippingImageURL *string
	AdminNotes       *string
	Notes            *string
}

type TransitionRequest struct {
	ItemID string
	// Kind, when set, must match the stored item.
	Kind   domain.Kind
	Actor  auth.Subject
	Target domain.Status
	Fields TransitionFields
}

// Transition moves an item to req.Target and returns the updated item.
func (e Engine) Transition(ctx context.Context, req TransitionRequest) (domain.WorkItem, error) {
	return e.transition(ctx, req, auth.TransitionOp(req.Target))
}

// UploadShippingProof records the proof image of an order. While shipping it
// advances the order to shipped; while shipped it only replaces the image.
func (e Engine) UploadShippingProof(ctx context.Context, actor auth.Subject, itemID, imageURL string) (domain.WorkItem, error) {
	return e.transition(ctx, TransitionRequest{
		ItemID: itemID,
		Kind:   domain.KindOrder,
		Actor:  actor,
		Target: domain.StatusShipped,
		Fields: TransitionFields{ShippingImageURL: &imageURL},
	}, auth.OpShippingProof)
}

func (e Engine) transition(ctx context.Context, req TransitionRequest, op auth.Operation) (domain.WorkItem, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "transition", err)
	}
	defer tx.Rollback()

	it, evt, err := e.applyTransition(ctx, tx, req, op)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "transition", err)
	}
	from, _ := evt.Payload["from"].(string)
	if err := e.commit(tx); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "transition", err)
	}
	e.Metrics.Transition(string(it.Kind), from, string(it.Status))
	e.publish(ctx, evt)
	return it, nil
}

func (e Engine) applyTransition(ctx context.Context, tx *sql.Tx, req TransitionRequest, op auth.Operation) (domain.WorkItem, *domain.Event, error) {
	it, err := e.loadItem(ctx, tx, req.ItemID, req.Kind)
	if err != nil {
		return it, nil, err
	}
	if err := e.authorize(req.Actor, op, it); err != nil {
		return it, nil, err
	}
	if req.Fields.AdminNotes != nil {
		if err := e.authorize(req.Actor, auth.OpAdminNotes, it); err != nil {
			return it, nil, err
		}
	}
	from := it.Status
	if err := e.Registry.Check(it.Kind, from, req.Target); err != nil {
		return it, nil, transitionErr(err)
	}
	mismatch, err := e.applyFields(ctx, &it, req.Target, req.Fields)
	if err != nil {
		return it, nil, err
	}

	now := e.now()
	if it.StatusTimestamps == nil {
		it.StatusTimestamps = map[domain.Status]time.Time{}
	}
	if _, stamped := it.StatusTimestamps[req.Target]; !stamped {
		it.StatusTimestamps[req.Target] = now
	}
	it.Status = req.Target
	it.UpdatedAt = now
	prev := it.Version
	it.Version++
	if err := e.Repo.UpdateItem(ctx, tx, it, prev); err != nil {
		return it, nil, storeErr(err)
	}

	payload := events.EventPayload{"from": string(from), "to": string(req.Target)}
	if req.Target == domain.StatusQuoted && it.QuotedPrice != nil {
		payload["quoted_price"] = it.QuotedPrice.String()
	}
	if mismatch {
		payload["price_mismatch"] = true
	}
	if req.Fields.ShippingImageURL != nil {
		payload["shipping_image_url"] = *it.ShippingImageURL
	}
	evt, err := e.appendEvent(ctx, tx, events.ItemTransitioned, it, req.Actor.ID, payload)
	if err != nil {
		return it, nil, err
	}
	return it, evt, nil
}

// applyFields validates and merges the fields that ride along with a
// transition into target. It reports whether a quoted price disagrees with
// its breakdown.
func (e Engine) applyFields(ctx context.Context, it *domain.WorkItem, target domain.Status, f TransitionFields) (bool, error) {
	var mismatch bool

	if target == domain.StatusQuoted {
		if f.QuotedPrice == nil {
			return false, validationError("quoted_price", "quoted_price is required to quote")
		}
		price := *f.QuotedPrice
		if price.IsNegative() {
			return false, validationError("quoted_price", "quoted_price must not be negative")
		}
		if b := f.PriceBreakdown; b != nil {
			if name, bad := b.NegativeComponent(); bad {
				field := "price_breakdown." + name
				return false, validationError(field, "%s must not be negative", field)
			}
			if total := b.Total(); !total.Equal(price) {
				if e.Config != nil && e.Config.Quote.EnforceBreakdownTotal {
					err := validationError("price_breakdown", "price breakdown total %s does not equal quoted_price %s", total, price)
					err.Details = map[string]any{"breakdown_total": total.String(), "quoted_price": price.String()}
					return false, err
				}
				mismatch = true
				e.log(ctx).Warn("quoted price differs from breakdown total",
					zap.String("item_id", it.ID),
					zap.String("quoted_price", price.String()),
					zap.String("breakdown_total", total.String()))
			}
		}
		it.QuotedPrice = &price
		it.PriceBreakdown = f.PriceBreakdown
		it.PriceMismatch = mismatch
	} else if f.QuotedPrice != nil || f.PriceBreakdown != nil {
		return false, validationError("quoted_price", "quoted_price only applies when quoting")
	}

	if target == domain.StatusRejected {
		reason := ""
		if f.RejectionReason != nil {
			reason = strings.TrimSpace(*f.RejectionReason)
		}
		if reason == "" {
			return false, validationError("rejection_reason", "rejection_reason is required to reject")
		}
		it.RejectionReason = &reason
	} else if f.RejectionReason != nil {
		return false, validationError("rejection_reason", "rejection_reason only applies when rejecting")
	}

	if f.CancelReason != nil {
		if target != domain.StatusCanceled {
			return false, validationError("cancel_reason", "cancel_reason only applies when canceling")
		}
		if reason := strings.TrimSpace(*f.CancelReason); reason != "" {
			it.CancelReason = &reason
		}
	}

	if f.ShippingImageURL != nil {
		if target != domain.StatusShipped {
			return false, validationError("shipping_image_url", "shipping_image_url only applies when shipping")
		}
		u := strings.TrimSpace(*f.ShippingImageURL)
		if err := validURL("shipping_image_url", u); err != nil {
			return false, err
		}
		it.ShippingImageURL = &u
	}
	if target == domain.StatusShipped && it.ShippingImageURL == nil {
		return false, validationError("shipping_image_url", "shipping_image_url is required to mark an order shipped")
	}

	if f.AdminNotes != nil {
		it.AdminNotes = f.AdminNotes
	}
	if f.Notes != nil {
		it.Notes = f.Notes
	}
	return mismatch, nil
}

// SetPrimaryDesign records the design the customer will receive. Once set, the
// designer can no longer be unassigned.
func (e Engine) SetPrimaryDesign(ctx context.Context, actor auth.Subject, itemID, designURL string) (domain.WorkItem, error) {
	designURL = strings.TrimSpace(designURL)
	if err := validURL("primary_design_url", designURL); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	defer tx.Rollback()

	it, err := e.loadItem(ctx, tx, itemID, domain.KindQuote)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	if err := e.authorize(actor, auth.OpPrimaryDesign, it); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	g, err := e.graph(it.Kind)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	if g.IsTerminal(it.Status) {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", newError(KindIllegalTransition, "design of a %s quote cannot change", it.Status))
	}
	it.PrimaryDesignURL = &designURL
	evt, err := e.saveFields(ctx, tx, &it, actor.ID, events.EventPayload{"fields": []string{"primary_design_url"}, "primary_design_url": designURL})
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "primary_design", err)
	}
	e.publish(ctx, evt)
	return it, nil
}

// NotesUpdate changes annotations without touching the status. Nil fields are
// left alone; an empty string clears the field.
type NotesUpdate struct {
	AdminNotes *string
	Notes      *string
}

func (e Engine) UpdateNotes(ctx context.Context, actor auth.Subject, itemID string, upd NotesUpdate) (domain.WorkItem, error) {
	if upd.AdminNotes == nil && upd.Notes == nil {
		return domain.WorkItem{}, e.fail(ctx, "notes", validationError("", "nothing to update"))
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "notes", err)
	}
	defer tx.Rollback()

	it, err := e.loadItem(ctx, tx, itemID, "")
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "notes", err)
	}
	var fields []string
	if upd.Notes != nil {
		if err := e.authorize(actor, auth.OpNotes, it); err != nil {
			return domain.WorkItem{}, e.fail(ctx, "notes", err)
		}
		it.Notes = emptyToNil(*upd.Notes)
		fields = append(fields, "notes")
	}
	if upd.AdminNotes != nil {
		if err := e.authorize(actor, auth.OpAdminNotes, it); err != nil {
			return domain.WorkItem{}, e.fail(ctx, "notes", err)
		}
		it.AdminNotes = emptyToNil(*upd.AdminNotes)
		fields = append(fields, "admin_notes")
	}
	evt, err := e.saveFields(ctx, tx, &it, actor.ID, events.EventPayload{"fields": fields})
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "notes", err)
	}
	if err := e.commit(tx); err != nil {
		return domain.WorkItem{}, e.fail(ctx, "notes", err)
	}
	e.publish(ctx, evt)
	return it, nil
}

// saveFields persists a field-only change of it and records item.updated.
func (e Engine) saveFields(ctx context.Context, tx *sql.Tx, it *domain.WorkItem, actorID string, payload events.EventPayload) (*domain.Event, error) {
	prev := it.Version
	it.Version++
	it.UpdatedAt = e.now()
	if err := e.Repo.UpdateItem(ctx, tx, *it, prev); err != nil {
		return nil, storeErr(err)
	}
	return e.appendEvent(ctx, tx, events.ItemUpdated, *it, actorID, payload)
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
