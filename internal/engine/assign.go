package engine

import (
	"context"
	"database/sql"
	"errors"

	"orderline/internal/domain"
	"orderline/internal/engine/auth"
	"orderline/internal/events"
	"orderline/internal/identity"
	"orderline/internal/workflow"
)

// Claim makes actor the assignee of an unassigned, claimable item. The write
// is a single conditional update, so concurrent claims have one winner.
// Claiming an item the actor already holds succeeds without a write.
func (e Engine) Claim(ctx context.Context, actor auth.Subject, itemID string) (domain.WorkItem, error) {
	it, evt, err := e.withAssignmentTx(ctx, itemID, func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error) {
		if !actor.HasRole(rule.Role) {
			return it, nil, &Error{
				Kind:    KindForbidden,
				Message: "claiming a " + string(it.Kind) + " requires the " + string(rule.Role) + " role",
				Details: map[string]any{"role": string(rule.Role)},
			}
		}
		if err := e.authorize(actor, auth.OpClaim, it); err != nil {
			return it, nil, err
		}
		if !rule.CanClaim(it.Status) {
			return it, nil, newError(KindNotClaimable, "%s cannot be claimed while %s", it.Kind, it.Status)
		}
		if it.IsAssignedTo(actor.ID) {
			return it, nil, nil
		}
		now := e.now()
		ok, err := e.Repo.ClaimItem(ctx, tx, it.ID, actor.ID, rule.Claimable, now)
		if err != nil {
			return it, nil, storeErr(err)
		}
		if !ok {
			cur, err := e.loadItem(ctx, tx, it.ID, "")
			if err != nil {
				return it, nil, err
			}
			if cur.AssigneeID != nil {
				return it, nil, newError(KindAlreadyAssigned, "%s already assigned to another %s", cur.Kind, rule.Role)
			}
			return it, nil, newError(KindNotClaimable, "%s cannot be claimed while %s", cur.Kind, cur.Status)
		}
		it.AssigneeID = &actor.ID
		it.Version++
		it.UpdatedAt = now
		evt, err := e.appendEvent(ctx, tx, events.ItemClaimed, it, actor.ID, events.EventPayload{
			"assignee_id": actor.ID,
			"status":      string(it.Status),
		})
		return it, evt, err
	})
	return e.finishAssignment(ctx, "claim", it, evt, err)
}

// Release gives up an item the actor holds. Anyone but the current assignee
// gets NotOwner, whatever the status.
func (e Engine) Release(ctx context.Context, actor auth.Subject, itemID string) (domain.WorkItem, error) {
	it, evt, err := e.withAssignmentTx(ctx, itemID, func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error) {
		if !it.IsAssignedTo(actor.ID) {
			return it, nil, newError(KindNotOwner, "%s is not assigned to you", it.Kind)
		}
		if err := e.authorize(actor, auth.OpRelease, it); err != nil {
			return it, nil, err
		}
		if err := releasable(it, rule); err != nil {
			return it, nil, err
		}
		return e.clearAssignee(ctx, tx, it, actor.ID, events.ItemReleased)
	})
	return e.finishAssignment(ctx, "release", it, evt, err)
}

// Assign is the admin path to set an assignee. An item that already has a
// different assignee must be unassigned first.
func (e Engine) Assign(ctx context.Context, actor auth.Subject, itemID, assigneeID string) (domain.WorkItem, error) {
	assignee, err := e.resolveAssignee(ctx, assigneeID)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "assign", err)
	}
	it, evt, err := e.withAssignmentTx(ctx, itemID, func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error) {
		if err := e.authorize(actor, auth.OpAssign, it); err != nil {
			return it, nil, err
		}
		if !assignee.HasRole(rule.Role) {
			return it, nil, validationError("assignee_id", "assignee must hold the %s role", rule.Role)
		}
		if it.AssigneeID != nil {
			if *it.AssigneeID == assignee.ID {
				return it, nil, nil
			}
			err := newError(KindAlreadyAssigned, "%s already assigned; must unassign first", it.Kind)
			err.Field = "assignee_id"
			return it, nil, err
		}
		if !rule.CanAssign(it.Status) {
			return it, nil, newError(KindNotClaimable, "%s cannot be assigned while %s", it.Kind, it.Status)
		}
		now := e.now()
		if err := e.Repo.AssignItem(ctx, tx, it.ID, assignee.ID, it.Version, now); err != nil {
			return it, nil, storeErr(err)
		}
		it.AssigneeID = &assignee.ID
		it.Version++
		it.UpdatedAt = now
		evt, err := e.appendEvent(ctx, tx, events.ItemAssigned, it, actor.ID, events.EventPayload{"assignee_id": assignee.ID})
		return it, evt, err
	})
	return e.finishAssignment(ctx, "assign", it, evt, err)
}

// Unassign clears the assignee. Orders only while shipping; quotes until a
// primary design is recorded.
func (e Engine) Unassign(ctx context.Context, actor auth.Subject, itemID string) (domain.WorkItem, error) {
	it, evt, err := e.withAssignmentTx(ctx, itemID, func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error) {
		if err := e.authorize(actor, auth.OpAssign, it); err != nil {
			return it, nil, err
		}
		if it.AssigneeID == nil {
			return it, nil, newError(KindNotReleasable, "%s is not assigned", it.Kind)
		}
		if err := releasable(it, rule); err != nil {
			return it, nil, err
		}
		return e.clearAssignee(ctx, tx, it, actor.ID, events.ItemUnassigned)
	})
	return e.finishAssignment(ctx, "unassign", it, evt, err)
}

// Reassign overwrites the assignee in one step, for kinds that allow it.
func (e Engine) Reassign(ctx context.Context, actor auth.Subject, itemID, assigneeID string) (domain.WorkItem, error) {
	assignee, err := e.resolveAssignee(ctx, assigneeID)
	if err != nil {
		return domain.WorkItem{}, e.fail(ctx, "reassign", err)
	}
	it, evt, err := e.withAssignmentTx(ctx, itemID, func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error) {
		if err := e.authorize(actor, auth.OpReassign, it); err != nil {
			return it, nil, err
		}
		if !rule.Reassignable {
			return it, nil, validationError("kind", "%s items cannot be reassigned; unassign and assign instead", it.Kind)
		}
		if !assignee.HasRole(rule.Role) {
			return it, nil, validationError("assignee_id", "assignee must hold the %s role", rule.Role)
		}
		if it.IsAssignedTo(assignee.ID) {
			return it, nil, nil
		}
		now := e.now()
		if err := e.Repo.ReassignItem(ctx, tx, it.ID, assignee.ID, it.Version, now); err != nil {
			return it, nil, storeErr(err)
		}
		payload := events.EventPayload{"assignee_id": assignee.ID}
		if it.AssigneeID != nil {
			payload["previous_assignee_id"] = *it.AssigneeID
		}
		it.AssigneeID = &assignee.ID
		it.Version++
		it.UpdatedAt = now
		evt, err := e.appendEvent(ctx, tx, events.ItemReassigned, it, actor.ID, payload)
		return it, evt, err
	})
	return e.finishAssignment(ctx, "reassign", it, evt, err)
}

type assignmentFunc func(tx *sql.Tx, it domain.WorkItem, rule workflow.AssignmentRule) (domain.WorkItem, *domain.Event, error)

// withAssignmentTx loads the item and its assignment rule in a transaction,
// runs fn and commits when fn produced an event.
func (e Engine) withAssignmentTx(ctx context.Context, itemID string, fn assignmentFunc) (domain.WorkItem, *domain.Event, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.WorkItem{}, nil, err
	}
	defer tx.Rollback()
	it, err := e.loadItem(ctx, tx, itemID, "")
	if err != nil {
		return it, nil, err
	}
	g, err := e.graph(it.Kind)
	if err != nil {
		return it, nil, err
	}
	out, evt, err := fn(tx, it, g.Assignment)
	if err != nil {
		return it, nil, err
	}
	if evt == nil {
		return out, nil, nil
	}
	if err := e.commit(tx); err != nil {
		return it, nil, err
	}
	return out, evt, nil
}

func (e Engine) finishAssignment(ctx context.Context, op string, it domain.WorkItem, evt *domain.Event, err error) (domain.WorkItem, error) {
	if err != nil {
		e.Metrics.Assignment(string(it.Kind), op, string(KindOf(err)))
		return domain.WorkItem{}, e.fail(ctx, op, err)
	}
	e.Metrics.Assignment(string(it.Kind), op, "ok")
	e.publish(ctx, evt)
	return it, nil
}

func (e Engine) clearAssignee(ctx context.Context, tx *sql.Tx, it domain.WorkItem, actorID, evtType string) (domain.WorkItem, *domain.Event, error) {
	holder := *it.AssigneeID
	now := e.now()
	if err := e.Repo.ReleaseItem(ctx, tx, it.ID, holder, it.Version, now); err != nil {
		return it, nil, storeErr(err)
	}
	it.AssigneeID = nil
	it.Version++
	it.UpdatedAt = now
	evt, err := e.appendEvent(ctx, tx, evtType, it, actorID, events.EventPayload{"previous_assignee_id": holder})
	return it, evt, err
}

func releasable(it domain.WorkItem, rule workflow.AssignmentRule) error {
	if !rule.CanRelease(it.Status) {
		return newError(KindNotReleasable, "%s cannot be released while %s", it.Kind, it.Status)
	}
	if rule.LockOnPrimaryDesign && it.PrimaryDesignURL != nil {
		return newError(KindNotReleasable, "%s cannot be released after a primary design is set", it.Kind)
	}
	return nil
}

// resolveAssignee runs before any transaction is opened; the directory may
// need its own connection.
func (e Engine) resolveAssignee(ctx context.Context, id string) (domain.Actor, error) {
	if id == "" {
		return domain.Actor{}, validationError("assignee_id", "assignee_id is required")
	}
	a, err := e.Directory.Get(ctx, id)
	if errors.Is(err, identity.ErrUnknownActor) {
		return domain.Actor{}, validationError("assignee_id", "unknown assignee %s", id)
	}
	if err != nil {
		return domain.Actor{}, storeErr(err)
	}
	return a, nil
}
