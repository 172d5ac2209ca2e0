package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderline/internal/domain"
)

const itemColumns = `id,kind,owner_user_id,assignee_id,status,status_timestamps_json,quoted_price,price_breakdown_json,price_mismatch,rejection_reason,cancel_reason,shipping_image_url,primary_design_url,admin_notes,notes,payload_json,version,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (domain.WorkItem, error) {
	var (
		it                                           domain.WorkItem
		kind, status, stampsJSON, payloadJSON        string
		created, updated                             string
		assignee, breakdown, rejection, cancelReason sql.NullString
		shipping, design, adminNotes, notes          sql.NullString
		price                                        decimal.NullDecimal
		mismatch                                     int
	)
	err := s.Scan(&it.ID, &kind, &it.OwnerUserID, &assignee, &status, &stampsJSON, &price, &breakdown, &mismatch,
		&rejection, &cancelReason, &shipping, &design, &adminNotes, &notes, &payloadJSON, &it.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Kind = domain.Kind(kind)
	it.Status = domain.Status(status)
	it.AssigneeID = stringPtr(assignee)
	it.RejectionReason = stringPtr(rejection)
	it.CancelReason = stringPtr(cancelReason)
	it.ShippingImageURL = stringPtr(shipping)
	it.PrimaryDesignURL = stringPtr(design)
	it.AdminNotes = stringPtr(adminNotes)
	it.Notes = stringPtr(notes)
	it.PriceMismatch = mismatch != 0
	if price.Valid {
		p := price.Decimal
		it.QuotedPrice = &p
	}
	if breakdown.Valid && breakdown.String != "" {
		var b domain.PriceBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
			return it, fmt.Errorf("decode price breakdown: %w", err)
		}
		it.PriceBreakdown = &b
	}
	it.StatusTimestamps = map[domain.Status]time.Time{}
	if err := json.Unmarshal([]byte(stampsJSON), &it.StatusTimestamps); err != nil {
		return it, fmt.Errorf("decode status timestamps: %w", err)
	}
	if it.Payload, err = domain.DecodePayload(it.Kind, []byte(payloadJSON)); err != nil {
		return it, err
	}
	if it.CreatedAt, err = parseTime(created); err != nil {
		return it, err
	}
	if it.UpdatedAt, err = parseTime(updated); err != nil {
		return it, err
	}
	return it, nil
}

type itemRow struct {
	stamps    string
	payload   string
	breakdown any
	price     any
	mismatch  int
}

func encodeItem(it domain.WorkItem) (itemRow, error) {
	var row itemRow
	stamps := it.StatusTimestamps
	if stamps == nil {
		stamps = map[domain.Status]time.Time{}
	}
	b, err := json.Marshal(stamps)
	if err != nil {
		return row, fmt.Errorf("encode status timestamps: %w", err)
	}
	row.stamps = string(b)
	if it.Payload == nil {
		row.payload = "{}"
	} else {
		if it.Payload.Kind() != it.Kind {
			return row, fmt.Errorf("payload kind %s does not match item kind %s", it.Payload.Kind(), it.Kind)
		}
		if b, err = json.Marshal(it.Payload); err != nil {
			return row, fmt.Errorf("encode payload: %w", err)
		}
		row.payload = string(b)
	}
	if it.PriceBreakdown != nil {
		if b, err = json.Marshal(it.PriceBreakdown); err != nil {
			return row, fmt.Errorf("encode price breakdown: %w", err)
		}
		row.breakdown = string(b)
	}
	if it.QuotedPrice != nil {
		row.price = it.QuotedPrice.String()
	}
	if it.PriceMismatch {
		row.mismatch = 1
	}
	return row, nil
}

func (r Repo) InsertItem(ctx context.Context, q Querier, it domain.WorkItem) error {
	row, err := encodeItem(it)
	if err != nil {
		return err
	}
	_, err = r.querier(q).ExecContext(ctx, r.q(`INSERT INTO work_items(`+itemColumns+`,search_text) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		it.ID, string(it.Kind), it.OwnerUserID, nullableString(it.AssigneeID), string(it.Status), row.stamps, row.price, row.breakdown, row.mismatch,
		nullableString(it.RejectionReason), nullableString(it.CancelReason), nullableString(it.ShippingImageURL), nullableString(it.PrimaryDesignURL),
		nullableString(it.AdminNotes), nullableString(it.Notes), row.payload, it.Version, formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
		domain.SearchText(it.ID, it.Payload))
	return err
}

func (r Repo) GetItem(ctx context.Context, q Querier, id string) (domain.WorkItem, error) {
	return scanItem(r.querier(q).QueryRowContext(ctx, r.q(`SELECT `+itemColumns+` FROM work_items WHERE id=?`), id))
}

// UpdateItem writes every mutable column when the stored version still equals
// expectVersion. The assignee is left alone; it has its own conditional writes.
func (r Repo) UpdateItem(ctx context.Context, q Querier, it domain.WorkItem, expectVersion int64) error {
	row, err := encodeItem(it)
	if err != nil {
		return err
	}
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE work_items SET status=?, status_timestamps_json=?, quoted_price=?, price_breakdown_json=?, price_mismatch=?,
rejection_reason=?, cancel_reason=?, shipping_image_url=?, primary_design_url=?, admin_notes=?, notes=?, version=?, updated_at=?
WHERE id=? AND version=?`),
		string(it.Status), row.stamps, row.price, row.breakdown, row.mismatch,
		nullableString(it.RejectionReason), nullableString(it.CancelReason), nullableString(it.ShippingImageURL), nullableString(it.PrimaryDesignURL),
		nullableString(it.AdminNotes), nullableString(it.Notes), it.Version, formatTime(it.UpdatedAt),
		it.ID, expectVersion)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ClaimItem sets the assignee only if nobody holds the item and its status is
// claimable. It reports false when the condition did not hold.
func (r Repo) ClaimItem(ctx context.Context, q Querier, id, actorID string, claimable []domain.Status, now time.Time) (bool, error) {
	if len(claimable) == 0 {
		return false, nil
	}
	args := []any{actorID, formatTime(now), id}
	for _, s := range claimable {
		args = append(args, string(s))
	}
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE work_items SET assignee_id=?, version=version+1, updated_at=?
WHERE id=? AND assignee_id IS NULL AND status IN (`+placeholders(len(claimable))+`)`), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AssignItem sets the assignee of an unassigned item at expectVersion.
func (r Repo) AssignItem(ctx context.Context, q Querier, id, actorID string, expectVersion int64, now time.Time) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE work_items SET assignee_id=?, version=version+1, updated_at=?
WHERE id=? AND assignee_id IS NULL AND version=?`), actorID, formatTime(now), id, expectVersion)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ReleaseItem clears the assignee when holderID still holds the item.
func (r Repo) ReleaseItem(ctx context.Context, q Querier, id, holderID string, expectVersion int64, now time.Time) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE work_items SET assignee_id=NULL, version=version+1, updated_at=?
WHERE id=? AND assignee_id=? AND version=?`), formatTime(now), id, holderID, expectVersion)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ReassignItem overwrites the assignee regardless of who holds it.
func (r Repo) ReassignItem(ctx context.Context, q Querier, id, actorID string, expectVersion int64, now time.Time) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE work_items SET assignee_id=?, version=version+1, updated_at=?
WHERE id=? AND version=?`), actorID, formatTime(now), id, expectVersion)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ItemFilter selects work items. VisibleTo restricts results to items owned by
// or assigned to that actor; Unassigned with StatusIn selects a claim pool.
type ItemFilter struct {
	Kind       domain.Kind
	Status     domain.Status
	StatusIn   []domain.Status
	Search     string
	AssigneeID string
	OwnerID    string
	Unassigned bool
	VisibleTo  string
	SortBy     string
	SortDesc   bool
	Limit      int
	Offset     int
}

func (f ItemFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, string(f.Kind))
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if len(f.StatusIn) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.StatusIn))+")")
		for _, s := range f.StatusIn {
			args = append(args, string(s))
		}
	}
	for _, term := range strings.Fields(strings.ToLower(f.Search)) {
		clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_user_id=?")
		args = append(args, f.OwnerID)
	}
	if f.Unassigned {
		clauses = append(clauses, "assignee_id IS NULL")
	}
	if f.VisibleTo != "" {
		clauses = append(clauses, "(owner_user_id=? OR assignee_id=?)")
		args = append(args, f.VisibleTo, f.VisibleTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (f ItemFilter) orderBy() string {
	col := "created_at"
	if f.SortBy == "updated_at" {
		col = "updated_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

// ListItems returns one page of matching items and the total match count.
func (r Repo) ListItems(ctx context.Context, q Querier, f ItemFilter) ([]domain.WorkItem, int, error) {
	q = r.querier(q)
	where, args := f.where()
	var total int
	if err := q.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM work_items`+where), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + itemColumns + ` FROM work_items` + where + f.orderBy()
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := q.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []domain.WorkItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountItemsByStatus ignores f.Status so counts line up with the status tabs
// of the same listing.
func (r Repo) CountItemsByStatus(ctx context.Context, q Querier, f ItemFilter) (map[domain.Status]int, error) {
	f.Status = ""
	where, args := f.where()
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT status, COUNT(*) FROM work_items`+where+` GROUP BY status`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}
