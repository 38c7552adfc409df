// Package store implements the persistence contract the POS core
// calls out to: orders, payments, cash movements, and shift-closure
// records, plus the read-only catalog lookup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/closure"
	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/order"
)

// Errors returned by the store.
var (
	ErrClosureNotFound = errors.New("closure record not found")
)

// PG is the Postgres-backed store.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates a store over a pgx pool.
func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// --- Catalog adapter ---

// Item loads one catalog item.
func (s *PG) Item(ctx context.Context, id uuid.UUID) (catalog.Item, error) {
	var it catalog.Item
	var price pgtype.Numeric
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, base_price, category_id, has_modifiers
		   FROM items WHERE id = $1`, id).
		Scan(&it.ID, &it.Name, &price, &it.CategoryID, &it.HasModifiers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Item{}, catalog.ErrItemNotFound
		}
		return catalog.Item{}, fmt.Errorf("get item: %w", err)
	}
	it.BasePrice = numericToDecimal(price)
	return it, nil
}

// ItemModifiers loads the modifier groups of an item, options
// included, in display order.
func (s *PG) ItemModifiers(ctx context.Context, itemID uuid.UUID) ([]catalog.ModifierGroup, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, name, surcharge, required, max_selections
		   FROM modifier_groups WHERE item_id = $1 ORDER BY position, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list modifier groups: %w", err)
	}
	defer rows.Close()

	type rawGroup struct {
		id       uuid.UUID
		kind     string
		name     string
		required bool
		maxSel   int32
		sur      pgtype.Numeric
	}
	var raws []rawGroup
	for rows.Next() {
		var rg rawGroup
		if err := rows.Scan(&rg.id, &rg.kind, &rg.name, &rg.sur, &rg.required, &rg.maxSel); err != nil {
			return nil, fmt.Errorf("scan modifier group: %w", err)
		}
		raws = append(raws, rg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modifier groups: %w", err)
	}

	var groups []catalog.ModifierGroup
	for _, rg := range raws {
		switch rg.kind {
		case "EXTRA":
			groups = append(groups, catalog.Extra{
				ID:        rg.id,
				Name:      rg.name,
				Surcharge: numericToDecimal(rg.sur),
			})
		case "REMOVABLE":
			groups = append(groups, catalog.Removable{ID: rg.id, Name: rg.name})
		case "OPTION_GROUP":
			options, err := s.groupOptions(ctx, rg.id)
			if err != nil {
				return nil, err
			}
			groups = append(groups, catalog.OptionGroup{
				ID:            rg.id,
				Name:          rg.name,
				Required:      rg.required,
				MaxSelections: int(rg.maxSel),
				Options:       options,
			})
		default:
			return nil, fmt.Errorf("modifier group %s: unknown kind %q", rg.id, rg.kind)
		}
	}
	return groups, nil
}

func (s *PG) groupOptions(ctx context.Context, groupID uuid.UUID) ([]catalog.Option, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM modifier_options WHERE group_id = $1 ORDER BY position, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var options []catalog.Option
	for rows.Next() {
		var o catalog.Option
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

// --- Orders ---

// PersistOrder upserts the order header and rewrites its item lines.
// Called at dispatch and cancellation; live building happens in
// memory.
func (s *PG) PersistOrder(ctx context.Context, o *order.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cfg := o.Config()
	_, err = tx.Exec(ctx,
		`INSERT INTO orders (
			id, branch_id, number, channel, table_number, customer_name,
			phone, address, platform, tax_invoice, tax_id, legal_name,
			delivery_fee, tip, total, state, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			channel = EXCLUDED.channel,
			table_number = EXCLUDED.table_number,
			customer_name = EXCLUDED.customer_name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			platform = EXCLUDED.platform,
			tax_invoice = EXCLUDED.tax_invoice,
			tax_id = EXCLUDED.tax_id,
			legal_name = EXCLUDED.legal_name,
			delivery_fee = EXCLUDED.delivery_fee,
			tip = EXCLUDED.tip,
			total = EXCLUDED.total,
			state = EXCLUDED.state`,
		o.ID, o.BranchID, o.Number, cfg.Channel, cfg.TableNumber, cfg.CustomerName,
		cfg.Phone, cfg.Address, cfg.Platform, cfg.TaxInvoice, cfg.TaxID, cfg.LegalName,
		decimalToNumeric(o.DeliveryFee()), decimalToNumeric(o.Tip()),
		decimalToNumeric(o.Total()), o.State(), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM order_item_selections WHERE order_item_id IN
			(SELECT id FROM order_items WHERE order_id = $1)`, o.ID); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	for _, it := range o.Items() {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (
				id, order_id, catalog_id, name, quantity, unit_price,
				kitchen_note, note, added_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, o.ID, it.CatalogID, it.Name, it.Quantity,
			decimalToNumeric(it.UnitPrice), it.KitchenNote, it.Note, it.AddedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		for _, sel := range it.Selections {
			optionID := pgtype.UUID{}
			if sel.OptionID != uuid.Nil {
				optionID = pgtype.UUID{Bytes: sel.OptionID, Valid: true}
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO order_item_selections (order_item_id, group_id, option_id, quantity)
				 VALUES ($1,$2,$3,$4)`,
				it.ID, sel.GroupID, optionID, sel.Quantity)
			if err != nil {
				return fmt.Errorf("insert selection: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Payments ---

// PersistPayment inserts a payment. Idempotent: re-submitting the same
// payment id (a retried network call) is a no-op, not a duplicate.
func (s *PG) PersistPayment(ctx context.Context, orderID uuid.UUID, p ledger.Payment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payments (id, order_id, method, amount, amount_tendered, change, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, orderID, p.Method, decimalToNumeric(p.Amount),
		decimalToNumeric(p.AmountTendered), decimalToNumeric(p.Change), p.At)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// DeletePayment removes a payment row.
func (s *PG) DeletePayment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return nil
}

// ReplacePayments swaps the whole payment set of an order atomically
// and records the audit row.
func (s *PG) ReplacePayments(ctx context.Context, orderID uuid.UUID, audit ledger.Replacement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM payments WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	for _, p := range audit.After {
		_, err := tx.Exec(ctx,
			`INSERT INTO payments (id, order_id, method, amount, amount_tendered, change, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			p.ID, orderID, p.Method, decimalToNumeric(p.Amount),
			decimalToNumeric(p.AmountTendered), decimalToNumeric(p.Change), p.At)
		if err != nil {
			return fmt.Errorf("insert replacement payment: %w", err)
		}
	}

	beforeJSON, err := json.Marshal(paymentsJSON(audit.Before))
	if err != nil {
		return fmt.Errorf("marshal before set: %w", err)
	}
	afterJSON, err := json.Marshal(paymentsJSON(audit.After))
	if err != nil {
		return fmt.Errorf("marshal after set: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO payment_audits (id, order_id, reason, cash_delta, before_set, after_set, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.New(), orderID, audit.Reason, decimalToNumeric(audit.CashDelta),
		beforeJSON, afterJSON, audit.At)
	if err != nil {
		return fmt.Errorf("insert payment audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Cash shifts / movements ---

// OpenCashShift returns the open shift for a branch, if any.
func (s *PG) OpenCashShift(ctx context.Context, branchID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM cash_shifts WHERE branch_id = $1 AND status = $2
		 ORDER BY opened_at DESC LIMIT 1`, branchID, enum.CashShiftOpen).
		Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("get open shift: %w", err)
	}
	return id, true, nil
}

// RecordCashMovement appends a drawer movement. Direction is derived
// from the sign of the amount.
func (s *PG) RecordCashMovement(ctx context.Context, shiftID uuid.UUID, amount decimal.Decimal, concept string) error {
	direction := enum.CashMovementIn
	if amount.IsNegative() {
		direction = enum.CashMovementOut
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cash_movements (id, shift_id, direction, amount, concept, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		uuid.New(), shiftID, direction, decimalToNumeric(amount.Abs()), concept, time.Now())
	if err != nil {
		return fmt.Errorf("insert cash movement: %w", err)
	}
	return nil
}

// --- Shift closures ---

// closurePayload is the JSON shape of the manually entered breakdown.
type closurePayload struct {
	CounterSales  map[string]closure.MethodTotals `json:"counter_sales"`
	DeliverySales []closure.PlatformSales         `json:"delivery_sales"`
	TerminalTotal decimal.Decimal                 `json:"terminal_total"`
	CashCountDiff decimal.Decimal                 `json:"cash_count_diff"`
	InvoicedTotal decimal.Decimal                 `json:"invoiced_total"`
}

// LoadClosureRecord fetches the record for a (branch, date, shift)
// key.
func (s *PG) LoadClosureRecord(ctx context.Context, branchID uuid.UUID, date time.Time, shift string) (closure.Record, error) {
	var payload []byte
	rec := closure.Record{BranchID: branchID, Shift: shift}
	var d pgtype.Date
	err := s.pool.QueryRow(ctx,
		`SELECT closure_date, payload, saved_by, saved_at
		   FROM shift_closures
		  WHERE branch_id = $1 AND closure_date = $2 AND shift = $3`,
		branchID, date, shift).
		Scan(&d, &payload, &rec.SavedBy, &rec.SavedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return closure.Record{}, ErrClosureNotFound
		}
		return closure.Record{}, fmt.Errorf("get closure: %w", err)
	}
	rec.Date = d.Time

	var p closurePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return closure.Record{}, fmt.Errorf("decode closure payload: %w", err)
	}
	rec.CounterSales = p.CounterSales
	rec.DeliverySales = p.DeliverySales
	rec.TerminalTotal = p.TerminalTotal
	rec.CashCountDiff = p.CashCountDiff
	rec.InvoicedTotal = p.InvoicedTotal
	return rec, nil
}

// SaveClosureRecord upserts the record for its key, superseding any
// previous save, and persists the derived alert flags and differences
// for audit.
func (s *PG) SaveClosureRecord(ctx context.Context, rec closure.Record, res closure.Result) error {
	payload, err := json.Marshal(closurePayload{
		CounterSales:  rec.CounterSales,
		DeliverySales: rec.DeliverySales,
		TerminalTotal: rec.TerminalTotal,
		CashCountDiff: rec.CashCountDiff,
		InvoicedTotal: rec.InvoicedTotal,
	})
	if err != nil {
		return fmt.Errorf("marshal closure payload: %w", err)
	}

	platformAlert := false
	for _, pd := range res.Platforms {
		if pd.Alert {
			platformAlert = true
			break
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO shift_closures (
			id, branch_id, closure_date, shift, payload,
			has_alert, platform_alert, card_alert, cash_alert, invoice_alert,
			card_diff, cash_diff, invoice_diff, saved_by, saved_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (branch_id, closure_date, shift) DO UPDATE SET
			payload = EXCLUDED.payload,
			has_alert = EXCLUDED.has_alert,
			platform_alert = EXCLUDED.platform_alert,
			card_alert = EXCLUDED.card_alert,
			cash_alert = EXCLUDED.cash_alert,
			invoice_alert = EXCLUDED.invoice_alert,
			card_diff = EXCLUDED.card_diff,
			cash_diff = EXCLUDED.cash_diff,
			invoice_diff = EXCLUDED.invoice_diff,
			saved_by = EXCLUDED.saved_by,
			saved_at = EXCLUDED.saved_at`,
		uuid.New(), rec.BranchID, rec.Date, rec.Shift, payload,
		res.HasAlert, platformAlert, res.CardAlert, res.CashAlert, res.InvoiceAlert,
		decimalToNumeric(res.CardDiff), decimalToNumeric(res.CashDiff),
		decimalToNumeric(res.InvoiceDiff), rec.SavedBy, rec.SavedAt)
	if err != nil {
		return fmt.Errorf("upsert closure: %w", err)
	}
	return nil
}

// --- Helpers ---

type paymentJSON struct {
	ID     uuid.UUID `json:"id"`
	Method string    `json:"method"`
	Amount string    `json:"amount"`
}

func paymentsJSON(ps []ledger.Payment) []paymentJSON {
	out := make([]paymentJSON, len(ps))
	for i, p := range ps {
		out[i] = paymentJSON{ID: p.ID, Method: p.Method, Amount: p.Amount.StringFixed(2)}
	}
	return out
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
