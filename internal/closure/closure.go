// Package closure holds the shift-closure record and the pure
// reconciliation engine that cross-checks independently entered totals
// at shift end. Alerts are advisory: they never block saving a
// structurally valid record.
package closure

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/money"
)

// Errors returned by record validation.
var (
	ErrInvalidShift   = errors.New("invalid shift type")
	ErrNegativeAmount = errors.New("sales amounts must be non-negative")
)

// MethodTotals maps payment method → amount.
type MethodTotals map[string]decimal.Decimal

// Sum adds all method amounts.
func (m MethodTotals) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range m {
		sum = sum.Add(v)
	}
	return sum
}

// SumWhere adds the amounts of methods matching the predicate.
func (m MethodTotals) SumWhere(match func(method string) bool) decimal.Decimal {
	sum := decimal.Zero
	for method, v := range m {
		if match(method) {
			sum = sum.Add(v)
		}
	}
	return sum
}

// PlatformSales is one delivery platform's internally recorded sales
// plus its self-reported panel total. A zero panel total means "not
// entered yet", never "matches".
type PlatformSales struct {
	Platform   string          `json:"platform"`
	ByMethod   MethodTotals    `json:"by_method"`
	PanelTotal decimal.Decimal `json:"panel_total"`
}

// Record is the shift-closure entry for one (branch, date, shift) key.
// Re-saving the same key supersedes the previous record.
type Record struct {
	BranchID uuid.UUID
	Date     time.Time // date component only
	Shift    string

	// CounterSales is channel → method → amount for in-house channels.
	CounterSales map[string]MethodTotals
	// DeliverySales is the per-platform breakdown for third-party apps.
	DeliverySales []PlatformSales
	// TerminalTotal is the card terminal's own total. Zero = not
	// entered yet.
	TerminalTotal decimal.Decimal
	// CashCountDiff is the signed physical count difference entered by
	// the operator: negative = cash missing, positive = surplus.
	CashCountDiff decimal.Decimal
	// InvoicedTotal is the single declared invoiced amount.
	InvoicedTotal decimal.Decimal

	SavedBy string
	SavedAt time.Time
}

// Validate checks structural validity: known shift, non-negative sales
// figures. The cash count difference is signed and exempt.
func (r Record) Validate() error {
	if !enum.ValidShift(r.Shift) {
		return ErrInvalidShift
	}
	for channel, methods := range r.CounterSales {
		for method, amount := range methods {
			if amount.IsNegative() {
				return fmt.Errorf("counter %s/%s: %w", channel, method, ErrNegativeAmount)
			}
		}
	}
	for _, ps := range r.DeliverySales {
		for method, amount := range ps.ByMethod {
			if amount.IsNegative() {
				return fmt.Errorf("delivery %s/%s: %w", ps.Platform, method, ErrNegativeAmount)
			}
		}
		if ps.PanelTotal.IsNegative() {
			return fmt.Errorf("delivery %s panel: %w", ps.Platform, ErrNegativeAmount)
		}
	}
	if r.TerminalTotal.IsNegative() || r.InvoicedTotal.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// CounterTotal sums every counter channel and method.
func (r Record) CounterTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, methods := range r.CounterSales {
		sum = sum.Add(methods.Sum())
	}
	return sum
}

// DeliveryTotal sums the internal totals of every platform.
func (r Record) DeliveryTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, ps := range r.DeliverySales {
		sum = sum.Add(ps.ByMethod.Sum())
	}
	return sum
}

// TotalSold is everything sold in the shift, regardless of source.
func (r Record) TotalSold() decimal.Decimal {
	return r.CounterTotal().Add(r.DeliveryTotal())
}

// Policy configures the reconciliation rules. Which buckets feed the
// invoicing expectation is deliberately configuration, not code: the
// accounting rule depends on who physically holds the cash.
type Policy struct {
	// InvoiceTolerance is the fractional band for the invoicing check
	// (0.10 = 10%). The other three checks are zero-tolerance.
	InvoiceTolerance decimal.Decimal
	// CashKeptChannels are the counter channels whose cash never flows
	// through the invoice (it stays in the local drawer).
	CashKeptChannels []string
	// PartnerCashPlatforms are the delivery platforms whose
	// cash-collected sales are invoiced back to us and therefore added
	// to the expectation.
	PartnerCashPlatforms []string
}

// DefaultPolicy mirrors the house accounting rule: all in-house
// channels keep their cash, and PedidosYa is the integrated partner
// whose cash collections flow through the invoice.
func DefaultPolicy() Policy {
	return Policy{
		InvoiceTolerance: decimal.NewFromFloat(0.10),
		CashKeptChannels: []string{
			enum.ChannelCounter, enum.ChannelDineIn,
			enum.ChannelTakeaway, enum.ChannelDelivery,
		},
		PartnerCashPlatforms: []string{enum.PlatformPedidosYa},
	}
}

// PlatformDiff is the panel check outcome for one delivery platform.
type PlatformDiff struct {
	Platform string
	Internal decimal.Decimal
	Panel    decimal.Decimal
	Diff     decimal.Decimal // internal − panel
	Checked  bool            // false when no panel total was entered
	Alert    bool
}

// Result is the full derived output of a reconciliation run. The
// closure record persists the booleans and numeric differences for
// audit.
type Result struct {
	Platforms []PlatformDiff

	CardInternal decimal.Decimal
	CardTerminal decimal.Decimal
	CardDiff     decimal.Decimal
	CardChecked  bool
	CardAlert    bool

	CashDiff  decimal.Decimal
	CashAlert bool

	InvoiceExpected decimal.Decimal
	InvoiceDeclared decimal.Decimal
	InvoiceDiff     decimal.Decimal
	InvoiceChecked  bool
	InvoiceAlert    bool

	HasAlert bool
}

// Reconcile derives totals, differences, and alerts from a closure
// record. Pure computation: no I/O, no stored state.
func Reconcile(r Record, p Policy) Result {
	var res Result

	// Per-platform panel check, zero tolerance. A platform with no
	// panel entry is "no data", not "matches".
	for _, ps := range r.DeliverySales {
		internal := ps.ByMethod.Sum()
		pd := PlatformDiff{
			Platform: ps.Platform,
			Internal: internal,
			Panel:    ps.PanelTotal,
		}
		if ps.PanelTotal.IsPositive() {
			pd.Checked = true
			pd.Diff = internal.Sub(ps.PanelTotal)
			pd.Alert = !money.IsZero(pd.Diff)
		}
		res.Platforms = append(res.Platforms, pd)
		if pd.Alert {
			res.HasAlert = true
		}
	}

	// Card terminal check: internal debit+credit+QR over the counter
	// breakdown vs the operator-entered terminal total. Skipped while
	// the terminal total is not entered.
	for _, methods := range r.CounterSales {
		res.CardInternal = res.CardInternal.Add(methods.SumWhere(enum.DigitalMethod))
	}
	res.CardTerminal = r.TerminalTotal
	if r.TerminalTotal.IsPositive() {
		res.CardChecked = true
		res.CardDiff = res.CardInternal.Sub(r.TerminalTotal)
		res.CardAlert = !money.IsZero(res.CardDiff)
		if res.CardAlert {
			res.HasAlert = true
		}
	}

	// Physical cash count: the operator enters the signed difference
	// directly.
	res.CashDiff = r.CashCountDiff
	res.CashAlert = !money.IsZero(r.CashCountDiff)
	if res.CashAlert {
		res.HasAlert = true
	}

	// Invoicing: expected = totalSold − cash kept locally + cash the
	// integrated partner collected on our behalf.
	isCash := func(m string) bool { return m == enum.PaymentMethodCash }
	cashKept := decimal.Zero
	for _, channel := range p.CashKeptChannels {
		if methods, ok := r.CounterSales[channel]; ok {
			cashKept = cashKept.Add(methods.SumWhere(isCash))
		}
	}
	partnerCash := decimal.Zero
	for _, ps := range r.DeliverySales {
		if containsString(p.PartnerCashPlatforms, ps.Platform) {
			partnerCash = partnerCash.Add(ps.ByMethod.SumWhere(isCash))
		}
	}
	res.InvoiceExpected = r.TotalSold().Sub(cashKept).Add(partnerCash)
	res.InvoiceDeclared = r.InvoicedTotal
	if res.InvoiceExpected.IsPositive() {
		res.InvoiceChecked = true
		res.InvoiceDiff = r.InvoicedTotal.Sub(res.InvoiceExpected)
		ratio := res.InvoiceDiff.Abs().Div(res.InvoiceExpected)
		res.InvoiceAlert = ratio.GreaterThan(p.InvoiceTolerance)
		if res.InvoiceAlert {
			res.HasAlert = true
		}
	}

	return res
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
