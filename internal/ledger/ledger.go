// Package ledger tracks the payments registered against one order,
// guarantees the balance never goes negative, and carries the audited
// post-dispatch correction path.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/money"
)

// Errors returned by the ledger.
var (
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrNonPositiveAmount   = errors.New("amount must be > 0")
	ErrOverpayment         = errors.New("payment exceeds remaining balance")
	ErrExceedsMethodCap    = errors.New("payment exceeds the registrable maximum for this method")
	ErrTenderedRequired    = errors.New("amount tendered is required for cash payments")
	ErrTenderedTooSmall    = errors.New("amount tendered must cover the payment amount")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrEmptyReason         = errors.New("a correction reason is required")
	ErrReplacementMismatch = errors.New("replacement payments must sum to the order total")
)

// Payment is one registered payment. Never mutated in place:
// correction is remove + re-register, or the audited Replace path.
type Payment struct {
	ID             uuid.UUID
	Method         string
	Amount         decimal.Decimal
	AmountTendered decimal.Decimal // cash only
	Change         decimal.Decimal // cash only, informational
	At             time.Time
}

// Caps holds the promotion-driven minimums that must stay payable in a
// given bucket. A zero value disables the corresponding cap.
type Caps struct {
	// MinCash is the portion of the total that must be settled in cash.
	MinCash decimal.Decimal
	// MinDigital is the portion that must be settled by debit, credit,
	// or QR.
	MinDigital decimal.Decimal
}

// ReplacementInput is one payment in a correction's replacement set.
type ReplacementInput struct {
	Method         string
	Amount         decimal.Decimal
	AmountTendered decimal.Decimal
}

// Replacement is the audit record of a post-dispatch correction: the
// full before and after sets, the operator's reason, and the signed
// cash delta the drawer has to absorb.
type Replacement struct {
	Before    []Payment
	After     []Payment
	Reason    string
	CashDelta decimal.Decimal
	At        time.Time
}

// Ledger is the ordered payment list for one order. Not safe for
// concurrent use: one operator per order.
type Ledger struct {
	caps     Caps
	payments []Payment
	audits   []Replacement
}

// New creates an empty ledger with the given method caps.
func New(caps Caps) *Ledger {
	return &Ledger{caps: caps}
}

// Payments returns a copy of the registered payments in order.
func (l *Ledger) Payments() []Payment {
	out := make([]Payment, len(l.payments))
	copy(out, l.payments)
	return out
}

// Audits returns the correction audit trail.
func (l *Ledger) Audits() []Replacement {
	out := make([]Replacement, len(l.audits))
	copy(out, l.audits)
	return out
}

// Paid sums the registered payment amounts.
func (l *Ledger) Paid() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range l.payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// paidIn sums payments matching the given bucket predicate.
func (l *Ledger) paidIn(match func(method string) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range l.payments {
		if match(p.Method) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

// Balance is total − Σ amount. Never negative by construction.
func (l *Ledger) Balance(total decimal.Decimal) decimal.Decimal {
	return total.Sub(l.Paid())
}

// Settled reports whether the balance is zero within the 0.01 epsilon.
func (l *Ledger) Settled(total decimal.Decimal) bool {
	return money.IsZero(l.Balance(total))
}

// MaxRegistrable is the largest amount the given method may register:
// the remaining balance minus whatever is still reserved for buckets
// this method does not belong to.
func (l *Ledger) MaxRegistrable(total decimal.Decimal, method string) decimal.Decimal {
	max := l.Balance(total)
	if method != enum.PaymentMethodCash {
		outstanding := l.caps.MinCash.Sub(l.paidIn(func(m string) bool { return m == enum.PaymentMethodCash }))
		if outstanding.IsPositive() {
			max = max.Sub(outstanding)
		}
	}
	if !enum.DigitalMethod(method) {
		outstanding := l.caps.MinDigital.Sub(l.paidIn(enum.DigitalMethod))
		if outstanding.IsPositive() {
			max = max.Sub(outstanding)
		}
	}
	if max.IsNegative() {
		return decimal.Zero
	}
	return max
}

// Register validates and appends a payment. Rejections leave the
// ledger untouched.
func (l *Ledger) Register(total decimal.Decimal, method string, amount, tendered decimal.Decimal) (Payment, error) {
	if !enum.ValidPaymentMethod(method) {
		return Payment{}, ErrInvalidMethod
	}
	if !amount.IsPositive() {
		return Payment{}, ErrNonPositiveAmount
	}
	remaining := l.Balance(total)
	if amount.Sub(remaining).GreaterThan(money.Epsilon) {
		return Payment{}, ErrOverpayment
	}
	if amount.Sub(l.MaxRegistrable(total, method)).GreaterThan(money.Epsilon) {
		return Payment{}, ErrExceedsMethodCap
	}

	p := Payment{
		ID:     uuid.New(),
		Method: method,
		Amount: amount,
		At:     time.Now(),
	}
	if method == enum.PaymentMethodCash {
		if tendered.IsZero() {
			return Payment{}, ErrTenderedRequired
		}
		if tendered.LessThan(amount) {
			return Payment{}, ErrTenderedTooSmall
		}
		p.AmountTendered = tendered
		p.Change = tendered.Sub(amount)
	}
	l.payments = append(l.payments, p)
	return p, nil
}

// Remove deletes a payment and re-opens its share of the balance.
// Always legal before dispatch; lifecycle gating lives in the order
// state machine, not here.
func (l *Ledger) Remove(id uuid.UUID) (Payment, error) {
	for idx := range l.payments {
		if l.payments[idx].ID == id {
			removed := l.payments[idx]
			l.payments = append(l.payments[:idx], l.payments[idx+1:]...)
			return removed, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

// Replace atomically swaps the whole payment set for a corrected one.
// The replacement must sum to the order total within 0.01 and carry a
// non-empty reason. Returns the audit record with the signed cash
// delta (positive = more cash than before, to be recorded as an
// incoming drawer movement; negative = outgoing).
func (l *Ledger) Replace(total decimal.Decimal, inputs []ReplacementInput, reason string) (Replacement, error) {
	if reason == "" {
		return Replacement{}, ErrEmptyReason
	}

	now := time.Now()
	sum := decimal.Zero
	after := make([]Payment, 0, len(inputs))
	for i, in := range inputs {
		if !enum.ValidPaymentMethod(in.Method) {
			return Replacement{}, fmt.Errorf("replacement[%d]: %w", i, ErrInvalidMethod)
		}
		if !in.Amount.IsPositive() {
			return Replacement{}, fmt.Errorf("replacement[%d]: %w", i, ErrNonPositiveAmount)
		}
		p := Payment{
			ID:     uuid.New(),
			Method: in.Method,
			Amount: in.Amount,
			At:     now,
		}
		if in.Method == enum.PaymentMethodCash {
			tendered := in.AmountTendered
			if tendered.IsZero() {
				// Corrections restate amounts; exact tender is assumed.
				tendered = in.Amount
			}
			if tendered.LessThan(in.Amount) {
				return Replacement{}, fmt.Errorf("replacement[%d]: %w", i, ErrTenderedTooSmall)
			}
			p.AmountTendered = tendered
			p.Change = tendered.Sub(in.Amount)
		}
		sum = sum.Add(in.Amount)
		after = append(after, p)
	}

	if !money.Equal(sum, total) {
		return Replacement{}, ErrReplacementMismatch
	}

	isCash := func(m string) bool { return m == enum.PaymentMethodCash }
	oldCash := l.paidIn(isCash)

	before := l.Payments()
	l.payments = after

	newCash := l.paidIn(isCash)
	audit := Replacement{
		Before:    before,
		After:     l.Payments(),
		Reason:    reason,
		CashDelta: newCash.Sub(oldCash),
		At:        now,
	}
	l.audits = append(l.audits, audit)
	return audit, nil
}
