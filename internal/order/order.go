// Package order is the state machine that owns a live order: its
// channel configuration, cart, and payment ledger. Every transition,
// including the "can this go to the kitchen" guard, lives behind a
// named method here; nothing else in the codebase may infer order
// state from ad hoc flags.
package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/cart"
	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/ledger"
)

// Errors returned by the order state machine.
var (
	ErrInvalidChannel    = errors.New("invalid sales channel")
	ErrNotConfigured     = errors.New("order channel is not configured yet")
	ErrCartLocked        = errors.New("cart is immutable after dispatch")
	ErrNotSettled        = errors.New("order balance must be zero to dispatch")
	ErrEmptyOrder        = errors.New("order has no items")
	ErrAlreadyDispatched = errors.New("order is already dispatched")
	ErrNotDispatched     = errors.New("payment correction applies only to dispatched orders")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrRefundAckRequired = errors.New("cancelling a paid order requires a refund acknowledgment")
)

// MissingFieldsError blocks channel configuration when mandatory
// customer fields for the chosen channel are absent.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing channel fields: %s", strings.Join(e.Fields, ", "))
}

// ChannelConfig is how an order will be fulfilled and through which
// sales channel, plus the customer fields that channel mandates.
type ChannelConfig struct {
	Channel      string
	TableNumber  string // dine-in table or caller identifier
	CustomerName string
	Phone        string
	Address      string
	Platform     string // marketplace platform label
	TaxInvoice   bool
	TaxID        string
	LegalName    string
}

// validate reports the mandatory fields missing for the channel.
func (c ChannelConfig) validate() error {
	if !enum.ValidChannel(c.Channel) {
		return ErrInvalidChannel
	}
	var missing []string
	switch c.Channel {
	case enum.ChannelDineIn:
		if c.TableNumber == "" {
			missing = append(missing, "table_number")
		}
	case enum.ChannelTakeaway:
		if c.CustomerName == "" && c.TableNumber == "" {
			missing = append(missing, "customer_name")
		}
	case enum.ChannelDelivery, enum.ChannelMarketplace:
		if c.CustomerName == "" {
			missing = append(missing, "customer_name")
		}
		if c.Phone == "" {
			missing = append(missing, "phone")
		}
		if c.Address == "" {
			missing = append(missing, "address")
		}
		if c.Channel == enum.ChannelMarketplace && c.Platform == "" {
			missing = append(missing, "platform")
		}
	}
	if c.TaxInvoice {
		if c.TaxID == "" {
			missing = append(missing, "tax_id")
		}
		if c.LegalName == "" {
			missing = append(missing, "legal_name")
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// TimelineEntry merges items and payments by insertion time. Display
// ordering only; not a concurrency primitive.
type TimelineEntry struct {
	At      time.Time
	Item    *cart.Item
	Payment *ledger.Payment
}

// Order is one live order. Not safe for concurrent use: the session
// layer serializes access per order.
type Order struct {
	ID        uuid.UUID
	BranchID  uuid.UUID
	Number    string
	CreatedAt time.Time

	cfg         ChannelConfig
	cart        *cart.Cart
	engine      *cart.Engine
	ledger      *ledger.Ledger
	deliveryFee decimal.Decimal
	tip         decimal.Decimal
	state       string
}

// New creates an order in the NotStarted state.
func New(branchID uuid.UUID, number string, engine *cart.Engine, caps ledger.Caps) *Order {
	return &Order{
		ID:        uuid.New(),
		BranchID:  branchID,
		Number:    number,
		CreatedAt: time.Now(),
		cart:      cart.New(),
		engine:    engine,
		ledger:    ledger.New(caps),
		state:     enum.OrderStateNotStarted,
	}
}

// State returns the current lifecycle state.
func (o *Order) State() string { return o.state }

// Config returns the channel configuration.
func (o *Order) Config() ChannelConfig { return o.cfg }

// Items returns the cart lines in insertion order.
func (o *Order) Items() []cart.Item { return o.cart.Items() }

// Payments returns the registered payments in insertion order.
func (o *Order) Payments() []ledger.Payment { return o.ledger.Payments() }

// Audits returns the payment-correction audit trail.
func (o *Order) Audits() []ledger.Replacement { return o.ledger.Audits() }

// DeliveryFee returns the delivery fee on the order.
func (o *Order) DeliveryFee() decimal.Decimal { return o.deliveryFee }

// Tip returns the tip on the order.
func (o *Order) Tip() decimal.Decimal { return o.tip }

// Total is cart subtotal + delivery fee + tip.
func (o *Order) Total() decimal.Decimal {
	return o.cart.Subtotal().Add(o.deliveryFee).Add(o.tip)
}

// Balance is Total − Σ payments. Never negative by construction.
func (o *Order) Balance() decimal.Decimal {
	return o.ledger.Balance(o.Total())
}

// Settled reports a zero balance within the 0.01 epsilon.
func (o *Order) Settled() bool {
	return o.ledger.Settled(o.Total())
}

// MaxRegistrable returns the registrable maximum for a method given
// the active reserve caps.
func (o *Order) MaxRegistrable(method string) decimal.Decimal {
	return o.ledger.MaxRegistrable(o.Total(), method)
}

// Timeline returns items and payments merged by insertion time.
func (o *Order) Timeline() []TimelineEntry {
	var entries []TimelineEntry
	for _, it := range o.cart.Items() {
		it := it
		entries = append(entries, TimelineEntry{At: it.AddedAt, Item: &it})
	}
	for _, p := range o.ledger.Payments() {
		p := p
		entries = append(entries, TimelineEntry{At: p.At, Payment: &p})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries
}

// refresh recomputes the settlement-dependent states. Settled is
// automatic the instant the balance reaches zero and reversible the
// instant it leaves it.
func (o *Order) refresh() {
	switch o.state {
	case enum.OrderStateBuilding, enum.OrderStateAwaitingSettlement, enum.OrderStateSettled:
	default:
		return
	}
	switch {
	case len(o.ledger.Payments()) > 0 && o.Settled() && o.Total().IsPositive():
		o.state = enum.OrderStateSettled
	case len(o.ledger.Payments()) > 0:
		o.state = enum.OrderStateAwaitingSettlement
	default:
		o.state = enum.OrderStateBuilding
	}
}

// Configure validates the channel configuration and opens the cart for
// building. Legal from NotStarted and Configuring; an invalid
// configuration leaves the order parked in Configuring.
func (o *Order) Configure(cfg ChannelConfig) error {
	switch o.state {
	case enum.OrderStateNotStarted, enum.OrderStateConfiguring:
	case enum.OrderStateCancelled:
		return ErrOrderCancelled
	default:
		return fmt.Errorf("configure from %s: %w", o.state, ErrNotConfigured)
	}
	if !enum.ValidChannel(cfg.Channel) {
		return ErrInvalidChannel
	}
	o.state = enum.OrderStateConfiguring
	if err := cfg.validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.state = enum.OrderStateBuilding
	return nil
}

// cartEditable guards every cart mutation behind the lifecycle.
func (o *Order) cartEditable() error {
	switch o.state {
	case enum.OrderStateBuilding, enum.OrderStateAwaitingSettlement, enum.OrderStateSettled:
		return nil
	case enum.OrderStateDispatched:
		return ErrCartLocked
	case enum.OrderStateCancelled:
		return ErrOrderCancelled
	default:
		return ErrNotConfigured
	}
}

// ConfirmItem validates selections and adds a priced line to the cart.
func (o *Order) ConfirmItem(ctx context.Context, item catalog.Item, sels []cart.Selection, quantity int32, note string) (cart.Item, error) {
	if err := o.cartEditable(); err != nil {
		return cart.Item{}, err
	}
	line, err := o.engine.Confirm(ctx, o.cart, item, sels, quantity, note)
	if err != nil {
		return cart.Item{}, err
	}
	o.refresh()
	return line, nil
}

// UpdateItemQuantity applies a signed delta; a result <= 0 removes the
// line.
func (o *Order) UpdateItemQuantity(id uuid.UUID, delta int32) (cart.Item, bool, error) {
	if err := o.cartEditable(); err != nil {
		return cart.Item{}, false, err
	}
	line, kept, err := o.cart.UpdateQuantity(id, delta)
	if err != nil {
		return cart.Item{}, false, err
	}
	o.refresh()
	return line, kept, nil
}

// RemoveItem deletes a cart line.
func (o *Order) RemoveItem(id uuid.UUID) error {
	if err := o.cartEditable(); err != nil {
		return err
	}
	if err := o.cart.Remove(id); err != nil {
		return err
	}
	o.refresh()
	return nil
}

// UpdateItemNote replaces the free-text note on a line.
func (o *Order) UpdateItemNote(id uuid.UUID, note string) error {
	if err := o.cartEditable(); err != nil {
		return err
	}
	return o.cart.UpdateNote(id, note)
}

// SetDeliveryFee sets the delivery fee. Pre-dispatch only.
func (o *Order) SetDeliveryFee(fee decimal.Decimal) error {
	if err := o.cartEditable(); err != nil {
		return err
	}
	if fee.IsNegative() {
		return ledger.ErrNonPositiveAmount
	}
	o.deliveryFee = fee
	o.refresh()
	return nil
}

// SetTip sets the tip. Pre-dispatch only.
func (o *Order) SetTip(tip decimal.Decimal) error {
	if err := o.cartEditable(); err != nil {
		return err
	}
	if tip.IsNegative() {
		return ledger.ErrNonPositiveAmount
	}
	o.tip = tip
	o.refresh()
	return nil
}

// RegisterPayment registers a payment against the current total.
func (o *Order) RegisterPayment(method string, amount, tendered decimal.Decimal) (ledger.Payment, error) {
	if err := o.cartEditable(); err != nil {
		return ledger.Payment{}, err
	}
	p, err := o.ledger.Register(o.Total(), method, amount, tendered)
	if err != nil {
		return ledger.Payment{}, err
	}
	o.refresh()
	return p, nil
}

// RemovePayment deletes a payment and re-opens the balance. Legal any
// time before dispatch.
func (o *Order) RemovePayment(id uuid.UUID) (ledger.Payment, error) {
	if err := o.cartEditable(); err != nil {
		return ledger.Payment{}, err
	}
	p, err := o.ledger.Remove(id)
	if err != nil {
		return ledger.Payment{}, err
	}
	o.refresh()
	return p, nil
}

// CanDispatch is the single authority for "can the operator press Send
// to Kitchen".
func (o *Order) CanDispatch() bool {
	return o.state == enum.OrderStateSettled && o.cart.Len() > 0
}

// Dispatch freezes the cart and sends the order to the kitchen. Only
// the audited payment-correction path remains afterwards.
func (o *Order) Dispatch() error {
	switch o.state {
	case enum.OrderStateDispatched:
		return ErrAlreadyDispatched
	case enum.OrderStateCancelled:
		return ErrOrderCancelled
	}
	if o.cart.Len() == 0 {
		return ErrEmptyOrder
	}
	if !o.CanDispatch() {
		return ErrNotSettled
	}
	o.state = enum.OrderStateDispatched
	return nil
}

// ReplacePayments is the post-dispatch correction path: the entire
// payment set is swapped atomically for one that still sums to the
// total, under a mandatory reason. Returns the audit record with the
// signed cash delta for the drawer.
func (o *Order) ReplacePayments(inputs []ledger.ReplacementInput, reason string) (ledger.Replacement, error) {
	if o.state != enum.OrderStateDispatched {
		return ledger.Replacement{}, ErrNotDispatched
	}
	return o.ledger.Replace(o.Total(), inputs, reason)
}

// Cancel aborts the order. Immediate when nothing has been paid; a
// paid order needs the external refund/void flow acknowledged first.
func (o *Order) Cancel(refundAcked bool) error {
	switch o.state {
	case enum.OrderStateDispatched:
		return ErrAlreadyDispatched
	case enum.OrderStateCancelled:
		return ErrOrderCancelled
	}
	if len(o.ledger.Payments()) > 0 && !refundAcked {
		return ErrRefundAckRequired
	}
	o.state = enum.OrderStateCancelled
	return nil
}
