// Package service owns the live orders being built at the counter.
// Orders live in memory while open (one logical actor per order) and
// reach the store at the defined persistence points: payments as they
// happen, the full order at dispatch or cancellation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/cart"
	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/order"
)

// Errors returned by the session registry.
var (
	ErrOrderNotFound = errors.New("order not found")
)

// Store is the persistence contract the session layer calls out to.
// Satisfied by store.PG and store.Memory.
type Store interface {
	catalog.Adapter
	PersistOrder(ctx context.Context, o *order.Order) error
	PersistPayment(ctx context.Context, orderID uuid.UUID, p ledger.Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	ReplacePayments(ctx context.Context, orderID uuid.UUID, audit ledger.Replacement) error
	OpenCashShift(ctx context.Context, branchID uuid.UUID) (uuid.UUID, bool, error)
	RecordCashMovement(ctx context.Context, shiftID uuid.UUID, amount decimal.Decimal, concept string) error
}

// Broadcaster pushes order events to connected kitchen displays.
type Broadcaster interface {
	BroadcastOrder(branchID uuid.UUID, eventType string, payload any)
}

// OrderEvent is the payload broadcast on dispatch and cancellation.
type OrderEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Number  string    `json:"number"`
	Channel string    `json:"channel"`
	State   string    `json:"state"`
	Total   string    `json:"total"`
}

// Sessions is the registry of live orders. The single mutex serializes
// all mutations: a retried or double-clicked operation can never
// interleave with the one already in flight.
type Sessions struct {
	mu     sync.Mutex
	store  Store
	engine *cart.Engine
	caps   ledger.Caps
	events Broadcaster

	orders map[uuid.UUID]*order.Order
	seq    map[uuid.UUID]int
}

// NewSessions creates the registry. events may be nil when no kitchen
// feed is connected.
func NewSessions(store Store, caps ledger.Caps, events Broadcaster) *Sessions {
	return &Sessions{
		store:  store,
		engine: cart.NewEngine(store),
		caps:   caps,
		events: events,
		orders: make(map[uuid.UUID]*order.Order),
		seq:    make(map[uuid.UUID]int),
	}
}

// Open starts a new order for a branch in the NotStarted state.
func (s *Sessions) Open(branchID uuid.UUID) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[branchID]++
	number := fmt.Sprintf("FGN-%03d", s.seq[branchID])
	o := order.New(branchID, number, s.engine, s.caps)
	s.orders[o.ID] = o
	return o
}

// Get returns a live order.
func (s *Sessions) Get(id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Sessions) getLocked(id uuid.UUID) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Configure sets the order's channel configuration.
func (s *Sessions) Configure(orderID uuid.UUID, cfg order.ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	return o.Configure(cfg)
}

// ItemModifiers resolves the modifier groups for a catalog item.
func (s *Sessions) ItemModifiers(ctx context.Context, itemID uuid.UUID) (catalog.Item, []catalog.ModifierGroup, error) {
	item, err := s.store.Item(ctx, itemID)
	if err != nil {
		return catalog.Item{}, nil, err
	}
	groups, err := s.engine.ResolveModifiers(ctx, item)
	if err != nil {
		return catalog.Item{}, nil, err
	}
	return item, groups, nil
}

// AddItem confirms a catalog item with its selections into the cart.
func (s *Sessions) AddItem(ctx context.Context, orderID, itemID uuid.UUID, sels []cart.Selection, quantity int32, note string) (cart.Item, error) {
	item, err := s.store.Item(ctx, itemID)
	if err != nil {
		return cart.Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return cart.Item{}, err
	}
	return o.ConfirmItem(ctx, item, sels, quantity, note)
}

// UpdateItemQuantity applies a signed delta to a cart line.
func (s *Sessions) UpdateItemQuantity(orderID, lineID uuid.UUID, delta int32) (cart.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return cart.Item{}, false, err
	}
	return o.UpdateItemQuantity(lineID, delta)
}

// RemoveItem deletes a cart line.
func (s *Sessions) RemoveItem(orderID, lineID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	return o.RemoveItem(lineID)
}

// UpdateItemNote replaces the free-text note on a cart line.
func (s *Sessions) UpdateItemNote(orderID, lineID uuid.UUID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	return o.UpdateItemNote(lineID, note)
}

// SetDeliveryFee sets the order's delivery fee.
func (s *Sessions) SetDeliveryFee(orderID uuid.UUID, fee decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	return o.SetDeliveryFee(fee)
}

// SetTip sets the order's tip.
func (s *Sessions) SetTip(orderID uuid.UUID, tip decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	return o.SetTip(tip)
}

// RegisterPayment registers a payment and persists it. A cash payment
// is also recorded as a drawer movement when a cash shift is open; no
// open shift means no movement, not an error. The in-memory ledger
// keeps the payment even when persistence fails; the caller decides
// whether to retry.
func (s *Sessions) RegisterPayment(ctx context.Context, orderID uuid.UUID, method string, amount, tendered decimal.Decimal) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return ledger.Payment{}, err
	}
	p, err := o.RegisterPayment(method, amount, tendered)
	if err != nil {
		return ledger.Payment{}, err
	}
	if err := s.store.PersistPayment(ctx, orderID, p); err != nil {
		return p, fmt.Errorf("persist payment: %w", err)
	}
	if method == enum.PaymentMethodCash {
		s.recordCashLocked(ctx, o.BranchID, p.Amount, "cash payment on order "+o.Number)
	}
	return p, nil
}

// RemovePayment deletes a payment pre-dispatch and re-opens the
// balance.
func (s *Sessions) RemovePayment(ctx context.Context, orderID, paymentID uuid.UUID) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return ledger.Payment{}, err
	}
	p, err := o.RemovePayment(paymentID)
	if err != nil {
		return ledger.Payment{}, err
	}
	if err := s.store.DeletePayment(ctx, paymentID); err != nil {
		return p, fmt.Errorf("delete payment: %w", err)
	}
	return p, nil
}

// Dispatch sends a settled order to the kitchen: the state machine
// flips, the order is persisted, and the kitchen feed is notified.
func (s *Sessions) Dispatch(ctx context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	if err := o.Dispatch(); err != nil {
		return err
	}
	s.broadcastLocked(o, "order.dispatched")
	if err := s.store.PersistOrder(ctx, o); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	return nil
}

// ReplacePayments is the post-dispatch correction path. The signed
// cash delta, if any, is recorded as a drawer movement tagged with the
// operator's reason.
func (s *Sessions) ReplacePayments(ctx context.Context, orderID uuid.UUID, inputs []ledger.ReplacementInput, reason string) (ledger.Replacement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return ledger.Replacement{}, err
	}
	audit, err := o.ReplacePayments(inputs, reason)
	if err != nil {
		return ledger.Replacement{}, err
	}
	if err := s.store.ReplacePayments(ctx, orderID, audit); err != nil {
		return audit, fmt.Errorf("persist replacement: %w", err)
	}
	if !audit.CashDelta.IsZero() {
		s.recordCashLocked(ctx, o.BranchID, audit.CashDelta, "payment correction on order "+o.Number+": "+reason)
	}
	return audit, nil
}

// Cancel aborts a live order and clears it from the registry.
func (s *Sessions) Cancel(ctx context.Context, orderID uuid.UUID, refundAcked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.getLocked(orderID)
	if err != nil {
		return err
	}
	if err := o.Cancel(refundAcked); err != nil {
		return err
	}
	delete(s.orders, orderID)
	s.broadcastLocked(o, "order.cancelled")
	if err := s.store.PersistOrder(ctx, o); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	return nil
}

// recordCashLocked writes a drawer movement when a cash shift is open.
// Absence of an open shift means the movement is simply not recorded.
func (s *Sessions) recordCashLocked(ctx context.Context, branchID uuid.UUID, amount decimal.Decimal, concept string) {
	shiftID, open, err := s.store.OpenCashShift(ctx, branchID)
	if err != nil {
		log.Printf("ERROR: look up cash shift: %v", err)
		return
	}
	if !open {
		return
	}
	// Drawer bookkeeping is best-effort; the payment itself is the
	// source of truth.
	if err := s.store.RecordCashMovement(ctx, shiftID, amount, concept); err != nil {
		log.Printf("ERROR: record cash movement: %v", err)
	}
}

func (s *Sessions) broadcastLocked(o *order.Order, eventType string) {
	if s.events == nil {
		return
	}
	s.events.BroadcastOrder(o.BranchID, eventType, OrderEvent{
		OrderID: o.ID,
		Number:  o.Number,
		Channel: o.Config().Channel,
		State:   o.State(),
		Total:   o.Total().StringFixed(2),
	})
}
