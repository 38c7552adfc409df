package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/closure"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/order"
)

// Movement is one recorded drawer movement in the memory store.
type Movement struct {
	ShiftID uuid.UUID
	Amount  decimal.Decimal
	Concept string
}

// Memory is an in-process store used by tests and by development runs
// without a database. It implements the same contract as PG.
type Memory struct {
	mu sync.Mutex

	ItemsByID    map[uuid.UUID]catalog.Item
	GroupsByItem map[uuid.UUID][]catalog.ModifierGroup

	Orders    map[uuid.UUID]*order.Order
	Payments  map[uuid.UUID][]ledger.Payment      // order id → payments
	Audits    map[uuid.UUID][]ledger.Replacement  // order id → audits
	Closures  map[string]closure.Record           // key → record
	Results   map[string]closure.Result           // key → last reconciliation
	Movements []Movement

	ShiftID   uuid.UUID
	ShiftOpen bool

	// FailWrites makes every write return this error, for exercising
	// the collaborator-failure path.
	FailWrites error
	// FailMovements fails only RecordCashMovement, for exercising the
	// best-effort drawer bookkeeping.
	FailMovements error
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		ItemsByID:    make(map[uuid.UUID]catalog.Item),
		GroupsByItem: make(map[uuid.UUID][]catalog.ModifierGroup),
		Orders:       make(map[uuid.UUID]*order.Order),
		Payments:     make(map[uuid.UUID][]ledger.Payment),
		Audits:       make(map[uuid.UUID][]ledger.Replacement),
		Closures:     make(map[string]closure.Record),
		Results:      make(map[string]closure.Result),
	}
}

func closureKey(branchID uuid.UUID, date time.Time, shift string) string {
	return branchID.String() + "|" + date.Format("2006-01-02") + "|" + shift
}

// --- Catalog adapter ---

func (m *Memory) Item(ctx context.Context, id uuid.UUID) (catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.ItemsByID[id]
	if !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	return it, nil
}

func (m *Memory) ItemModifiers(ctx context.Context, itemID uuid.UUID) ([]catalog.ModifierGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GroupsByItem[itemID], nil
}

// --- Orders ---

func (m *Memory) PersistOrder(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.Orders[o.ID] = o
	return nil
}

// --- Payments ---

func (m *Memory) PersistPayment(ctx context.Context, orderID uuid.UUID, p ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	// Idempotent on payment id, matching the ON CONFLICT DO NOTHING
	// behavior of the Postgres store.
	for _, existing := range m.Payments[orderID] {
		if existing.ID == p.ID {
			return nil
		}
	}
	m.Payments[orderID] = append(m.Payments[orderID], p)
	return nil
}

func (m *Memory) DeletePayment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for orderID, ps := range m.Payments {
		for idx, p := range ps {
			if p.ID == id {
				m.Payments[orderID] = append(ps[:idx], ps[idx+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (m *Memory) ReplacePayments(ctx context.Context, orderID uuid.UUID, audit ledger.Replacement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.Payments[orderID] = append([]ledger.Payment(nil), audit.After...)
	m.Audits[orderID] = append(m.Audits[orderID], audit)
	return nil
}

// --- Cash shifts / movements ---

func (m *Memory) OpenCashShift(ctx context.Context, branchID uuid.UUID) (uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ShiftOpen {
		return uuid.Nil, false, nil
	}
	return m.ShiftID, true, nil
}

func (m *Memory) RecordCashMovement(ctx context.Context, shiftID uuid.UUID, amount decimal.Decimal, concept string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	if m.FailMovements != nil {
		return m.FailMovements
	}
	m.Movements = append(m.Movements, Movement{ShiftID: shiftID, Amount: amount, Concept: concept})
	return nil
}

// --- Shift closures ---

func (m *Memory) LoadClosureRecord(ctx context.Context, branchID uuid.UUID, date time.Time, shift string) (closure.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Closures[closureKey(branchID, date, shift)]
	if !ok {
		return closure.Record{}, ErrClosureNotFound
	}
	return rec, nil
}

func (m *Memory) SaveClosureRecord(ctx context.Context, rec closure.Record, res closure.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	key := closureKey(rec.BranchID, rec.Date, rec.Shift)
	m.Closures[key] = rec
	m.Results[key] = res
	return nil
}
