package cart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/catalog"
)

// --- Fixture adapter ---

type fixtureAdapter struct {
	groups map[uuid.UUID][]catalog.ModifierGroup
	err    error
	calls  int
}

func (f *fixtureAdapter) Item(ctx context.Context, id uuid.UUID) (catalog.Item, error) {
	return catalog.Item{}, catalog.ErrItemNotFound
}

func (f *fixtureAdapter) ItemModifiers(ctx context.Context, itemID uuid.UUID) ([]catalog.ModifierGroup, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.groups[itemID], nil
}

// --- Test fixtures ---

var (
	optionA = catalog.Option{ID: uuid.New(), Name: "Option A"}
	optionB = catalog.Option{ID: uuid.New(), Name: "Option B"}
)

func burgerFixture() (catalog.Item, catalog.OptionGroup, catalog.Extra, catalog.Removable, *fixtureAdapter) {
	item := catalog.Item{
		ID:           uuid.New(),
		Name:         "Burger",
		BasePrice:    decimal.NewFromInt(1000),
		HasModifiers: true,
	}
	size := catalog.OptionGroup{
		ID:            uuid.New(),
		Name:          "Size",
		Required:      true,
		MaxSelections: 1,
		Options:       []catalog.Option{optionA, optionB},
	}
	cheese := catalog.Extra{
		ID:        uuid.New(),
		Name:      "Extra cheese",
		Surcharge: decimal.NewFromInt(200),
	}
	onion := catalog.Removable{ID: uuid.New(), Name: "onion"}
	adapter := &fixtureAdapter{groups: map[uuid.UUID][]catalog.ModifierGroup{
		item.ID: {size, cheese, onion},
	}}
	return item, size, cheese, onion, adapter
}

// --- ResolveModifiers ---

func TestResolveModifiersSkipsItemsWithoutGroups(t *testing.T) {
	adapter := &fixtureAdapter{}
	engine := NewEngine(adapter)

	item := catalog.Item{ID: uuid.New(), Name: "Soda", BasePrice: decimal.NewFromInt(300)}
	groups, err := engine.ResolveModifiers(context.Background(), item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if groups != nil {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
	if adapter.calls != 0 {
		t.Fatalf("adapter should not be consulted for modifier-free items")
	}
}

func TestResolveModifiersWrapsAdapterError(t *testing.T) {
	adapter := &fixtureAdapter{err: errors.New("boom")}
	engine := NewEngine(adapter)

	item := catalog.Item{ID: uuid.New(), HasModifiers: true}
	if _, err := engine.ResolveModifiers(context.Background(), item); err == nil {
		t.Fatal("expected error")
	}
}

// --- Confirm ---

func TestConfirmPricesRequiredOptionAndExtras(t *testing.T) {
	item, size, cheese, _, adapter := burgerFixture()
	engine := NewEngine(adapter)
	c := New()

	sels := []Selection{
		{GroupID: size.ID, OptionID: optionA.ID, Quantity: 1},
		{GroupID: cheese.ID, Quantity: 2},
	}
	line, err := engine.Confirm(context.Background(), c, item, sels, 2, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// base 1000 + 2 × 200 = 1400 per unit; quantity 2 → 2800
	if !line.UnitPrice.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("unit price = %s, want 1400", line.UnitPrice)
	}
	if !line.LineTotal().Equal(decimal.NewFromInt(2800)) {
		t.Errorf("line total = %s, want 2800", line.LineTotal())
	}
	if !c.Subtotal().Equal(decimal.NewFromInt(2800)) {
		t.Errorf("subtotal = %s, want 2800", c.Subtotal())
	}
	if !strings.Contains(line.KitchenNote, "Size: Option A") {
		t.Errorf("kitchen note %q missing option text", line.KitchenNote)
	}
	if !strings.Contains(line.KitchenNote, "+2x Extra cheese") {
		t.Errorf("kitchen note %q missing extra text", line.KitchenNote)
	}
}

func TestConfirmRejectsMissingRequiredGroup(t *testing.T) {
	item, _, cheese, _, adapter := burgerFixture()
	engine := NewEngine(adapter)
	c := New()

	sels := []Selection{{GroupID: cheese.ID, Quantity: 1}}
	_, err := engine.Confirm(context.Background(), c, item, sels, 1, "")

	var missing *MissingRequiredError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredError, got %v", err)
	}
	if len(missing.Groups) != 1 || missing.Groups[0] != "Size" {
		t.Errorf("offending groups = %v, want [Size]", missing.Groups)
	}
	if c.Len() != 0 {
		t.Error("cart must be untouched on validation failure")
	}
}

func TestConfirmRejectsSelectionOverLimit(t *testing.T) {
	item := catalog.Item{ID: uuid.New(), Name: "Bowl", BasePrice: decimal.NewFromInt(900), HasModifiers: true}
	toppings := catalog.OptionGroup{
		ID:            uuid.New(),
		Name:          "Toppings",
		MaxSelections: 2,
		Options: []catalog.Option{
			{ID: uuid.New(), Name: "Corn"},
			{ID: uuid.New(), Name: "Beans"},
			{ID: uuid.New(), Name: "Avocado"},
		},
	}
	adapter := &fixtureAdapter{groups: map[uuid.UUID][]catalog.ModifierGroup{
		item.ID: {toppings},
	}}
	engine := NewEngine(adapter)
	c := New()

	var sels []Selection
	for _, o := range toppings.Options {
		sels = append(sels, Selection{GroupID: toppings.ID, OptionID: o.ID, Quantity: 1})
	}
	_, err := engine.Confirm(context.Background(), c, item, sels, 1, "")

	var limit *SelectionLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected SelectionLimitError, got %v", err)
	}
	if limit.Group != "Toppings" || limit.Max != 2 {
		t.Errorf("limit error = %+v", limit)
	}
}

func TestConfirmClampsExtraUnits(t *testing.T) {
	item, size, cheese, _, adapter := burgerFixture()
	engine := NewEngine(adapter)
	c := New()

	sels := []Selection{
		{GroupID: size.ID, OptionID: optionB.ID, Quantity: 1},
		{GroupID: cheese.ID, Quantity: 99},
	}
	line, err := engine.Confirm(context.Background(), c, item, sels, 1, "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// 1000 + 10 × 200 (clamped from 99)
	if !line.UnitPrice.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unit price = %s, want 3000", line.UnitPrice)
	}
}

func TestConfirmRejectsUnknownGroupAndOption(t *testing.T) {
	item, size, _, _, adapter := burgerFixture()
	engine := NewEngine(adapter)
	c := New()

	_, err := engine.Confirm(context.Background(), c, item,
		[]Selection{{GroupID: uuid.New(), Quantity: 1}}, 1, "")
	if !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("expected ErrUnknownGroup, got %v", err)
	}

	_, err = engine.Confirm(context.Background(), c, item,
		[]Selection{{GroupID: size.ID, OptionID: uuid.New(), Quantity: 1}}, 1, "")
	if !errors.Is(err, ErrUnknownOption) {
		t.Errorf("expected ErrUnknownOption, got %v", err)
	}
}

func TestConfirmRejectsNonPositiveQuantity(t *testing.T) {
	item, _, _, _, adapter := burgerFixture()
	engine := NewEngine(adapter)

	if _, err := engine.Confirm(context.Background(), New(), item, nil, 0, ""); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestConfirmRecordsRemovableInKitchenNote(t *testing.T) {
	item, size, _, onion, adapter := burgerFixture()
	engine := NewEngine(adapter)
	c := New()

	sels := []Selection{
		{GroupID: size.ID, OptionID: optionA.ID, Quantity: 1},
		{GroupID: onion.ID, Quantity: 1},
	}
	line, err := engine.Confirm(context.Background(), c, item, sels, 1, "extra napkins")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !strings.Contains(line.KitchenNote, "no onion") {
		t.Errorf("kitchen note %q missing removal", line.KitchenNote)
	}
	// Removal has no price effect.
	if !line.UnitPrice.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("unit price = %s, want 1000", line.UnitPrice)
	}
	if line.Note != "extra napkins" {
		t.Errorf("free note = %q", line.Note)
	}
}

// --- Cart mutations ---

func confirmPlainItem(t *testing.T, engine *Engine, c *Cart, price int64, qty int32) Item {
	t.Helper()
	item := catalog.Item{ID: uuid.New(), Name: "Plain", BasePrice: decimal.NewFromInt(price)}
	line, err := engine.Confirm(context.Background(), c, item, nil, qty, "")
	if err != nil {
		t.Fatalf("confirm plain item: %v", err)
	}
	return line
}

func TestUpdateQuantityRecomputesFromFixedUnitPrice(t *testing.T) {
	engine := NewEngine(&fixtureAdapter{})
	c := New()
	line := confirmPlainItem(t, engine, c, 500, 2)

	updated, kept, err := c.UpdateQuantity(line.ID, 3)
	if err != nil || !kept {
		t.Fatalf("update quantity: kept=%v err=%v", kept, err)
	}
	if updated.Quantity != 5 {
		t.Errorf("quantity = %d, want 5", updated.Quantity)
	}
	if !c.Subtotal().Equal(decimal.NewFromInt(2500)) {
		t.Errorf("subtotal = %s, want 2500", c.Subtotal())
	}
}

func TestUpdateQuantityToZeroRemovesLine(t *testing.T) {
	engine := NewEngine(&fixtureAdapter{})
	c := New()
	line := confirmPlainItem(t, engine, c, 500, 2)

	_, kept, err := c.UpdateQuantity(line.ID, -2)
	if err != nil {
		t.Fatalf("update quantity: %v", err)
	}
	if kept {
		t.Error("line should be removed at quantity 0")
	}
	if c.Len() != 0 {
		t.Errorf("cart length = %d, want 0", c.Len())
	}
}

func TestRemoveAndNoteMutations(t *testing.T) {
	engine := NewEngine(&fixtureAdapter{})
	c := New()
	line := confirmPlainItem(t, engine, c, 700, 1)

	if err := c.UpdateNote(line.ID, "sauce on the side"); err != nil {
		t.Fatalf("update note: %v", err)
	}
	got, err := c.Get(line.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Note != "sauce on the side" {
		t.Errorf("note = %q", got.Note)
	}

	if err := c.Remove(line.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Remove(line.ID); !errors.Is(err, ErrItemNotInCart) {
		t.Errorf("expected ErrItemNotInCart, got %v", err)
	}
	if _, _, err := c.UpdateQuantity(line.ID, 1); !errors.Is(err, ErrItemNotInCart) {
		t.Errorf("expected ErrItemNotInCart, got %v", err)
	}
}

// --- ToggleOption ---

func TestToggleOptionRadioSemantics(t *testing.T) {
	_, size, _, _, adapter := burgerFixture()
	groups := adapter.groups[mapKey(adapter)]

	// First tap selects A.
	sels, err := ToggleOption(groups, nil, size.ID, optionA.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(sels) != 1 || sels[0].OptionID != optionA.ID {
		t.Fatalf("selections = %+v", sels)
	}

	// Tapping B replaces A, not adds.
	sels, err = ToggleOption(groups, sels, size.ID, optionB.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(sels) != 1 || sels[0].OptionID != optionB.ID {
		t.Fatalf("radio group should replace; selections = %+v", sels)
	}

	// Tapping B again deselects it.
	sels, err = ToggleOption(groups, sels, size.ID, optionB.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(sels) != 0 {
		t.Fatalf("second tap should deselect; selections = %+v", sels)
	}
}

func TestToggleOptionChecksCapOnInclusiveGroups(t *testing.T) {
	toppings := catalog.OptionGroup{
		ID:            uuid.New(),
		Name:          "Toppings",
		MaxSelections: 2,
		Options: []catalog.Option{
			{ID: uuid.New(), Name: "Corn"},
			{ID: uuid.New(), Name: "Beans"},
			{ID: uuid.New(), Name: "Avocado"},
		},
	}
	groups := []catalog.ModifierGroup{toppings}

	sels, err := ToggleOption(groups, nil, toppings.ID, toppings.Options[0].ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	sels, err = ToggleOption(groups, sels, toppings.ID, toppings.Options[1].ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}

	_, err = ToggleOption(groups, sels, toppings.ID, toppings.Options[2].ID)
	var limit *SelectionLimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected SelectionLimitError, got %v", err)
	}

	// Deselecting under the cap still works.
	sels, err = ToggleOption(groups, sels, toppings.ID, toppings.Options[0].ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if len(sels) != 1 {
		t.Fatalf("selections = %+v", sels)
	}
}

func TestToggleOptionRejectsNonOptionGroups(t *testing.T) {
	cheese := catalog.Extra{ID: uuid.New(), Name: "Extra cheese", Surcharge: decimal.NewFromInt(200)}
	groups := []catalog.ModifierGroup{cheese}

	if _, err := ToggleOption(groups, nil, cheese.ID, uuid.New()); !errors.Is(err, ErrNotOptionGroup) {
		t.Errorf("expected ErrNotOptionGroup, got %v", err)
	}
	if _, err := ToggleOption(groups, nil, uuid.New(), uuid.New()); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("expected ErrUnknownGroup, got %v", err)
	}
}

// mapKey returns the single item key of a fixture adapter.
func mapKey(f *fixtureAdapter) uuid.UUID {
	for k := range f.groups {
		return k
	}
	return uuid.Nil
}
