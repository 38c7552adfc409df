// Package cart builds and prices order lines from catalog items plus
// operator selections, enforcing the modifier-group constraints.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/catalog"
)

// MaxExtraUnits is the hard cap on units of a single extra. Requests
// above the cap are clamped, not rejected.
const MaxExtraUnits = 10

// Errors returned by the cart engine.
var (
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrUnknownGroup    = errors.New("selection references an unknown modifier group")
	ErrUnknownOption   = errors.New("option does not belong to the group")
	ErrNotOptionGroup  = errors.New("group does not take option selections")
	ErrItemNotInCart   = errors.New("item not in cart")
)

// MissingRequiredError blocks confirmation when one or more required
// option groups have no selection. Groups holds the offending names.
type MissingRequiredError struct {
	Groups []string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("missing required selection: %s", strings.Join(e.Groups, ", "))
}

// SelectionLimitError blocks confirmation when a group holds more
// selections than its cap allows.
type SelectionLimitError struct {
	Group string
	Max   int
}

func (e *SelectionLimitError) Error() string {
	return fmt.Sprintf("%s allows at most %d selection(s)", e.Group, e.Max)
}

// Selection is one operator choice on a modifier group. For option
// groups OptionID names the chosen option; for extras Quantity is the
// unit count and OptionID is zero; for removables both are zero/1.
type Selection struct {
	GroupID  uuid.UUID
	OptionID uuid.UUID
	Quantity int32
}

// Item is a confirmed cart line. UnitPrice is fixed at confirm time
// and never re-derived from the catalog.
type Item struct {
	ID          uuid.UUID
	CatalogID   uuid.UUID
	Name        string
	Quantity    int32
	UnitPrice   decimal.Decimal
	Selections  []Selection
	KitchenNote string
	Note        string
	AddedAt     time.Time
}

// LineTotal is UnitPrice × Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Cart is the ordered list of confirmed lines for one order.
// Not safe for concurrent use: one operator per order.
type Cart struct {
	items []Item
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{}
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of lines in the cart.
func (c *Cart) Len() int {
	return len(c.items)
}

// Get returns the line with the given id.
func (c *Cart) Get(id uuid.UUID) (Item, error) {
	for _, it := range c.items {
		if it.ID == id {
			return it, nil
		}
	}
	return Item{}, ErrItemNotInCart
}

// Subtotal sums the line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// UpdateQuantity applies a signed delta to a line's quantity. A
// resulting quantity <= 0 removes the line. Returns the updated line
// and whether it is still in the cart.
func (c *Cart) UpdateQuantity(id uuid.UUID, delta int32) (Item, bool, error) {
	for idx := range c.items {
		if c.items[idx].ID != id {
			continue
		}
		newQty := c.items[idx].Quantity + delta
		if newQty <= 0 {
			removed := c.items[idx]
			c.items = append(c.items[:idx], c.items[idx+1:]...)
			return removed, false, nil
		}
		c.items[idx].Quantity = newQty
		return c.items[idx], true, nil
	}
	return Item{}, false, ErrItemNotInCart
}

// Remove deletes a line from the cart.
func (c *Cart) Remove(id uuid.UUID) error {
	for idx := range c.items {
		if c.items[idx].ID == id {
			c.items = append(c.items[:idx], c.items[idx+1:]...)
			return nil
		}
	}
	return ErrItemNotInCart
}

// UpdateNote replaces the free-text note on a line.
func (c *Cart) UpdateNote(id uuid.UUID, note string) error {
	for idx := range c.items {
		if c.items[idx].ID == id {
			c.items[idx].Note = note
			return nil
		}
	}
	return ErrItemNotInCart
}

// Engine validates selections against the catalog and confirms lines
// into a cart.
type Engine struct {
	adapter catalog.Adapter
}

// NewEngine creates a cart engine over the given catalog adapter.
func NewEngine(adapter catalog.Adapter) *Engine {
	return &Engine{adapter: adapter}
}

// ResolveModifiers returns the modifier groups applicable to an item.
// Items flagged without modifiers skip the lookup entirely.
func (e *Engine) ResolveModifiers(ctx context.Context, item catalog.Item) ([]catalog.ModifierGroup, error) {
	if !item.HasModifiers {
		return nil, nil
	}
	groups, err := e.adapter.ItemModifiers(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch item modifiers: %w", err)
	}
	return groups, nil
}

// Confirm validates the selections for an item and, on success,
// appends a priced line to the cart. The cart is untouched on any
// validation failure.
func (e *Engine) Confirm(ctx context.Context, c *Cart, item catalog.Item, sels []Selection, quantity int32, note string) (Item, error) {
	if quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}

	groups, err := e.ResolveModifiers(ctx, item)
	if err != nil {
		return Item{}, err
	}

	unitPrice, kitchenNote, clean, err := priceSelections(item, groups, sels)
	if err != nil {
		return Item{}, err
	}

	line := Item{
		ID:          uuid.New(),
		CatalogID:   item.ID,
		Name:        item.Name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Selections:  clean,
		KitchenNote: kitchenNote,
		Note:        note,
		AddedAt:     time.Now(),
	}
	c.items = append(c.items, line)
	return line, nil
}

// priceSelections walks the item's groups, validates every selection,
// and derives the unit price and the kitchen ticket text.
func priceSelections(item catalog.Item, groups []catalog.ModifierGroup, sels []Selection) (decimal.Decimal, string, []Selection, error) {
	byID := make(map[uuid.UUID]catalog.ModifierGroup, len(groups))
	for _, g := range groups {
		byID[catalog.GroupID(g)] = g
	}

	unitPrice := item.BasePrice
	perGroup := make(map[uuid.UUID]int)
	var clean []Selection
	var noteParts []string

	for _, sel := range sels {
		g, ok := byID[sel.GroupID]
		if !ok {
			return decimal.Zero, "", nil, ErrUnknownGroup
		}
		switch v := g.(type) {
		case catalog.Extra:
			qty := sel.Quantity
			if qty <= 0 {
				continue
			}
			if qty > MaxExtraUnits {
				qty = MaxExtraUnits
			}
			unitPrice = unitPrice.Add(v.Surcharge.Mul(decimal.NewFromInt32(qty)))
			clean = append(clean, Selection{GroupID: v.ID, Quantity: qty})
			noteParts = append(noteParts, fmt.Sprintf("+%dx %s", qty, v.Name))
		case catalog.Removable:
			clean = append(clean, Selection{GroupID: v.ID, Quantity: 1})
			noteParts = append(noteParts, "no "+v.Name)
		case catalog.OptionGroup:
			if !v.HasOption(sel.OptionID) {
				return decimal.Zero, "", nil, ErrUnknownOption
			}
			perGroup[v.ID]++
			if perGroup[v.ID] > v.MaxSelections {
				return decimal.Zero, "", nil, &SelectionLimitError{Group: v.Name, Max: v.MaxSelections}
			}
			clean = append(clean, Selection{GroupID: v.ID, OptionID: sel.OptionID, Quantity: 1})
			noteParts = append(noteParts, v.Name+": "+optionName(v, sel.OptionID))
		}
	}

	// Every required option group needs at least one selection.
	var missing []string
	for _, g := range groups {
		og, ok := g.(catalog.OptionGroup)
		if !ok || !og.Required {
			continue
		}
		if perGroup[og.ID] == 0 {
			missing = append(missing, og.Name)
		}
	}
	if len(missing) > 0 {
		return decimal.Zero, "", nil, &MissingRequiredError{Groups: missing}
	}

	return unitPrice, strings.Join(noteParts, ", "), clean, nil
}

func optionName(g catalog.OptionGroup, optionID uuid.UUID) string {
	for _, o := range g.Options {
		if o.ID == optionID {
			return o.Name
		}
	}
	return ""
}

// ToggleOption applies one tap on an option to a pending selection
// set, before confirmation. Tapping a selected option deselects it;
// in an exclusive group (max 1) tapping a different option replaces
// the current one; in an inclusive group a new option is added only
// while under the cap.
func ToggleOption(groups []catalog.ModifierGroup, sels []Selection, groupID, optionID uuid.UUID) ([]Selection, error) {
	var target catalog.OptionGroup
	found := false
	for _, g := range groups {
		if catalog.GroupID(g) != groupID {
			continue
		}
		og, ok := g.(catalog.OptionGroup)
		if !ok {
			return nil, ErrNotOptionGroup
		}
		target = og
		found = true
		break
	}
	if !found {
		return nil, ErrUnknownGroup
	}
	if !target.HasOption(optionID) {
		return nil, ErrUnknownOption
	}

	// Tap on the already-selected option: toggle off.
	for idx, sel := range sels {
		if sel.GroupID == groupID && sel.OptionID == optionID {
			return append(sels[:idx:idx], sels[idx+1:]...), nil
		}
	}

	if target.MaxSelections == 1 {
		// Radio: drop any other selection in the group, then add.
		out := make([]Selection, 0, len(sels)+1)
		for _, sel := range sels {
			if sel.GroupID != groupID {
				out = append(out, sel)
			}
		}
		return append(out, Selection{GroupID: groupID, OptionID: optionID, Quantity: 1}), nil
	}

	count := 0
	for _, sel := range sels {
		if sel.GroupID == groupID {
			count++
		}
	}
	if count >= target.MaxSelections {
		return nil, &SelectionLimitError{Group: target.Name, Max: target.MaxSelections}
	}
	return append(sels, Selection{GroupID: groupID, OptionID: optionID, Quantity: 1}), nil
}
