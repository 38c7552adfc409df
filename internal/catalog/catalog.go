// Package catalog defines the read-only pricing catalog the cart
// engine builds items from. Prices are captured by the cart at confirm
// time; nothing here is re-read during an order's lifetime.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by catalog adapters.
var (
	ErrItemNotFound = errors.New("item not found")
)

// Item is a sellable catalog product.
type Item struct {
	ID           uuid.UUID
	Name         string
	BasePrice    decimal.Decimal
	CategoryID   uuid.UUID
	HasModifiers bool
}

// ModifierGroup is a sealed sum over the three modifier kinds an item
// can carry. Consumers must type-switch over Extra, Removable, and
// OptionGroup; any other concrete type is a programming error.
type ModifierGroup interface {
	isModifierGroup()
}

// Extra is a quantifiable add-on. Each selected unit adds Surcharge to
// the item's unit price.
type Extra struct {
	ID        uuid.UUID
	Name      string
	Surcharge decimal.Decimal
}

func (Extra) isModifierGroup() {}

// Removable is a boolean ingredient removal. No price effect and no
// selection constraint.
type Removable struct {
	ID   uuid.UUID
	Name string
}

func (Removable) isModifierGroup() {}

// Option is one choice inside an OptionGroup.
type Option struct {
	ID   uuid.UUID
	Name string
}

// OptionGroup is a labelled set of mutually distinguishable options.
// MaxSelections == 1 means exclusive (radio) selection; larger values
// allow inclusive selection up to the cap.
type OptionGroup struct {
	ID            uuid.UUID
	Name          string
	Required      bool
	MaxSelections int
	Options       []Option
}

func (OptionGroup) isModifierGroup() {}

// HasOption reports whether optionID belongs to the group.
func (g OptionGroup) HasOption(optionID uuid.UUID) bool {
	for _, o := range g.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// GroupID returns the id of any modifier group variant.
func GroupID(g ModifierGroup) uuid.UUID {
	switch v := g.(type) {
	case Extra:
		return v.ID
	case Removable:
		return v.ID
	case OptionGroup:
		return v.ID
	}
	return uuid.Nil
}

// GroupName returns the display name of any modifier group variant.
func GroupName(g ModifierGroup) string {
	switch v := g.(type) {
	case Extra:
		return v.Name
	case Removable:
		return v.Name
	case OptionGroup:
		return v.Name
	}
	return ""
}

// Adapter is the read-only lookup the cart engine depends on.
// Satisfied by the Postgres store and by in-memory fixtures in tests.
type Adapter interface {
	Item(ctx context.Context, id uuid.UUID) (Item, error)
	ItemModifiers(ctx context.Context, itemID uuid.UUID) ([]ModifierGroup, error)
}
