package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/money"
	"github.com/fogon-pos/api/internal/service"
)

// CatalogHandler serves the item modifier metadata the order screen
// needs to render a selection modal.
type CatalogHandler struct {
	svc *service.Sessions
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(svc *service.Sessions) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// RegisterRoutes registers catalog endpoints. Expected mount point:
// /items
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}/modifiers", h.ItemModifiers)
}

type itemModifiersResponse struct {
	Item   itemResponse            `json:"item"`
	Groups []modifierGroupResponse `json:"groups"`
}

type itemResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BasePrice    string    `json:"base_price"`
	HasModifiers bool      `json:"has_modifiers"`
}

// modifierGroupResponse is the wire form of a modifier group. Kind
// discriminates the variant: EXTRA carries a surcharge, REMOVABLE is
// just a name, OPTION_GROUP carries options and selection rules.
type modifierGroupResponse struct {
	ID            uuid.UUID        `json:"id"`
	Kind          string           `json:"kind"`
	Name          string           `json:"name"`
	Surcharge     string           `json:"surcharge,omitempty"`
	Required      bool             `json:"required,omitempty"`
	MaxSelections int              `json:"max_selections,omitempty"`
	Options       []optionResponse `json:"options,omitempty"`
}

type optionResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ItemModifiers handles GET /items/{id}/modifiers.
func (h *CatalogHandler) ItemModifiers(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	item, groups, err := h.svc.ItemModifiers(r.Context(), itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := itemModifiersResponse{
		Item: itemResponse{
			ID:           item.ID,
			Name:         item.Name,
			BasePrice:    money.String(item.BasePrice),
			HasModifiers: item.HasModifiers,
		},
		Groups: make([]modifierGroupResponse, len(groups)),
	}
	for i, g := range groups {
		resp.Groups[i] = toGroupResponse(g)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toGroupResponse(g catalog.ModifierGroup) modifierGroupResponse {
	switch v := g.(type) {
	case catalog.Extra:
		return modifierGroupResponse{
			ID:        v.ID,
			Kind:      "EXTRA",
			Name:      v.Name,
			Surcharge: money.String(v.Surcharge),
		}
	case catalog.Removable:
		return modifierGroupResponse{
			ID:   v.ID,
			Kind: "REMOVABLE",
			Name: v.Name,
		}
	case catalog.OptionGroup:
		resp := modifierGroupResponse{
			ID:            v.ID,
			Kind:          "OPTION_GROUP",
			Name:          v.Name,
			Required:      v.Required,
			MaxSelections: v.MaxSelections,
			Options:       make([]optionResponse, len(v.Options)),
		}
		for i, opt := range v.Options {
			resp.Options[i] = optionResponse{ID: opt.ID, Name: opt.Name}
		}
		return resp
	}
	return modifierGroupResponse{}
}
