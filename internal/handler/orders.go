package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/cart"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/money"
	"github.com/fogon-pos/api/internal/order"
	"github.com/fogon-pos/api/internal/service"
)

// OrderHandler handles the live-order endpoints.
type OrderHandler struct {
	svc *service.Sessions
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc *service.Sessions) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a branch-scoped subrouter:
// /branches/{bid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/timeline", h.Timeline)
	r.Put("/{id}/config", h.Configure)
	r.Post("/{id}/items", h.AddItem)
	r.Patch("/{id}/items/{lid}", h.UpdateItem)
	r.Delete("/{id}/items/{lid}", h.RemoveItem)
	r.Put("/{id}/charges", h.SetCharges)
	r.Post("/{id}/dispatch", h.Dispatch)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type configureRequest struct {
	Channel      string `json:"channel"`
	TableNumber  string `json:"table_number"`
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Platform     string `json:"platform"`
	TaxInvoice   bool   `json:"tax_invoice"`
	TaxID        string `json:"tax_id"`
	LegalName    string `json:"legal_name"`
}

type addItemRequest struct {
	ItemID     string             `json:"item_id"`
	Quantity   int32              `json:"quantity"`
	Note       string             `json:"note"`
	Selections []selectionRequest `json:"selections"`
}

type selectionRequest struct {
	GroupID  string `json:"group_id"`
	OptionID string `json:"option_id"`
	Quantity int32  `json:"quantity"`
}

type updateItemRequest struct {
	QuantityDelta *int32  `json:"quantity_delta"`
	Note          *string `json:"note"`
}

type setChargesRequest struct {
	DeliveryFee *string `json:"delivery_fee"`
	Tip         *string `json:"tip"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	BranchID    uuid.UUID           `json:"branch_id"`
	Number      string              `json:"number"`
	State       string              `json:"state"`
	Config      configResponse      `json:"config"`
	Items       []cartItemResponse  `json:"items"`
	Payments    []paymentResponse   `json:"payments"`
	Subtotal    string              `json:"subtotal"`
	DeliveryFee string              `json:"delivery_fee"`
	Tip         string              `json:"tip"`
	Total       string              `json:"total"`
	Balance     string              `json:"balance"`
	CanDispatch bool                `json:"can_dispatch"`
	CreatedAt   time.Time           `json:"created_at"`
}

type configResponse struct {
	Channel      string `json:"channel"`
	TableNumber  string `json:"table_number,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Platform     string `json:"platform,omitempty"`
	TaxInvoice   bool   `json:"tax_invoice"`
	TaxID        string `json:"tax_id,omitempty"`
	LegalName    string `json:"legal_name,omitempty"`
}

type cartItemResponse struct {
	ID          uuid.UUID `json:"id"`
	CatalogID   uuid.UUID `json:"catalog_id"`
	Name        string    `json:"name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
	KitchenNote string    `json:"kitchen_note,omitempty"`
	Note        string    `json:"note,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

type paymentResponse struct {
	ID             uuid.UUID `json:"id"`
	Method         string    `json:"method"`
	Amount         string    `json:"amount"`
	AmountTendered string    `json:"amount_tendered,omitempty"`
	Change         string    `json:"change,omitempty"`
	At             time.Time `json:"at"`
}

type timelineEntryResponse struct {
	At      time.Time         `json:"at"`
	Item    *cartItemResponse `json:"item,omitempty"`
	Payment *paymentResponse  `json:"payment,omitempty"`
}

// --- Handlers ---

// Open handles POST /branches/{bid}/orders.
func (h *OrderHandler) Open(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return
	}

	o := h.svc.Open(branchID)
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// Get handles GET /branches/{bid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Timeline handles GET /branches/{bid}/orders/{id}/timeline.
func (h *OrderHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	entries := o.Timeline()
	resp := make([]timelineEntryResponse, len(entries))
	for i, e := range entries {
		entry := timelineEntryResponse{At: e.At}
		if e.Item != nil {
			item := toCartItemResponse(*e.Item)
			entry.Item = &item
		}
		if e.Payment != nil {
			p := toPaymentResponse(*e.Payment)
			entry.Payment = &p
		}
		resp[i] = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

// Configure handles PUT /branches/{bid}/orders/{id}/config.
func (h *OrderHandler) Configure(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	err := h.svc.Configure(o.ID, order.ChannelConfig{
		Channel:      req.Channel,
		TableNumber:  req.TableNumber,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Address:      req.Address,
		Platform:     req.Platform,
		TaxInvoice:   req.TaxInvoice,
		TaxID:        req.TaxID,
		LegalName:    req.LegalName,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// AddItem handles POST /branches/{bid}/orders/{id}/items.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item_id"})
		return
	}

	sels := make([]cart.Selection, len(req.Selections))
	for i, s := range req.Selections {
		groupID, err := uuid.Parse(s.GroupID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid group_id"})
			return
		}
		sel := cart.Selection{GroupID: groupID, Quantity: s.Quantity}
		if s.OptionID != "" {
			optionID, err := uuid.Parse(s.OptionID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid option_id"})
				return
			}
			sel.OptionID = optionID
		}
		sels[i] = sel
	}

	line, err := h.svc.AddItem(r.Context(), o.ID, itemID, sels, req.Quantity, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartItemResponse(line))
}

// UpdateItem handles PATCH /branches/{bid}/orders/{id}/items/{lid}.
// A quantity delta of zero or below the line's count removes the line.
func (h *OrderHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	lineID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.QuantityDelta == nil && req.Note == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity_delta or note is required"})
		return
	}

	if req.Note != nil {
		if err := h.svc.UpdateItemNote(o.ID, lineID, *req.Note); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if req.QuantityDelta != nil {
		line, removed, err := h.svc.UpdateItemQuantity(o.ID, lineID, *req.QuantityDelta)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if removed {
			writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
			return
		}
		writeJSON(w, http.StatusOK, toCartItemResponse(line))
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RemoveItem handles DELETE /branches/{bid}/orders/{id}/items/{lid}.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	lineID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	if err := h.svc.RemoveItem(o.ID, lineID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// SetCharges handles PUT /branches/{bid}/orders/{id}/charges.
func (h *OrderHandler) SetCharges(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	var req setChargesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.DeliveryFee != nil {
		fee, err := money.Parse(*req.DeliveryFee)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery_fee"})
			return
		}
		if err := h.svc.SetDeliveryFee(o.ID, fee); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if req.Tip != nil {
		tip, err := money.Parse(*req.Tip)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tip"})
			return
		}
		if err := h.svc.SetTip(o.ID, tip); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Dispatch handles POST /branches/{bid}/orders/{id}/dispatch.
func (h *OrderHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	if err := h.svc.Dispatch(r.Context(), o.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Cancel handles DELETE /branches/{bid}/orders/{id}.
// Cancelling an order with registered payments requires
// ?refund_acked=true: the operator confirms the refunds were handed
// back before the order is voided.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	refundAcked := r.URL.Query().Get("refund_acked") == "true"
	if err := h.svc.Cancel(r.Context(), o.ID, refundAcked); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// --- Helpers ---

// liveOrder resolves {bid}/{id} to a live order. An order that exists
// under a different branch is reported as not found.
func (h *OrderHandler) liveOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return nil, false
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return nil, false
	}

	o, err := h.svc.Get(orderID)
	if err != nil || o.BranchID != branchID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return nil, false
	}
	return o, true
}

func toOrderResponse(o *order.Order) orderResponse {
	cfg := o.Config()
	items := o.Items()
	payments := o.Payments()

	resp := orderResponse{
		ID:       o.ID,
		BranchID: o.BranchID,
		Number:   o.Number,
		State:    o.State(),
		Config: configResponse{
			Channel:      cfg.Channel,
			TableNumber:  cfg.TableNumber,
			CustomerName: cfg.CustomerName,
			Phone:        cfg.Phone,
			Address:      cfg.Address,
			Platform:     cfg.Platform,
			TaxInvoice:   cfg.TaxInvoice,
			TaxID:        cfg.TaxID,
			LegalName:    cfg.LegalName,
		},
		Items:       make([]cartItemResponse, len(items)),
		Payments:    make([]paymentResponse, len(payments)),
		DeliveryFee: money.String(o.DeliveryFee()),
		Tip:         money.String(o.Tip()),
		Total:       money.String(o.Total()),
		Balance:     money.String(o.Balance()),
		CanDispatch: o.CanDispatch(),
		CreatedAt:   o.CreatedAt,
	}

	subtotal := decimal.Zero
	for i, item := range items {
		resp.Items[i] = toCartItemResponse(item)
		subtotal = subtotal.Add(item.LineTotal())
	}
	resp.Subtotal = money.String(subtotal)

	for i, p := range payments {
		resp.Payments[i] = toPaymentResponse(p)
	}
	return resp
}

func toCartItemResponse(i cart.Item) cartItemResponse {
	return cartItemResponse{
		ID:          i.ID,
		CatalogID:   i.CatalogID,
		Name:        i.Name,
		Quantity:    i.Quantity,
		UnitPrice:   money.String(i.UnitPrice),
		LineTotal:   money.String(i.LineTotal()),
		KitchenNote: i.KitchenNote,
		Note:        i.Note,
		AddedAt:     i.AddedAt,
	}
}

func toPaymentResponse(p ledger.Payment) paymentResponse {
	resp := paymentResponse{
		ID:     p.ID,
		Method: p.Method,
		Amount: money.String(p.Amount),
		At:     p.At,
	}
	if !p.AmountTendered.IsZero() {
		resp.AmountTendered = money.String(p.AmountTendered)
		resp.Change = money.String(p.Change)
	}
	return resp
}
