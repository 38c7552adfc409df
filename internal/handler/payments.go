package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fogon-pos/api/internal/enum"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/money"
	"github.com/fogon-pos/api/internal/order"
	"github.com/fogon-pos/api/internal/service"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles the settlement endpoints of a live order.
type PaymentHandler struct {
	svc *service.Sessions
	// supervisorPINHash is the bcrypt hash guarding post-dispatch
	// payment corrections. Empty means corrections are disabled.
	supervisorPINHash string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc *service.Sessions, supervisorPINHash string) *PaymentHandler {
	return &PaymentHandler{svc: svc, supervisorPINHash: supervisorPINHash}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected mount point: /branches/{bid}/orders/{id}/payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Register)
	r.Get("/limit", h.Limit)
	r.Delete("/{pid}", h.Remove)
	r.Put("/", h.Replace)
}

// --- Request / Response types ---

type registerPaymentRequest struct {
	Method         string `json:"method"`
	Amount         string `json:"amount"`
	AmountTendered string `json:"amount_tendered"`
}

type replacePaymentsRequest struct {
	SupervisorPIN string                   `json:"supervisor_pin"`
	Reason        string                   `json:"reason"`
	Payments      []registerPaymentRequest `json:"payments"`
}

type replacementResponse struct {
	Before    []paymentResponse `json:"before"`
	After     []paymentResponse `json:"after"`
	Reason    string            `json:"reason"`
	CashDelta string            `json:"cash_delta"`
}

type limitResponse struct {
	Method         string `json:"method"`
	Balance        string `json:"balance"`
	MaxRegistrable string `json:"max_registrable"`
}

// --- Handlers ---

// Register handles POST /branches/{bid}/orders/{id}/payments.
func (h *PaymentHandler) Register(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	var req registerPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	tendered := decimal.Zero
	if req.AmountTendered != "" {
		tendered, err = money.Parse(req.AmountTendered)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_tendered"})
			return
		}
	}

	p, err := h.svc.RegisterPayment(r.Context(), o.ID, req.Method, amount, tendered)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// Limit handles GET /branches/{bid}/orders/{id}/payments/limit?method=QR.
// Returns the maximum still registrable through a method given the
// promotional reserve caps.
func (h *PaymentHandler) Limit(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	method := r.URL.Query().Get("method")
	if !enum.ValidPaymentMethod(method) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method"})
		return
	}

	writeJSON(w, http.StatusOK, limitResponse{
		Method:         method,
		Balance:        money.String(o.Balance()),
		MaxRegistrable: money.String(o.MaxRegistrable(method)),
	})
}

// Remove handles DELETE /branches/{bid}/orders/{id}/payments/{pid}.
func (h *PaymentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	p, err := h.svc.RemovePayment(r.Context(), o.ID, paymentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// Replace handles PUT /branches/{bid}/orders/{id}/payments.
// The post-dispatch correction path: guarded by the supervisor PIN,
// requires a reason, and swaps the full payment set atomically.
func (h *PaymentHandler) Replace(w http.ResponseWriter, r *http.Request) {
	o, ok := h.liveOrder(w, r)
	if !ok {
		return
	}

	var req replacePaymentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if h.supervisorPINHash == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "payment correction is not enabled"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.supervisorPINHash), []byte(req.SupervisorPIN)); err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid supervisor PIN"})
		return
	}

	inputs := make([]ledger.ReplacementInput, len(req.Payments))
	for i, p := range req.Payments {
		amount, err := money.Parse(p.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
			return
		}
		tendered := decimal.Zero
		if p.AmountTendered != "" {
			tendered, err = money.Parse(p.AmountTendered)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount_tendered"})
				return
			}
		}
		inputs[i] = ledger.ReplacementInput{
			Method:         p.Method,
			Amount:         amount,
			AmountTendered: tendered,
		}
	}

	audit, err := h.svc.ReplacePayments(r.Context(), o.ID, inputs, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := replacementResponse{
		Before:    make([]paymentResponse, len(audit.Before)),
		After:     make([]paymentResponse, len(audit.After)),
		Reason:    audit.Reason,
		CashDelta: money.String(audit.CashDelta),
	}
	for i, p := range audit.Before {
		resp.Before[i] = toPaymentResponse(p)
	}
	for i, p := range audit.After {
		resp.After[i] = toPaymentResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// liveOrder mirrors OrderHandler.liveOrder for the payments subtree.
func (h *PaymentHandler) liveOrder(w http.ResponseWriter, r *http.Request) (*order.Order, bool) {
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
