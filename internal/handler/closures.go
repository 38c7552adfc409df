package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/closure"
	"github.com/fogon-pos/api/internal/money"
	"github.com/fogon-pos/api/internal/store"
)

// ClosureStore defines the persistence methods the closure handlers
// need. Satisfied by *store.PG and *store.Memory.
type ClosureStore interface {
	LoadClosureRecord(ctx context.Context, branchID uuid.UUID, date time.Time, shift string) (closure.Record, error)
	SaveClosureRecord(ctx context.Context, rec closure.Record, res closure.Result) error
}

// ClosureHandler handles shift-end reconciliation endpoints.
type ClosureHandler struct {
	store  ClosureStore
	policy closure.Policy
}

// NewClosureHandler creates a new ClosureHandler.
func NewClosureHandler(store ClosureStore, policy closure.Policy) *ClosureHandler {
	return &ClosureHandler{store: store, policy: policy}
}

// RegisterRoutes registers closure endpoints on the given Chi router.
// Expected mount point: /branches/{bid}/closures
func (h *ClosureHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{date}/{shift}", h.Get)
	r.Put("/{date}/{shift}", h.Save)
	r.Post("/{date}/{shift}/preview", h.Preview)
}

// --- Request / Response types ---

type closureRequest struct {
	CounterSales  map[string]closure.MethodTotals `json:"counter_sales"`
	DeliverySales []closure.PlatformSales         `json:"delivery_sales"`
	TerminalTotal decimal.Decimal                 `json:"terminal_total"`
	CashCountDiff decimal.Decimal                 `json:"cash_count_diff"`
	InvoicedTotal decimal.Decimal                 `json:"invoiced_total"`
	SavedBy       string                          `json:"saved_by"`
}

type closureResponse struct {
	BranchID      uuid.UUID                       `json:"branch_id"`
	Date          string                          `json:"date"`
	Shift         string                          `json:"shift"`
	CounterSales  map[string]closure.MethodTotals `json:"counter_sales"`
	DeliverySales []closure.PlatformSales         `json:"delivery_sales"`
	TerminalTotal string                          `json:"terminal_total"`
	CashCountDiff string                          `json:"cash_count_diff"`
	InvoicedTotal string                          `json:"invoiced_total"`
	SavedBy       string                          `json:"saved_by,omitempty"`
	SavedAt       *time.Time                      `json:"saved_at,omitempty"`
	Result        reconcileResponse               `json:"result"`
}

type reconcileResponse struct {
	Platforms []platformDiffResponse `json:"platforms"`

	CardInternal string `json:"card_internal"`
	CardTerminal string `json:"card_terminal"`
	CardDiff     string `json:"card_diff"`
	CardChecked  bool   `json:"card_checked"`
	CardAlert    bool   `json:"card_alert"`

	CashDiff  string `json:"cash_diff"`
	CashAlert bool   `json:"cash_alert"`

	InvoiceExpected string `json:"invoice_expected"`
	InvoiceDeclared string `json:"invoice_declared"`
	InvoiceDiff     string `json:"invoice_diff"`
	InvoiceChecked  bool   `json:"invoice_checked"`
	InvoiceAlert    bool   `json:"invoice_alert"`

	HasAlert bool `json:"has_alert"`
}

type platformDiffResponse struct {
	Platform string `json:"platform"`
	Internal string `json:"internal"`
	Panel    string `json:"panel"`
	Diff     string `json:"diff"`
	Checked  bool   `json:"checked"`
	Alert    bool   `json:"alert"`
}

// --- Handlers ---

// Get handles GET /branches/{bid}/closures/{date}/{shift}.
// Returns the saved record together with its recomputed
// reconciliation.
func (h *ClosureHandler) Get(w http.ResponseWriter, r *http.Request) {
	branchID, date, shift, ok := closureKeyParams(w, r)
	if !ok {
		return
	}

	rec, err := h.store.LoadClosureRecord(r.Context(), branchID, date, shift)
	if err != nil {
		if errors.Is(err, store.ErrClosureNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "closure not found"})
			return
		}
		log.Printf("ERROR: load closure: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toClosureResponse(rec, closure.Reconcile(rec, h.policy)))
}

// Save handles PUT /branches/{bid}/closures/{date}/{shift}.
// Validates, reconciles, and upserts the record: re-saving the same
// key supersedes the previous entry.
func (h *ClosureHandler) Save(w http.ResponseWriter, r *http.Request) {
	branchID, date, shift, ok := closureKeyParams(w, r)
	if !ok {
		return
	}

	rec, ok := h.decodeRecord(w, r, branchID, date, shift)
	if !ok {
		return
	}
	rec.SavedAt = time.Now()

	res := closure.Reconcile(rec, h.policy)
	if err := h.store.SaveClosureRecord(r.Context(), rec, res); err != nil {
		log.Printf("ERROR: save closure: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toClosureResponse(rec, res))
}

// Preview handles POST /branches/{bid}/closures/{date}/{shift}/preview.
// Runs the reconciliation without persisting anything: the screen
// shows the operator the alerts a save would produce.
func (h *ClosureHandler) Preview(w http.ResponseWriter, r *http.Request) {
	branchID, date, shift, ok := closureKeyParams(w, r)
	if !ok {
		return
	}

	rec, ok := h.decodeRecord(w, r, branchID, date, shift)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toClosureResponse(rec, closure.Reconcile(rec, h.policy)))
}

// --- Helpers ---

func closureKeyParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, time.Time, string, bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return uuid.Nil, time.Time{}, "", false
	}

	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, use YYYY-MM-DD"})
		return uuid.Nil, time.Time{}, "", false
	}

	return branchID, date, chi.URLParam(r, "shift"), true
}

func (h *ClosureHandler) decodeRecord(w http.ResponseWriter, r *http.Request, branchID uuid.UUID, date time.Time, shift string) (closure.Record, bool) {
	var req closureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return closure.Record{}, false
	}

	rec := closure.Record{
		BranchID:      branchID,
		Date:          date,
		Shift:         shift,
		CounterSales:  req.CounterSales,
		DeliverySales: req.DeliverySales,
		TerminalTotal: req.TerminalTotal,
		CashCountDiff: req.CashCountDiff,
		InvoicedTotal: req.InvoicedTotal,
		SavedBy:       req.SavedBy,
	}
	if err := rec.Validate(); err != nil {
		writeDomainError(w, err)
		return closure.Record{}, false
	}
	return rec, true
}

func toClosureResponse(rec closure.Record, res closure.Result) closureResponse {
	resp := closureResponse{
		BranchID:      rec.BranchID,
		Date:          rec.Date.Format("2006-01-02"),
		Shift:         rec.Shift,
		CounterSales:  rec.CounterSales,
		DeliverySales: rec.DeliverySales,
		TerminalTotal: money.String(rec.TerminalTotal),
		CashCountDiff: money.String(rec.CashCountDiff),
		InvoicedTotal: money.String(rec.InvoicedTotal),
		SavedBy:       rec.SavedBy,
		Result:        toReconcileResponse(res),
	}
	if !rec.SavedAt.IsZero() {
		t := rec.SavedAt
		resp.SavedAt = &t
	}
	return resp
}

func toReconcileResponse(res closure.Result) reconcileResponse {
	resp := reconcileResponse{
		Platforms: make([]platformDiffResponse, len(res.Platforms)),

		CardInternal: money.String(res.CardInternal),
		CardTerminal: money.String(res.CardTerminal),
		CardDiff:     money.String(res.CardDiff),
		CardChecked:  res.CardChecked,
		CardAlert:    res.CardAlert,

		CashDiff:  money.String(res.CashDiff),
		CashAlert: res.CashAlert,

		InvoiceExpected: money.String(res.InvoiceExpected),
		InvoiceDeclared: money.String(res.InvoiceDeclared),
		InvoiceDiff:     money.String(res.InvoiceDiff),
		InvoiceChecked:  res.InvoiceChecked,
		InvoiceAlert:    res.InvoiceAlert,

		HasAlert: res.HasAlert,
	}
	for i, pd := range res.Platforms {
		resp.Platforms[i] = platformDiffResponse{
			Platform: pd.Platform,
			Internal: money.String(pd.Internal),
			Panel:    money.String(pd.Panel),
			Diff:     money.String(pd.Diff),
			Checked:  pd.Checked,
			Alert:    pd.Alert,
		}
	}
	return resp
}
