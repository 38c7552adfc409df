package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/fogon-pos/api/internal/ledger"
)

type closureView struct {
	Shift  string `json:"shift"`
	Result struct {
		Platforms []struct {
			Platform string `json:"platform"`
			Diff     string `json:"diff"`
			Checked  bool   `json:"checked"`
			Alert    bool   `json:"alert"`
		} `json:"platforms"`
		CashAlert       bool   `json:"cash_alert"`
		InvoiceExpected string `json:"invoice_expected"`
		InvoiceAlert    bool   `json:"invoice_alert"`
		HasAlert        bool   `json:"has_alert"`
	} `json:"result"`
}

func closureBody() map[string]any {
	return map[string]any{
		"counter_sales": map[string]map[string]string{
			"COUNTER": {"CASH": "1500", "DEBIT": "500"},
		},
		"delivery_sales": []map[string]any{
			{
				"platform":    "RAPPI",
				"by_method":   map[string]string{"CREDIT": "100"},
				"panel_total": "100",
			},
		},
		"terminal_total":  "500",
		"cash_count_diff": "0",
		"invoiced_total":  "600",
		"saved_by":        "mguti",
	}
}

func TestSaveAndLoadClosure(t *testing.T) {
	e := newEnv(ledger.Caps{}, "")
	branchID := uuid.New()
	path := "/branches/" + branchID.String() + "/closures/2026-08-30/EVENING"

	rec := e.do(t, http.MethodPut, path, closureBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := decodeBody[closureView](t, rec)
	if saved.Result.HasAlert {
		t.Errorf("expected clean closure, got alerts: %+v", saved.Result)
	}
	if len(saved.Result.Platforms) != 1 || !saved.Result.Platforms[0].Checked {
		t.Errorf("expected one checked platform, got %+v", saved.Result.Platforms)
	}

	rec = e.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[closureView](t, rec); got.Shift != "EVENING" {
		t.Errorf("expected shift EVENING, got %s", got.Shift)
	}
}

func TestSaveClosureSupersedesPrevious(t *testing.T) {
	e := newEnv(ledger.Caps{}, "")
	branchID := uuid.New()
	path := "/branches/" + branchID.String() + "/closures/2026-08-30/MORNING"

	if rec := e.do(t, http.MethodPut, path, closureBody()); rec.Code != http.StatusOK {
		t.Fatalf("first save: expected 200, got %d", rec.Code)
	}

	// Re-save with a panel mismatch: the alert must now be live.
	body := closureBody()
	body["delivery_sales"] = []map[string]any{
		{
			"platform":    "RAPPI",
			"by_method":   map[string]string{"CREDIT": "120"},
			"panel_total": "100",
		},
	}
	rec := e.do(t, http.MethodPut, path, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[closureView](t, rec)
	if !got.Result.Platforms[0].Alert || !got.Result.HasAlert {
		t.Errorf("expected platform alert after re-save, got %+v", got.Result)
	}

	rec = e.do(t, http.MethodGet, path, nil)
	if got := decodeBody[closureView](t, rec); !got.Result.HasAlert {
		t.Error("expected the superseding record to persist the alert")
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	e := newEnv(ledger.Caps{}, "")
	branchID := uuid.New()
	base := "/branches/" + branchID.String() + "/closures/2026-08-30/EVENING"

	rec := e.do(t, http.MethodPost, base+"/preview", closureBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, base, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after preview only, got %d", rec.Code)
	}
}

func TestClosureValidation(t *testing.T) {
	e := newEnv(ledger.Caps{}, "")
	branchID := uuid.New()

	// Unknown shift segment
	rec := e.do(t, http.MethodPut,
		"/branches/"+branchID.String()+"/closures/2026-08-30/NIGHT", closureBody())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown shift, got %d: %s", rec.Code, rec.Body.String())
	}

	// Negative sales amount
	body := closureBody()
	body["counter_sales"] = map[string]map[string]string{"COUNTER": {"CASH": "-5"}}
	rec = e.do(t, http.MethodPut,
		"/branches/"+branchID.String()+"/closures/2026-08-30/EVENING", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative amount, got %d: %s", rec.Code, rec.Body.String())
	}

	// Bad date
	rec = e.do(t, http.MethodGet,
		"/branches/"+branchID.String()+"/closures/30-08-2026/EVENING", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestClosureCashAlertIsZeroTolerance(t *testing.T) {
	e := newEnv(ledger.Caps{}, "")
	branchID := uuid.New()
	body := closureBody()
	body["cash_count_diff"] = "-0.50"

	rec := e.do(t, http.MethodPut,
		"/branches/"+branchID.String()+"/closures/2026-08-30/EVENING", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[closureView](t, rec)
	if !got.Result.CashAlert || !got.Result.HasAlert {
		t.Errorf("expected cash alert for a signed count difference, got %+v", got.Result)
	}
}
