package closure

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fogon-pos/api/internal/enum"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func baseRecord() Record {
	return Record{
		BranchID: uuid.New(),
		Date:     time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC),
		Shift:    enum.ShiftMorning,
	}
}

// --- Validate ---

func TestValidateRejectsNegativeSales(t *testing.T) {
	r := baseRecord()
	r.CounterSales = map[string]MethodTotals{
		enum.ChannelCounter: {enum.PaymentMethodCash: d(-1)},
	}
	if err := r.Validate(); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}

	r = baseRecord()
	r.DeliverySales = []PlatformSales{{Platform: enum.PlatformRappi, PanelTotal: d(-5)}}
	if err := r.Validate(); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestValidateAllowsNegativeCashCountDiff(t *testing.T) {
	r := baseRecord()
	r.CashCountDiff = d(-250) // cash missing from the drawer
	if err := r.Validate(); err != nil {
		t.Errorf("signed cash diff must be valid, got %v", err)
	}
}

func TestValidateRejectsUnknownShift(t *testing.T) {
	r := baseRecord()
	r.Shift = "GRAVEYARD"
	if err := r.Validate(); !errors.Is(err, ErrInvalidShift) {
		t.Errorf("expected ErrInvalidShift, got %v", err)
	}
}

// --- Panel check ---

func TestPanelCheckZeroTolerance(t *testing.T) {
	tests := []struct {
		name      string
		internal  int64
		panel     int64
		checked   bool
		alert     bool
		wantDiff  int64
	}{
		{"matching totals", 100, 100, true, false, 0},
		{"internal above panel", 120, 100, true, true, 20},
		{"internal below panel", 80, 100, true, true, -20},
		{"no panel entry is no data", 120, 0, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRecord()
			r.DeliverySales = []PlatformSales{{
				Platform:   enum.PlatformRappi,
				ByMethod:   MethodTotals{enum.PaymentMethodVoucher: d(tt.internal)},
				PanelTotal: d(tt.panel),
			}}
			// Declare the matching invoice total so only the panel
			// check can contribute to the aggregate flag here.
			r.InvoicedTotal = d(tt.internal)
			res := Reconcile(r, DefaultPolicy())

			if len(res.Platforms) != 1 {
				t.Fatalf("platforms = %d, want 1", len(res.Platforms))
			}
			pd := res.Platforms[0]
			if pd.Checked != tt.checked || pd.Alert != tt.alert {
				t.Errorf("checked=%v alert=%v, want %v/%v", pd.Checked, pd.Alert, tt.checked, tt.alert)
			}
			if !pd.Diff.Equal(d(tt.wantDiff)) {
				t.Errorf("diff = %s, want %d", pd.Diff, tt.wantDiff)
			}
			if res.HasAlert != tt.alert {
				t.Errorf("aggregate flag = %v, want %v", res.HasAlert, tt.alert)
			}
		})
	}
}

// --- Card terminal check ---

func TestCardCheckSumsDigitalCounterMethods(t *testing.T) {
	r := baseRecord()
	r.CounterSales = map[string]MethodTotals{
		enum.ChannelCounter: {
			enum.PaymentMethodCash:  d(5000),
			enum.PaymentMethodDebit: d(1200),
			enum.PaymentMethodQR:    d(300),
		},
		enum.ChannelDineIn: {
			enum.PaymentMethodCredit:   d(800),
			enum.PaymentMethodTransfer: d(400), // not a terminal method
		},
	}
	r.TerminalTotal = d(2300)

	res := Reconcile(r, DefaultPolicy())
	if !res.CardInternal.Equal(d(2300)) {
		t.Errorf("card internal = %s, want 2300", res.CardInternal)
	}
	if !res.CardChecked || res.CardAlert {
		t.Errorf("checked=%v alert=%v, want true/false", res.CardChecked, res.CardAlert)
	}

	r.TerminalTotal = d(2200)
	res = Reconcile(r, DefaultPolicy())
	if !res.CardAlert || !res.CardDiff.Equal(d(100)) {
		t.Errorf("alert=%v diff=%s, want true/100", res.CardAlert, res.CardDiff)
	}
}

func TestCardCheckSkippedWithoutTerminalTotal(t *testing.T) {
	r := baseRecord()
	r.CounterSales = map[string]MethodTotals{
		enum.ChannelCounter: {enum.PaymentMethodDebit: d(999)},
	}
	res := Reconcile(r, DefaultPolicy())
	if res.CardChecked || res.CardAlert {
		t.Errorf("terminal total 0 means no data: checked=%v alert=%v", res.CardChecked, res.CardAlert)
	}
}

// --- Cash count ---

func TestCashCountAlertsOnAnySignedDifference(t *testing.T) {
	r := baseRecord()
	r.CashCountDiff = d(-250)
	res := Reconcile(r, DefaultPolicy())
	if !res.CashAlert || !res.CashDiff.Equal(d(-250)) {
		t.Errorf("alert=%v diff=%s", res.CashAlert, res.CashDiff)
	}

	r.CashCountDiff = d(80) // surplus alerts too
	if res := Reconcile(r, DefaultPolicy()); !res.CashAlert {
		t.Error("surplus must alert")
	}

	r.CashCountDiff = decimal.Zero
	if res := Reconcile(r, DefaultPolicy()); res.CashAlert {
		t.Error("zero difference must not alert")
	}
}

// --- Invoicing ---

// invoiceRecord builds a record whose invoicing expectation is exactly
// 1000: total counter sales of 1500 (1000 QR + 500 cash), minus the
// 500 cash kept locally, plus 0 partner cash.
func invoiceRecord() Record {
	r := baseRecord()
	r.CounterSales = map[string]MethodTotals{
		enum.ChannelCounter: {
			enum.PaymentMethodQR:   d(1000),
			enum.PaymentMethodCash: d(500),
		},
	}
	return r
}

func TestInvoiceToleranceBand(t *testing.T) {
	tests := []struct {
		name     string
		declared int64
		alert    bool
	}{
		{"9.5 percent drift passes", 1095, false},
		{"15 percent drift alerts", 1150, true},
		{"exact match passes", 1000, false},
		{"undershoot beyond band alerts", 850, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := invoiceRecord()
			r.InvoicedTotal = d(tt.declared)
			res := Reconcile(r, DefaultPolicy())

			if !res.InvoiceExpected.Equal(d(1000)) {
				t.Fatalf("expected = %s, want 1000", res.InvoiceExpected)
			}
			if !res.InvoiceChecked {
				t.Fatal("invoice check should run")
			}
			if res.InvoiceAlert != tt.alert {
				t.Errorf("alert = %v, want %v", res.InvoiceAlert, tt.alert)
			}
		})
	}
}

func TestInvoiceCheckSkippedWhenExpectedZero(t *testing.T) {
	r := baseRecord()
	r.InvoicedTotal = d(500)
	res := Reconcile(r, DefaultPolicy())
	if res.InvoiceChecked || res.InvoiceAlert {
		t.Errorf("checked=%v alert=%v, want false/false", res.InvoiceChecked, res.InvoiceAlert)
	}
}

func TestInvoiceExpectationAddsPartnerCashBack(t *testing.T) {
	r := invoiceRecord() // expectation 1000 so far
	r.DeliverySales = []PlatformSales{
		{
			// Integrated partner: its cash flows through the invoice.
			Platform: enum.PlatformPedidosYa,
			ByMethod: MethodTotals{enum.PaymentMethodCash: d(300)},
		},
		{
			// Non-partner platform cash is part of totalSold only.
			Platform: enum.PlatformUberEats,
			ByMethod: MethodTotals{enum.PaymentMethodVoucher: d(200)},
		},
	}
	res := Reconcile(r, DefaultPolicy())

	// totalSold 2000 − cashKept 500 + partnerCash 300; the partner's
	// own sale is already inside totalSold, so: 2000 − 500 + 300 = 1800.
	if !res.InvoiceExpected.Equal(d(1800)) {
		t.Errorf("expected = %s, want 1800", res.InvoiceExpected)
	}
}

// --- Aggregate flag ---

func TestAggregateAlertIsOrOfAllCategories(t *testing.T) {
	r := invoiceRecord()
	r.InvoicedTotal = d(1000)
	res := Reconcile(r, DefaultPolicy())
	if res.HasAlert {
		t.Error("clean record must not alert")
	}

	r.CashCountDiff = d(-1)
	res = Reconcile(r, DefaultPolicy())
	if !res.HasAlert {
		t.Error("any category alert must raise the aggregate flag")
	}
}
