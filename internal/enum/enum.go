package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStateNotStarted         = "NOT_STARTED"
	OrderStateConfiguring        = "CONFIGURING"
	OrderStateBuilding           = "BUILDING"
	OrderStateAwaitingSettlement = "AWAITING_SETTLEMENT"
	OrderStateSettled            = "SETTLED"
	OrderStateDispatched         = "DISPATCHED"
	OrderStateCancelled          = "CANCELLED"
)

const (
	CashShiftOpen   = "OPEN"
	CashShiftClosed = "CLOSED"
)

// ── Group B: Sales channels ──

const (
	ChannelCounter     = "COUNTER"
	ChannelDineIn      = "DINE_IN"
	ChannelTakeaway    = "TAKEAWAY"
	ChannelDelivery    = "DELIVERY"
	ChannelMarketplace = "MARKETPLACE"
)

// ── Group C: Payment methods ──

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodDebit    = "DEBIT"
	PaymentMethodCredit   = "CREDIT"
	PaymentMethodQR       = "QR"
	PaymentMethodTransfer = "TRANSFER"
	// Voucher is only valid for marketplace-channel orders: the
	// delivery platform settles the amount, not the customer.
	PaymentMethodVoucher = "VOUCHER"
)

// ── Group D: Configurable labels (no DB constraint) ──

const (
	ShiftMorning = "MORNING"
	ShiftEvening = "EVENING"
)

const (
	PlatformPedidosYa = "PEDIDOSYA"
	PlatformRappi     = "RAPPI"
	PlatformUberEats  = "UBEREATS"
)

const (
	CashMovementIn  = "IN"
	CashMovementOut = "OUT"
)

// ValidChannel reports whether s names a known sales channel.
func ValidChannel(s string) bool {
	switch s {
	case ChannelCounter, ChannelDineIn, ChannelTakeaway,
		ChannelDelivery, ChannelMarketplace:
		return true
	}
	return false
}

// ValidPaymentMethod reports whether s names a known payment method.
func ValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodDebit, PaymentMethodCredit,
		PaymentMethodQR, PaymentMethodTransfer, PaymentMethodVoucher:
		return true
	}
	return false
}

// DigitalMethod reports whether s is a non-cash electronic method.
// These count toward digital-reserve caps and the card-terminal check.
func DigitalMethod(s string) bool {
	switch s {
	case PaymentMethodDebit, PaymentMethodCredit, PaymentMethodQR:
		return true
	}
	return false
}

// ValidShift reports whether s names a known shift type.
func ValidShift(s string) bool {
	return s == ShiftMorning || s == ShiftEvening
}
