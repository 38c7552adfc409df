package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fogon-pos/api/internal/cart"
	"github.com/fogon-pos/api/internal/catalog"
	"github.com/fogon-pos/api/internal/closure"
	"github.com/fogon-pos/api/internal/ledger"
	"github.com/fogon-pos/api/internal/order"
	"github.com/fogon-pos/api/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// writeDomainError maps known domain errors to HTTP status codes.
// Unknown errors are logged and answered with 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch status, ok := domainStatus(err); {
	case ok:
		writeJSON(w, status, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func domainStatus(err error) (int, bool) {
	var missingFields *order.MissingFieldsError
	var missingRequired *cart.MissingRequiredError
	var limit *cart.SelectionLimitError
	switch {
	case errors.As(err, &missingFields),
		errors.As(err, &missingRequired),
		errors.As(err, &limit):
		return http.StatusUnprocessableEntity, true

	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, ledger.ErrPaymentNotFound),
		errors.Is(err, cart.ErrItemNotInCart):
		return http.StatusNotFound, true

	case errors.Is(err, order.ErrCartLocked),
		errors.Is(err, order.ErrNotSettled),
		errors.Is(err, order.ErrAlreadyDispatched),
		errors.Is(err, order.ErrNotDispatched),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrRefundAckRequired):
		return http.StatusConflict, true

	case errors.Is(err, order.ErrInvalidChannel),
		errors.Is(err, order.ErrNotConfigured),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrUnknownGroup),
		errors.Is(err, cart.ErrUnknownOption),
		errors.Is(err, cart.ErrNotOptionGroup),
		errors.Is(err, ledger.ErrInvalidMethod),
		errors.Is(err, ledger.ErrNonPositiveAmount),
		errors.Is(err, ledger.ErrOverpayment),
		errors.Is(err, ledger.ErrExceedsMethodCap),
		errors.Is(err, ledger.ErrTenderedRequired),
		errors.Is(err, ledger.ErrTenderedTooSmall),
		errors.Is(err, ledger.ErrEmptyReason),
		errors.Is(err, ledger.ErrReplacementMismatch),
		errors.Is(err, closure.ErrInvalidShift),
		errors.Is(err, closure.ErrNegativeAmount):
		return http.StatusBadRequest, true
	}
	return 0, false
}
