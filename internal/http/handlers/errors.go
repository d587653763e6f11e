package handlers

import (
	"errors"
	"net/http"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"

	"github.com/jackc/pgx/v5"
)

var notFoundErrors = []error{
	repository.ErrNotFound,
	repository.ErrEventNotFound,
	repository.ErrCouponNotFound,
	repository.ErrOrderNotFound,
	repository.ErrPaymentNotFound,
	repository.ErrTicketNotFound,
	repository.ErrRecipientNotFound,
	pgx.ErrNoRows,
}

var forbiddenErrors = []error{
	checkout.ErrForbidden,
	repository.ErrNotTicketHolder,
}

var badRequestErrors = []error{
	ticketing.ErrEventNotPublished,
	ticketing.ErrEventStarted,
	ticketing.ErrEmptyOrder,
	ticketing.ErrInvalidQuantity,
	ticketing.ErrTicketTypeNotFound,
	ticketing.ErrTicketTypeUnavailable,
	ticketing.ErrInsufficientInventory,
	ticketing.ErrMaxPerUserExceeded,
	ticketing.ErrTooManyAttendees,
	ticketing.ErrCouponInvalid,
	ticketing.ErrRefundWindowClosed,
	ticketing.ErrInvalidRefundAmount,
	ticketing.ErrTransferWindowClosed,
	ticketing.ErrTicketNotActive,
	ticketing.ErrTicketAlreadyCheckedIn,
	ticketing.ErrInvalidQRPayload,
	ticketing.ErrInvalidQRSign,
	repository.ErrEventHasOrders,
	repository.ErrEventStateNotAllowed,
	repository.ErrNoActiveTicketTypes,
	repository.ErrQuantityBelowSold,
	repository.ErrTicketTypeNameTaken,
	repository.ErrCouponCodeTaken,
	repository.ErrCouponExhausted,
	repository.ErrOrderStateNotAllowed,
	repository.ErrInventoryLimitReached,
	repository.ErrSelfTransfer,
	checkout.ErrInvalidSignature,
	checkout.ErrPaymentMismatch,
	checkout.ErrQRMismatch,
}

// conflictErrors are paid orders that could not be honoured and were
// refunded.
var conflictErrors = []error{
	checkout.ErrSoldOutAfterPayment,
	checkout.ErrLimitAfterPayment,
	checkout.ErrPaidAfterCancel,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// handleTicketingError maps domain errors to HTTP statuses. Unknown errors
// are logged at Error and answered with a generic message.
func (h *Handler) handleTicketingError(logger interface {
	Error(string, ...any)
	Warn(string, ...any)
}, w http.ResponseWriter, action string, err error) {
	switch {
	case isAny(err, notFoundErrors):
		logger.Warn(action, "status", "not_found", "error", err)
		writeError(w, http.StatusNotFound, "not found")
	case isAny(err, forbiddenErrors):
		logger.Warn(action, "status", "forbidden", "error", err)
		writeError(w, http.StatusForbidden, "forbidden")
	case isAny(err, conflictErrors):
		logger.Warn(action, "status", "conflict", "error", err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrGateway):
		logger.Error(action, "status", "gateway_error", "error", err)
		writeError(w, http.StatusBadGateway, "payment gateway error")
	case isAny(err, badRequestErrors):
		logger.Warn(action, "status", "invalid_request", "error", err)
		writeError(w, http.StatusBadRequest, ruleMessage(err))
	default:
		logger.Error(action, "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ruleMessage returns the message of the sentinel that err wraps so that
// wrapped context never leaks to clients.
func ruleMessage(err error) string {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
