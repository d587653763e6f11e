package ticketing

import "errors"

// Rule violations. Callers wrap them with detail; match with errors.Is.
var (
	ErrEventNotPublished      = errors.New("event is not open for booking")
	ErrEventStarted           = errors.New("event has already started")
	ErrEmptyOrder             = errors.New("order has no ticket lines")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrTicketTypeNotFound     = errors.New("ticket type not found")
	ErrTicketTypeUnavailable  = errors.New("ticket type is not on sale")
	ErrInsufficientInventory  = errors.New("not enough tickets available")
	ErrMaxPerUserExceeded     = errors.New("quantity exceeds per-user limit")
	ErrTooManyAttendees       = errors.New("more attendees than tickets")
	ErrCouponInvalid          = errors.New("coupon is not applicable")
	ErrRefundWindowClosed     = errors.New("refunds close 48 hours before the event")
	ErrInvalidRefundAmount    = errors.New("invalid refund amount")
	ErrTransferWindowClosed   = errors.New("transfers close 24 hours before the event")
	ErrTicketNotActive        = errors.New("ticket is not active")
	ErrTicketAlreadyCheckedIn = errors.New("ticket already checked in")
)
