package ticketing

import (
	"fmt"
	"time"

	"eventmitra/backend/internal/models"
)

const (
	RefundCutoff   = 48 * time.Hour
	TransferCutoff = 24 * time.Hour
)

// CheckRefundWindow rejects refunds when the event starts in under 48h.
func CheckRefundWindow(eventStart, now time.Time) error {
	if eventStart.Sub(now) < RefundCutoff {
		return ErrRefundWindowClosed
	}
	return nil
}

// CheckTransferWindow rejects transfers when the event starts in under 24h.
func CheckTransferWindow(eventStart, now time.Time) error {
	if eventStart.Sub(now) < TransferCutoff {
		return ErrTransferWindowClosed
	}
	return nil
}

// MaxRefund is the refundable part of an order: the processing fee is kept.
func MaxRefund(p models.Pricing) int64 {
	amount := p.Total - p.ProcessingFee
	if amount < 0 {
		return 0
	}
	return amount
}

// RefundAmount resolves the requested amount. Zero means the default maximum.
func RefundAmount(p models.Pricing, requested int64) (int64, error) {
	limit := MaxRefund(p)
	if limit <= 0 {
		return 0, fmt.Errorf("%w: nothing to refund", ErrInvalidRefundAmount)
	}
	if requested == 0 {
		return limit, nil
	}
	if requested < 0 || requested > limit {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidRefundAmount, limit)
	}
	return requested, nil
}

// RefundedOrderStatus is refunded only when the refund covers the full total.
func RefundedOrderStatus(refund int64, p models.Pricing) string {
	if refund >= p.Total {
		return models.OrderStatusRefunded
	}
	return models.OrderStatusPartiallyRefunded
}
