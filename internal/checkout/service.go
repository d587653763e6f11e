package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"eventmitra/backend/internal/integrations/razorpay"
	"eventmitra/backend/internal/metrics"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"

	"github.com/google/uuid"
)

var (
	ErrInvalidSignature    = errors.New("payment signature mismatch")
	ErrPaymentMismatch     = errors.New("payment does not belong to this order")
	ErrSoldOutAfterPayment = errors.New("tickets sold out before the payment was confirmed; the payment has been refunded")
	ErrLimitAfterPayment   = errors.New("per-user ticket limit reached before the payment was confirmed; the payment has been refunded")
	ErrPaidAfterCancel     = errors.New("order was cancelled before the payment arrived; the payment has been refunded")
	ErrGateway             = errors.New("payment gateway error")
	ErrForbidden           = errors.New("forbidden")
)

// ReminderLead is how long before the event start the reminder goes out.
const ReminderLead = 24 * time.Hour

// Store is the persistence the pipeline needs.
type Store interface {
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	LoadCheckout(ctx context.Context, userID, eventID int64, couponCode string) (repository.CheckoutState, error)
	InsertPendingOrder(ctx context.Context, in repository.PendingOrder) (models.OrderDetail, error)
	GetOrderDetail(ctx context.Context, orderID string) (models.OrderDetail, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.OrderDetail, error)
	ConfirmPayment(ctx context.Context, c repository.Confirmation) (models.OrderDetail, error)
	MarkOrderUnfulfilled(ctx context.Context, in repository.UnfulfilledOrder) error
	CancelPendingOrder(ctx context.Context, orderID, reason string) (models.OrderDetail, error)
	ApplyRefund(ctx context.Context, in repository.RefundRecord) (models.OrderDetail, error)
	CreateNotificationJob(ctx context.Context, job models.NotificationJob) (int64, error)
}

// Gateway is the hosted payment processor.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, in razorpay.CreateOrderRequest) (razorpay.Order, error)
	Refund(ctx context.Context, paymentID string, in razorpay.RefundRequest) (razorpay.Refund, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type Config struct {
	QRSecret string
	Currency string
}

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Handle is what the client needs to open the gateway checkout.
type Handle struct {
	KeyID          string `json:"keyId,omitempty"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

type CreatedOrder struct {
	models.OrderDetail
	Checkout Handle `json:"checkout"`
}

type VerifyInput struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

type RefundInput struct {
	OrderID string
	Amount  int64
	Reason  string
}

type PreviewInput struct {
	UserID     int64
	EventID    int64
	Lines      []models.OrderLine
	CouponCode string
}

type Service struct {
	store    Store
	gateway  Gateway
	logger   *slog.Logger
	qrSecret string
	currency string
	now      func() time.Time
}

func NewService(store Store, gateway Gateway, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		store:    store,
		gateway:  gateway,
		logger:   logger,
		qrSecret: cfg.QRSecret,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates and prices the cart, opens a gateway order for the
// total and stores the pending order. Inventory and coupon usage are not
// touched until the payment is verified.
func (s *Service) CreateOrder(ctx context.Context, params models.CreateOrderParams) (CreatedOrder, error) {
	now := s.now()
	state, err := s.store.LoadCheckout(ctx, params.UserID, params.EventID, params.CouponCode)
	if err != nil {
		metrics.OrderCreated(metrics.OutcomeRejected)
		return CreatedOrder{}, err
	}
	quote, err := ticketing.ValidateOrder(ticketing.OrderValidationInput{
		Now:        now,
		Event:      state.Event,
		Lines:      params.Lines,
		Purchased:  state.Purchased,
		CouponCode: params.CouponCode,
		Coupon:     state.Coupon,
	})
	if err != nil {
		metrics.OrderCreated(metrics.OutcomeRejected)
		return CreatedOrder{}, err
	}
	orderNumber, err := ticketing.NewOrderNumber(now)
	if err != nil {
		return CreatedOrder{}, err
	}

	pending := repository.PendingOrder{
		OrderNumber: orderNumber,
		UserID:      params.UserID,
		EventID:     params.EventID,
		Contact:     params.Contact,
		Quote:       quote,
		Currency:    s.currency,
	}
	free := quote.Pricing.Total == 0
	if free {
		pending.Gateway = repository.GatewayNone
		pending.GatewayOrderID = "free_" + orderNumber
	} else {
		gwOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
			Amount:   ticketing.MinorUnits(quote.Pricing.Total),
			Currency: s.currency,
			Receipt:  orderNumber,
			Notes: map[string]string{
				"eventId": strconv.FormatInt(params.EventID, 10),
				"userId":  strconv.FormatInt(params.UserID, 10),
			},
		})
		if err != nil {
			metrics.OrderCreated(metrics.OutcomeFailed)
			return CreatedOrder{}, fmt.Errorf("%w: create order: %v", ErrGateway, err)
		}
		pending.Gateway = repository.GatewayRazorpay
		pending.GatewayOrderID = gwOrder.ID
	}

	detail, err := s.store.InsertPendingOrder(ctx, pending)
	if err != nil {
		metrics.OrderCreated(metrics.OutcomeFailed)
		return CreatedOrder{}, err
	}
	metrics.OrderCreated(metrics.OutcomeOK)
	s.logger.Info("order_created", "order_id", detail.Order.ID, "order_number", orderNumber,
		"seats", quote.Quantity(), "total", quote.Pricing.Total, "gateway", pending.Gateway)

	out := CreatedOrder{
		OrderDetail: detail,
		Checkout: Handle{
			GatewayOrderID: pending.GatewayOrderID,
			Amount:         ticketing.MinorUnits(quote.Pricing.Total),
			Currency:       s.currency,
		},
	}
	if free {
		confirmed, err := s.confirm(ctx, detail, pending.GatewayOrderID, "")
		if err != nil {
			return CreatedOrder{}, err
		}
		out.OrderDetail = confirmed
		return out, nil
	}
	out.Checkout.KeyID = s.gateway.KeyID()
	return out, nil
}

// VerifyPayment checks the gateway signature and confirms the order.
// Verifying an already confirmed order with the same payment id returns it
// unchanged.
func (s *Service) VerifyPayment(ctx context.Context, actor Actor, in VerifyInput) (models.OrderDetail, error) {
	if !s.gateway.VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		metrics.PaymentVerified(metrics.OutcomeRejected)
		return models.OrderDetail{}, ErrInvalidSignature
	}
	detail, err := s.store.GetOrderByGatewayOrderID(ctx, in.GatewayOrderID)
	if err != nil {
		return models.OrderDetail{}, err
	}
	if in.OrderID != "" && in.OrderID != detail.Order.ID && in.OrderID != detail.Order.OrderNumber {
		metrics.PaymentVerified(metrics.OutcomeRejected)
		return models.OrderDetail{}, ErrPaymentMismatch
	}
	if detail.Order.UserID != actor.UserID && !actor.IsAdmin() {
		return models.OrderDetail{}, ErrForbidden
	}
	if detail.Payment == nil {
		return models.OrderDetail{}, repository.ErrPaymentNotFound
	}
	if detail.Order.Status == models.OrderStatusCancelled {
		// The gateway order stays payable after a cancel.
		metrics.PaymentVerified(metrics.OutcomeRejected)
		if detail.Payment.Status != models.PaymentStatusRefunded {
			s.compensate(ctx, detail, in.GatewayPaymentID, "order_cancelled", ErrPaidAfterCancel)
		}
		return models.OrderDetail{}, ErrPaidAfterCancel
	}
	if done, ok := alreadyConfirmed(detail, in.GatewayPaymentID); ok {
		return done, nil
	}
	if detail.Order.Status != models.OrderStatusPending {
		return models.OrderDetail{}, repository.ErrOrderStateNotAllowed
	}
	return s.confirm(ctx, detail, in.GatewayPaymentID, in.Signature)
}

func alreadyConfirmed(detail models.OrderDetail, paymentID string) (models.OrderDetail, bool) {
	if detail.Order.Status != models.OrderStatusConfirmed || detail.Payment == nil {
		return models.OrderDetail{}, false
	}
	return detail, detail.Payment.GatewayPaymentID == paymentID
}

func (s *Service) confirm(ctx context.Context, detail models.OrderDetail, paymentID, signature string) (models.OrderDetail, error) {
	now := s.now()
	drafts, err := s.ticketDrafts(detail, now)
	if err != nil {
		return models.OrderDetail{}, err
	}
	confirmed, err := s.store.ConfirmPayment(ctx, repository.Confirmation{
		OrderID:          detail.Order.ID,
		GatewayPaymentID: paymentID,
		Signature:        signature,
		Tickets:          drafts,
		LoyaltyPoints:    ticketing.PurchasePoints(detail.Order.Pricing.Total),
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrInventoryLimitReached), errors.Is(err, repository.ErrCouponExhausted):
		metrics.PaymentVerified(metrics.OutcomeFailed)
		s.compensate(ctx, detail, paymentID, "sold_out", err)
		return models.OrderDetail{}, ErrSoldOutAfterPayment
	case errors.Is(err, repository.ErrPurchaseLimitReached):
		metrics.PaymentVerified(metrics.OutcomeFailed)
		s.compensate(ctx, detail, paymentID, "per_user_limit", err)
		return models.OrderDetail{}, ErrLimitAfterPayment
	case errors.Is(err, repository.ErrOrderStateNotAllowed):
		// A concurrent verification may have won the row lock.
		current, getErr := s.store.GetOrderDetail(ctx, detail.Order.ID)
		if getErr == nil {
			if done, ok := alreadyConfirmed(current, paymentID); ok {
				return done, nil
			}
		}
		return models.OrderDetail{}, err
	default:
		metrics.PaymentVerified(metrics.OutcomeFailed)
		return models.OrderDetail{}, err
	}

	metrics.PaymentVerified(metrics.OutcomeOK)
	metrics.TicketsIssued(len(confirmed.Tickets))
	s.logger.Info("order_confirmed", "order_id", confirmed.Order.ID, "order_number", confirmed.Order.OrderNumber, "tickets", len(confirmed.Tickets))
	s.enqueueConfirmation(ctx, confirmed, now)
	return confirmed, nil
}

// ticketDrafts expands every order line into one signed ticket per seat.
func (s *Service) ticketDrafts(detail models.OrderDetail, now time.Time) ([]repository.TicketDraft, error) {
	out := make([]repository.TicketDraft, 0)
	for _, item := range detail.Items {
		line := ticketing.QuotedLine{Quantity: item.Quantity, Attendees: item.Attendees}
		for seat := 0; seat < item.Quantity; seat++ {
			id := uuid.NewString()
			token, err := ticketing.SignQRPayload(s.qrSecret, ticketing.BuildPayload(id, detail.Order.EventID, detail.Order.UserID, now))
			if err != nil {
				return nil, err
			}
			out = append(out, repository.TicketDraft{
				ID:             id,
				TicketTypeID:   item.TicketTypeID,
				TicketTypeName: item.TicketTypeName,
				Price:          item.UnitPrice,
				Attendee:       ticketing.AttendeeFor(line, seat, detail.Order.Contact),
				QRPayload:      token,
				QRPayloadHash:  ticketing.HashPayloadToken(token),
				IssuedAt:       now,
			})
		}
	}
	return out, nil
}

// compensate returns a captured payment that could not be turned into
// tickets and cancels the order.
func (s *Service) compensate(ctx context.Context, detail models.OrderDetail, paymentID, note string, cause error) {
	logger := s.logger.With("order_id", detail.Order.ID, "order_number", detail.Order.OrderNumber)
	record := repository.UnfulfilledOrder{
		OrderID:          detail.Order.ID,
		GatewayPaymentID: paymentID,
		Reason:           cause.Error(),
	}
	if paymentID != "" && detail.Order.Pricing.Total > 0 {
		refund, err := s.gateway.Refund(ctx, paymentID, razorpay.RefundRequest{
			Amount: ticketing.MinorUnits(detail.Order.Pricing.Total),
			Notes:  map[string]string{"orderNumber": detail.Order.OrderNumber, "reason": note},
		})
		if err != nil {
			metrics.Refund("compensation", metrics.OutcomeFailed, 0)
			logger.Error("compensation_refund", "status", "failed", "payment_id", paymentID, "error", err)
		} else {
			metrics.Refund("compensation", metrics.OutcomeOK, detail.Order.Pricing.Total)
			record.Refunded = true
			record.GatewayRefundID = refund.ID
			record.RefundID = uuid.NewString()
			record.Amount = detail.Order.Pricing.Total
		}
	}
	if err := s.store.MarkOrderUnfulfilled(ctx, record); err != nil {
		logger.Error("mark_order_unfulfilled", "status", "failed", "refunded", record.Refunded, "error", err)
		return
	}
	logger.Warn("order_unfulfilled", "status", "cancelled", "refunded", record.Refunded, "cause", cause)
}

func (s *Service) enqueueConfirmation(ctx context.Context, detail models.OrderDetail, now time.Time) {
	eventID := detail.Order.EventID
	payload := map[string]interface{}{
		"orderId":     detail.Order.ID,
		"orderNumber": detail.Order.OrderNumber,
	}
	if _, err := s.store.CreateNotificationJob(ctx, models.NotificationJob{
		UserID:  detail.Order.UserID,
		EventID: &eventID,
		Kind:    models.NotificationKindBookingConfirmed,
		RunAt:   now,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("enqueue_notification", "status", "failed", "kind", models.NotificationKindBookingConfirmed, "order_id", detail.Order.ID, "error", err)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		s.logger.Warn("enqueue_notification", "status", "event_lookup_failed", "kind", models.NotificationKindEventReminder, "error", err)
		return
	}
	runAt := event.StartsAt.Add(-ReminderLead)
	if !runAt.After(now) {
		return
	}
	if _, err := s.store.CreateNotificationJob(ctx, models.NotificationJob{
		UserID:  detail.Order.UserID,
		EventID: &eventID,
		Kind:    models.NotificationKindEventReminder,
		RunAt:   runAt,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("enqueue_notification", "status", "failed", "kind", models.NotificationKindEventReminder, "order_id", detail.Order.ID, "error", err)
	}
}

// Refund refunds a confirmed order through the gateway and then records it.
// A gateway failure leaves local state untouched.
func (s *Service) Refund(ctx context.Context, actor Actor, in RefundInput) (models.OrderDetail, error) {
	detail, err := s.store.GetOrderDetail(ctx, in.OrderID)
	if err != nil {
		return models.OrderDetail{}, err
	}
	if detail.Order.UserID != actor.UserID && !actor.IsAdmin() {
		return models.OrderDetail{}, ErrForbidden
	}
	if detail.Order.Status != models.OrderStatusConfirmed {
		return models.OrderDetail{}, repository.ErrOrderStateNotAllowed
	}
	event, err := s.store.GetEvent(ctx, detail.Order.EventID)
	if err != nil {
		return models.OrderDetail{}, err
	}
	now := s.now()
	if err := ticketing.CheckRefundWindow(event.StartsAt, now); err != nil {
		metrics.Refund("customer", metrics.OutcomeRejected, 0)
		return models.OrderDetail{}, err
	}
	amount, err := ticketing.RefundAmount(detail.Order.Pricing, in.Amount)
	if err != nil {
		metrics.Refund("customer", metrics.OutcomeRejected, 0)
		return models.OrderDetail{}, err
	}
	payment := detail.Payment
	if payment == nil || payment.Status != models.PaymentStatusCaptured || payment.GatewayPaymentID == "" {
		return models.OrderDetail{}, repository.ErrPaymentNotFound
	}

	reason := strings.TrimSpace(in.Reason)
	gatewayRefund, err := s.gateway.Refund(ctx, payment.GatewayPaymentID, razorpay.RefundRequest{
		Amount: ticketing.MinorUnits(amount),
		Notes:  map[string]string{"orderNumber": detail.Order.OrderNumber, "reason": reason},
	})
	if err != nil {
		metrics.Refund("customer", metrics.OutcomeFailed, 0)
		return models.OrderDetail{}, fmt.Errorf("%w: refund: %v", ErrGateway, err)
	}

	refunded, err := s.store.ApplyRefund(ctx, repository.RefundRecord{
		ID:              uuid.NewString(),
		OrderID:         detail.Order.ID,
		GatewayRefundID: gatewayRefund.ID,
		Amount:          amount,
		Reason:          reason,
		RequestedBy:     actor.UserID,
		OrderStatus:     ticketing.RefundedOrderStatus(amount, detail.Order.Pricing),
	})
	if err != nil {
		s.logger.Error("apply_refund", "status", "gateway_refunded_not_recorded", "order_id", detail.Order.ID, "gateway_refund_id", gatewayRefund.ID, "error", err)
		return models.OrderDetail{}, err
	}
	metrics.Refund("customer", metrics.OutcomeOK, amount)

	eventID := detail.Order.EventID
	if _, err := s.store.CreateNotificationJob(ctx, models.NotificationJob{
		UserID:  detail.Order.UserID,
		EventID: &eventID,
		Kind:    models.NotificationKindOrderRefunded,
		RunAt:   now,
		Payload: map[string]interface{}{
			"orderId":     detail.Order.ID,
			"orderNumber": detail.Order.OrderNumber,
			"amount":      amount,
		},
	}); err != nil {
		s.logger.Warn("enqueue_notification", "status", "failed", "kind", models.NotificationKindOrderRefunded, "order_id", detail.Order.ID, "error", err)
	}
	return refunded, nil
}

// CancelOrder abandons the caller's unpaid order.
func (s *Service) CancelOrder(ctx context.Context, actor Actor, orderID string) (models.OrderDetail, error) {
	detail, err := s.store.GetOrderDetail(ctx, orderID)
	if err != nil {
		return models.OrderDetail{}, err
	}
	if detail.Order.UserID != actor.UserID && !actor.IsAdmin() {
		return models.OrderDetail{}, ErrForbidden
	}
	return s.store.CancelPendingOrder(ctx, detail.Order.ID, "cancelled by customer")
}

// GetOrder returns an order to its owner or an admin.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (models.OrderDetail, error) {
	detail, err := s.store.GetOrderDetail(ctx, orderID)
	if err != nil {
		return models.OrderDetail{}, err
	}
	if detail.Order.UserID != actor.UserID && !actor.IsAdmin() {
		return models.OrderDetail{}, ErrForbidden
	}
	return detail, nil
}

// PreviewCoupon prices the cart with and without the coupon. Cart errors
// are returned; coupon problems come back as an invalid preview.
func (s *Service) PreviewCoupon(ctx context.Context, in PreviewInput) (models.CouponPreview, error) {
	state, err := s.store.LoadCheckout(ctx, in.UserID, in.EventID, in.CouponCode)
	if err != nil {
		return models.CouponPreview{}, err
	}
	base, err := ticketing.ValidateOrder(ticketing.OrderValidationInput{
		Now:       s.now(),
		Event:     state.Event,
		Lines:     in.Lines,
		Purchased: state.Purchased,
	})
	if err != nil {
		return models.CouponPreview{}, err
	}
	preview := models.CouponPreview{
		Code:    ticketing.NormalizeCouponCode(in.CouponCode),
		Pricing: base.Pricing,
	}
	if state.Coupon == nil {
		preview.Reason = ticketing.CouponReasonNotFound
		return preview, nil
	}
	result := ticketing.ValidateCoupon(*state.Coupon, ticketing.CouponValidationInput{
		Now:      s.now(),
		EventID:  in.EventID,
		Subtotal: base.Pricing.Subtotal,
	})
	if !result.Valid {
		preview.Reason = result.Reason
		return preview, nil
	}
	preview.Valid = true
	preview.Discount = result.Discount
	preview.Pricing = ticketing.ComputePricing(base.Pricing.Subtotal, result.Discount)
	return preview, nil
}
