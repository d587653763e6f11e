package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventmitra/backend/internal/integrations/razorpay"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Event), args.Error(1)
}

func (m *mockStore) LoadCheckout(ctx context.Context, userID, eventID int64, couponCode string) (repository.CheckoutState, error) {
	args := m.Called(ctx, userID, eventID, couponCode)
	return args.Get(0).(repository.CheckoutState), args.Error(1)
}

func (m *mockStore) InsertPendingOrder(ctx context.Context, in repository.PendingOrder) (models.OrderDetail, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) GetOrderDetail(ctx context.Context, orderID string) (models.OrderDetail, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.OrderDetail, error) {
	args := m.Called(ctx, gatewayOrderID)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) ConfirmPayment(ctx context.Context, c repository.Confirmation) (models.OrderDetail, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) MarkOrderUnfulfilled(ctx context.Context, in repository.UnfulfilledOrder) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *mockStore) CancelPendingOrder(ctx context.Context, orderID, reason string) (models.OrderDetail, error) {
	args := m.Called(ctx, orderID, reason)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) ApplyRefund(ctx context.Context, in repository.RefundRecord) (models.OrderDetail, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.OrderDetail), args.Error(1)
}

func (m *mockStore) CreateNotificationJob(ctx context.Context, job models.NotificationJob) (int64, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(int64), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) KeyID() string {
	return m.Called().String(0)
}

func (m *mockGateway) CreateOrder(ctx context.Context, in razorpay.CreateOrderRequest) (razorpay.Order, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(razorpay.Order), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, paymentID string, in razorpay.RefundRequest) (razorpay.Refund, error) {
	args := m.Called(ctx, paymentID, in)
	return args.Get(0).(razorpay.Refund), args.Error(1)
}

func (m *mockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return m.Called(orderID, paymentID, signature).Bool(0)
}

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestService(store *mockStore, gateway *mockGateway) *Service {
	svc := NewService(store, gateway, Config{QRSecret: "qr-secret", Currency: "inr"}, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func testEvent(startsIn time.Duration) models.Event {
	return models.Event{
		ID:       7,
		Title:    "Indie Night",
		Status:   models.EventStatusPublished,
		StartsAt: testNow.Add(startsIn),
		EndsAt:   testNow.Add(startsIn + 4*time.Hour),
		TicketTypes: []models.TicketType{
			{ID: 11, EventID: 7, Name: "General", Price: 500, Quantity: 2, IsActive: true},
		},
	}
}

func pendingDetail() models.OrderDetail {
	return models.OrderDetail{
		Order: models.Order{
			ID:          "0d7f6f0e-2f3c-4d39-9d0a-6d1f2b3c4d5e",
			OrderNumber: "EM-20261019-ABCDEF",
			UserID:      42,
			EventID:     7,
			Status:      models.OrderStatusPending,
			Contact:     models.Contact{Name: "Asha", Email: "asha@example.com"},
			Pricing:     models.Pricing{Subtotal: 1000, ProcessingFee: 20, Taxes: 180, Total: 1200},
			Currency:    "INR",
		},
		Items: []models.OrderItem{
			{TicketTypeID: 11, TicketTypeName: "General", UnitPrice: 500, Quantity: 2, LineTotal: 1000,
				Attendees: []models.Attendee{{Name: "Ravi", Email: "ravi@example.com"}}},
		},
		Payment: &models.Payment{
			ID:             "p-1",
			Gateway:        repository.GatewayRazorpay,
			GatewayOrderID: "order_1",
			Amount:         1200,
			Status:         models.PaymentStatusCreated,
		},
	}
}

func confirmedDetail() models.OrderDetail {
	detail := pendingDetail()
	detail.Order.Status = models.OrderStatusConfirmed
	detail.Payment.Status = models.PaymentStatusCaptured
	detail.Payment.GatewayPaymentID = "pay_1"
	detail.Tickets = []models.Ticket{{ID: "t-1"}, {ID: "t-2"}}
	return detail
}

func TestCreateOrderOpensGatewayOrderForTotal(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("LoadCheckout", ctx, int64(42), int64(7), "").
		Return(repository.CheckoutState{Event: testEvent(10 * 24 * time.Hour), Purchased: map[int64]int{}}, nil)
	gateway.On("CreateOrder", ctx, mock.MatchedBy(func(in razorpay.CreateOrderRequest) bool {
		return in.Amount == 120000 && in.Currency == "INR"
	})).Return(razorpay.Order{ID: "order_1", Amount: 120000, Currency: "INR"}, nil)
	store.On("InsertPendingOrder", ctx, mock.MatchedBy(func(in repository.PendingOrder) bool {
		return in.GatewayOrderID == "order_1" && in.Quote.Pricing.Total == 1200 && in.Gateway == repository.GatewayRazorpay
	})).Return(pendingDetail(), nil)
	gateway.On("KeyID").Return("rzp_test")

	out, err := svc.CreateOrder(ctx, models.CreateOrderParams{
		UserID:  42,
		EventID: 7,
		Lines:   []models.OrderLine{{TicketTypeID: 11, Quantity: 2}},
		Contact: models.Contact{Name: "Asha", Email: "asha@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", out.Checkout.GatewayOrderID)
	assert.Equal(t, int64(120000), out.Checkout.Amount)
	assert.Equal(t, "rzp_test", out.Checkout.KeyID)
	assert.Equal(t, models.OrderStatusPending, out.Order.Status)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestCreateOrderRejectsInvalidCartBeforeGateway(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("LoadCheckout", ctx, int64(42), int64(7), "").
		Return(repository.CheckoutState{Event: testEvent(10 * 24 * time.Hour), Purchased: map[int64]int{}}, nil)

	_, err := svc.CreateOrder(ctx, models.CreateOrderParams{
		UserID:  42,
		EventID: 7,
		Lines:   []models.OrderLine{{TicketTypeID: 11, Quantity: 3}},
	})
	require.ErrorIs(t, err, ticketing.ErrInsufficientInventory)
	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "InsertPendingOrder", mock.Anything, mock.Anything)
}

func TestCreateOrderGatewayFailureStoresNothing(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("LoadCheckout", ctx, int64(42), int64(7), "").
		Return(repository.CheckoutState{Event: testEvent(10 * 24 * time.Hour), Purchased: map[int64]int{}}, nil)
	gateway.On("CreateOrder", ctx, mock.Anything).
		Return(razorpay.Order{}, &razorpay.APIError{StatusCode: 500, Body: "boom"})

	_, err := svc.CreateOrder(ctx, models.CreateOrderParams{
		UserID:  42,
		EventID: 7,
		Lines:   []models.OrderLine{{TicketTypeID: 11, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrGateway)
	store.AssertNotCalled(t, "InsertPendingOrder", mock.Anything, mock.Anything)
}

func TestVerifyPaymentRejectsForgedSignature(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)

	gateway.On("VerifySignature", "order_1", "pay_1", "forged").Return(false)

	_, err := svc.VerifyPayment(context.Background(), Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "forged",
	})
	require.ErrorIs(t, err, ErrInvalidSignature)
	store.AssertNotCalled(t, "GetOrderByGatewayOrderID", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestVerifyPaymentIssuesOneTicketPerSeat(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(pendingDetail(), nil)

	var captured repository.Confirmation
	store.On("ConfirmPayment", ctx, mock.MatchedBy(func(c repository.Confirmation) bool {
		captured = c
		return true
	})).Return(confirmedDetail(), nil)
	store.On("CreateNotificationJob", ctx, mock.MatchedBy(func(job models.NotificationJob) bool {
		return job.Kind == models.NotificationKindBookingConfirmed && job.RunAt.Equal(testNow)
	})).Return(int64(1), nil).Once()
	store.On("GetEvent", ctx, int64(7)).Return(testEvent(10*24*time.Hour), nil)
	store.On("CreateNotificationJob", ctx, mock.MatchedBy(func(job models.NotificationJob) bool {
		return job.Kind == models.NotificationKindEventReminder && job.RunAt.Equal(testNow.Add(9*24*time.Hour))
	})).Return(int64(2), nil).Once()

	detail, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, detail.Order.Status)

	require.Len(t, captured.Tickets, 2)
	assert.Equal(t, "pay_1", captured.GatewayPaymentID)
	assert.Equal(t, int64(12), captured.LoyaltyPoints)
	assert.Equal(t, "Ravi", captured.Tickets[0].Attendee.Name)
	assert.Equal(t, "Asha", captured.Tickets[1].Attendee.Name)
	assert.NotEqual(t, captured.Tickets[0].ID, captured.Tickets[1].ID)
	for _, draft := range captured.Tickets {
		payload, err := ticketing.VerifyQRPayload("qr-secret", draft.QRPayload)
		require.NoError(t, err)
		assert.Equal(t, draft.ID, payload.TicketID)
		assert.Equal(t, int64(7), payload.EventID)
		assert.Equal(t, int64(42), payload.UserID)
		assert.Equal(t, ticketing.HashPayloadToken(draft.QRPayload), draft.QRPayloadHash)
	}
	store.AssertExpectations(t)
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(confirmedDetail(), nil)

	detail, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.NoError(t, err)
	assert.Len(t, detail.Tickets, 2)
	store.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestVerifyPaymentOtherUsersOrder(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(pendingDetail(), nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 99, Role: models.RoleAttendee}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyPaymentSoldOutRefundsAndCancels(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(pendingDetail(), nil)
	store.On("ConfirmPayment", ctx, mock.Anything).Return(models.OrderDetail{}, repository.ErrInventoryLimitReached)
	gateway.On("Refund", ctx, "pay_1", mock.MatchedBy(func(in razorpay.RefundRequest) bool {
		return in.Amount == 120000
	})).Return(razorpay.Refund{ID: "rfnd_1", Amount: 120000, PaymentID: "pay_1"}, nil)
	store.On("MarkOrderUnfulfilled", ctx, mock.MatchedBy(func(in repository.UnfulfilledOrder) bool {
		return in.Refunded && in.GatewayRefundID == "rfnd_1" && in.Amount == 1200 && in.RefundID != ""
	})).Return(nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrSoldOutAfterPayment)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
	store.AssertNotCalled(t, "CreateNotificationJob", mock.Anything, mock.Anything)
}

func TestVerifyPaymentSoldOutRefundFailureMarksPaymentFailed(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(pendingDetail(), nil)
	store.On("ConfirmPayment", ctx, mock.Anything).Return(models.OrderDetail{}, repository.ErrCouponExhausted)
	gateway.On("Refund", ctx, "pay_1", mock.Anything).Return(razorpay.Refund{}, errors.New("timeout"))
	store.On("MarkOrderUnfulfilled", ctx, mock.MatchedBy(func(in repository.UnfulfilledOrder) bool {
		return !in.Refunded && in.GatewayPaymentID == "pay_1"
	})).Return(nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrSoldOutAfterPayment)
	store.AssertExpectations(t)
}

func cancelledDetail(paymentStatus string) models.OrderDetail {
	detail := pendingDetail()
	detail.Order.Status = models.OrderStatusCancelled
	detail.Payment.Status = paymentStatus
	return detail
}

func TestVerifyPaymentAfterCancelRefundsCapture(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_late", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(cancelledDetail(models.PaymentStatusFailed), nil)
	gateway.On("Refund", ctx, "pay_late", mock.MatchedBy(func(in razorpay.RefundRequest) bool {
		return in.Amount == 120000 && in.Notes["reason"] == "order_cancelled"
	})).Return(razorpay.Refund{ID: "rfnd_late", Amount: 120000, PaymentID: "pay_late"}, nil)
	store.On("MarkOrderUnfulfilled", ctx, mock.MatchedBy(func(in repository.UnfulfilledOrder) bool {
		return in.Refunded && in.GatewayPaymentID == "pay_late" && in.GatewayRefundID == "rfnd_late" && in.Amount == 1200
	})).Return(nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_late",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrPaidAfterCancel)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
	store.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestVerifyPaymentAfterCancelDoesNotRefundTwice(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_late", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(cancelledDetail(models.PaymentStatusRefunded), nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_late",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrPaidAfterCancel)
	gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "MarkOrderUnfulfilled", mock.Anything, mock.Anything)
}

func TestVerifyPaymentOverPerUserLimitRefunds(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	gateway.On("VerifySignature", "order_1", "pay_1", "sig").Return(true)
	store.On("GetOrderByGatewayOrderID", ctx, "order_1").Return(pendingDetail(), nil)
	store.On("ConfirmPayment", ctx, mock.Anything).Return(models.OrderDetail{}, repository.ErrPurchaseLimitReached)
	gateway.On("Refund", ctx, "pay_1", mock.MatchedBy(func(in razorpay.RefundRequest) bool {
		return in.Amount == 120000 && in.Notes["reason"] == "per_user_limit"
	})).Return(razorpay.Refund{ID: "rfnd_2", Amount: 120000, PaymentID: "pay_1"}, nil)
	store.On("MarkOrderUnfulfilled", ctx, mock.MatchedBy(func(in repository.UnfulfilledOrder) bool {
		return in.Refunded && in.GatewayRefundID == "rfnd_2"
	})).Return(nil)

	_, err := svc.VerifyPayment(ctx, Actor{UserID: 42}, VerifyInput{
		GatewayOrderID:   "order_1",
		GatewayPaymentID: "pay_1",
		Signature:        "sig",
	})
	require.ErrorIs(t, err, ErrLimitAfterPayment)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestRefundRejectedInsideCutoff(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("GetOrderDetail", ctx, "o-1").Return(confirmedDetail(), nil)
	store.On("GetEvent", ctx, int64(7)).Return(testEvent(47*time.Hour), nil)

	_, err := svc.Refund(ctx, Actor{UserID: 42}, RefundInput{OrderID: "o-1"})
	require.ErrorIs(t, err, ticketing.ErrRefundWindowClosed)
	gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ApplyRefund", mock.Anything, mock.Anything)
}

func TestRefundDefaultsToTotalMinusFee(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	refunded := confirmedDetail()
	refunded.Order.Status = models.OrderStatusPartiallyRefunded

	store.On("GetOrderDetail", ctx, "o-1").Return(confirmedDetail(), nil)
	store.On("GetEvent", ctx, int64(7)).Return(testEvent(48*time.Hour+time.Second), nil)
	gateway.On("Refund", ctx, "pay_1", mock.MatchedBy(func(in razorpay.RefundRequest) bool {
		return in.Amount == 118000
	})).Return(razorpay.Refund{ID: "rfnd_2", Amount: 118000}, nil)
	store.On("ApplyRefund", ctx, mock.MatchedBy(func(in repository.RefundRecord) bool {
		return in.Amount == 1180 && in.GatewayRefundID == "rfnd_2" &&
			in.OrderStatus == models.OrderStatusPartiallyRefunded && in.RequestedBy == 42
	})).Return(refunded, nil)
	store.On("CreateNotificationJob", ctx, mock.MatchedBy(func(job models.NotificationJob) bool {
		return job.Kind == models.NotificationKindOrderRefunded
	})).Return(int64(3), nil)

	detail, err := svc.Refund(ctx, Actor{UserID: 42}, RefundInput{OrderID: "o-1", Reason: "cannot attend"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartiallyRefunded, detail.Order.Status)
	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestRefundGatewayFailureLeavesOrderUntouched(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("GetOrderDetail", ctx, "o-1").Return(confirmedDetail(), nil)
	store.On("GetEvent", ctx, int64(7)).Return(testEvent(5*24*time.Hour), nil)
	gateway.On("Refund", ctx, "pay_1", mock.Anything).Return(razorpay.Refund{}, &razorpay.APIError{StatusCode: 502})

	_, err := svc.Refund(ctx, Actor{UserID: 42}, RefundInput{OrderID: "o-1"})
	require.ErrorIs(t, err, ErrGateway)
	store.AssertNotCalled(t, "ApplyRefund", mock.Anything, mock.Anything)
}

func TestRefundOtherUsersOrderForbidden(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("GetOrderDetail", ctx, "o-1").Return(confirmedDetail(), nil)

	_, err := svc.Refund(ctx, Actor{UserID: 5, Role: models.RoleOrganizer}, RefundInput{OrderID: "o-1"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPreviewCouponReportsReason(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	minimum := ticketing.CouponRule{
		ID:            3,
		Code:          "BIG",
		DiscountType:  models.DiscountTypeFixed,
		Value:         100,
		MinimumAmount: 5000,
		UserLimit:     1,
		IsActive:      true,
	}
	store.On("LoadCheckout", ctx, int64(42), int64(7), "big").
		Return(repository.CheckoutState{Event: testEvent(10 * 24 * time.Hour), Purchased: map[int64]int{}, Coupon: &minimum}, nil)

	preview, err := svc.PreviewCoupon(ctx, PreviewInput{
		UserID:     42,
		EventID:    7,
		Lines:      []models.OrderLine{{TicketTypeID: 11, Quantity: 2}},
		CouponCode: "big",
	})
	require.NoError(t, err)
	assert.False(t, preview.Valid)
	assert.Equal(t, ticketing.CouponReasonMinimum, preview.Reason)
	assert.Equal(t, "BIG", preview.Code)
	assert.Equal(t, int64(1200), preview.Pricing.Total)
}

func TestPreviewCouponAppliesDiscount(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	rule := ticketing.CouponRule{
		ID:           4,
		Code:         "TENOFF",
		DiscountType: models.DiscountTypePercentage,
		Value:        10,
		UserLimit:    1,
		IsActive:     true,
	}
	store.On("LoadCheckout", ctx, int64(42), int64(7), "TENOFF").
		Return(repository.CheckoutState{Event: testEvent(10 * 24 * time.Hour), Purchased: map[int64]int{}, Coupon: &rule}, nil)

	preview, err := svc.PreviewCoupon(ctx, PreviewInput{
		UserID:     42,
		EventID:    7,
		Lines:      []models.OrderLine{{TicketTypeID: 11, Quantity: 2}},
		CouponCode: "TENOFF",
	})
	require.NoError(t, err)
	assert.True(t, preview.Valid)
	assert.Equal(t, int64(100), preview.Discount)
	// 1000 - 100 + 20 + 162
	assert.Equal(t, int64(1082), preview.Pricing.Total)
}

func TestCancelOrderRequiresOwner(t *testing.T) {
	store := &mockStore{}
	gateway := &mockGateway{}
	svc := newTestService(store, gateway)
	ctx := context.Background()

	store.On("GetOrderDetail", ctx, "o-1").Return(pendingDetail(), nil)
	_, err := svc.CancelOrder(ctx, Actor{UserID: 1}, "o-1")
	require.ErrorIs(t, err, ErrForbidden)

	cancelled := pendingDetail()
	cancelled.Order.Status = models.OrderStatusCancelled
	store.On("CancelPendingOrder", ctx, pendingDetail().Order.ID, "cancelled by customer").Return(cancelled, nil)
	detail, err := svc.CancelOrder(ctx, Actor{UserID: 42}, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, detail.Order.Status)
}
