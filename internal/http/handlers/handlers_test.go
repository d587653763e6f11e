package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/http/middleware"
	"eventmitra/backend/internal/integrations/razorpay"
	"eventmitra/backend/internal/logging"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"

	"github.com/go-chi/chi/v5"
)

const testKeySecret = "rzp-secret"

// fakeStore keeps one order and its event in memory.
type fakeStore struct {
	event     models.Event
	order     models.OrderDetail
	ticket    models.Ticket
	confirmed int
	jobs      []models.NotificationJob
}

func (s *fakeStore) GetEvent(_ context.Context, id int64) (models.Event, error) {
	if id != s.event.ID {
		return models.Event{}, repository.ErrEventNotFound
	}
	return s.event, nil
}

func (s *fakeStore) LoadCheckout(_ context.Context, _, eventID int64, _ string) (repository.CheckoutState, error) {
	if eventID != s.event.ID {
		return repository.CheckoutState{}, repository.ErrEventNotFound
	}
	return repository.CheckoutState{Event: s.event, Purchased: map[int64]int{}}, nil
}

func (s *fakeStore) InsertPendingOrder(_ context.Context, in repository.PendingOrder) (models.OrderDetail, error) {
	return s.order, nil
}

func (s *fakeStore) GetOrderDetail(_ context.Context, orderID string) (models.OrderDetail, error) {
	if orderID != s.order.Order.ID {
		return models.OrderDetail{}, repository.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *fakeStore) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (models.OrderDetail, error) {
	if s.order.Payment == nil || s.order.Payment.GatewayOrderID != gatewayOrderID {
		return models.OrderDetail{}, repository.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *fakeStore) ConfirmPayment(_ context.Context, c repository.Confirmation) (models.OrderDetail, error) {
	s.confirmed++
	s.order.Order.Status = models.OrderStatusConfirmed
	s.order.Payment.Status = models.PaymentStatusCaptured
	s.order.Payment.GatewayPaymentID = c.GatewayPaymentID
	for _, draft := range c.Tickets {
		s.order.Tickets = append(s.order.Tickets, models.Ticket{ID: draft.ID, QRPayload: draft.QRPayload, Status: models.TicketStatusActive})
	}
	return s.order, nil
}

func (s *fakeStore) MarkOrderUnfulfilled(context.Context, repository.UnfulfilledOrder) error {
	return nil
}

func (s *fakeStore) CancelPendingOrder(_ context.Context, orderID, _ string) (models.OrderDetail, error) {
	if s.order.Order.Status != models.OrderStatusPending {
		return models.OrderDetail{}, repository.ErrOrderStateNotAllowed
	}
	s.order.Order.Status = models.OrderStatusCancelled
	return s.order, nil
}

func (s *fakeStore) ApplyRefund(context.Context, repository.RefundRecord) (models.OrderDetail, error) {
	return models.OrderDetail{}, errors.New("not used")
}

func (s *fakeStore) CreateNotificationJob(_ context.Context, job models.NotificationJob) (int64, error) {
	s.jobs = append(s.jobs, job)
	return int64(len(s.jobs)), nil
}

func (s *fakeStore) GetTicket(_ context.Context, ticketID string) (models.Ticket, error) {
	if ticketID != s.ticket.ID {
		return models.Ticket{}, repository.ErrTicketNotFound
	}
	return s.ticket, nil
}

func (s *fakeStore) CheckInTicket(context.Context, string, int64, string, time.Time) (repository.CheckInResult, error) {
	return repository.CheckInResult{}, ticketing.ErrTicketAlreadyCheckedIn
}

func (s *fakeStore) TransferTicket(context.Context, string, int64, string, time.Time) (models.Ticket, error) {
	return models.Ticket{}, ticketing.ErrTransferWindowClosed
}

func newFakeStore() *fakeStore {
	start := time.Now().UTC().Add(time.Hour)
	return &fakeStore{
		event: models.Event{
			ID:          7,
			OrganizerID: 9,
			Status:      models.EventStatusPublished,
			StartsAt:    start,
			EndsAt:      start.Add(3 * time.Hour),
			TicketTypes: []models.TicketType{{ID: 11, EventID: 7, Name: "General", Price: 500, Quantity: 2, MaxPerUser: 4, IsActive: true}},
		},
		order: models.OrderDetail{
			Order: models.Order{
				ID:      "0d7f6f0e-2f3c-4d39-9d0a-6d1f2b3c4d5e",
				UserID:  42,
				EventID: 7,
				Status:  models.OrderStatusPending,
				Pricing: models.Pricing{Subtotal: 1000, ProcessingFee: 20, Taxes: 180, Total: 1200},
			},
			Items: []models.OrderItem{{TicketTypeID: 11, TicketTypeName: "General", UnitPrice: 500, Quantity: 2}},
			Payment: &models.Payment{
				GatewayOrderID: "order_1",
				Amount:         1200,
				Status:         models.PaymentStatusCreated,
			},
		},
	}
}

func newTestHandler(t *testing.T, store *fakeStore) *Handler {
	t.Helper()
	logger := logging.Discard()
	gateway := razorpay.NewClient(razorpay.Config{KeyID: "rzp_test", KeySecret: testKeySecret}, nil, logger)
	svc := checkout.NewService(store, gateway, checkout.Config{QRSecret: "qr-secret", Currency: "INR"}, logger)
	admission := checkout.NewAdmission(store, nil, "qr-secret", logger)
	return New(nil, Services{Checkout: svc, Admission: admission}, &config.Config{JWTSecret: "jwt-secret"}, logger)
}

func asUser(req *http.Request, userID int64, role string) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), userID, role))
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleTicketingErrorStatuses(t *testing.T) {
	h := New(nil, Services{}, nil, logging.Discard())
	cases := []struct {
		err  error
		want int
	}{
		{repository.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", repository.ErrTicketNotFound), http.StatusNotFound},
		{checkout.ErrForbidden, http.StatusForbidden},
		{repository.ErrNotTicketHolder, http.StatusForbidden},
		{ticketing.ErrInsufficientInventory, http.StatusBadRequest},
		{ticketing.ErrRefundWindowClosed, http.StatusBadRequest},
		{checkout.ErrInvalidSignature, http.StatusBadRequest},
		{repository.ErrOrderStateNotAllowed, http.StatusBadRequest},
		{checkout.ErrSoldOutAfterPayment, http.StatusConflict},
		{checkout.ErrLimitAfterPayment, http.StatusConflict},
		{checkout.ErrPaidAfterCancel, http.StatusConflict},
		{fmt.Errorf("%w: refund: boom", checkout.ErrGateway), http.StatusBadGateway},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		h.handleTicketingError(logging.Discard(), resp, "test", tc.err)
		if resp.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, resp.Code)
		}
	}
}

func TestWrappedRuleErrorKeepsSentinelMessage(t *testing.T) {
	h := New(nil, Services{}, nil, logging.Discard())
	resp := httptest.NewRecorder()
	h.handleTicketingError(logging.Discard(), resp, "test", fmt.Errorf("line 2: %w", ticketing.ErrMaxPerUserExceeded))
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != ticketing.ErrMaxPerUserExceeded.Error() {
		t.Fatalf("unexpected message %q", body["error"])
	}
}

func TestRegisterValidationFields(t *testing.T) {
	h := New(nil, Services{}, nil, logging.Discard())
	resp := httptest.NewRecorder()
	h.Register(resp, jsonRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
		"name":     "Asha",
		"role":     "admin",
	}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "validation failed" {
		t.Fatalf("unexpected error %q", body.Error)
	}
	for field, tag := range map[string]string{"email": "email", "password": "min", "role": "oneof"} {
		if body.Fields[field] != tag {
			t.Fatalf("field %s: expected tag %q, got %q (all: %v)", field, tag, body.Fields[field], body.Fields)
		}
	}
}

func TestLoginThrottled(t *testing.T) {
	h := New(nil, Services{}, nil, logging.Discard())
	key := "asha@example.com|192.0.2.1"
	for i := 0; i < 5; i++ {
		h.loginLimiter.Hit(key)
	}
	req := jsonRequest(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "Asha@example.com", "password": "whatever"})
	req.RemoteAddr = "192.0.2.1:5555"
	resp := httptest.NewRecorder()
	h.Login(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestVerifyPaymentRejectsForgedSignature(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(t, store)
	req := asUser(jsonRequest(t, http.MethodPost, "/api/payments/verify", map[string]string{
		"gatewayOrderId":   "order_1",
		"gatewayPaymentId": "pay_1",
		"signature":        "deadbeef",
	}), 42, models.RoleAttendee)
	resp := httptest.NewRecorder()
	h.VerifyPayment(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.Code, resp.Body.String())
	}
	if store.confirmed != 0 || len(store.order.Tickets) != 0 {
		t.Fatalf("forged signature must not issue tickets")
	}
}

func TestVerifyPaymentIssuesTicketsOnce(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(t, store)
	body := map[string]string{
		"orderId":          store.order.Order.ID,
		"gatewayOrderId":   "order_1",
		"gatewayPaymentId": "pay_1",
		"signature":        razorpay.Sign(testKeySecret, "order_1", "pay_1"),
	}

	for attempt := 0; attempt < 2; attempt++ {
		resp := httptest.NewRecorder()
		h.VerifyPayment(resp, asUser(jsonRequest(t, http.MethodPost, "/api/payments/verify", body), 42, models.RoleAttendee))
		if resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d: %s", attempt, resp.Code, resp.Body.String())
		}
		var detail models.OrderDetail
		if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(detail.Tickets) != 2 {
			t.Fatalf("attempt %d: expected 2 tickets, got %d", attempt, len(detail.Tickets))
		}
	}
	if store.confirmed != 1 {
		t.Fatalf("expected one confirmation, got %d", store.confirmed)
	}
	if len(store.jobs) == 0 || store.jobs[0].Kind != models.NotificationKindBookingConfirmed {
		t.Fatalf("expected booking confirmation job, got %+v", store.jobs)
	}
}

func TestGetOrderForbiddenForOtherUser(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(t, store)
	r := chi.NewRouter()
	r.Get("/api/payments/orders/{orderId}", h.GetOrder)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, asUser(httptest.NewRequest(http.MethodGet, "/api/payments/orders/"+store.order.Order.ID, nil), 77, models.RoleAttendee))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, asUser(httptest.NewRequest(http.MethodGet, "/api/payments/orders/"+store.order.Order.ID, nil), 1, models.RoleAdmin))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.Code)
	}
}

func TestVerifyTicketEndpoint(t *testing.T) {
	store := newFakeStore()
	token, err := ticketing.SignQRPayload("qr-secret", ticketing.BuildPayload("tkt-1", 7, 42, time.Now()))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	store.ticket = models.Ticket{ID: "tkt-1", EventID: 7, UserID: 42, QRPayload: token, Status: models.TicketStatusActive}
	h := newTestHandler(t, store)

	resp := httptest.NewRecorder()
	h.VerifyTicket(resp, jsonRequest(t, http.MethodPost, "/api/tickets/verify", map[string]string{"qrPayload": token}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result ticketing.VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid ticket, got reason %q", result.Reason)
	}
}

func TestCheckInTwiceIsRejected(t *testing.T) {
	store := newFakeStore()
	store.ticket = models.Ticket{ID: "tkt-1", EventID: 7, UserID: 42, QRPayload: "x.y", Status: models.TicketStatusUsed}
	h := newTestHandler(t, store)
	r := chi.NewRouter()
	r.Post("/api/tickets/{ticketId}/check-in", h.CheckInTicket)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, asUser(jsonRequest(t, http.MethodPost, "/api/tickets/tkt-1/check-in", map[string]string{}), 9, models.RoleOrganizer))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), ticketing.ErrTicketAlreadyCheckedIn.Error()) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestClientLogsValidation(t *testing.T) {
	h := New(nil, Services{}, nil, logging.Discard())
	resp := httptest.NewRecorder()
	h.ClientLogs(resp, jsonRequest(t, http.MethodPost, "/api/logs/client", map[string]interface{}{
		"app":     "scanner",
		"entries": []map[string]string{{"level": "error", "message": "scan_failed"}, {"message": "camera_permission_denied"}},
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	h.ClientLogs(resp, jsonRequest(t, http.MethodPost, "/api/logs/client", map[string]interface{}{"app": "desktop"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCSVSafe(t *testing.T) {
	cases := map[string]string{
		"Asha":       "Asha",
		"=HYPERLINK": "'=HYPERLINK",
		"+91 98":     "'+91 98",
		"":           "",
	}
	for in, want := range cases {
		if got := csvSafe(in); got != want {
			t.Fatalf("csvSafe(%q) = %q, want %q", in, got, want)
		}
	}
}
