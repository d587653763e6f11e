package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"eventmitra/backend/internal/db"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/ticketing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const lifecycleQRSecret = "qr-secret"

type lifecycleFixture struct {
	repo      *Repository
	pool      *pgxpool.Pool
	organizer models.User
	event     models.Event
	now       time.Time
}

func newLifecycleFixture(t *testing.T, quantity int) *lifecycleFixture {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := db.Migrate(ctx, pool, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := New(pool)
	now := time.Now().UTC()
	organizer := insertLifecycleUser(t, repo, models.RoleOrganizer)
	event, err := repo.CreateEvent(ctx, organizer.ID, models.EventInput{
		Title:    "Lifecycle test event",
		Category: "music",
		StartsAt: now.Add(72 * time.Hour),
		EndsAt:   now.Add(75 * time.Hour),
		Venue:    models.Venue{Name: "Test Hall", City: "Pune", Capacity: 100},
	}, []models.TicketTypeInput{{Name: "General", Price: 500, Quantity: quantity, MaxPerUser: 4, IsActive: true}})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event, err = repo.PublishEvent(ctx, event.ID, now); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM orders WHERE event_id = $1`, event.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, event.ID)
	})
	return &lifecycleFixture{repo: repo, pool: pool, organizer: organizer, event: event, now: now}
}

func insertLifecycleUser(t *testing.T, repo *Repository, role string) models.User {
	t.Helper()
	ctx := context.Background()
	user, err := repo.CreateUser(ctx, models.User{
		Email:        fmt.Sprintf("lifecycle-%s@test.eventmitra.in", uuid.NewString()[:8]),
		PasswordHash: "x",
		Name:         "Lifecycle " + role,
		Role:         role,
	})
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(ctx, `DELETE FROM orders WHERE user_id = $1`, user.ID)
		_, _ = repo.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	})
	return user
}

func (f *lifecycleFixture) pendingOrder(t *testing.T, buyer models.User, quantity int) models.OrderDetail {
	t.Helper()
	return f.pendingOrderWithCoupon(t, buyer, quantity, "")
}

func (f *lifecycleFixture) pendingOrderWithCoupon(t *testing.T, buyer models.User, quantity int, couponCode string) models.OrderDetail {
	t.Helper()
	ctx := context.Background()
	state, err := f.repo.LoadCheckout(ctx, buyer.ID, f.event.ID, couponCode)
	if err != nil {
		t.Fatalf("load checkout: %v", err)
	}
	quote, err := ticketing.ValidateOrder(ticketing.OrderValidationInput{
		Now:        f.now,
		Event:      state.Event,
		Lines:      []models.OrderLine{{TicketTypeID: f.event.TicketTypes[0].ID, Quantity: quantity}},
		Purchased:  state.Purchased,
		CouponCode: couponCode,
		Coupon:     state.Coupon,
	})
	if err != nil {
		t.Fatalf("validate order: %v", err)
	}
	number, err := ticketing.NewOrderNumber(f.now)
	if err != nil {
		t.Fatalf("order number: %v", err)
	}
	detail, err := f.repo.InsertPendingOrder(ctx, PendingOrder{
		OrderNumber:    number,
		UserID:         buyer.ID,
		EventID:        f.event.ID,
		Contact:        models.Contact{Name: buyer.Name, Email: buyer.Email},
		Quote:          quote,
		Currency:       "INR",
		Gateway:        GatewayRazorpay,
		GatewayOrderID: "order_test_" + number,
	})
	if err != nil {
		t.Fatalf("insert pending order: %v", err)
	}
	return detail
}

func confirmation(t *testing.T, detail models.OrderDetail, paymentID string) Confirmation {
	t.Helper()
	now := time.Now().UTC()
	drafts := make([]TicketDraft, 0)
	for _, item := range detail.Items {
		for seat := 0; seat < item.Quantity; seat++ {
			id := uuid.NewString()
			token, err := ticketing.SignQRPayload(lifecycleQRSecret, ticketing.BuildPayload(id, detail.Order.EventID, detail.Order.UserID, now))
			if err != nil {
				t.Fatalf("sign qr: %v", err)
			}
			drafts = append(drafts, TicketDraft{
				ID:             id,
				TicketTypeID:   item.TicketTypeID,
				TicketTypeName: item.TicketTypeName,
				Price:          item.UnitPrice,
				Attendee:       models.Attendee{Name: detail.Order.Contact.Name, Email: detail.Order.Contact.Email},
				QRPayload:      token,
				QRPayloadHash:  ticketing.HashPayloadToken(token),
				IssuedAt:       now,
			})
		}
	}
	return Confirmation{OrderID: detail.Order.ID, GatewayPaymentID: paymentID, Signature: "sig", Tickets: drafts}
}

func TestConfirmPaymentIssuesTicketsOnce(t *testing.T) {
	f := newLifecycleFixture(t, 5)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)

	pending := f.pendingOrder(t, buyer, 2)
	if pending.Order.Status != models.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", pending.Order.Status)
	}

	confirmed, err := f.repo.ConfirmPayment(ctx, confirmation(t, pending, "pay_once"))
	if err != nil {
		t.Fatalf("ConfirmPayment(): %v", err)
	}
	if confirmed.Order.Status != models.OrderStatusConfirmed || len(confirmed.Tickets) != 2 {
		t.Fatalf("expected confirmed order with 2 tickets, got %s with %d", confirmed.Order.Status, len(confirmed.Tickets))
	}

	_, err = f.repo.ConfirmPayment(ctx, confirmation(t, pending, "pay_once"))
	if !errors.Is(err, ErrOrderStateNotAllowed) {
		t.Fatalf("expected ErrOrderStateNotAllowed on second confirmation, got %v", err)
	}

	var sold, ticketCount int
	if err := f.pool.QueryRow(ctx, `SELECT sold FROM ticket_types WHERE id = $1`, f.event.TicketTypes[0].ID).Scan(&sold); err != nil {
		t.Fatalf("sold: %v", err)
	}
	if err := f.pool.QueryRow(ctx, `SELECT count(*) FROM tickets WHERE order_id = $1::uuid`, pending.Order.ID).Scan(&ticketCount); err != nil {
		t.Fatalf("ticket count: %v", err)
	}
	if sold != 2 || ticketCount != 2 {
		t.Fatalf("expected sold=2 tickets=2, got sold=%d tickets=%d", sold, ticketCount)
	}
}

func TestConfirmPaymentRespectsInventory(t *testing.T) {
	f := newLifecycleFixture(t, 1)
	ctx := context.Background()
	first := f.pendingOrder(t, insertLifecycleUser(t, f.repo, models.RoleAttendee), 1)
	second := f.pendingOrder(t, insertLifecycleUser(t, f.repo, models.RoleAttendee), 1)

	if _, err := f.repo.ConfirmPayment(ctx, confirmation(t, first, "pay_first")); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	_, err := f.repo.ConfirmPayment(ctx, confirmation(t, second, "pay_second"))
	if !errors.Is(err, ErrInventoryLimitReached) {
		t.Fatalf("expected ErrInventoryLimitReached, got %v", err)
	}

	detail, err := f.repo.GetOrderDetail(ctx, second.Order.ID)
	if err != nil {
		t.Fatalf("GetOrderDetail(): %v", err)
	}
	if detail.Order.Status != models.OrderStatusPending || len(detail.Tickets) != 0 {
		t.Fatalf("failed confirmation must leave the order untouched, got %s with %d tickets", detail.Order.Status, len(detail.Tickets))
	}
}

func TestCheckInTicketOnlyOnce(t *testing.T) {
	f := newLifecycleFixture(t, 3)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)
	confirmed, err := f.repo.ConfirmPayment(ctx, confirmation(t, f.pendingOrder(t, buyer, 1), "pay_checkin"))
	if err != nil {
		t.Fatalf("ConfirmPayment(): %v", err)
	}
	ticketID := confirmed.Tickets[0].ID

	result, err := f.repo.CheckInTicket(ctx, ticketID, f.organizer.ID, "Gate 2", time.Now().UTC())
	if err != nil {
		t.Fatalf("CheckInTicket(): %v", err)
	}
	if result.Ticket.Status != models.TicketStatusUsed || !result.Ticket.CheckIn.IsCheckedIn {
		t.Fatalf("expected used ticket, got %+v", result.Ticket)
	}
	if result.CheckedInCount != 1 {
		t.Fatalf("expected checked in count 1, got %d", result.CheckedInCount)
	}
	firstAt := result.Ticket.CheckIn.CheckedInAt

	_, err = f.repo.CheckInTicket(ctx, ticketID, f.organizer.ID, "Gate 3", time.Now().UTC().Add(time.Minute))
	if !errors.Is(err, ticketing.ErrTicketAlreadyCheckedIn) {
		t.Fatalf("expected ErrTicketAlreadyCheckedIn, got %v", err)
	}
	stored, err := f.repo.GetTicket(ctx, ticketID)
	if err != nil {
		t.Fatalf("GetTicket(): %v", err)
	}
	if stored.CheckIn.Location != "Gate 2" {
		t.Fatalf("second check-in changed the location to %q", stored.CheckIn.Location)
	}
	if firstAt == nil || stored.CheckIn.CheckedInAt == nil || !stored.CheckIn.CheckedInAt.Equal(*firstAt) {
		t.Fatalf("second check-in changed the time: first %v, stored %v", firstAt, stored.CheckIn.CheckedInAt)
	}

	if _, err := f.repo.CheckInTicket(ctx, uuid.NewString(), f.organizer.ID, "", time.Now().UTC()); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestConfirmPaymentEnforcesPerUserLimit(t *testing.T) {
	f := newLifecycleFixture(t, 10)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)

	// Both carts pass checkout because neither is confirmed yet.
	first := f.pendingOrder(t, buyer, 3)
	second := f.pendingOrder(t, buyer, 3)

	if _, err := f.repo.ConfirmPayment(ctx, confirmation(t, first, "pay_limit_1")); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	_, err := f.repo.ConfirmPayment(ctx, confirmation(t, second, "pay_limit_2"))
	if !errors.Is(err, ErrPurchaseLimitReached) {
		t.Fatalf("expected ErrPurchaseLimitReached, got %v", err)
	}

	detail, err := f.repo.GetOrderDetail(ctx, second.Order.ID)
	if err != nil {
		t.Fatalf("GetOrderDetail(): %v", err)
	}
	if detail.Order.Status != models.OrderStatusPending || len(detail.Tickets) != 0 {
		t.Fatalf("rejected confirmation must leave the order untouched, got %s with %d tickets", detail.Order.Status, len(detail.Tickets))
	}
	var sold int
	if err := f.pool.QueryRow(ctx, `SELECT sold FROM ticket_types WHERE id = $1`, f.event.TicketTypes[0].ID).Scan(&sold); err != nil {
		t.Fatalf("sold: %v", err)
	}
	if sold != 3 {
		t.Fatalf("expected sold=3, got %d", sold)
	}
}

func TestConfirmPaymentConsumesCouponOncePerUser(t *testing.T) {
	f := newLifecycleFixture(t, 10)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)

	code := "LIFE" + strings.ToUpper(uuid.NewString()[:6])
	coupon, err := f.repo.CreateCoupon(ctx, f.organizer.ID, models.CouponInput{
		Code:             code,
		DiscountType:     models.DiscountTypeFixed,
		DiscountValue:    100,
		UserLimit:        1,
		ApplicableEvents: []int64{f.event.ID},
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	t.Cleanup(func() {
		_, _ = f.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, coupon.ID)
	})

	first := f.pendingOrderWithCoupon(t, buyer, 1, code)
	second := f.pendingOrderWithCoupon(t, buyer, 1, code)
	if first.Order.Pricing.Discount != 100 {
		t.Fatalf("expected discount 100, got %d", first.Order.Pricing.Discount)
	}

	if _, err := f.repo.ConfirmPayment(ctx, confirmation(t, first, "pay_coupon_1")); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	_, err = f.repo.ConfirmPayment(ctx, confirmation(t, second, "pay_coupon_2"))
	if !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got %v", err)
	}

	var usedCount, usages int
	if err := f.pool.QueryRow(ctx, `SELECT used_count FROM coupons WHERE id = $1`, coupon.ID).Scan(&usedCount); err != nil {
		t.Fatalf("used_count: %v", err)
	}
	if err := f.pool.QueryRow(ctx, `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2::uuid`, coupon.ID, first.Order.ID).Scan(&usages); err != nil {
		t.Fatalf("usages: %v", err)
	}
	if usedCount != 1 || usages != 1 {
		t.Fatalf("expected used_count=1 and one usage row, got used_count=%d usages=%d", usedCount, usages)
	}
}

func TestApplyRefundReleasesInventory(t *testing.T) {
	f := newLifecycleFixture(t, 5)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)

	confirmed, err := f.repo.ConfirmPayment(ctx, confirmation(t, f.pendingOrder(t, buyer, 2), "pay_refund"))
	if err != nil {
		t.Fatalf("ConfirmPayment(): %v", err)
	}
	pricing := confirmed.Order.Pricing
	amount := pricing.Total - pricing.ProcessingFee

	refunded, err := f.repo.ApplyRefund(ctx, RefundRecord{
		ID:              uuid.NewString(),
		OrderID:         confirmed.Order.ID,
		GatewayRefundID: "rfnd_lifecycle",
		Amount:          amount,
		Reason:          "plans changed",
		RequestedBy:     buyer.ID,
		OrderStatus:     ticketing.RefundedOrderStatus(amount, pricing),
	})
	if err != nil {
		t.Fatalf("ApplyRefund(): %v", err)
	}
	if refunded.Order.Status != models.OrderStatusPartiallyRefunded {
		t.Fatalf("expected partially_refunded order, got %s", refunded.Order.Status)
	}
	if refunded.Payment == nil || refunded.Payment.Status != models.PaymentStatusPartiallyRefunded {
		t.Fatalf("expected partially_refunded payment, got %+v", refunded.Payment)
	}
	if len(refunded.Refunds) != 1 || refunded.Refunds[0].Amount != amount {
		t.Fatalf("expected one refund of %d, got %+v", amount, refunded.Refunds)
	}
	for _, ticket := range refunded.Tickets {
		if ticket.Status != models.TicketStatusRefunded {
			t.Fatalf("ticket %s: expected refunded, got %s", ticket.ID, ticket.Status)
		}
	}

	var sold int
	var ticketsSold, revenue int64
	if err := f.pool.QueryRow(ctx, `SELECT sold FROM ticket_types WHERE id = $1`, f.event.TicketTypes[0].ID).Scan(&sold); err != nil {
		t.Fatalf("sold: %v", err)
	}
	if err := f.pool.QueryRow(ctx, `SELECT total_tickets_sold, total_revenue FROM events WHERE id = $1`, f.event.ID).Scan(&ticketsSold, &revenue); err != nil {
		t.Fatalf("event counters: %v", err)
	}
	if sold != 0 || ticketsSold != 0 || revenue != pricing.Total-amount {
		t.Fatalf("expected sold=0 tickets=0 revenue=%d, got sold=%d tickets=%d revenue=%d", pricing.Total-amount, sold, ticketsSold, revenue)
	}

	if _, err := f.repo.CheckInTicket(ctx, refunded.Tickets[0].ID, f.organizer.ID, "", time.Now().UTC()); err == nil {
		t.Fatalf("expected check-in of a refunded ticket to fail")
	}
	_, err = f.repo.ApplyRefund(ctx, RefundRecord{ID: uuid.NewString(), OrderID: confirmed.Order.ID, Amount: 1, OrderStatus: models.OrderStatusRefunded})
	if !errors.Is(err, ErrOrderStateNotAllowed) {
		t.Fatalf("expected ErrOrderStateNotAllowed on second refund, got %v", err)
	}
}

func TestMarkOrderUnfulfilledAfterCancel(t *testing.T) {
	f := newLifecycleFixture(t, 5)
	ctx := context.Background()
	buyer := insertLifecycleUser(t, f.repo, models.RoleAttendee)
	pending := f.pendingOrder(t, buyer, 1)

	if _, err := f.repo.CancelPendingOrder(ctx, pending.Order.ID, "cancelled by customer"); err != nil {
		t.Fatalf("CancelPendingOrder(): %v", err)
	}
	err := f.repo.MarkOrderUnfulfilled(ctx, UnfulfilledOrder{
		OrderID:          pending.Order.ID,
		GatewayPaymentID: "pay_after_cancel",
		Reason:           "paid after cancel",
		Refunded:         true,
		GatewayRefundID:  "rfnd_after_cancel",
		RefundID:         uuid.NewString(),
		Amount:           pending.Order.Pricing.Total,
	})
	if err != nil {
		t.Fatalf("MarkOrderUnfulfilled(): %v", err)
	}

	detail, err := f.repo.GetOrderDetail(ctx, pending.Order.ID)
	if err != nil {
		t.Fatalf("GetOrderDetail(): %v", err)
	}
	if detail.Order.Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", detail.Order.Status)
	}
	if detail.Payment == nil || detail.Payment.Status != models.PaymentStatusRefunded || detail.Payment.GatewayPaymentID != "pay_after_cancel" {
		t.Fatalf("expected refunded payment for pay_after_cancel, got %+v", detail.Payment)
	}
	if len(detail.Refunds) != 1 || detail.Refunds[0].Amount != pending.Order.Pricing.Total {
		t.Fatalf("expected one full refund, got %+v", detail.Refunds)
	}
}

func TestGetOrderDetailRejectsCorruptAttendees(t *testing.T) {
	f := newLifecycleFixture(t, 5)
	ctx := context.Background()
	pending := f.pendingOrder(t, insertLifecycleUser(t, f.repo, models.RoleAttendee), 1)

	if _, err := f.pool.Exec(ctx, `UPDATE order_items SET attendees = '{"name":"not a list"}'::jsonb WHERE order_id = $1::uuid`, pending.Order.ID); err != nil {
		t.Fatalf("corrupt attendees: %v", err)
	}
	if _, err := f.repo.GetOrderDetail(ctx, pending.Order.ID); err == nil {
		t.Fatalf("expected an error for attendees that are not a list")
	}
}
