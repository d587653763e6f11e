package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/ticketing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `o.id::text, o.order_number, o.user_id, o.event_id, e.title, o.status,
	o.contact_name, o.contact_email, o.contact_phone,
	o.subtotal, o.discount, o.processing_fee, o.taxes, o.total, o.currency,
	o.coupon_id, o.coupon_code, o.coupon_discount_type, o.coupon_discount_value,
	o.cancel_reason, o.confirmed_at, o.cancelled_at, o.created_at, o.updated_at`

const paymentColumns = `id::text, order_id::text, gateway, gateway_order_id, gateway_payment_id, amount, currency, status, failure_reason, captured_at, created_at, updated_at`

// CheckoutState is what order validation reads from storage.
type CheckoutState struct {
	Event models.Event
	// Purchased sums the user's confirmed quantities per ticket type.
	Purchased map[int64]int
	// Coupon is nil when no coupon matches the requested code.
	Coupon *ticketing.CouponRule
}

const (
	GatewayRazorpay = "razorpay"
	// GatewayNone marks zero-total orders that never reach the gateway.
	GatewayNone = "none"
)

// PendingOrder is a validated checkout ready to be stored.
type PendingOrder struct {
	OrderNumber    string
	UserID         int64
	EventID        int64
	Contact        models.Contact
	Quote          ticketing.OrderQuote
	Currency       string
	Gateway        string
	GatewayOrderID string
}

// TicketDraft is one seat minted before the confirmation transaction.
type TicketDraft struct {
	ID             string
	TicketTypeID   int64
	TicketTypeName string
	Price          int64
	Attendee       models.Attendee
	QRPayload      string
	QRPayloadHash  string
	IssuedAt       time.Time
}

// Confirmation carries a verified capture and the tickets to issue for it.
type Confirmation struct {
	OrderID          string
	GatewayPaymentID string
	Signature        string
	Tickets          []TicketDraft
	LoyaltyPoints    int64
}

// UnfulfilledOrder records a paid order that could not be honoured.
type UnfulfilledOrder struct {
	OrderID          string
	GatewayPaymentID string
	Reason           string
	Refunded         bool
	GatewayRefundID  string
	RefundID         string
	Amount           int64
}

// RefundRecord is a processed gateway refund to apply locally.
type RefundRecord struct {
	ID              string
	OrderID         string
	GatewayRefundID string
	Amount          int64
	Reason          string
	RequestedBy     int64
	OrderStatus     string
}

// OrderFilter narrows admin order listings.
type OrderFilter struct {
	EventID int64
	Status  string
	Limit   int
	Offset  int
}

// LoadCheckout reads the event, the user's prior purchases and the coupon.
func (r *Repository) LoadCheckout(ctx context.Context, userID, eventID int64, couponCode string) (CheckoutState, error) {
	var state CheckoutState
	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return state, err
	}
	state.Event = event

	rows, err := r.pool.Query(ctx, `
SELECT oi.ticket_type_id, COALESCE(sum(oi.quantity), 0)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE o.user_id = $1
	AND o.event_id = $2
	AND o.status = 'confirmed'
GROUP BY oi.ticket_type_id;`, userID, eventID)
	if err != nil {
		return state, err
	}
	defer rows.Close()
	state.Purchased = map[int64]int{}
	for rows.Next() {
		var typeID int64
		var quantity int
		if err := rows.Scan(&typeID, &quantity); err != nil {
			return state, err
		}
		state.Purchased[typeID] = quantity
	}
	if err := rows.Err(); err != nil {
		return state, err
	}

	if ticketing.NormalizeCouponCode(couponCode) == "" {
		return state, nil
	}
	coupon, err := r.GetCouponByCode(ctx, couponCode)
	if errors.Is(err, ErrCouponNotFound) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	uses, err := r.CountCouponUsesByUser(ctx, coupon.ID, userID)
	if err != nil {
		return state, err
	}
	rule := ticketing.CouponRuleFromModel(coupon, uses)
	state.Coupon = &rule
	return state, nil
}

// InsertPendingOrder stores the order, its lines and the created payment.
// No inventory or coupon counter moves here.
func (r *Repository) InsertPendingOrder(ctx context.Context, in PendingOrder) (models.OrderDetail, error) {
	var detail models.OrderDetail
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		p := in.Quote.Pricing
		var couponID, couponValue interface{}
		var couponCode, couponType interface{}
		if c := in.Quote.Coupon; c != nil {
			couponID, couponCode, couponType, couponValue = c.ID, c.Code, c.DiscountType, c.DiscountValue
		}
		var orderID string
		if err := tx.QueryRow(ctx, `
INSERT INTO orders (
	order_number, user_id, event_id, status, contact_name, contact_email, contact_phone,
	subtotal, discount, processing_fee, taxes, total, currency,
	coupon_id, coupon_code, coupon_discount_type, coupon_discount_value
) VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING id::text;`,
			in.OrderNumber,
			in.UserID,
			in.EventID,
			strings.TrimSpace(in.Contact.Name),
			strings.ToLower(strings.TrimSpace(in.Contact.Email)),
			nullString(in.Contact.Phone),
			p.Subtotal,
			p.Discount,
			p.ProcessingFee,
			p.Taxes,
			p.Total,
			in.Currency,
			couponID,
			couponCode,
			couponType,
			couponValue,
		).Scan(&orderID); err != nil {
			return err
		}

		for _, line := range in.Quote.Lines {
			attendees := line.Attendees
			if attendees == nil {
				attendees = []models.Attendee{}
			}
			raw, err := json.Marshal(attendees)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, ticket_type_id, ticket_type_name, unit_price, quantity, line_total, attendees)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7);`,
				orderID, line.TicketType.ID, line.TicketType.Name, line.UnitPrice, line.Quantity, line.LineTotal, raw); err != nil {
				return err
			}
		}

		gateway := in.Gateway
		if gateway == "" {
			gateway = GatewayRazorpay
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO payments (order_id, gateway, gateway_order_id, amount, currency, status)
VALUES ($1::uuid, $2, $3, $4, $5, 'created');`, orderID, gateway, in.GatewayOrderID, p.Total, in.Currency); err != nil {
			return err
		}

		var err error
		detail, err = fetchOrderDetail(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return models.OrderDetail{}, err
	}
	return detail, nil
}

// ConfirmPayment captures the payment and issues tickets in one transaction.
// Sold counters and coupon usage move with conditional updates, so a sellout
// between checkout and payment surfaces as ErrInventoryLimitReached or
// ErrCouponExhausted and nothing is written.
func (r *Repository) ConfirmPayment(ctx context.Context, c Confirmation) (models.OrderDetail, error) {
	var detail models.OrderDetail
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status, orderNumber string
		var userID, eventID, total int64
		var couponID sql.NullInt64
		if err := tx.QueryRow(ctx, `
SELECT status, order_number, user_id, event_id, total, coupon_id
FROM orders
WHERE id = $1::uuid
FOR UPDATE;`, c.OrderID).Scan(&status, &orderNumber, &userID, &eventID, &total, &couponID); err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if status != models.OrderStatusPending {
			return ErrOrderStateNotAllowed
		}

		items, err := lockedOrderQuantities(ctx, tx, c.OrderID)
		if err != nil {
			return err
		}
		seats := 0
		for _, item := range items {
			seats += item.quantity
		}
		if seats != len(c.Tickets) {
			return fmt.Errorf("confirm order %s: %d tickets for %d seats", c.OrderID, len(c.Tickets), seats)
		}

		for _, item := range items {
			cmd, err := tx.Exec(ctx, `
UPDATE ticket_types
SET sold = sold + $2,
	updated_at = now()
WHERE id = $1
	AND sold + $2 <= quantity;`, item.ticketTypeID, item.quantity)
			if err != nil {
				return err
			}
			if cmd.RowsAffected() == 0 {
				return ErrInventoryLimitReached
			}
			// The sold update holds the ticket type row, so other confirmations
			// for this type have committed by the time this sum runs.
			var maxPerUser, held int
			if err := tx.QueryRow(ctx, `
SELECT tt.max_per_user, COALESCE((
	SELECT sum(oi.quantity)
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	WHERE o.user_id = $2
		AND o.status = 'confirmed'
		AND oi.ticket_type_id = tt.id
), 0)
FROM ticket_types tt
WHERE tt.id = $1;`, item.ticketTypeID, userID).Scan(&maxPerUser, &held); err != nil {
				return err
			}
			if held+item.quantity > maxPerUser {
				return ErrPurchaseLimitReached
			}
		}

		if couponID.Valid {
			if err := consumeCoupon(ctx, tx, couponID.Int64, userID, c.OrderID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
UPDATE events
SET total_tickets_sold = total_tickets_sold + $2,
	total_revenue = total_revenue + $3,
	updated_at = now()
WHERE id = $1;`, eventID, seats, total); err != nil {
			return err
		}

		cmd, err := tx.Exec(ctx, `
UPDATE payments
SET status = 'captured',
	gateway_payment_id = $2,
	gateway_signature = $3,
	captured_at = now(),
	updated_at = now()
WHERE order_id = $1::uuid
	AND status IN ('created', 'authorized');`, c.OrderID, c.GatewayPaymentID, c.Signature)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrPaymentNotFound
		}

		if _, err := tx.Exec(ctx, `
UPDATE orders
SET status = 'confirmed',
	confirmed_at = now(),
	updated_at = now()
WHERE id = $1::uuid;`, c.OrderID); err != nil {
			return err
		}

		orderUUID, err := uuid.Parse(c.OrderID)
		if err != nil {
			return ErrOrderNotFound
		}
		rows := make([][]interface{}, 0, len(c.Tickets))
		for _, t := range c.Tickets {
			ticketUUID, err := uuid.Parse(t.ID)
			if err != nil {
				return fmt.Errorf("ticket id %q: %w", t.ID, err)
			}
			rows = append(rows, []interface{}{
				ticketUUID, orderUUID, eventID, t.TicketTypeID, t.TicketTypeName, t.Price, userID,
				t.Attendee.Name, t.Attendee.Email, nullString(t.Attendee.Phone),
				t.QRPayload, t.QRPayloadHash, models.TicketStatusActive, t.IssuedAt,
			})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tickets"}, []string{
			"id", "order_id", "event_id", "ticket_type_id", "ticket_type_name", "ticket_price", "user_id",
			"attendee_name", "attendee_email", "attendee_phone",
			"qr_payload", "qr_payload_hash", "status", "issued_at",
		}, pgx.CopyFromRows(rows)); err != nil {
			return err
		}

		if err := addLoyaltyPoints(ctx, tx, userID, c.LoyaltyPoints, models.LoyaltyReasonPurchase, orderNumber); err != nil {
			return err
		}

		detail, err = fetchOrderDetail(ctx, tx, c.OrderID)
		return err
	})
	if err != nil {
		return models.OrderDetail{}, err
	}
	return detail, nil
}

func consumeCoupon(ctx context.Context, tx pgx.Tx, couponID, userID int64, orderID string) error {
	var userLimit int
	if err := tx.QueryRow(ctx, `SELECT user_limit FROM coupons WHERE id = $1 FOR UPDATE`, couponID).Scan(&userLimit); err != nil {
		return notFound(err, ErrCouponExhausted)
	}
	uses, err := countCouponUses(ctx, tx, couponID, userID)
	if err != nil {
		return err
	}
	if uses >= userLimit {
		return ErrCouponExhausted
	}
	cmd, err := tx.Exec(ctx, `
UPDATE coupons
SET used_count = used_count + 1,
	updated_at = now()
WHERE id = $1
	AND (usage_limit IS NULL OR used_count < usage_limit);`, couponID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCouponExhausted
	}
	_, err = tx.Exec(ctx, `
INSERT INTO coupon_usages (coupon_id, user_id, order_id)
VALUES ($1, $2, $3::uuid);`, couponID, userID, orderID)
	return err
}

type itemQuantity struct {
	ticketTypeID int64
	quantity     int
}

// lockedOrderQuantities returns per ticket type quantities sorted by id so
// concurrent confirmations lock ticket_types rows in the same order.
func lockedOrderQuantities(ctx context.Context, tx pgx.Tx, orderID string) ([]itemQuantity, error) {
	rows, err := tx.Query(ctx, `
SELECT ticket_type_id, sum(quantity)
FROM order_items
WHERE order_id = $1::uuid
GROUP BY ticket_type_id;`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]itemQuantity, 0)
	for rows.Next() {
		var item itemQuantity
		if err := rows.Scan(&item.ticketTypeID, &item.quantity); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ticketTypeID < out[j].ticketTypeID })
	return out, nil
}

// MarkOrderUnfulfilled cancels an order whose capture could not be honoured
// and records how the money went back. The order may already be cancelled
// when the payment arrived after the customer abandoned it.
func (r *Repository) MarkOrderUnfulfilled(ctx context.Context, in UnfulfilledOrder) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1::uuid FOR UPDATE`, in.OrderID).Scan(&status); err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if status != models.OrderStatusPending && status != models.OrderStatusCancelled {
			return ErrOrderStateNotAllowed
		}
		if _, err := tx.Exec(ctx, `
UPDATE orders
SET status = 'cancelled',
	cancel_reason = COALESCE(cancel_reason, $2),
	cancelled_at = COALESCE(cancelled_at, now()),
	updated_at = now()
WHERE id = $1::uuid;`, in.OrderID, nullString(in.Reason)); err != nil {
			return err
		}
		paymentStatus := models.PaymentStatusFailed
		if in.Refunded {
			paymentStatus = models.PaymentStatusRefunded
		}
		var paymentID string
		if err := tx.QueryRow(ctx, `
UPDATE payments
SET status = $2,
	gateway_payment_id = COALESCE($3, gateway_payment_id),
	failure_reason = $4,
	updated_at = now()
WHERE order_id = $1::uuid
RETURNING id::text;`, in.OrderID, paymentStatus, nullString(in.GatewayPaymentID), nullString(in.Reason)).Scan(&paymentID); err != nil {
			return notFound(err, ErrPaymentNotFound)
		}
		if !in.Refunded || in.Amount <= 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
INSERT INTO refunds (id, order_id, payment_id, gateway_refund_id, amount, reason)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6);`,
			in.RefundID, in.OrderID, paymentID, nullString(in.GatewayRefundID), in.Amount, in.Reason)
		return err
	})
}

// CancelPendingOrder abandons an unpaid order.
func (r *Repository) CancelPendingOrder(ctx context.Context, orderID, reason string) (models.OrderDetail, error) {
	var detail models.OrderDetail
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1::uuid FOR UPDATE`, orderID).Scan(&status); err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if status != models.OrderStatusPending {
			return ErrOrderStateNotAllowed
		}
		if _, err := tx.Exec(ctx, `
UPDATE orders
SET status = 'cancelled',
	cancel_reason = $2,
	cancelled_at = now(),
	updated_at = now()
WHERE id = $1::uuid;`, orderID, nullString(reason)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
UPDATE payments
SET status = 'failed',
	failure_reason = $2,
	updated_at = now()
WHERE order_id = $1::uuid
	AND status = 'created';`, orderID, nullString(reason)); err != nil {
			return err
		}
		var err error
		detail, err = fetchOrderDetail(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return models.OrderDetail{}, err
	}
	return detail, nil
}

// ApplyRefund records a processed gateway refund. Tickets move to refunded,
// inventory is released and the event counters are decremented.
func (r *Repository) ApplyRefund(ctx context.Context, in RefundRecord) (models.OrderDetail, error) {
	var detail models.OrderDetail
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		var eventID int64
		if err := tx.QueryRow(ctx, `SELECT status, event_id FROM orders WHERE id = $1::uuid FOR UPDATE`, in.OrderID).Scan(&status, &eventID); err != nil {
			return notFound(err, ErrOrderNotFound)
		}
		if status != models.OrderStatusConfirmed {
			return ErrOrderStateNotAllowed
		}

		paymentStatus := models.PaymentStatusRefunded
		if in.OrderStatus == models.OrderStatusPartiallyRefunded {
			paymentStatus = models.PaymentStatusPartiallyRefunded
		}
		var paymentID string
		if err := tx.QueryRow(ctx, `
UPDATE payments
SET status = $2,
	updated_at = now()
WHERE order_id = $1::uuid
	AND status = 'captured'
RETURNING id::text;`, in.OrderID, paymentStatus).Scan(&paymentID); err != nil {
			return notFound(err, ErrPaymentNotFound)
		}

		var requestedBy interface{}
		if in.RequestedBy > 0 {
			requestedBy = in.RequestedBy
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO refunds (id, order_id, payment_id, gateway_refund_id, amount, reason, requested_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6, $7);`,
			in.ID, in.OrderID, paymentID, nullString(in.GatewayRefundID), in.Amount, strings.TrimSpace(in.Reason), requestedBy); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1::uuid`, in.OrderID, in.OrderStatus); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
UPDATE tickets
SET status = 'refunded',
	updated_at = now()
WHERE order_id = $1::uuid
	AND status IN ('active', 'used');`, in.OrderID); err != nil {
			return err
		}

		items, err := lockedOrderQuantities(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		seats := 0
		for _, item := range items {
			seats += item.quantity
			if _, err := tx.Exec(ctx, `
UPDATE ticket_types
SET sold = GREATEST(0, sold - $2),
	updated_at = now()
WHERE id = $1;`, item.ticketTypeID, item.quantity); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
UPDATE events
SET total_tickets_sold = GREATEST(0, total_tickets_sold - $2),
	total_revenue = total_revenue - $3,
	updated_at = now()
WHERE id = $1;`, eventID, seats, in.Amount); err != nil {
			return err
		}

		detail, err = fetchOrderDetail(ctx, tx, in.OrderID)
		return err
	})
	if err != nil {
		return models.OrderDetail{}, err
	}
	return detail, nil
}

func (r *Repository) GetOrderDetail(ctx context.Context, orderID string) (models.OrderDetail, error) {
	return fetchOrderDetail(ctx, r.pool, orderID)
}

func (r *Repository) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (models.OrderDetail, error) {
	var orderID string
	if err := r.pool.QueryRow(ctx, `SELECT order_id::text FROM payments WHERE gateway_order_id = $1`, strings.TrimSpace(gatewayOrderID)).Scan(&orderID); err != nil {
		return models.OrderDetail{}, notFound(err, ErrOrderNotFound)
	}
	return fetchOrderDetail(ctx, r.pool, orderID)
}

func (r *Repository) ListMyOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, int, error) {
	return r.listOrders(ctx, `o.user_id = $1`, []interface{}{userID}, limit, offset)
}

func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error) {
	return r.listOrders(ctx, `($1::bigint = 0 OR o.event_id = $1) AND ($2 = '' OR o.status = $2)`,
		[]interface{}{filter.EventID, strings.TrimSpace(filter.Status)}, filter.Limit, filter.Offset)
}

func (r *Repository) listOrders(ctx context.Context, where string, args []interface{}, limit, offset int) ([]models.Order, int, error) {
	limit = clampLimit(limit, 50, 200)
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
SELECT %s
FROM orders o
JOIN events e ON e.id = o.event_id
WHERE %s
ORDER BY o.created_at DESC
LIMIT $%d OFFSET $%d;`, orderColumns, where, n+1, n+2), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, order)
	}
	return out, total, rows.Err()
}

func fetchOrderDetail(ctx context.Context, q queryRunner, orderID string) (models.OrderDetail, error) {
	var detail models.OrderDetail
	row := q.QueryRow(ctx, `
SELECT `+orderColumns+`
FROM orders o
JOIN events e ON e.id = o.event_id
WHERE o.id = $1::uuid;`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return detail, notFound(err, ErrOrderNotFound)
	}
	detail.Order = order

	itemRows, err := q.Query(ctx, `
SELECT id, order_id::text, ticket_type_id, ticket_type_name, unit_price, quantity, line_total, attendees
FROM order_items
WHERE order_id = $1::uuid
ORDER BY id ASC;`, orderID)
	if err != nil {
		return detail, err
	}
	detail.Items = make([]models.OrderItem, 0)
	for itemRows.Next() {
		var item models.OrderItem
		var raw []byte
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.TicketTypeID, &item.TicketTypeName, &item.UnitPrice, &item.Quantity, &item.LineTotal, &raw); err != nil {
			itemRows.Close()
			return detail, err
		}
		item.Attendees = []models.Attendee{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &item.Attendees); err != nil {
				itemRows.Close()
				return detail, fmt.Errorf("order item %d attendees: %w", item.ID, err)
			}
		}
		detail.Items = append(detail.Items, item)
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return detail, err
	}

	payment, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1::uuid`, orderID))
	switch {
	case err == nil:
		detail.Payment = &payment
	case !errors.Is(err, pgx.ErrNoRows):
		return detail, err
	}

	detail.Refunds, err = listRefunds(ctx, q, orderID)
	if err != nil {
		return detail, err
	}
	if detail.Payment != nil {
		detail.Payment.Refunds = detail.Refunds
	}

	detail.Tickets, err = listTickets(ctx, q, `t.order_id = $1::uuid`, orderID)
	if err != nil {
		return detail, err
	}
	return detail, nil
}

func listRefunds(ctx context.Context, q queryRunner, orderID string) ([]models.Refund, error) {
	rows, err := q.Query(ctx, `
SELECT id::text, order_id::text, payment_id::text, gateway_refund_id, amount, reason, status, requested_by, created_at
FROM refunds
WHERE order_id = $1::uuid
ORDER BY created_at ASC;`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Refund, 0)
	for rows.Next() {
		var item models.Refund
		var gatewayRefundID sql.NullString
		var requestedBy sql.NullInt64
		if err := rows.Scan(&item.ID, &item.OrderID, &item.PaymentID, &gatewayRefundID, &item.Amount, &item.Reason, &item.Status, &requestedBy, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.GatewayRefundID = nullStringValue(gatewayRefundID)
		item.RequestedBy = nullInt64ToPtr(requestedBy)
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var out models.Order
	var phone sql.NullString
	var couponID sql.NullInt64
	var couponCode sql.NullString
	var couponType sql.NullString
	var couponValue sql.NullInt64
	var cancelReason sql.NullString
	var confirmedAt sql.NullTime
	var cancelledAt sql.NullTime
	if err := row.Scan(
		&out.ID,
		&out.OrderNumber,
		&out.UserID,
		&out.EventID,
		&out.EventTitle,
		&out.Status,
		&out.Contact.Name,
		&out.Contact.Email,
		&phone,
		&out.Pricing.Subtotal,
		&out.Pricing.Discount,
		&out.Pricing.ProcessingFee,
		&out.Pricing.Taxes,
		&out.Pricing.Total,
		&out.Currency,
		&couponID,
		&couponCode,
		&couponType,
		&couponValue,
		&cancelReason,
		&confirmedAt,
		&cancelledAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.Contact.Phone = nullStringValue(phone)
	if couponCode.Valid {
		out.Coupon = &models.CouponSnapshot{
			ID:            couponID.Int64,
			Code:          couponCode.String,
			DiscountType:  couponType.String,
			DiscountValue: couponValue.Int64,
		}
	}
	out.CancelReason = nullStringValue(cancelReason)
	out.ConfirmedAt = nullTimeToPtr(confirmedAt)
	out.CancelledAt = nullTimeToPtr(cancelledAt)
	return out, nil
}

func scanPayment(row pgx.Row) (models.Payment, error) {
	var out models.Payment
	var gatewayPaymentID sql.NullString
	var failureReason sql.NullString
	var capturedAt sql.NullTime
	if err := row.Scan(
		&out.ID,
		&out.OrderID,
		&out.Gateway,
		&out.GatewayOrderID,
		&gatewayPaymentID,
		&out.Amount,
		&out.Currency,
		&out.Status,
		&failureReason,
		&capturedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.GatewayPaymentID = nullStringValue(gatewayPaymentID)
	out.FailureReason = nullStringValue(failureReason)
	out.CapturedAt = nullTimeToPtr(capturedAt)
	out.Refunds = []models.Refund{}
	return out, nil
}
