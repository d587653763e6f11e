package models

import "time"

const (
	OrderStatusPending           = "pending"
	OrderStatusConfirmed         = "confirmed"
	OrderStatusCancelled         = "cancelled"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
)

const (
	PaymentStatusCreated           = "created"
	PaymentStatusAuthorized        = "authorized"
	PaymentStatusCaptured          = "captured"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusFailed            = "failed"
)

const (
	TicketStatusActive    = "active"
	TicketStatusUsed      = "used"
	TicketStatusCancelled = "cancelled"
	TicketStatusRefunded  = "refunded"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	LoyaltyReasonPurchase   = "purchase"
	LoyaltyReasonAttendance = "attendance"
)

// Attendee is the per-seat contact snapshot.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Contact is the purchaser contact given at checkout.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Pricing is derived once at checkout and never mutated afterwards.
type Pricing struct {
	Subtotal      int64 `json:"subtotal"`
	Discount      int64 `json:"discount"`
	ProcessingFee int64 `json:"processingFee"`
	Taxes         int64 `json:"taxes"`
	Total         int64 `json:"total"`
}

// CouponSnapshot represents coupon snapshot.
type CouponSnapshot struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	DiscountType  string `json:"discountType"`
	DiscountValue int64  `json:"discountValue"`
}

// Order represents order.
type Order struct {
	ID           string          `json:"id"`
	OrderNumber  string          `json:"orderNumber"`
	UserID       int64           `json:"userId"`
	EventID      int64           `json:"eventId"`
	EventTitle   string          `json:"eventTitle,omitempty"`
	Status       string          `json:"status"`
	Contact      Contact         `json:"contact"`
	Pricing      Pricing         `json:"pricing"`
	Currency     string          `json:"currency"`
	Coupon       *CouponSnapshot `json:"coupon,omitempty"`
	CancelReason string          `json:"cancelReason,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// OrderItem represents order item.
type OrderItem struct {
	ID             int64      `json:"id"`
	OrderID        string     `json:"orderId"`
	TicketTypeID   int64      `json:"ticketTypeId"`
	TicketTypeName string     `json:"ticketTypeName"`
	UnitPrice      int64      `json:"unitPrice"`
	Quantity       int        `json:"quantity"`
	LineTotal      int64      `json:"lineTotal"`
	Attendees      []Attendee `json:"attendees"`
}

// Payment represents payment.
type Payment struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"orderId"`
	Gateway          string     `json:"gateway"`
	GatewayOrderID   string     `json:"gatewayOrderId"`
	GatewayPaymentID string     `json:"gatewayPaymentId,omitempty"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	FailureReason    string     `json:"failureReason,omitempty"`
	CapturedAt       *time.Time `json:"capturedAt,omitempty"`
	Refunds          []Refund   `json:"refunds"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Refund represents refund.
type Refund struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	PaymentID       string    `json:"paymentId"`
	GatewayRefundID string    `json:"gatewayRefundId,omitempty"`
	Amount          int64     `json:"amount"`
	Reason          string    `json:"reason,omitempty"`
	Status          string    `json:"status"`
	RequestedBy     *int64    `json:"requestedBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CheckIn represents check in.
type CheckIn struct {
	IsCheckedIn bool       `json:"isCheckedIn"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	Location    string     `json:"location,omitempty"`
	CheckedInBy *int64     `json:"checkedInBy,omitempty"`
}

// TicketTransfer represents ticket transfer.
type TicketTransfer struct {
	ID            int64     `json:"id"`
	TicketID      string    `json:"ticketId"`
	FromUserID    int64     `json:"fromUserId"`
	ToUserID      int64     `json:"toUserId"`
	TransferredAt time.Time `json:"transferredAt"`
}

// Ticket represents ticket.
type Ticket struct {
	ID             string           `json:"ticketId"`
	OrderID        string           `json:"orderId"`
	EventID        int64            `json:"eventId"`
	EventTitle     string           `json:"eventTitle,omitempty"`
	TicketTypeID   int64            `json:"ticketTypeId"`
	TicketTypeName string           `json:"ticketTypeName"`
	TicketPrice    int64            `json:"ticketPrice"`
	UserID         int64            `json:"userId"`
	Attendee       Attendee         `json:"attendee"`
	QRPayload      string           `json:"qrCode"`
	QRPayloadHash  string           `json:"-"`
	QRImage        string           `json:"qrImage,omitempty"`
	QRImageURL     string           `json:"qrImageUrl,omitempty"`
	Status         string           `json:"status"`
	CheckIn        CheckIn          `json:"checkIn"`
	Transfers      []TicketTransfer `json:"transferHistory,omitempty"`
	IssuedAt       time.Time        `json:"issuedAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// OrderDetail represents order detail.
type OrderDetail struct {
	Order   Order       `json:"order"`
	Items   []OrderItem `json:"items"`
	Payment *Payment    `json:"payment,omitempty"`
	Refunds []Refund    `json:"refunds"`
	Tickets []Ticket    `json:"tickets"`
}

// OrderLine is one requested ticket type at checkout.
type OrderLine struct {
	TicketTypeID int64
	Quantity     int
	Attendees    []Attendee
}

// CreateOrderParams represents create order params.
type CreateOrderParams struct {
	UserID     int64
	EventID    int64
	Lines      []OrderLine
	Contact    Contact
	CouponCode string
}

// Coupon represents coupon.
type Coupon struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	Description      string     `json:"description,omitempty"`
	DiscountType     string     `json:"discountType"`
	DiscountValue    int64      `json:"discountValue"`
	MinimumAmount    int64      `json:"minimumAmount"`
	MaximumDiscount  *int64     `json:"maximumDiscount,omitempty"`
	UsageLimit       *int       `json:"usageLimit,omitempty"`
	UsedCount        int        `json:"usedCount"`
	UserLimit        int        `json:"userLimit"`
	ValidFrom        *time.Time `json:"validFrom,omitempty"`
	ValidUntil       *time.Time `json:"validUntil,omitempty"`
	ApplicableEvents []int64    `json:"applicableEvents"`
	IsActive         bool       `json:"isActive"`
	CreatedBy        *int64     `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CouponInput represents coupon input.
type CouponInput struct {
	Code             string
	Description      string
	DiscountType     string
	DiscountValue    int64
	MinimumAmount    int64
	MaximumDiscount  *int64
	UsageLimit       *int
	UserLimit        int
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	ApplicableEvents []int64
	IsActive         bool
}

// CouponPatch represents coupon patch.
type CouponPatch struct {
	Description      *string
	MinimumAmount    *int64
	MaximumDiscount  *int64
	UsageLimit       *int
	UserLimit        *int
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	ApplicableEvents *[]int64
	IsActive         *bool
}

// CouponPreview is the result of validating a coupon against a cart.
type CouponPreview struct {
	Valid    bool    `json:"valid"`
	Reason   string  `json:"reason,omitempty"`
	Code     string  `json:"code"`
	Pricing  Pricing `json:"pricing"`
	Discount int64   `json:"discount"`
}

// Attendance is one row of an organizer attendee report.
type Attendance struct {
	TicketID       string     `json:"ticketId"`
	OrderNumber    string     `json:"orderNumber"`
	TicketTypeName string     `json:"ticketTypeName"`
	AttendeeName   string     `json:"attendeeName"`
	AttendeeEmail  string     `json:"attendeeEmail"`
	AttendeePhone  string     `json:"attendeePhone,omitempty"`
	Status         string     `json:"status"`
	CheckedInAt    *time.Time `json:"checkedInAt,omitempty"`
}

// TicketTypeStats represents ticket type stats.
type TicketTypeStats struct {
	TicketTypeID int64  `json:"ticketTypeId"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Sold         int    `json:"sold"`
	Remaining    int    `json:"remaining"`
	CheckedIn    int    `json:"checkedIn"`
}

// EventStats represents event stats.
type EventStats struct {
	EventID          int64             `json:"eventId"`
	TotalTicketsSold int64             `json:"totalTicketsSold"`
	TotalRevenue     int64             `json:"totalRevenue"`
	CheckedIn        int64             `json:"checkedIn"`
	TicketTypes      []TicketTypeStats `json:"ticketTypes"`
}

// SalesStats aggregates confirmed, refunded and checked-in totals.
type SalesStats struct {
	EventID         int64  `json:"eventId,omitempty"`
	EventTitle      string `json:"eventTitle,omitempty"`
	Orders          int64  `json:"orders"`
	GrossAmount     int64  `json:"grossAmount"`
	RefundedAmount  int64  `json:"refundedAmount"`
	TicketsIssued   int64  `json:"ticketsIssued"`
	TicketsRefunded int64  `json:"ticketsRefunded"`
	CheckedIn       int64  `json:"checkedIn"`
}

// AdminStats represents admin stats.
type AdminStats struct {
	Global SalesStats   `json:"global"`
	Events []SalesStats `json:"events"`
}
