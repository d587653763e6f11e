package handlers

import (
	"net/http"
	"strings"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/models"

	"github.com/go-chi/chi/v5"
)

type attendeeRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type orderLineRequest struct {
	TicketTypeID int64             `json:"ticketTypeId" validate:"required,min=1"`
	Quantity     int               `json:"quantity" validate:"required,min=1,max=50"`
	Attendees    []attendeeRequest `json:"attendees" validate:"dive"`
}

type contactRequest struct {
	Name  string `json:"name" validate:"omitempty,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type createOrderRequest struct {
	EventID    int64              `json:"eventId" validate:"required,min=1"`
	Lines      []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
	Contact    contactRequest     `json:"contact"`
	CouponCode string             `json:"couponCode" validate:"omitempty,max=40"`
}

type validateCouponRequest struct {
	EventID    int64              `json:"eventId" validate:"required,min=1"`
	Lines      []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
	CouponCode string             `json:"couponCode" validate:"required,max=40"`
}

type verifyPaymentRequest struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

type refundOrderRequest struct {
	Amount int64  `json:"amount" validate:"min=0"`
	Reason string `json:"reason" validate:"max=500"`
}

func orderLines(items []orderLineRequest) []models.OrderLine {
	out := make([]models.OrderLine, 0, len(items))
	for _, item := range items {
		attendees := make([]models.Attendee, 0, len(item.Attendees))
		for _, a := range item.Attendees {
			attendees = append(attendees, models.Attendee{
				Name:  strings.TrimSpace(a.Name),
				Email: strings.TrimSpace(a.Email),
				Phone: strings.TrimSpace(a.Phone),
			})
		}
		out = append(out, models.OrderLine{
			TicketTypeID: item.TicketTypeID,
			Quantity:     item.Quantity,
			Attendees:    attendees,
		})
	}
	return out
}

func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req validateCouponRequest
	if !h.decodeJSON(w, r, "validate_coupon", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	preview, err := h.checkout.PreviewCoupon(ctx, checkout.PreviewInput{
		UserID:     caller.UserID,
		EventID:    req.EventID,
		Lines:      orderLines(req.Lines),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "validate_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// CreateOrder starts a checkout. The response carries the gateway handle
// the client needs to collect the payment.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createOrderRequest
	if !h.decodeJSON(w, r, "create_order", &req) {
		return
	}

	ctx, cancel := h.withGatewayTimeout(r.Context())
	defer cancel()
	contact := models.Contact{
		Name:  strings.TrimSpace(req.Contact.Name),
		Email: strings.TrimSpace(req.Contact.Email),
		Phone: strings.TrimSpace(req.Contact.Phone),
	}
	if (contact.Name == "" || contact.Email == "") && h.repo != nil {
		user, err := h.repo.GetUserByID(ctx, caller.UserID)
		if err != nil {
			h.handleTicketingError(logger, w, "create_order", err)
			return
		}
		if contact.Name == "" {
			contact.Name = user.Name
		}
		if contact.Email == "" {
			contact.Email = user.Email
		}
		if contact.Phone == "" {
			contact.Phone = user.Phone
		}
	}

	created, err := h.checkout.CreateOrder(ctx, models.CreateOrderParams{
		UserID:     caller.UserID,
		EventID:    req.EventID,
		Lines:      orderLines(req.Lines),
		Contact:    contact,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "create_order", err)
		return
	}
	logger.Info("create_order", "status", "success", "order_id", created.Order.ID, "total", created.Order.Pricing.Total)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req verifyPaymentRequest
	if !h.decodeJSON(w, r, "verify_payment", &req) {
		return
	}
	ctx, cancel := h.withGatewayTimeout(r.Context())
	defer cancel()
	detail, err := h.checkout.VerifyPayment(ctx, caller, checkout.VerifyInput{
		OrderID:          strings.TrimSpace(req.OrderID),
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
	})
	if err != nil {
		h.handleTicketingError(logger, w, "verify_payment", err)
		return
	}
	logger.Info("verify_payment", "status", "success", "order_id", detail.Order.ID, "tickets", len(detail.Tickets))
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	detail, err := h.checkout.GetOrder(ctx, caller, chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleTicketingError(logger, w, "get_order", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	detail, err := h.checkout.CancelOrder(ctx, caller, chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleTicketingError(logger, w, "cancel_order", err)
		return
	}
	logger.Info("cancel_order", "status", "success", "order_id", detail.Order.ID)
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, ok := actor(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req refundOrderRequest
	if !h.decodeJSON(w, r, "refund_order", &req) {
		return
	}
	ctx, cancel := h.withGatewayTimeout(r.Context())
	defer cancel()
	detail, err := h.checkout.Refund(ctx, caller, checkout.RefundInput{
		OrderID: chi.URLParam(r, "orderId"),
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "refund_order", err)
		return
	}
	logger.Info("refund_order", "status", "success", "order_id", detail.Order.ID, "order_status", detail.Order.Status)
	writeJSON(w, http.StatusOK, detail)
}
