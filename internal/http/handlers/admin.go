package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/geocode"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"

	"github.com/go-chi/chi/v5"
)

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=attendee organizer admin"`
}

type couponRequest struct {
	Code             string     `json:"code" validate:"required,alphanum,min=3,max=40"`
	Description      string     `json:"description" validate:"max=500"`
	DiscountType     string     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue    int64      `json:"discountValue" validate:"required,min=1"`
	MinimumAmount    int64      `json:"minimumAmount" validate:"min=0"`
	MaximumDiscount  *int64     `json:"maximumDiscount" validate:"omitempty,min=1"`
	UsageLimit       *int       `json:"usageLimit" validate:"omitempty,min=1"`
	UserLimit        int        `json:"userLimit" validate:"min=0"`
	ValidFrom        *time.Time `json:"validFrom"`
	ValidUntil       *time.Time `json:"validUntil"`
	ApplicableEvents []int64    `json:"applicableEvents" validate:"dive,min=1"`
	IsActive         *bool      `json:"isActive"`
}

type patchCouponRequest struct {
	Description      *string    `json:"description" validate:"omitempty,max=500"`
	MinimumAmount    *int64     `json:"minimumAmount" validate:"omitempty,min=0"`
	MaximumDiscount  *int64     `json:"maximumDiscount" validate:"omitempty,min=1"`
	UsageLimit       *int       `json:"usageLimit" validate:"omitempty,min=1"`
	UserLimit        *int       `json:"userLimit" validate:"omitempty,min=1"`
	ValidFrom        *time.Time `json:"validFrom"`
	ValidUntil       *time.Time `json:"validUntil"`
	ApplicableEvents *[]int64   `json:"applicableEvents"`
	IsActive         *bool      `json:"isActive"`
}

func (h *Handler) ListAdminUsers(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	users, total, err := h.repo.ListUsers(ctx, r.URL.Query().Get("q"), strings.TrimSpace(r.URL.Query().Get("role")),
		parseIntQuery(r, "limit", 50), parseIntQuery(r, "offset", 0))
	if err != nil {
		h.handleTicketingError(logger, w, "admin_list_users", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.User]{Items: users, Total: total})
}

func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req setRoleRequest
	if !h.decodeJSON(w, r, "admin_set_role", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	user, err := h.repo.SetUserRole(ctx, userID, req.Role)
	if err != nil {
		h.handleTicketingError(logger, w, "admin_set_role", err)
		return
	}
	logger.Info("admin_set_role", "status", "success", "target_user_id", userID, "role", req.Role)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	logger := h.loggerForRequest(r)
	caller, _ := actor(r)
	userID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if blocked && userID == caller.UserID {
		writeError(w, http.StatusBadRequest, "cannot block yourself")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.SetUserBlocked(ctx, userID, blocked); err != nil {
		h.handleTicketingError(logger, w, "admin_set_blocked", err)
		return
	}
	logger.Info("admin_set_blocked", "status", "success", "target_user_id", userID, "blocked", blocked)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListCoupons lists every coupon for admins. Organizers must name one of
// their events and see the coupons usable for it.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, _ := actor(r)
	eventID, err := parseInt64Query(r, "eventId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId")
		return
	}
	var active *bool
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active")
			return
		}
		active = &parsed
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if !caller.IsAdmin() {
		if eventID == 0 {
			writeError(w, http.StatusBadRequest, "eventId is required")
			return
		}
		if err := h.ensureOwnsEvents(ctx, caller, []int64{eventID}); err != nil {
			h.handleTicketingError(logger, w, "list_coupons", err)
			return
		}
	}
	coupons, err := h.repo.ListCoupons(ctx, eventID, active)
	if err != nil {
		h.handleTicketingError(logger, w, "list_coupons", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Coupon]{Items: coupons, Total: len(coupons)})
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, _ := actor(r)
	var req couponRequest
	if !h.decodeJSON(w, r, "create_coupon", &req) {
		return
	}
	if req.DiscountType == models.DiscountTypePercentage && req.DiscountValue > 100 {
		writeError(w, http.StatusBadRequest, "percentage discount cannot exceed 100")
		return
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && !req.ValidUntil.After(*req.ValidFrom) {
		writeError(w, http.StatusBadRequest, "validUntil must be after validFrom")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.ensureCouponScope(ctx, caller, req.ApplicableEvents); err != nil {
		h.handleTicketingError(logger, w, "create_coupon", err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	coupon, err := h.repo.CreateCoupon(ctx, caller.UserID, models.CouponInput{
		Code:             req.Code,
		Description:      req.Description,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MinimumAmount:    req.MinimumAmount,
		MaximumDiscount:  req.MaximumDiscount,
		UsageLimit:       req.UsageLimit,
		UserLimit:        req.UserLimit,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		ApplicableEvents: req.ApplicableEvents,
		IsActive:         active,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "create_coupon", err)
		return
	}
	logger.Info("create_coupon", "status", "success", "coupon_id", coupon.ID, "code", coupon.Code)
	writeJSON(w, http.StatusCreated, coupon)
}

func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, _ := actor(r)
	couponID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	var req patchCouponRequest
	if !h.decodeJSON(w, r, "update_coupon", &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	current, err := h.repo.GetCoupon(ctx, couponID)
	if err != nil {
		h.handleTicketingError(logger, w, "update_coupon", err)
		return
	}
	if err := h.ensureCouponScope(ctx, caller, current.ApplicableEvents); err != nil {
		h.handleTicketingError(logger, w, "update_coupon", err)
		return
	}
	if req.ApplicableEvents != nil {
		if err := h.ensureCouponScope(ctx, caller, *req.ApplicableEvents); err != nil {
			h.handleTicketingError(logger, w, "update_coupon", err)
			return
		}
	}
	coupon, err := h.repo.UpdateCoupon(ctx, couponID, models.CouponPatch{
		Description:      req.Description,
		MinimumAmount:    req.MinimumAmount,
		MaximumDiscount:  req.MaximumDiscount,
		UsageLimit:       req.UsageLimit,
		UserLimit:        req.UserLimit,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		ApplicableEvents: req.ApplicableEvents,
		IsActive:         req.IsActive,
	})
	if err != nil {
		h.handleTicketingError(logger, w, "update_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	caller, _ := actor(r)
	couponID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	current, err := h.repo.GetCoupon(ctx, couponID)
	if err != nil {
		h.handleTicketingError(logger, w, "delete_coupon", err)
		return
	}
	if err := h.ensureCouponScope(ctx, caller, current.ApplicableEvents); err != nil {
		h.handleTicketingError(logger, w, "delete_coupon", err)
		return
	}
	if err := h.repo.DeleteCoupon(ctx, couponID); err != nil {
		h.handleTicketingError(logger, w, "delete_coupon", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ensureCouponScope lets admins manage any coupon. Organizers may only
// manage coupons restricted to events they organize.
func (h *Handler) ensureCouponScope(ctx context.Context, caller checkout.Actor, eventIDs []int64) error {
	if caller.IsAdmin() {
		return nil
	}
	if len(eventIDs) == 0 {
		return checkout.ErrForbidden
	}
	return h.ensureOwnsEvents(ctx, caller, eventIDs)
}

func (h *Handler) ensureOwnsEvents(ctx context.Context, caller checkout.Actor, eventIDs []int64) error {
	for _, id := range eventIDs {
		event, err := h.repo.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if event.OrganizerID != caller.UserID {
			return checkout.ErrForbidden
		}
	}
	return nil
}

func (h *Handler) ListAdminOrders(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, err := parseInt64Query(r, "eventId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	orders, total, err := h.repo.ListOrders(ctx, repository.OrderFilter{
		EventID: eventID,
		Status:  r.URL.Query().Get("status"),
		Limit:   parseIntQuery(r, "limit", 50),
		Offset:  parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		h.handleTicketingError(logger, w, "admin_list_orders", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[models.Order]{Items: orders, Total: total})
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	ticket, err := h.repo.CancelTicket(ctx, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.handleTicketingError(logger, w, "admin_cancel_ticket", err)
		return
	}
	logger.Info("admin_cancel_ticket", "status", "success", "ticket_id", ticket.ID)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, err := parseInt64Query(r, "eventId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	stats, err := h.repo.GetAdminStats(ctx, eventID)
	if err != nil {
		h.handleTicketingError(logger, w, "admin_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	if h.geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, "geocoder not configured")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()
	results, err := h.geocoder.Search(ctx, query, parseIntQuery(r, "limit", 5))
	if err != nil {
		logger.Warn("admin_geocode", "status", "lookup_failed", "error", err)
		writeError(w, http.StatusBadGateway, "geocoder error")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[geocode.Result]{Items: results, Total: len(results)})
}
