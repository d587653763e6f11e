package ticketing

import (
	"strings"
	"time"

	"eventmitra/backend/internal/models"

	"github.com/shopspring/decimal"
)

type CouponRule struct {
	ID               int64
	Code             string
	DiscountType     string
	Value            int64
	MinimumAmount    int64
	MaximumDiscount  *int64
	UsageLimit       *int
	UsedCount        int
	UserLimit        int
	UserUsedCount    int
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	ApplicableEvents []int64
	IsActive         bool
}

type CouponValidationInput struct {
	Now      time.Time
	EventID  int64
	Subtotal int64
}

type CouponValidationOutput struct {
	Valid    bool
	Discount int64
	Reason   string
}

const (
	CouponReasonOK          = ""
	CouponReasonNotFound    = "not_found"
	CouponReasonInactive    = "inactive"
	CouponReasonOutOfWindow = "out_of_window"
	CouponReasonUsageLimit  = "usage_limit_reached"
	CouponReasonUserLimit   = "user_limit_reached"
	CouponReasonMinimum     = "minimum_amount_not_met"
	CouponReasonEventScope  = "event_not_allowed"
	CouponReasonBadDiscount = "unsupported_discount_type"
)

// NormalizeCouponCode upper-cases and trims a user supplied code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCoupon checks, in order: active flag, validity window, global usage,
// per-user usage, event allowlist and minimum amount.
func ValidateCoupon(rule CouponRule, in CouponValidationInput) CouponValidationOutput {
	if !rule.IsActive {
		return CouponValidationOutput{Reason: CouponReasonInactive}
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if rule.ValidFrom != nil && now.Before(rule.ValidFrom.UTC()) {
		return CouponValidationOutput{Reason: CouponReasonOutOfWindow}
	}
	if rule.ValidUntil != nil && now.After(rule.ValidUntil.UTC()) {
		return CouponValidationOutput{Reason: CouponReasonOutOfWindow}
	}
	if rule.UsageLimit != nil && rule.UsedCount >= *rule.UsageLimit {
		return CouponValidationOutput{Reason: CouponReasonUsageLimit}
	}
	if rule.UserLimit > 0 && rule.UserUsedCount >= rule.UserLimit {
		return CouponValidationOutput{Reason: CouponReasonUserLimit}
	}
	if len(rule.ApplicableEvents) > 0 && !containsID(rule.ApplicableEvents, in.EventID) {
		return CouponValidationOutput{Reason: CouponReasonEventScope}
	}
	if in.Subtotal < rule.MinimumAmount {
		return CouponValidationOutput{Reason: CouponReasonMinimum}
	}
	discount := CouponDiscount(rule, in.Subtotal)
	if discount < 0 {
		return CouponValidationOutput{Reason: CouponReasonBadDiscount}
	}
	return CouponValidationOutput{Valid: true, Discount: discount, Reason: CouponReasonOK}
}

// CouponDiscount returns the discount for subtotal, capped at subtotal.
// It returns -1 for an unknown discount type.
func CouponDiscount(rule CouponRule, subtotal int64) int64 {
	if rule.Value <= 0 || subtotal <= 0 {
		return 0
	}
	var discount int64
	switch rule.DiscountType {
	case models.DiscountTypePercentage:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(rule.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		if rule.MaximumDiscount != nil && discount > *rule.MaximumDiscount {
			discount = *rule.MaximumDiscount
		}
	case models.DiscountTypeFixed:
		discount = rule.Value
	default:
		return -1
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// CouponRuleFromModel maps a stored coupon plus the user's usage count.
func CouponRuleFromModel(c models.Coupon, userUsedCount int) CouponRule {
	return CouponRule{
		ID:               c.ID,
		Code:             c.Code,
		DiscountType:     c.DiscountType,
		Value:            c.DiscountValue,
		MinimumAmount:    c.MinimumAmount,
		MaximumDiscount:  c.MaximumDiscount,
		UsageLimit:       c.UsageLimit,
		UsedCount:        c.UsedCount,
		UserLimit:        c.UserLimit,
		UserUsedCount:    userUsedCount,
		ValidFrom:        c.ValidFrom,
		ValidUntil:       c.ValidUntil,
		ApplicableEvents: c.ApplicableEvents,
		IsActive:         c.IsActive,
	}
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
