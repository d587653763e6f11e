package ticketing

import (
	"testing"
	"time"

	"eventmitra/backend/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func baseCoupon() CouponRule {
	return CouponRule{
		ID:           1,
		Code:         "SAVE10",
		DiscountType: models.DiscountTypePercentage,
		Value:        10,
		IsActive:     true,
	}
}

func TestValidateCouponPercentage(t *testing.T) {
	out := ValidateCoupon(baseCoupon(), CouponValidationInput{Subtotal: 1000, EventID: 5})
	if !out.Valid || out.Discount != 100 {
		t.Fatalf("expected valid 100 discount, got %#v", out)
	}
}

func TestCouponDiscountRoundsBeforeCap(t *testing.T) {
	rule := baseCoupon()
	rule.Value = 15
	if got := CouponDiscount(rule, 333); got != 50 {
		t.Fatalf("expected 49.95 to round to 50, got %d", got)
	}
	rule.MaximumDiscount = int64Ptr(40)
	if got := CouponDiscount(rule, 333); got != 40 {
		t.Fatalf("expected cap 40, got %d", got)
	}
}

func TestCouponDiscountFixedCappedAtSubtotal(t *testing.T) {
	rule := baseCoupon()
	rule.DiscountType = models.DiscountTypeFixed
	rule.Value = 500
	if got := CouponDiscount(rule, 300); got != 300 {
		t.Fatalf("expected discount capped at 300, got %d", got)
	}
	rule.DiscountType = "bogus"
	if got := CouponDiscount(rule, 300); got != -1 {
		t.Fatalf("expected -1 for unknown type, got %d", got)
	}
}

func TestValidateCouponReasons(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*CouponRule)
		in     CouponValidationInput
		reason string
	}{
		{name: "inactive", mutate: func(r *CouponRule) { r.IsActive = false }, reason: CouponReasonInactive},
		{name: "not yet valid", mutate: func(r *CouponRule) { r.ValidFrom = &future }, reason: CouponReasonOutOfWindow},
		{name: "expired", mutate: func(r *CouponRule) { r.ValidUntil = &past }, reason: CouponReasonOutOfWindow},
		{name: "exhausted", mutate: func(r *CouponRule) { r.UsageLimit = intPtr(5); r.UsedCount = 5 }, reason: CouponReasonUsageLimit},
		{name: "user limit", mutate: func(r *CouponRule) { r.UserLimit = 1; r.UserUsedCount = 1 }, reason: CouponReasonUserLimit},
		{name: "other event", mutate: func(r *CouponRule) { r.ApplicableEvents = []int64{7, 8} }, reason: CouponReasonEventScope},
		{name: "below minimum", mutate: func(r *CouponRule) { r.MinimumAmount = 2000 }, reason: CouponReasonMinimum},
		{name: "bad type", mutate: func(r *CouponRule) { r.DiscountType = "bogus" }, reason: CouponReasonBadDiscount},
	}
	for _, tc := range cases {
		rule := baseCoupon()
		tc.mutate(&rule)
		out := ValidateCoupon(rule, CouponValidationInput{Now: now, EventID: 5, Subtotal: 1000})
		if out.Valid || out.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %#v", tc.name, tc.reason, out)
		}
	}
}

func TestNormalizeCouponCode(t *testing.T) {
	if got := NormalizeCouponCode("  save10 "); got != "SAVE10" {
		t.Fatalf("unexpected code %q", got)
	}
}
