package ticketing

import (
	"regexp"
	"testing"
	"time"
)

func TestPurchasePoints(t *testing.T) {
	cases := map[int64]int64{0: 0, -5: 0, 99: 0, 100: 1, 1200: 12, 1299: 12}
	for total, want := range cases {
		if got := PurchasePoints(total); got != want {
			t.Fatalf("PurchasePoints(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^EM-20261019-[A-Z2-7]{6}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		number, err := NewOrderNumber(now)
		if err != nil {
			t.Fatalf("order number: %v", err)
		}
		if !pattern.MatchString(number) {
			t.Fatalf("unexpected format %q", number)
		}
		seen[number] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected random suffixes")
	}
}
