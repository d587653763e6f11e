package ticketing

import "testing"

func TestComputePricing(t *testing.T) {
	cases := []struct {
		name     string
		subtotal int64
		discount int64
		fee      int64
		taxes    int64
		total    int64
	}{
		{name: "two tickets", subtotal: 1000, discount: 0, fee: 20, taxes: 180, total: 1200},
		{name: "with discount", subtotal: 1000, discount: 100, fee: 20, taxes: 162, total: 1082},
		{name: "rounding half up", subtotal: 25, discount: 0, fee: 1, taxes: 5, total: 31},
		{name: "discount capped", subtotal: 100, discount: 500, fee: 2, taxes: 0, total: 2},
		{name: "free", subtotal: 0, discount: 0, fee: 0, taxes: 0, total: 0},
	}
	for _, tc := range cases {
		got := ComputePricing(tc.subtotal, tc.discount)
		if got.ProcessingFee != tc.fee || got.Taxes != tc.taxes || got.Total != tc.total {
			t.Fatalf("%s: unexpected pricing %#v", tc.name, got)
		}
		if got.Total != got.Subtotal-got.Discount+got.ProcessingFee+got.Taxes {
			t.Fatalf("%s: total identity broken: %#v", tc.name, got)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(1200); got != 120000 {
		t.Fatalf("expected 120000, got %d", got)
	}
}
