package domain

import "testing"

func TestCalculateAppliesTaxAndWaivesShippingAtThreshold(t *testing.T) {
	cfg := DefaultPricingConfig()

	pricing := cfg.Calculate([]PricingLine{
		{UnitPrice: 4000, Quantity: 2},
		{UnitPrice: 2000, Quantity: 1},
	}, 0)

	if pricing.Subtotal != 10000 {
		t.Fatalf("Subtotal = %d, want 10000", pricing.Subtotal)
	}
	if pricing.Tax != 800 {
		t.Fatalf("Tax = %d, want 800", pricing.Tax)
	}
	if pricing.Shipping != 0 {
		t.Fatalf("Shipping = %d, want 0 at the free-shipping threshold", pricing.Shipping)
	}
	if pricing.Total != 10800 {
		t.Fatalf("Total = %d, want 10800", pricing.Total)
	}
}

func TestCalculateChargesFlatShippingBelowThreshold(t *testing.T) {
	cfg := DefaultPricingConfig()

	pricing := cfg.Calculate([]PricingLine{{UnitPrice: 2500, Quantity: 2}}, 0)

	if pricing.Subtotal != 5000 {
		t.Fatalf("Subtotal = %d, want 5000", pricing.Subtotal)
	}
	if pricing.Shipping != 1500 {
		t.Fatalf("Shipping = %d, want 1500", pricing.Shipping)
	}
	if pricing.Tax != 400 {
		t.Fatalf("Tax = %d, want 400", pricing.Tax)
	}
	if pricing.Total != 6900 {
		t.Fatalf("Total = %d, want 6900", pricing.Total)
	}
}

func TestCalculateRoundsTaxToNearestUnit(t *testing.T) {
	cfg := PricingConfig{TaxRate: 0.08, FreeShippingThreshold: 10000, FlatShippingFee: 1500}

	// 1111 * 0.08 = 88.88, rounds to 89.
	pricing := cfg.Calculate([]PricingLine{{UnitPrice: 1111, Quantity: 1}}, 0)

	if pricing.Tax != 89 {
		t.Fatalf("Tax = %d, want 89", pricing.Tax)
	}
}

func TestCalculateEmptyCartHasNoCharges(t *testing.T) {
	pricing := DefaultPricingConfig().Calculate(nil, 0)

	if pricing.Subtotal != 0 || pricing.Tax != 0 || pricing.Shipping != 0 || pricing.Total != 0 {
		t.Fatalf("empty cart pricing = %+v, want all zero", pricing)
	}
}

func TestCalculateSkipsInvalidLines(t *testing.T) {
	cfg := DefaultPricingConfig()

	pricing := cfg.Calculate([]PricingLine{
		{UnitPrice: 3000, Quantity: 1},
		{UnitPrice: -500, Quantity: 2},
		{UnitPrice: 1000, Quantity: 0},
		{UnitPrice: 1000, Quantity: -1},
	}, 0)

	if pricing.Subtotal != 3000 {
		t.Fatalf("Subtotal = %d, want 3000 (invalid lines ignored)", pricing.Subtotal)
	}
}

func TestCalculateDiscountNeverDrivesTotalNegative(t *testing.T) {
	cfg := DefaultPricingConfig()

	pricing := cfg.Calculate([]PricingLine{{UnitPrice: 1000, Quantity: 1}}, 100000)

	if pricing.Discount != 100000 {
		t.Fatalf("Discount = %d, want 100000", pricing.Discount)
	}
	if pricing.Total != 0 {
		t.Fatalf("Total = %d, want 0 floor", pricing.Total)
	}
}

func TestCalculateIgnoresNegativeDiscount(t *testing.T) {
	cfg := DefaultPricingConfig()

	pricing := cfg.Calculate([]PricingLine{{UnitPrice: 2000, Quantity: 1}}, -300)

	if pricing.Discount != 0 {
		t.Fatalf("Discount = %d, want 0 for negative input", pricing.Discount)
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	cfg := DefaultPricingConfig()
	lines := []PricingLine{
		{UnitPrice: 1999, Quantity: 3},
		{UnitPrice: 450, Quantity: 7},
	}

	first := cfg.Calculate(lines, 250)
	for i := 0; i < 10; i++ {
		if got := cfg.Calculate(lines, 250); got != first {
			t.Fatalf("Calculate produced %+v on run %d, want %+v", got, i, first)
		}
	}
}
