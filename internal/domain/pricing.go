package domain

import "math"

// Pricing captures the aggregated monetary results of pricing an order, in
// the smallest currency unit.
type Pricing struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
}

// PricingLine is the calculator input for one order line.
type PricingLine struct {
	UnitPrice int64
	Quantity  int
}

// PricingConfig holds the pricing constants. It is the single source of truth
// for tax and shipping figures; client-side estimates are informational only.
type PricingConfig struct {
	// TaxRate is the fraction of the subtotal charged as tax.
	TaxRate float64
	// FreeShippingThreshold waives shipping when the subtotal reaches it.
	FreeShippingThreshold int64
	// FlatShippingFee is charged below the threshold.
	FlatShippingFee int64
}

// DefaultPricingConfig returns the storefront defaults: 8% tax, free shipping
// from $100.00, $15.00 flat fee otherwise.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TaxRate:               0.08,
		FreeShippingThreshold: 10000,
		FlatShippingFee:       1500,
	}
}

// Calculate prices a set of lines with an externally supplied discount.
// It is pure and deterministic: no I/O, no clock, identical inputs always
// yield identical outputs. Total never goes below zero.
func (c PricingConfig) Calculate(lines []PricingLine, discount int64) Pricing {
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		subtotal += line.UnitPrice * int64(line.Quantity)
	}

	tax := int64(math.Round(float64(subtotal) * c.TaxRate))

	var shipping int64
	if subtotal > 0 && subtotal < c.FreeShippingThreshold {
		shipping = c.FlatShippingFee
	}

	if discount < 0 {
		discount = 0
	}

	total := subtotal + tax + shipping - discount
	if total < 0 {
		total = 0
	}

	return Pricing{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    total,
	}
}
