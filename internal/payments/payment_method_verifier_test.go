package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type fakePaymentMethodAPI struct {
	lastID string
	result *stripe.PaymentMethod
	err    error
}

func (f *fakePaymentMethodAPI) Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	f.lastID = id
	return f.result, f.err
}

func TestNewStripePaymentMethodVerifierRequiresAPIKey(t *testing.T) {
	if _, err := NewStripePaymentMethodVerifier(StripeConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestLookupReturnsMaskedCardMetadata(t *testing.T) {
	api := &fakePaymentMethodAPI{
		result: &stripe.PaymentMethod{
			ID:   "pm_123",
			Type: stripe.PaymentMethodTypeCard,
			Card: &stripe.PaymentMethodCard{
				Brand:    stripe.PaymentMethodCardBrandVisa,
				Last4:    "4242",
				ExpMonth: 12,
				ExpYear:  2030,
			},
		},
	}
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{api: api})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}

	details, err := verifier.Lookup(context.Background(), " pm_123 ")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if api.lastID != "pm_123" {
		t.Fatalf("expected trimmed token, got %q", api.lastID)
	}
	if details.Brand != "visa" || details.Last4 != "4242" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.ExpMonth != 12 || details.ExpYear != 2030 {
		t.Fatalf("unexpected expiry %+v", details)
	}
}

func TestLookupRejectsEmptyToken(t *testing.T) {
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{api: &fakePaymentMethodAPI{}})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}
	if _, err := verifier.Lookup(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLookupPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("no such payment method")
	verifier, err := NewStripePaymentMethodVerifier(StripeConfig{api: &fakePaymentMethodAPI{err: wantErr}})
	if err != nil {
		t.Fatalf("NewStripePaymentMethodVerifier: %v", err)
	}
	if _, err := verifier.Lookup(context.Background(), "pm_missing"); !errors.Is(err, wantErr) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
