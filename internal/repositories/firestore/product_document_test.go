package firestore

import (
	"errors"
	"testing"

	"github.com/stylehive/api/internal/repositories"
)

func stockedDocument() productDocument {
	return productDocument{
		SKU:  "SKU-001",
		Name: "Canvas Tote",
		Sizes: []sizeDocument{
			{Size: "S", Quantity: 4},
			{Size: "M", Quantity: 1},
		},
	}
}

func TestApplySizeDeltaDecrementsToZero(t *testing.T) {
	doc := stockedDocument()

	if err := doc.applySizeDelta("prod-1", "M", -1); err != nil {
		t.Fatalf("expected decrement to succeed, got %v", err)
	}
	if got := doc.Sizes[1].Quantity; got != 0 {
		t.Fatalf("expected size M quantity 0, got %d", got)
	}
	if got := doc.Sizes[0].Quantity; got != 4 {
		t.Fatalf("expected size S untouched at 4, got %d", got)
	}
}

func TestApplySizeDeltaRejectsShortfall(t *testing.T) {
	doc := stockedDocument()

	err := doc.applySizeDelta("prod-1", "M", -2)
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %T: %v", err, err)
	}
	if stockErr.Code != repositories.StockErrorInsufficient {
		t.Fatalf("expected code %s, got %s", repositories.StockErrorInsufficient, stockErr.Code)
	}
	if stockErr.ProductID != "prod-1" || stockErr.Size != "M" {
		t.Fatalf("unexpected error context: %+v", stockErr)
	}
	if stockErr.Requested != 2 || stockErr.Available != 1 {
		t.Fatalf("expected requested=2 available=1, got requested=%d available=%d", stockErr.Requested, stockErr.Available)
	}
	if got := doc.Sizes[1].Quantity; got != 1 {
		t.Fatalf("expected quantity unchanged at 1 after rejection, got %d", got)
	}
}

func TestApplySizeDeltaUnknownSize(t *testing.T) {
	doc := stockedDocument()

	err := doc.applySizeDelta("prod-1", "XL", -1)
	if err == nil {
		t.Fatalf("expected size not found error")
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %T: %v", err, err)
	}
	if stockErr.Code != repositories.StockErrorSizeNotFound {
		t.Fatalf("expected code %s, got %s", repositories.StockErrorSizeNotFound, stockErr.Code)
	}
	if stockErr.Size != "XL" || stockErr.Requested != 1 || stockErr.Available != 0 {
		t.Fatalf("unexpected error context: %+v", stockErr)
	}
}

func TestApplySizeDeltaMatchesSizeCaseInsensitively(t *testing.T) {
	doc := stockedDocument()

	if err := doc.applySizeDelta("prod-1", "m", -1); err != nil {
		t.Fatalf("expected lowercase size to match, got %v", err)
	}
	if got := doc.Sizes[1].Quantity; got != 0 {
		t.Fatalf("expected size M quantity 0, got %d", got)
	}

	err := doc.applySizeDelta("prod-1", "m", -1)
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %T: %v", err, err)
	}
	// The error reports the stored size label, not the caller's casing.
	if stockErr.Size != "M" {
		t.Fatalf("expected stored size label M in error, got %s", stockErr.Size)
	}
}

func TestApplySizeDeltaRestocks(t *testing.T) {
	doc := stockedDocument()

	if err := doc.applySizeDelta("prod-1", "S", 6); err != nil {
		t.Fatalf("expected restock to succeed, got %v", err)
	}
	if got := doc.Sizes[0].Quantity; got != 10 {
		t.Fatalf("expected size S quantity 10, got %d", got)
	}
}
