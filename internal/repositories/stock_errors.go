package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorSizeNotFound indicates the product does not carry the requested size.
	StockErrorSizeNotFound StockErrorCode = "stock_size_not_found"
)

// StockError wraps stock-specific failures with machine readable codes and
// the (product, size) context callers display to customers.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Size      string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: product %s size %s requested %d available %d", e.Code, e.ProductID, e.Size, e.Requested, e.Available)
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID, size string, requested, available int) *StockError {
	return &StockError{
		Code:      code,
		ProductID: productID,
		Size:      size,
		Requested: requested,
		Available: available,
	}
}
