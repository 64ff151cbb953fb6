package repositories

import "fmt"

// OrderNumberErrorCode enumerates failure reasons for order number allocation.
type OrderNumberErrorCode string

const (
	// OrderNumberErrorUnknown represents an unspecified failure.
	OrderNumberErrorUnknown OrderNumberErrorCode = "order_number_unknown"
	// OrderNumberErrorExhausted indicates every candidate number collided within the retry bound.
	OrderNumberErrorExhausted OrderNumberErrorCode = "order_number_exhausted"
	// OrderNumberErrorInvalidInput indicates the caller supplied invalid arguments.
	OrderNumberErrorInvalidInput OrderNumberErrorCode = "order_number_invalid_input"
)

// OrderNumberError wraps order number allocation failures with machine
// readable codes.
type OrderNumberError struct {
	Op      string
	Code    OrderNumberErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *OrderNumberError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderNumberError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOrderNumberError constructs a typed order number error.
func NewOrderNumberError(code OrderNumberErrorCode, message string, err error) *OrderNumberError {
	if message == "" {
		message = string(code)
	}
	return &OrderNumberError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
