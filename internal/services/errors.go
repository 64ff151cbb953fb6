package services

import (
	"errors"
	"fmt"

	"github.com/stylehive/api/internal/repositories"
)

// InsufficientStockError reports that a requested quantity exceeds the
// available stock for one (product, size) pair. It carries enough context
// for a client-facing message.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient stock: product %s size %s requested %d available %d", e.ProductID, e.Size, e.Requested, e.Available)
}

func newInsufficientStockError(stockErr *repositories.StockError) *InsufficientStockError {
	return &InsufficientStockError{
		ProductID: stockErr.ProductID,
		Size:      stockErr.Size,
		Requested: stockErr.Requested,
		Available: stockErr.Available,
	}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
