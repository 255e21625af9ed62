package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)

	ErrCategoryNotFound = fmt.Errorf("category %w", ErrNotFound)

	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAccessDenied        = errors.New("access denied")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidPrice        = errors.New("price must not be negative")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidOrder        = errors.New("invalid order")
)

// InsufficientStockError reports a stock shortfall for one product. It
// matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}
