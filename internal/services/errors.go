package services

import (
	"errors"
	"fmt"

	"github.com/orderflow/api/internal/repositories"
)

var (
	// ErrNotFound indicates the addressed product, cart line or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCart indicates checkout was attempted on a cart without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInsufficientStock indicates the requested quantity exceeds the stock on hand.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a quantity below one or a negative stock level.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidPaymentMethod indicates the payment method is not one of the accepted values.
	ErrInvalidPaymentMethod = errors.New("checkout: invalid payment method")
	// ErrInvalidAddress indicates an empty shipping address.
	ErrInvalidAddress = errors.New("invalid shipping address")
	// ErrInvalidStatus indicates an unknown order, payment or shipment status value.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrInvalidTransition indicates a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrNotOwned indicates the resource belongs to a different user.
	ErrNotOwned = errors.New("resource not owned by caller")
	// ErrInvalidInput indicates malformed or missing arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable indicates the backing store could not serve the request.
	ErrUnavailable = errors.New("service unavailable")
	// ErrIntegrity indicates persisted data violates an invariant, such as an order without payment.
	ErrIntegrity = errors.New("data integrity failure")
)

// StockError reports which product could not be served. It matches ErrInsufficientStock.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Is allows errors.Is(err, ErrInsufficientStock).
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// translateRepoError maps repository failures onto the service taxonomy.
func translateRepoError(err error, what string) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

// isClientError reports whether err is caused by the request rather than the system.
func isClientError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrEmptyCart, ErrInsufficientStock, ErrInvalidQuantity, ErrInvalidPaymentMethod,
		ErrInvalidAddress, ErrInvalidStatus, ErrInvalidTransition, ErrNotOwned, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
