package repositories

import (
	"fmt"

	domain "github.com/greengrocer/api/internal/domain"
)

// OrderErrorCode enumerates repository error causes for order transactions.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorProductNotFound indicates a cart line references a missing product.
	OrderErrorProductNotFound OrderErrorCode = "order_product_not_found"
	// OrderErrorInsufficientStock indicates a requested quantity exceeds on-hand stock.
	OrderErrorInsufficientStock OrderErrorCode = "order_insufficient_stock"
	// OrderErrorBelowMinimum indicates the priced subtotal missed the minimum order value.
	OrderErrorBelowMinimum OrderErrorCode = "order_below_minimum"
	// OrderErrorCouponNotHonourable indicates an explicitly requested coupon could not be applied.
	OrderErrorCouponNotHonourable OrderErrorCode = "order_coupon_not_honourable"
	// OrderErrorIllegalTransition indicates the status guard rejected the requested transition.
	OrderErrorIllegalTransition OrderErrorCode = "order_illegal_transition"
	// OrderErrorCarrierMismatch indicates the caller is not the assigned carrier.
	OrderErrorCarrierMismatch OrderErrorCode = "order_carrier_mismatch"
)

// OrderError wraps order-transaction failures with machine readable codes and
// enough context for the caller to explain what went wrong.
type OrderError struct {
	Op            string
	Code          OrderErrorCode
	ProductID     string
	CurrentStatus domain.OrderStatus
	CouponReject  domain.CouponRejectReason
	Message       string
	Err           error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
