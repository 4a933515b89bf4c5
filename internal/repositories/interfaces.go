package repositories

import (
	"context"
	"time"

	domain "github.com/greengrocer/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	Users() UserRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalogue entries and their stock state.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// ProductListFilter narrows catalogue listings.
type ProductListFilter struct {
	Category *domain.ProductCategory
	LowStock bool
	Pager    domain.Pagination
}

// PlaceOrderRequest carries the validated checkout snapshot into the atomic
// placement transaction. Pricing, minimum-order and coupon checks run inside
// the transaction against the stock state it reads.
type PlaceOrderRequest struct {
	OrderID     string
	CustomerID  string
	Lines       []domain.CartLine
	DeliveryDue time.Time
	CouponCode  *string
	Now         time.Time
}

// StatusTransition is the guarded conditional update applied to an order:
// move to the target status iff the current status allows it. Assign sets the
// carrier; deliver requires the caller to be the assigned carrier.
type StatusTransition struct {
	OrderID         string
	To              domain.OrderStatus
	AssignCarrierID *string
	ExpectCarrierID *string
	Now             time.Time
}

// CancelOrderRequest reverses an order's effects: guard the transition first,
// then restock every line and credit the final total back to the customer.
type CancelOrderRequest struct {
	OrderID string
	Now     time.Time
}

// OrderListFilter narrows order listings per actor.
type OrderListFilter struct {
	CustomerID string
	CarrierID  string
	Status     *domain.OrderStatus
	Pager      domain.Pagination
}

// OrderRepository persists orders and owns the transactional primitives the
// lifecycle depends on. Every mutation is a single atomic unit: either all of
// its reads, guards and writes apply, or none do.
type OrderRepository interface {
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	Transition(ctx context.Context, req StatusTransition) (domain.Order, error)
	Cancel(ctx context.Context, req CancelOrderRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CouponRepository maintains coupon definitions; the engine only reads them.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error)
}

// UserRepository stores role-tagged account records. Balance credits and
// delivered-order increments happen inside order transactions, not here.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	List(ctx context.Context, role *domain.UserRole, pager domain.Pagination) (domain.CursorPage[domain.User], error)
}

// HealthRepository evaluates backing-store reachability for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
