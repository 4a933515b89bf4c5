package services

import (
	"context"
	"time"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Product         = domain.Product
	ProductCategory = domain.ProductCategory
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	OrderTotals     = domain.OrderTotals
	LineItem        = domain.LineItem
	CartLine        = domain.CartLine
	Coupon          = domain.Coupon
	CouponKind      = domain.CouponKind
	User            = domain.User
	UserRole        = domain.UserRole
	HealthReport    = domain.HealthReport
	TotalsBreakdown = domain.TotalsBreakdown
)

// CatalogService manages the product catalogue and its stock visibility.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
}

// CouponService administers discount codes; the checkout path only reads them.
type CouponService interface {
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	GetCoupon(ctx context.Context, code string) (Coupon, error)
	ListCoupons(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error)
}

// UserService maintains role-tagged accounts and their balances.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateUserCommand) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	ListUsers(ctx context.Context, role *UserRole, pager Pagination) (domain.CursorPage[User], error)
}

// OrderService runs the order lifecycle: quoting, placement, assignment,
// delivery, and cancellation with refunds.
type OrderService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Assign(ctx context.Context, cmd AssignOrderCommand) (Order, error)
	Deliver(ctx context.Context, cmd DeliverOrderCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// SystemService aggregates operational surfaces such as readiness reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
// The returned string is the broker-assigned message id.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload emitted after order mutations commit.
type OrderEventMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  string    `json:"customerId"`
	CarrierID   *string   `json:"carrierId,omitempty"`
	Status      string    `json:"status"`
	TotalCents  int64     `json:"totalCents"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Command and DTO definitions ------------------------------------------------

// UpsertProductCommand carries catalogue create/update input. Quantities are
// decimal kilogram strings parsed into grams.
type UpsertProductCommand struct {
	ProductID         string
	Name              string
	Category          string
	UnitPriceCents    int64
	StockKilograms    string
	ThresholdKilogram string
}

// ProductListFilter narrows catalogue listings.
type ProductListFilter struct {
	Category *ProductCategory
	LowStock bool
	Pager    Pagination
}

// UpsertCouponCommand carries coupon create/update input.
type UpsertCouponCommand struct {
	Code             string
	Kind             string
	Value            int64
	MinSubtotalCents int64
	Active           bool
	ExpiresAt        *time.Time
}

// RegisterUserCommand creates a new role-tagged account.
type RegisterUserCommand struct {
	Role        string
	DisplayName string
	Email       string
}

// UpdateUserCommand edits profile fields of an existing account.
type UpdateUserCommand struct {
	UserID      string
	DisplayName string
	Email       string
}

// CartLineInput is one raw checkout line before quantity parsing.
type CartLineInput struct {
	ProductID string
	Quantity  string
}

// QuoteCommand requests a non-binding price preview for a cart snapshot.
type QuoteCommand struct {
	CustomerID string
	Lines      []CartLineInput
	CouponCode *string
}

// QuoteResult is the preview breakdown. CouponNotice is non-empty when the
// requested coupon was dropped rather than applied.
type QuoteResult struct {
	Lines        []LineItem
	Breakdown    TotalsBreakdown
	CouponNotice string
}

// PlaceOrderCommand commits a cart snapshot into an order.
type PlaceOrderCommand struct {
	CustomerID  string
	Lines       []CartLineInput
	DeliveryDue time.Time
	CouponCode  *string
}

// GetOrderCommand fetches one order on behalf of an actor; customers may only
// read their own orders.
type GetOrderCommand struct {
	OrderID   string
	ActorID   string
	ActorRole UserRole
}

// OrderListFilter narrows order listings per actor.
type OrderListFilter = repositories.OrderListFilter

// AssignOrderCommand lets a carrier claim a created order.
type AssignOrderCommand struct {
	OrderID   string
	CarrierID string
}

// DeliverOrderCommand completes an order; only the assigned carrier may.
type DeliverOrderCommand struct {
	OrderID   string
	CarrierID string
}

// CancelOrderCommand reverses an order. Customers may cancel their own
// orders; owners may cancel any cancellable order.
type CancelOrderCommand struct {
	OrderID   string
	ActorID   string
	ActorRole UserRole
}
