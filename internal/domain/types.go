package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ProductCategory groups products for the storefront listing.
type ProductCategory string

const (
	// CategoryVegetable marks vegetable produce.
	CategoryVegetable ProductCategory = "vegetable"
	// CategoryFruit marks fruit produce.
	CategoryFruit ProductCategory = "fruit"
	// CategoryOther marks everything else on the shelves.
	CategoryOther ProductCategory = "other"
)

// Product is a catalogue entry sold by weight. Prices are per kilogram in
// minor currency units; stock and threshold are held in grams.
type Product struct {
	ID             string
	Name           string
	Category       ProductCategory
	UnitPriceCents int64
	StockGrams     int64
	ThresholdGrams int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LowStock reports whether on-hand stock has fallen to or below the
// configured threshold, which doubles the effective price.
func (p Product) LowStock() bool {
	return p.StockGrams <= p.ThresholdGrams
}

// OrderStatus enumerates the delivery lifecycle states.
type OrderStatus string

const (
	// OrderStatusCreated is the initial state after checkout commits.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusAssigned means a carrier has claimed the order.
	OrderStatusAssigned OrderStatus = "ASSIGNED"
	// OrderStatusDelivered is terminal; the assigned carrier completed the run.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled is terminal; stock and balance effects were reversed.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// orderTransitions lists the legal next states per status. Anything absent is
// an illegal transition.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:  {OrderStatusAssigned, OrderStatusCancelled},
	OrderStatusAssigned: {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// LineItem is a priced order line. UnitPriceCents is the per-kilogram price
// applied at commit time and never changes afterwards, regardless of later
// product price edits.
type LineItem struct {
	ProductID      string
	Name           string
	QuantityGrams  int64
	UnitPriceCents int64
	LineTotalCents int64
}

// OrderTotals is the committed money breakdown for an order.
type OrderTotals struct {
	SubtotalCents        int64
	LoyaltyPercent       int64
	LoyaltyDiscountCents int64
	CouponDiscountCents  int64
	VATCents             int64
	TotalCents           int64
}

// Order is the durable record produced by checkout. Items and totals are
// immutable once written; only status, carrier, and delivery metadata move.
type Order struct {
	ID          string
	Number      string
	CustomerID  string
	CarrierID   *string
	Status      OrderStatus
	PlacedAt    time.Time
	DeliveryDue time.Time
	DeliveredAt *time.Time
	CouponCode  *string
	Totals      OrderTotals
	Items       []LineItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CouponKind distinguishes fixed-amount from percentage coupons.
type CouponKind string

const (
	// CouponAmount discounts a fixed number of minor units.
	CouponAmount CouponKind = "AMOUNT"
	// CouponPercent discounts a whole-number percentage of the eligible base.
	CouponPercent CouponKind = "PERCENT"
)

// Coupon is an owner-administered discount code. Value is minor units for
// AMOUNT coupons and a whole percentage for PERCENT coupons.
type Coupon struct {
	ID               string
	Code             string
	Kind             CouponKind
	Value            int64
	MinSubtotalCents int64
	Active           bool
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the coupon's expiry has passed at the given time.
func (c Coupon) Expired(at time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(at)
}

// UserRole tags a user record with its capabilities.
type UserRole string

const (
	// RoleCustomer places orders and holds a refundable balance.
	RoleCustomer UserRole = "customer"
	// RoleCarrier claims and delivers orders.
	RoleCarrier UserRole = "carrier"
	// RoleOwner administers the catalogue and coupons.
	RoleOwner UserRole = "owner"
)

// User is a single account record carrying a role tag. Balance and delivered
// order count are only meaningful for customers; carriers and owners leave
// them at zero.
type User struct {
	ID              string
	Role            UserRole
	DisplayName     string
	Email           string
	BalanceCents    int64
	DeliveredOrders int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CartLine is one requested (product, quantity) pair in a checkout snapshot.
// Carts themselves live client-side; the engine only ever sees this snapshot.
type CartLine struct {
	ProductID     string
	QuantityGrams int64
}
