package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/repositories"
)

const (
	orderEventPlaced    = "order.placed"
	orderEventAssigned  = "order.assigned"
	orderEventDelivered = "order.delivered"
	orderEventCancelled = "order.cancelled"

	orderIDPrefix = "ord_"
	eventIDPrefix = "evt_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the status guard rejected the transition.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent mutation won the race.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor may not touch this order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInsufficientStock indicates a line asked for more than is on hand.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderBelowMinimum indicates the priced subtotal missed the minimum order value.
	ErrOrderBelowMinimum = errors.New("order: below minimum order value")
	// ErrOrderCouponNotHonourable indicates the requested coupon could not be applied at commit.
	ErrOrderCouponNotHonourable = errors.New("order: coupon not honourable")
	// ErrOrderUnavailable indicates the backing store could not serve the request.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	Coupons       repositories.CouponRepository
	Users         repositories.UserRepository
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
	RecordOutcome func(operation, outcome string)
}

type orderService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	coupons       repositories.CouponRepository
	users         repositories.UserRepository
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
	recordOutcome func(string, string)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	record := deps.RecordOutcome
	if record == nil {
		record = func(string, string) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		coupons:  deps.Coupons,
		users:    deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		events:        deps.Events,
		logger:        logger,
		recordOutcome: record,
	}, nil
}

// Quote prices a cart snapshot without committing anything. The arithmetic is
// the same pure computation the placement transaction runs, so an unchanged
// store yields identical numbers at commit time. A coupon that cannot be
// honoured is dropped with a notice rather than failing the preview.
func (s *orderService) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return QuoteResult{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	lines, err := normaliseCartLines(cmd.Lines)
	if err != nil {
		return QuoteResult{}, err
	}

	customer, err := s.users.FindByID(ctx, customerID)
	if err != nil {
		return QuoteResult{}, s.mapRepositoryError("quote", err)
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return QuoteResult{}, s.mapRepositoryError("quote", err)
	}

	items := make([]LineItem, len(lines))
	var subtotal int64
	for i, line := range lines {
		unitPrice := domain.EffectiveUnitPrice(products[i])
		lineTotal := domain.LineTotal(unitPrice, line.QuantityGrams)
		items[i] = LineItem{
			ProductID:      line.ProductID,
			Name:           products[i].Name,
			QuantityGrams:  line.QuantityGrams,
			UnitPriceCents: unitPrice,
			LineTotalCents: lineTotal,
		}
		subtotal += lineTotal
	}

	now := s.clock()
	result := QuoteResult{Lines: items}

	var coupon *domain.Coupon
	if code := trimmedPtr(cmd.CouponCode); code != nil {
		found, err := s.coupons.FindByCode(ctx, *code)
		switch {
		case isNotFound(err):
			result.CouponNotice = fmt.Sprintf("coupon %q does not exist and was not applied", *code)
		case err != nil:
			return QuoteResult{}, s.mapRepositoryError("quote", err)
		default:
			coupon = &found
		}
	}

	result.Breakdown = domain.ComputeTotals(subtotal, customer.DeliveredOrders, coupon, now)
	if coupon != nil && !result.Breakdown.CouponApplied {
		result.CouponNotice = fmt.Sprintf("coupon %q was not applied: %s", coupon.Code, result.Breakdown.CouponReject)
	}

	return result, nil
}

// Place commits a cart snapshot into an order. Validation that needs no store
// state happens here; pricing, stock, coupon, and minimum-order checks run
// inside the repository transaction so they observe a consistent snapshot.
func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	lines, err := normaliseCartLines(cmd.Lines)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	if !cmd.DeliveryDue.After(now) {
		return Order{}, fmt.Errorf("%w: delivery slot must be in the future", ErrOrderInvalidInput)
	}
	if cmd.DeliveryDue.After(now.Add(domain.DeliveryWindow)) {
		return Order{}, fmt.Errorf("%w: delivery slot must be within %s", ErrOrderInvalidInput, domain.DeliveryWindow)
	}

	customer, err := s.users.FindByID(ctx, customerID)
	if err != nil {
		return Order{}, s.mapRepositoryError("place", err)
	}
	if customer.Role != domain.RoleCustomer {
		return Order{}, fmt.Errorf("%w: only customers place orders", ErrOrderForbidden)
	}

	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		OrderID:     s.nextOrderID(),
		CustomerID:  customerID,
		Lines:       lines,
		DeliveryDue: cmd.DeliveryDue.UTC(),
		CouponCode:  trimmedPtr(cmd.CouponCode),
		Now:         now,
	})
	if err != nil {
		s.recordOutcome("place", "rejected")
		return Order{}, s.mapRepositoryError("place", err)
	}

	s.recordOutcome("place", "committed")
	s.publishEvent(ctx, orderEventPlaced, order)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError("get", err)
	}
	if err := authoriseOrderRead(order, cmd.ActorID, cmd.ActorRole); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError("list", err)
	}
	return page, nil
}

// Assign lets a carrier claim a created order. The repository applies the
// conditional status update, so when two carriers race exactly one wins and
// the other receives a conflict.
func (s *orderService) Assign(ctx context.Context, cmd AssignOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	carrierID := strings.TrimSpace(cmd.CarrierID)
	if orderID == "" || carrierID == "" {
		return Order{}, fmt.Errorf("%w: order id and carrier id are required", ErrOrderInvalidInput)
	}

	carrier, err := s.users.FindByID(ctx, carrierID)
	if err != nil {
		return Order{}, s.mapRepositoryError("assign", err)
	}
	if carrier.Role != domain.RoleCarrier {
		return Order{}, fmt.Errorf("%w: only carriers claim orders", ErrOrderForbidden)
	}

	order, err := s.orders.Transition(ctx, repositories.StatusTransition{
		OrderID:         orderID,
		To:              domain.OrderStatusAssigned,
		AssignCarrierID: &carrierID,
		Now:             s.clock(),
	})
	if err != nil {
		s.recordOutcome("assign", "rejected")
		return Order{}, s.mapRepositoryError("assign", err)
	}

	s.recordOutcome("assign", "committed")
	s.publishEvent(ctx, orderEventAssigned, order)
	return order, nil
}

// Deliver completes an assigned order. Only the assigned carrier may deliver;
// the repository verifies that against the stored carrier inside the
// transaction and bumps the customer's delivered-order count.
func (s *orderService) Deliver(ctx context.Context, cmd DeliverOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	carrierID := strings.TrimSpace(cmd.CarrierID)
	if orderID == "" || carrierID == "" {
		return Order{}, fmt.Errorf("%w: order id and carrier id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.Transition(ctx, repositories.StatusTransition{
		OrderID:         orderID,
		To:              domain.OrderStatusDelivered,
		ExpectCarrierID: &carrierID,
		Now:             s.clock(),
	})
	if err != nil {
		s.recordOutcome("deliver", "rejected")
		return Order{}, s.mapRepositoryError("deliver", err)
	}

	s.recordOutcome("deliver", "committed")
	s.publishEvent(ctx, orderEventDelivered, order)
	return order, nil
}

// Cancel reverses an order. Customers may cancel their own orders, owners any
// cancellable order. The guard, the restock, and the balance credit all apply
// inside one repository transaction.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	switch cmd.ActorRole {
	case domain.RoleOwner:
	case domain.RoleCustomer:
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return Order{}, s.mapRepositoryError("cancel", err)
		}
		if order.CustomerID != cmd.ActorID {
			return Order{}, fmt.Errorf("%w: customers cancel only their own orders", ErrOrderForbidden)
		}
	default:
		return Order{}, fmt.Errorf("%w: role %q cannot cancel orders", ErrOrderForbidden, cmd.ActorRole)
	}

	order, err := s.orders.Cancel(ctx, repositories.CancelOrderRequest{
		OrderID: orderID,
		Now:     s.clock(),
	})
	if err != nil {
		s.recordOutcome("cancel", "rejected")
		return Order{}, s.mapRepositoryError("cancel", err)
	}

	s.recordOutcome("cancel", "committed")
	s.publishEvent(ctx, orderEventCancelled, order)
	return order, nil
}

// normaliseCartLines trims, parses, and merges the raw checkout lines.
// Duplicate product references collapse into one line with summed quantity.
func normaliseCartLines(inputs []CartLineInput) ([]domain.CartLine, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: cart must contain at least one line", ErrOrderInvalidInput)
	}

	index := make(map[string]int, len(inputs))
	lines := make([]domain.CartLine, 0, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: product id is required on every line", ErrOrderInvalidInput)
		}
		grams, err := domain.ParseKilograms(input.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: product %s: %v", ErrOrderInvalidInput, productID, err)
		}
		if at, ok := index[productID]; ok {
			lines[at].QuantityGrams += grams
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, domain.CartLine{ProductID: productID, QuantityGrams: grams})
	}
	return lines, nil
}

func authoriseOrderRead(order Order, actorID string, role UserRole) error {
	switch role {
	case domain.RoleOwner:
		return nil
	case domain.RoleCustomer:
		if order.CustomerID == actorID {
			return nil
		}
	case domain.RoleCarrier:
		if order.Status == domain.OrderStatusCreated {
			return nil
		}
		if order.CarrierID != nil && *order.CarrierID == actorID {
			return nil
		}
	}
	return fmt.Errorf("%w: order is not visible to this actor", ErrOrderForbidden)
}

// mapRepositoryError translates typed transaction failures and generic
// repository categories into the service's sentinel errors.
func (s *orderService) mapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, orderErr.Message)
		case repositories.OrderErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, orderErr.Message)
		case repositories.OrderErrorBelowMinimum:
			return fmt.Errorf("%w: %s", ErrOrderBelowMinimum, orderErr.Message)
		case repositories.OrderErrorCouponNotHonourable:
			return fmt.Errorf("%w: %s", ErrOrderCouponNotHonourable, orderErr.Message)
		case repositories.OrderErrorIllegalTransition:
			return fmt.Errorf("%w: %s", ErrOrderInvalidState, orderErr.Message)
		case repositories.OrderErrorCarrierMismatch:
			return fmt.Errorf("%w: %s", ErrOrderForbidden, orderErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return fmt.Errorf("order: %s: %w", op, err)
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEventMessage{
		EventID:     eventIDPrefix + s.newID(),
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		CustomerID:  order.CustomerID,
		CarrierID:   order.CarrierID,
		Status:      string(order.Status),
		TotalCents:  order.Totals.TotalCents,
		OccurredAt:  s.clock(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
