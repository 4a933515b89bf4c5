package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/greengrocer/api/internal/domain"
	pfirestore "github.com/greengrocer/api/internal/platform/firestore"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/repositories"
)

const (
	orderCollection   = "orders"
	counterCollection = "counters"
	orderCounterDoc   = "orders"
)

// OrderRepository owns the transactional primitives of the order lifecycle.
// Every mutation runs as one Firestore transaction: the guards evaluate
// against the stock, coupon, and status state read inside the transaction,
// and either every write lands or none do. Firestore requires all reads to
// happen before the first write, so each method front-loads its reads.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Place commits a checkout snapshot. Inside one transaction it prices every
// line against current stock, enforces the minimum order value, settles the
// coupon, decrements stock, allocates the next order number, and writes the
// order with its immutable item snapshot.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, errors.New("order lines are required")
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		if _, dup := seen[line.ProductID]; dup {
			return domain.Order{}, fmt.Errorf("duplicate line for product %q", line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
	}

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// Reads first: products, coupon, customer, counter.
		productRefs := make([]*firestore.DocumentRef, len(req.Lines))
		for i, line := range req.Lines {
			productRefs[i] = client.Collection(productCollection).Doc(line.ProductID)
		}
		productSnaps, err := tx.GetAll(productRefs)
		if err != nil {
			return err
		}

		var coupon *domain.Coupon
		if req.CouponCode != nil {
			code := normaliseCouponCode(*req.CouponCode)
			snap, err := tx.Get(client.Collection(couponCollection).Doc(code))
			switch {
			case status.Code(err) == codes.NotFound:
				return &repositories.OrderError{
					Op:      "orders.place",
					Code:    repositories.OrderErrorCouponNotHonourable,
					Message: fmt.Sprintf("coupon %q does not exist", code),
				}
			case err != nil:
				return err
			default:
				var doc couponDocument
				if err := snap.DataTo(&doc); err != nil {
					return err
				}
				c := doc.toDomain(snap.Ref.ID)
				coupon = &c
			}
		}

		customerRef := client.Collection(userCollection).Doc(req.CustomerID)
		customerSnap, err := tx.Get(customerRef)
		if err != nil {
			return err
		}
		var customer userDocument
		if err := customerSnap.DataTo(&customer); err != nil {
			return err
		}

		counterRef := client.Collection(counterCollection).Doc(orderCounterDoc)
		counterSnap, err := tx.Get(counterRef)
		var counter orderCounterDocument
		switch {
		case status.Code(err) == codes.NotFound:
			// First order ever; the counter document is created below.
		case err != nil:
			return err
		default:
			if err := counterSnap.DataTo(&counter); err != nil {
				return err
			}
		}

		// Price each line against the stock state just read.
		items := make([]orderItemDocument, 0, len(req.Lines))
		updatedProducts := make([]productDocument, len(req.Lines))
		var subtotal int64
		for i, line := range req.Lines {
			snap := productSnaps[i]
			if !snap.Exists() {
				return &repositories.OrderError{
					Op:        "orders.place",
					Code:      repositories.OrderErrorProductNotFound,
					ProductID: line.ProductID,
					Message:   fmt.Sprintf("product %q does not exist", line.ProductID),
				}
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.StockGrams < line.QuantityGrams {
				return &repositories.OrderError{
					Op:        "orders.place",
					Code:      repositories.OrderErrorInsufficientStock,
					ProductID: line.ProductID,
					Message:   fmt.Sprintf("product %q has %dg on hand, %dg requested", line.ProductID, doc.StockGrams, line.QuantityGrams),
				}
			}

			unitPrice := domain.EffectiveUnitPrice(doc.toDomain(snap.Ref.ID))
			lineTotal := domain.LineTotal(unitPrice, line.QuantityGrams)
			subtotal += lineTotal

			items = append(items, orderItemDocument{
				ProductID:      snap.Ref.ID,
				Name:           doc.Name,
				QuantityGrams:  line.QuantityGrams,
				UnitPriceCents: unitPrice,
				LineTotalCents: lineTotal,
			})

			doc.StockGrams -= line.QuantityGrams
			doc.UpdatedAt = req.Now
			doc.recalculate()
			updatedProducts[i] = doc
		}

		if subtotal < domain.MinOrderSubtotalCents {
			return &repositories.OrderError{
				Op:      "orders.place",
				Code:    repositories.OrderErrorBelowMinimum,
				Message: fmt.Sprintf("subtotal %d is below the minimum order value %d", subtotal, domain.MinOrderSubtotalCents),
			}
		}

		breakdown := domain.ComputeTotals(subtotal, customer.DeliveredOrders, coupon, req.Now)
		if coupon != nil && !breakdown.CouponApplied {
			return &repositories.OrderError{
				Op:           "orders.place",
				Code:         repositories.OrderErrorCouponNotHonourable,
				CouponReject: breakdown.CouponReject,
				Message:      fmt.Sprintf("coupon %q cannot be honoured: %s", coupon.Code, breakdown.CouponReject),
			}
		}

		counter.advance(req.Now)
		number := counter.orderNumber()

		var couponCode *string
		if coupon != nil {
			code := coupon.Code
			couponCode = &code
		}
		order := orderDocument{
			Number:               number,
			CustomerID:           req.CustomerID,
			Status:               string(domain.OrderStatusCreated),
			PlacedAt:             req.Now,
			DeliveryDue:          req.DeliveryDue,
			CouponCode:           couponCode,
			SubtotalCents:        breakdown.SubtotalCents,
			LoyaltyPercent:       breakdown.LoyaltyPercent,
			LoyaltyDiscountCents: breakdown.LoyaltyDiscountCents,
			CouponDiscountCents:  breakdown.CouponDiscountCents,
			VATCents:             breakdown.VATCents,
			TotalCents:           breakdown.TotalCents,
			Items:                items,
			CreatedAt:            req.Now,
			UpdatedAt:            req.Now,
		}

		// Writes after all reads.
		for i, doc := range updatedProducts {
			if err := tx.Set(productRefs[i], doc); err != nil {
				return err
			}
		}
		if err := tx.Set(counterRef, counter); err != nil {
			return err
		}
		orderRef := client.Collection(orderCollection).Doc(req.OrderID)
		if err := tx.Create(orderRef, order); err != nil {
			return err
		}

		placed = order.toDomain(req.OrderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return placed, nil
}

// Transition applies the guarded status move used by assign and deliver:
// the write happens only when the stored status legally admits the target.
// Delivery additionally checks the caller is the assigned carrier and bumps
// the customer's delivered-order counter for the loyalty tiers.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.StatusTransition) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if req.To != domain.OrderStatusAssigned && req.To != domain.OrderStatusDelivered {
		return domain.Order{}, fmt.Errorf("unsupported transition target %q", req.To)
	}
	if req.To == domain.OrderStatusAssigned && req.AssignCarrierID == nil {
		return domain.Order{}, errors.New("assign requires a carrier id")
	}
	if req.To == domain.OrderStatusDelivered && req.ExpectCarrierID == nil {
		return domain.Order{}, errors.New("deliver requires the acting carrier id")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		orderRef := client.Collection(orderCollection).Doc(req.OrderID)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var order orderDocument
		if err := snap.DataTo(&order); err != nil {
			return err
		}

		current := domain.OrderStatus(order.Status)
		if !domain.CanTransition(current, req.To) {
			return &repositories.OrderError{
				Op:            "orders.transition",
				Code:          repositories.OrderErrorIllegalTransition,
				CurrentStatus: current,
				Message:       fmt.Sprintf("cannot move order from %s to %s", current, req.To),
			}
		}

		var customerRef *firestore.DocumentRef
		var customer userDocument
		if req.To == domain.OrderStatusDelivered {
			if order.CarrierID == nil || *order.CarrierID != *req.ExpectCarrierID {
				return &repositories.OrderError{
					Op:            "orders.transition",
					Code:          repositories.OrderErrorCarrierMismatch,
					CurrentStatus: current,
					Message:       "order is not assigned to the acting carrier",
				}
			}
			customerRef = client.Collection(userCollection).Doc(order.CustomerID)
			customerSnap, err := tx.Get(customerRef)
			if err != nil {
				return err
			}
			if err := customerSnap.DataTo(&customer); err != nil {
				return err
			}
		}

		order.Status = string(req.To)
		order.UpdatedAt = req.Now
		switch req.To {
		case domain.OrderStatusAssigned:
			carrier := *req.AssignCarrierID
			order.CarrierID = &carrier
		case domain.OrderStatusDelivered:
			deliveredAt := req.Now
			order.DeliveredAt = &deliveredAt
		}

		if err := tx.Set(orderRef, order); err != nil {
			return err
		}
		if customerRef != nil {
			customer.DeliveredOrders++
			customer.UpdatedAt = req.Now
			if err := tx.Set(customerRef, customer); err != nil {
				return err
			}
		}

		updated = order.toDomain(req.OrderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// Cancel reverses an order: the same status guard runs first, then every
// line's quantity returns to stock and the committed total is credited to the
// customer's balance, all in one transaction.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.CancelOrderRequest) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	var cancelled domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		orderRef := client.Collection(orderCollection).Doc(req.OrderID)
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var order orderDocument
		if err := snap.DataTo(&order); err != nil {
			return err
		}

		current := domain.OrderStatus(order.Status)
		if !domain.CanTransition(current, domain.OrderStatusCancelled) {
			return &repositories.OrderError{
				Op:            "orders.cancel",
				Code:          repositories.OrderErrorIllegalTransition,
				CurrentStatus: current,
				Message:       fmt.Sprintf("cannot cancel order in status %s", current),
			}
		}

		productRefs := make([]*firestore.DocumentRef, len(order.Items))
		for i, item := range order.Items {
			productRefs[i] = client.Collection(productCollection).Doc(item.ProductID)
		}
		productSnaps, err := tx.GetAll(productRefs)
		if err != nil {
			return err
		}

		customerRef := client.Collection(userCollection).Doc(order.CustomerID)
		customerSnap, err := tx.Get(customerRef)
		if err != nil {
			return err
		}
		var customer userDocument
		if err := customerSnap.DataTo(&customer); err != nil {
			return err
		}

		order.Status = string(domain.OrderStatusCancelled)
		order.UpdatedAt = req.Now
		if err := tx.Set(orderRef, order); err != nil {
			return err
		}

		for i, item := range order.Items {
			if !productSnaps[i].Exists() {
				return &repositories.OrderError{
					Op:        "orders.cancel",
					Code:      repositories.OrderErrorProductNotFound,
					ProductID: item.ProductID,
					Message:   fmt.Sprintf("product %q no longer exists, cannot restock", item.ProductID),
				}
			}
			var doc productDocument
			if err := productSnaps[i].DataTo(&doc); err != nil {
				return err
			}
			doc.StockGrams += item.QuantityGrams
			doc.UpdatedAt = req.Now
			doc.recalculate()
			if err := tx.Set(productRefs[i], doc); err != nil {
				return err
			}
		}

		customer.BalanceCents += order.TotalCents
		customer.UpdatedAt = req.Now
		if err := tx.Set(customerRef, customer); err != nil {
			return err
		}

		cancelled = order.toDomain(req.OrderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return cancelled, nil
}

// FindByID loads a single order with its item snapshot.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest-first, filtered per actor.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	startAfter, err := decodeOrderCursor(filter.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			query = query.Where("customerId", "==", filter.CustomerID)
		}
		if filter.CarrierID != "" {
			query = query.Where("carrierId", "==", filter.CarrierID)
		}
		if filter.Status != nil {
			query = query.Where("status", "==", string(*filter.Status))
		}
		query = query.OrderBy("placedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != nil {
			query = query.StartAfter(startAfter.placedAt, startAfter.orderID)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[i-1]
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{
				last.Data.PlacedAt.UTC().Format(time.RFC3339Nano),
				last.ID,
			}})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type orderCursor struct {
	placedAt time.Time
	orderID  string
}

// decodeOrderCursor rehydrates the [placedAt, orderID] cursor pair, parsing
// the timestamp back from its JSON string form.
func decodeOrderCursor(token string) (*orderCursor, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	placedAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	orderID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	return &orderCursor{placedAt: placedAt, orderID: orderID}, nil
}

type orderDocument struct {
	Number               string              `firestore:"number"`
	CustomerID           string              `firestore:"customerId"`
	CarrierID            *string             `firestore:"carrierId"`
	Status               string              `firestore:"status"`
	PlacedAt             time.Time           `firestore:"placedAt"`
	DeliveryDue          time.Time           `firestore:"deliveryDue"`
	DeliveredAt          *time.Time          `firestore:"deliveredAt"`
	CouponCode           *string             `firestore:"couponCode"`
	SubtotalCents        int64               `firestore:"subtotalCents"`
	LoyaltyPercent       int64               `firestore:"loyaltyPercent"`
	LoyaltyDiscountCents int64               `firestore:"loyaltyDiscountCents"`
	CouponDiscountCents  int64               `firestore:"couponDiscountCents"`
	VATCents             int64               `firestore:"vatCents"`
	TotalCents           int64               `firestore:"totalCents"`
	Items                []orderItemDocument `firestore:"items"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID      string `firestore:"productId"`
	Name           string `firestore:"name"`
	QuantityGrams  int64  `firestore:"quantityGrams"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
	LineTotalCents int64  `firestore:"lineTotalCents"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.LineItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.LineItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			QuantityGrams:  item.QuantityGrams,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return domain.Order{
		ID:          id,
		Number:      d.Number,
		CustomerID:  d.CustomerID,
		CarrierID:   d.CarrierID,
		Status:      domain.OrderStatus(d.Status),
		PlacedAt:    d.PlacedAt,
		DeliveryDue: d.DeliveryDue,
		DeliveredAt: d.DeliveredAt,
		CouponCode:  d.CouponCode,
		Totals: domain.OrderTotals{
			SubtotalCents:        d.SubtotalCents,
			LoyaltyPercent:       d.LoyaltyPercent,
			LoyaltyDiscountCents: d.LoyaltyDiscountCents,
			CouponDiscountCents:  d.CouponDiscountCents,
			VATCents:             d.VATCents,
			TotalCents:           d.TotalCents,
		},
		Items:     items,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// orderCounterDocument allocates human-readable order numbers. The sequence
// resets each calendar year.
type orderCounterDocument struct {
	Year     int64 `firestore:"year"`
	Sequence int64 `firestore:"sequence"`
}

func (c *orderCounterDocument) advance(now time.Time) {
	year := int64(now.UTC().Year())
	if c.Year != year {
		c.Year = year
		c.Sequence = 0
	}
	c.Sequence++
}

func (c orderCounterDocument) orderNumber() string {
	return fmt.Sprintf("GG-%04d-%06d", c.Year, c.Sequence)
}
