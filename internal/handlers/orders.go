package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/platform/httpx"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
	pager  pagination.Options
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, pager pagination.Options) *OrderHandlers {
	return &OrderHandlers{orders: orders, pager: pager}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(auth.RequireRole(auth.RoleCustomer)).Post("/", h.placeOrder)
	r.With(auth.RequireRole()).Get("/", h.listOrders)
	r.With(auth.RequireRole()).Get("/{orderID}", h.getOrder)
	r.With(auth.RequireRole(auth.RoleCarrier)).Post("/{orderID}:assign", h.assignOrder)
	r.With(auth.RequireRole(auth.RoleCarrier)).Post("/{orderID}:deliver", h.deliverOrder)
	r.With(auth.RequireRole(auth.RoleCustomer, auth.RoleOwner)).Post("/{orderID}:cancel", h.cancelOrder)
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  string `json:"quantity_kg"`
}

type placeOrderRequest struct {
	Lines       []orderLineRequest `json:"lines"`
	DeliveryDue string             `json:"delivery_due"`
	CouponCode  *string            `json:"coupon_code"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	due, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DeliveryDue))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delivery_due must be a valid RFC3339 timestamp", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Place(ctx, services.PlaceOrderCommand{
		CustomerID:  identity.UserID,
		Lines:       buildCartLines(req.Lines),
		DeliveryDue: due,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	pager, ok := parsePager(ctx, w, r, h.pager)
	if !ok {
		return
	}

	filter := services.OrderListFilter{Pager: pager}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, valid := parseOrderStatus(raw)
		if !valid {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}

	// Customers see their own orders, carriers their assignments (or the
	// unassigned pool when filtering on CREATED), owners everything.
	switch {
	case identity.HasRole(auth.RoleCustomer):
		filter.CustomerID = identity.UserID
	case identity.HasRole(auth.RoleCarrier):
		if filter.Status == nil || *filter.Status != domain.OrderStatusCreated {
			filter.CarrierID = identity.UserID
		}
	case identity.HasRole(auth.RoleOwner):
	default:
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient role", http.StatusForbidden))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:   orderID,
		ActorID:   identity.UserID,
		ActorRole: domain.UserRole(identity.Role),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) assignOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Assign(ctx, services.AssignOrderCommand{
		OrderID:   orderID,
		CarrierID: identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) deliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Deliver(ctx, services.DeliverOrderCommand{
		OrderID:   orderID,
		CarrierID: identity.UserID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:   orderID,
		ActorID:   identity.UserID,
		ActorRole: domain.UserRole(identity.Role),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	CustomerID  string             `json:"customer_id"`
	CarrierID   *string            `json:"carrier_id,omitempty"`
	Status      string             `json:"status"`
	PlacedAt    string             `json:"placed_at"`
	DeliveryDue string             `json:"delivery_due"`
	DeliveredAt string             `json:"delivered_at,omitempty"`
	CouponCode  *string            `json:"coupon_code,omitempty"`
	Totals      orderTotalsPayload `json:"totals"`
	Items       []orderItemPayload `json:"items"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal        int64 `json:"subtotal"`
	LoyaltyPercent  int64 `json:"loyalty_percent"`
	LoyaltyDiscount int64 `json:"loyalty_discount"`
	CouponDiscount  int64 `json:"coupon_discount"`
	VAT             int64 `json:"vat"`
	Total           int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name,omitempty"`
	QuantityKg string `json:"quantity_kg"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
}

func buildOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:  item.ProductID,
			Name:       item.Name,
			QuantityKg: domain.FormatKilograms(item.QuantityGrams),
			UnitPrice:  item.UnitPriceCents,
			LineTotal:  item.LineTotalCents,
		})
	}
	return orderPayload{
		ID:          order.ID,
		Number:      order.Number,
		CustomerID:  order.CustomerID,
		CarrierID:   order.CarrierID,
		Status:      string(order.Status),
		PlacedAt:    formatTime(order.PlacedAt),
		DeliveryDue: formatTime(order.DeliveryDue),
		DeliveredAt: formatTimePtr(order.DeliveredAt),
		CouponCode:  order.CouponCode,
		Totals: orderTotalsPayload{
			Subtotal:        order.Totals.SubtotalCents,
			LoyaltyPercent:  order.Totals.LoyaltyPercent,
			LoyaltyDiscount: order.Totals.LoyaltyDiscountCents,
			CouponDiscount:  order.Totals.CouponDiscountCents,
			VAT:             order.Totals.VATCents,
			Total:           order.Totals.TotalCents,
		},
		Items:     items,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
}

func buildCartLines(lines []orderLineRequest) []services.CartLineInput {
	out := make([]services.CartLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, services.CartLineInput{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}
	return out
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case domain.OrderStatusCreated, domain.OrderStatusAssigned, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// writeOrderError maps service sentinels onto the error envelope.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_input", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("order_below_minimum", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderCouponNotHonourable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_honourable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
