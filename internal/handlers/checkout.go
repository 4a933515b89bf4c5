package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/platform/httpx"
	"github.com/greengrocer/api/internal/services"
)

// Quotes are cheap but hit Firestore for every product in the cart, so the
// endpoint carries a small per-user rate limit.
const (
	quoteRateLimit  = 30
	quoteRateWindow = time.Minute
)

// CheckoutHandlers serves the non-binding price preview endpoint. Order
// commits live under /orders.
type CheckoutHandlers struct {
	orders  services.OrderService
	limiter rateLimiter
}

// NewCheckoutHandlers constructs a new CheckoutHandlers instance.
func NewCheckoutHandlers(orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{
		orders:  orders,
		limiter: newSimpleRateLimiter(quoteRateLimit, quoteRateWindow, time.Now),
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(auth.RequireRole(auth.RoleCustomer)).Post("/quote", h.quote)
}

type quoteRequest struct {
	Lines      []orderLineRequest `json:"lines"`
	CouponCode *string            `json:"coupon_code"`
}

type quoteResponse struct {
	Lines        []orderItemPayload `json:"lines"`
	Breakdown    breakdownPayload   `json:"breakdown"`
	CouponNotice string             `json:"coupon_notice,omitempty"`
}

type breakdownPayload struct {
	Subtotal        int64 `json:"subtotal"`
	LoyaltyPercent  int64 `json:"loyalty_percent"`
	LoyaltyDiscount int64 `json:"loyalty_discount"`
	CouponDiscount  int64 `json:"coupon_discount"`
	VAT             int64 `json:"vat"`
	Total           int64 `json:"total"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
		return
	}

	var req quoteRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	result, err := h.orders.Quote(ctx, services.QuoteCommand{
		CustomerID: identity.UserID,
		Lines:      buildCartLines(req.Lines),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	lines := make([]orderItemPayload, 0, len(result.Lines))
	for _, line := range result.Lines {
		lines = append(lines, orderItemPayload{
			ProductID:  line.ProductID,
			Name:       line.Name,
			QuantityKg: domain.FormatKilograms(line.QuantityGrams),
			UnitPrice:  line.UnitPriceCents,
			LineTotal:  line.LineTotalCents,
		})
	}

	writeJSONResponse(w, http.StatusOK, quoteResponse{
		Lines: lines,
		Breakdown: breakdownPayload{
			Subtotal:        result.Breakdown.SubtotalCents,
			LoyaltyPercent:  result.Breakdown.LoyaltyPercent,
			LoyaltyDiscount: result.Breakdown.LoyaltyDiscountCents,
			CouponDiscount:  result.Breakdown.CouponDiscountCents,
			VAT:             result.Breakdown.VATCents,
			Total:           result.Breakdown.TotalCents,
		},
		CouponNotice: result.CouponNotice,
	})
}
