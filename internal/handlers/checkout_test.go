package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/services"
)

func newCheckoutTestRouter(svc services.OrderService) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route("/checkout", NewCheckoutHandlers(svc).Routes)
	return r
}

func TestCheckoutHandlersQuote(t *testing.T) {
	var captured services.QuoteCommand
	svc := &stubOrderService{
		quoteFn: func(_ context.Context, cmd services.QuoteCommand) (services.QuoteResult, error) {
			captured = cmd
			return services.QuoteResult{
				Lines: []domain.LineItem{
					{ProductID: "prd_a", Name: "Carrots", QuantityGrams: 2500, UnitPriceCents: 8000, LineTotalCents: 20000},
				},
				Breakdown: domain.TotalsBreakdown{
					SubtotalCents:        20000,
					LoyaltyPercent:       10,
					LoyaltyDiscountCents: 2000,
					CouponDiscountCents:  1800,
					VATCents:             3240,
					TotalCents:           19440,
					CouponApplied:        true,
				},
			}, nil
		},
	}
	router := newCheckoutTestRouter(svc)

	payload := `{"lines":[{"product_id":"prd_a","quantity_kg":"2.5"}],"coupon_code":"SPRING10"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(payload))
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "usr_cust" {
		t.Fatalf("expected customer from identity, got %q", captured.CustomerID)
	}

	var body struct {
		Lines []struct {
			QuantityKg string `json:"quantity_kg"`
			LineTotal  int64  `json:"line_total"`
		} `json:"lines"`
		Breakdown struct {
			Subtotal        int64 `json:"subtotal"`
			LoyaltyPercent  int64 `json:"loyalty_percent"`
			LoyaltyDiscount int64 `json:"loyalty_discount"`
			CouponDiscount  int64 `json:"coupon_discount"`
			VAT             int64 `json:"vat"`
			Total           int64 `json:"total"`
		} `json:"breakdown"`
		CouponNotice string `json:"coupon_notice"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Lines) != 1 || body.Lines[0].QuantityKg != "2.5" || body.Lines[0].LineTotal != 20000 {
		t.Fatalf("unexpected lines %#v", body.Lines)
	}
	if body.Breakdown.Total != 19440 || body.Breakdown.VAT != 3240 || body.Breakdown.CouponDiscount != 1800 {
		t.Fatalf("unexpected breakdown %#v", body.Breakdown)
	}
	if body.CouponNotice != "" {
		t.Fatalf("expected no coupon notice, got %q", body.CouponNotice)
	}
}

func TestCheckoutHandlersQuoteSurfacesCouponNotice(t *testing.T) {
	svc := &stubOrderService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.QuoteResult, error) {
			return services.QuoteResult{
				Breakdown:    domain.TotalsBreakdown{SubtotalCents: 6000, VATCents: 1200, TotalCents: 7200},
				CouponNotice: `coupon "EXPIRED1" was not applied: expired`,
			}, nil
		},
	}
	router := newCheckoutTestRouter(svc)

	payload := `{"lines":[{"product_id":"prd_a","quantity_kg":"1"}],"coupon_code":"EXPIRED1"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(payload))
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		CouponNotice string `json:"coupon_notice"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !strings.Contains(body.CouponNotice, "expired") {
		t.Fatalf("expected expiry notice, got %q", body.CouponNotice)
	}
}

func TestCheckoutHandlersQuoteRequiresCustomerRole(t *testing.T) {
	router := newCheckoutTestRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(`{}`))
	req.Header.Set(auth.HeaderUserID, "usr_owner")
	req.Header.Set(auth.HeaderUserRole, auth.RoleOwner)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestCheckoutHandlersQuoteRateLimitsPerUser(t *testing.T) {
	svc := &stubOrderService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.QuoteResult, error) {
			return services.QuoteResult{Breakdown: domain.TotalsBreakdown{SubtotalCents: 6000, VATCents: 1200, TotalCents: 7200}}, nil
		},
	}
	h := NewCheckoutHandlers(svc)
	h.limiter = newSimpleRateLimiter(2, time.Minute, nil)

	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route("/checkout", h.Routes)

	send := func(userID string) int {
		payload := `{"lines":[{"product_id":"prd_a","quantity_kg":"1"}]}`
		req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(payload))
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("usr_cust"); code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, code)
		}
	}
	if code := send("usr_cust"); code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 once limit exhausted, got %d", code)
	}
	if code := send("usr_other"); code != http.StatusOK {
		t.Fatalf("expected other users to be unaffected, got %d", code)
	}
}

func TestCheckoutHandlersQuoteMapsInvalidInput(t *testing.T) {
	svc := &stubOrderService{
		quoteFn: func(context.Context, services.QuoteCommand) (services.QuoteResult, error) {
			return services.QuoteResult{}, services.ErrOrderInvalidInput
		},
	}
	router := newCheckoutTestRouter(svc)

	payload := `{"lines":[{"product_id":"prd_a","quantity_kg":"0"}]}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(payload))
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
}
