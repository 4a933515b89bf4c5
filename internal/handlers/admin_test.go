package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/auth"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/services"
)

type stubCouponService struct {
	createFn func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	updateFn func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	getFn    func(context.Context, string) (services.Coupon, error)
	listFn   func(context.Context, services.Pagination) (domain.CursorPage[services.Coupon], error)
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) GetCoupon(ctx context.Context, code string) (services.Coupon, error) {
	if s.getFn != nil {
		return s.getFn(ctx, code)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) ListCoupons(ctx context.Context, pager services.Pagination) (domain.CursorPage[services.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, pager)
	}
	return domain.CursorPage[services.Coupon]{}, nil
}

var _ services.CouponService = (*stubCouponService)(nil)

type stubUserService struct {
	registerFn func(context.Context, services.RegisterUserCommand) (services.User, error)
	updateFn   func(context.Context, services.UpdateUserCommand) (services.User, error)
	getFn      func(context.Context, string) (services.User, error)
	listFn     func(context.Context, *services.UserRole, services.Pagination) (domain.CursorPage[services.User], error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, cmd)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateUserCommand) (services.User, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) GetUser(ctx context.Context, userID string) (services.User, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) ListUsers(ctx context.Context, role *services.UserRole, pager services.Pagination) (domain.CursorPage[services.User], error) {
	if s.listFn != nil {
		return s.listFn(ctx, role, pager)
	}
	return domain.CursorPage[services.User]{}, nil
}

var _ services.UserService = (*stubUserService)(nil)

func newAdminTestRouter(catalog services.CatalogService, coupons services.CouponService, users services.UserService) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	r.Route("/admin", func(group chi.Router) {
		group.Use(auth.RequireRole(auth.RoleOwner))
		NewAdminHandlers(catalog, coupons, users, pagination.Options{}).Routes(group)
	})
	return r
}

func asOwner(req *http.Request) *http.Request {
	req.Header.Set(auth.HeaderUserID, "usr_owner")
	req.Header.Set(auth.HeaderUserRole, auth.RoleOwner)
	return req
}

func TestAdminHandlersRejectNonOwner(t *testing.T) {
	router := newAdminTestRouter(&stubCatalogService{}, &stubCouponService{}, &stubUserService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(`{}`))
	req.Header.Set(auth.HeaderUserID, "usr_cust")
	req.Header.Set(auth.HeaderUserRole, auth.RoleCustomer)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAdminHandlersCreateProduct(t *testing.T) {
	var captured services.UpsertProductCommand
	catalog := &stubCatalogService{
		createFn: func(_ context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
			captured = cmd
			return sampleProduct(), nil
		},
	}
	router := newAdminTestRouter(catalog, &stubCouponService{}, &stubUserService{})

	payload := `{"name":"Carrots","category":"vegetable","unit_price":400,"stock_kg":"12.5","threshold_kg":"2"}`
	req := asOwner(httptest.NewRequest(http.MethodPost, "/admin/products", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Name != "Carrots" || captured.StockKilograms != "12.5" || captured.UnitPriceCents != 400 {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestAdminHandlersUpdateProductMapsValidation(t *testing.T) {
	catalog := &stubCatalogService{
		updateFn: func(context.Context, services.UpsertProductCommand) (services.Product, error) {
			return services.Product{}, services.ErrCatalogInvalidInput
		},
	}
	router := newAdminTestRouter(catalog, &stubCouponService{}, &stubUserService{})

	payload := `{"name":"","category":"vegetable","unit_price":400,"stock_kg":"1","threshold_kg":"0.5"}`
	req := asOwner(httptest.NewRequest(http.MethodPut, "/admin/products/prd_a", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestAdminHandlersCreateCoupon(t *testing.T) {
	var captured services.UpsertCouponCommand
	expires := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	coupons := &stubCouponService{
		createFn: func(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
			captured = cmd
			return services.Coupon{
				Code:      "SPRING10",
				Kind:      domain.CouponPercent,
				Value:     10,
				Active:    true,
				ExpiresAt: &expires,
			}, nil
		},
	}
	router := newAdminTestRouter(&stubCatalogService{}, coupons, &stubUserService{})

	payload := `{"code":"spring10","kind":"percent","value":10,"active":true,"expires_at":"2025-12-31T23:59:59Z"}`
	req := asOwner(httptest.NewRequest(http.MethodPost, "/admin/coupons", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Code != "spring10" || captured.ExpiresAt == nil || !captured.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected command %#v", captured)
	}

	var body struct {
		Coupon struct {
			Code string `json:"code"`
			Kind string `json:"kind"`
		} `json:"coupon"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Coupon.Code != "SPRING10" || body.Coupon.Kind != string(domain.CouponPercent) {
		t.Fatalf("unexpected coupon payload %#v", body.Coupon)
	}
}

func TestAdminHandlersCreateCouponRejectsBadExpiry(t *testing.T) {
	router := newAdminTestRouter(&stubCatalogService{}, &stubCouponService{}, &stubUserService{})

	payload := `{"code":"SPRING10","kind":"percent","value":10,"expires_at":"someday"}`
	req := asOwner(httptest.NewRequest(http.MethodPost, "/admin/coupons", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersUpdateCouponUsesPathCode(t *testing.T) {
	var captured services.UpsertCouponCommand
	coupons := &stubCouponService{
		updateFn: func(_ context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
			captured = cmd
			return services.Coupon{Code: "SPRING10", Kind: domain.CouponPercent, Value: 15}, nil
		},
	}
	router := newAdminTestRouter(&stubCatalogService{}, coupons, &stubUserService{})

	payload := `{"code":"ignored","kind":"percent","value":15,"active":true}`
	req := asOwner(httptest.NewRequest(http.MethodPut, "/admin/coupons/SPRING10", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Code != "SPRING10" {
		t.Fatalf("expected path code to win, got %q", captured.Code)
	}
}

func TestAdminHandlersGetCouponMapsNotFound(t *testing.T) {
	coupons := &stubCouponService{
		getFn: func(context.Context, string) (services.Coupon, error) {
			return services.Coupon{}, services.ErrCouponNotFound
		},
	}
	router := newAdminTestRouter(&stubCatalogService{}, coupons, &stubUserService{})

	req := asOwner(httptest.NewRequest(http.MethodGet, "/admin/coupons/MISSING", nil))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAdminHandlersCreateUser(t *testing.T) {
	var captured services.RegisterUserCommand
	users := &stubUserService{
		registerFn: func(_ context.Context, cmd services.RegisterUserCommand) (services.User, error) {
			captured = cmd
			return services.User{ID: "usr_new", Role: domain.RoleCustomer, DisplayName: cmd.DisplayName}, nil
		},
	}
	router := newAdminTestRouter(&stubCatalogService{}, &stubCouponService{}, users)

	payload := `{"role":"customer","display_name":"Ada","email":"ada@example.com"}`
	req := asOwner(httptest.NewRequest(http.MethodPost, "/admin/users", strings.NewReader(payload)))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Role != "customer" || captured.Email != "ada@example.com" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestAdminHandlersListUsersFiltersRole(t *testing.T) {
	var captured *services.UserRole
	users := &stubUserService{
		listFn: func(_ context.Context, role *services.UserRole, _ services.Pagination) (domain.CursorPage[services.User], error) {
			captured = role
			return domain.CursorPage[services.User]{Items: []services.User{{ID: "usr_c", Role: domain.RoleCarrier}}}, nil
		},
	}
	router := newAdminTestRouter(&stubCatalogService{}, &stubCouponService{}, users)

	req := asOwner(httptest.NewRequest(http.MethodGet, "/admin/users?role=carrier", nil))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured == nil || *captured != domain.RoleCarrier {
		t.Fatalf("expected carrier filter, got %v", captured)
	}
}
