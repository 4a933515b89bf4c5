package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/httpx"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/services"
)

// AdminHandlers groups the owner-facing management endpoints: catalogue
// mutations, coupon administration, and account management. The router mounts
// the whole group behind the owner role gate.
type AdminHandlers struct {
	catalog services.CatalogService
	coupons services.CouponService
	users   services.UserService
	pager   pagination.Options
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(catalog services.CatalogService, coupons services.CouponService, users services.UserService, pager pagination.Options) *AdminHandlers {
	return &AdminHandlers{
		catalog: catalog,
		coupons: coupons,
		users:   users,
		pager:   pager,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)

	r.Get("/coupons", h.listCoupons)
	r.Post("/coupons", h.createCoupon)
	r.Get("/coupons/{code}", h.getCoupon)
	r.Put("/coupons/{code}", h.updateCoupon)

	r.Get("/users", h.listUsers)
	r.Post("/users", h.createUser)
	r.Get("/users/{userID}", h.getUser)
	r.Put("/users/{userID}", h.updateUser)
}

// Products --------------------------------------------------------------------

type upsertProductRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	UnitPrice   int64  `json:"unit_price"`
	StockKg     string `json:"stock_kg"`
	ThresholdKg string `json:"threshold_kg"`
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertProductRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.UpsertProductCommand{
		Name:              req.Name,
		Category:          req.Category,
		UnitPriceCents:    req.UnitPrice,
		StockKilograms:    req.StockKg,
		ThresholdKilogram: req.ThresholdKg,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req upsertProductRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpsertProductCommand{
		ProductID:         productID,
		Name:              req.Name,
		Category:          req.Category,
		UnitPriceCents:    req.UnitPrice,
		StockKilograms:    req.StockKg,
		ThresholdKilogram: req.ThresholdKg,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

// Coupons ---------------------------------------------------------------------

type upsertCouponRequest struct {
	Code        string  `json:"code"`
	Kind        string  `json:"kind"`
	Value       int64   `json:"value"`
	MinSubtotal int64   `json:"min_subtotal"`
	Active      bool    `json:"active"`
	ExpiresAt   *string `json:"expires_at"`
}

func (h *AdminHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	pager, ok := parsePager(ctx, w, r, h.pager)
	if !ok {
		return
	}

	page, err := h.coupons.ListCoupons(ctx, pager)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertCouponRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	cmd, ok := buildCouponCommand(ctx, w, req)
	if !ok {
		return
	}

	coupon, err := h.coupons.CreateCoupon(ctx, cmd)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *AdminHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon code is required", http.StatusBadRequest))
		return
	}

	coupon, err := h.coupons.GetCoupon(ctx, code)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *AdminHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon code is required", http.StatusBadRequest))
		return
	}

	var req upsertCouponRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}
	req.Code = code
	cmd, ok := buildCouponCommand(ctx, w, req)
	if !ok {
		return
	}

	coupon, err := h.coupons.UpdateCoupon(ctx, cmd)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func buildCouponCommand(ctx context.Context, w http.ResponseWriter, req upsertCouponRequest) (services.UpsertCouponCommand, bool) {
	cmd := services.UpsertCouponCommand{
		Code:             req.Code,
		Kind:             req.Kind,
		Value:            req.Value,
		MinSubtotalCents: req.MinSubtotal,
		Active:           req.Active,
	}
	if req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) != "" {
		expires, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ExpiresAt))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expires_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.UpsertCouponCommand{}, false
		}
		cmd.ExpiresAt = &expires
	}
	return cmd, true
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponPayload struct {
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Value       int64  `json:"value"`
	MinSubtotal int64  `json:"min_subtotal"`
	Active      bool   `json:"active"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		Code:        coupon.Code,
		Kind:        string(coupon.Kind),
		Value:       coupon.Value,
		MinSubtotal: coupon.MinSubtotalCents,
		Active:      coupon.Active,
		ExpiresAt:   formatTimePtr(coupon.ExpiresAt),
		CreatedAt:   formatTime(coupon.CreatedAt),
		UpdatedAt:   formatTime(coupon.UpdatedAt),
	}
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_invalid_input", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

// Users -----------------------------------------------------------------------

type registerUserRequest struct {
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type updateUserRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	pager, ok := parsePager(ctx, w, r, h.pager)
	if !ok {
		return
	}

	var role *domain.UserRole
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		parsed := domain.UserRole(strings.ToLower(raw))
		role = &parsed
	}

	page, err := h.users.ListUsers(ctx, role, pager)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	items := make([]userPayload, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, userListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerUserRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.Register(ctx, services.RegisterUserCommand{
		Role:        req.Role,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, userResponse{User: buildUserPayload(user)})
}

func (h *AdminHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *AdminHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}

	var req updateUserRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(ctx, services.UpdateUserCommand{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

type userListResponse struct {
	Items         []userPayload `json:"items"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type userPayload struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	DisplayName     string `json:"display_name"`
	Email           string `json:"email,omitempty"`
	Balance         int64  `json:"balance"`
	DeliveredOrders int64  `json:"delivered_orders"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:              user.ID,
		Role:            string(user.Role),
		DisplayName:     user.DisplayName,
		Email:           user.Email,
		Balance:         user.BalanceCents,
		DeliveredOrders: user.DeliveredOrders,
		CreatedAt:       formatTime(user.CreatedAt),
		UpdatedAt:       formatTime(user.UpdatedAt),
	}
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("user_invalid_input", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserConflict):
		httpx.WriteError(ctx, w, httpx.NewError("user_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
