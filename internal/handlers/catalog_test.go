package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/services"
)

type stubCatalogService struct {
	createFn func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateFn func(context.Context, services.UpsertProductCommand) (services.Product, error)
	getFn    func(context.Context, string) (services.Product, error)
	listFn   func(context.Context, services.ProductListFilter) (domain.CursorPage[services.Product], error)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, nil
}

var _ services.CatalogService = (*stubCatalogService)(nil)

func newCatalogTestRouter(svc services.CatalogService) http.Handler {
	r := chi.NewRouter()
	r.Route("/products", NewCatalogHandlers(svc, pagination.Options{}).Routes)
	return r
}

func sampleProduct() services.Product {
	now := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	return services.Product{
		ID:             "prd_a",
		Name:           "Carrots",
		Category:       domain.CategoryVegetable,
		UnitPriceCents: 400,
		StockGrams:     12500,
		ThresholdGrams: 2000,
		CreatedAt:      now,
	}
}

func TestCatalogHandlersListProducts(t *testing.T) {
	var captured services.ProductListFilter
	svc := &stubCatalogService{
		listFn: func(_ context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{Items: []services.Product{sampleProduct()}, NextPageToken: "next"}, nil
		},
	}
	router := newCatalogTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/products/?category=vegetable&lowStock=true", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Category == nil || *captured.Category != domain.CategoryVegetable {
		t.Fatalf("expected vegetable filter, got %v", captured.Category)
	}
	if !captured.LowStock {
		t.Fatal("expected lowStock filter")
	}

	var body struct {
		Items []struct {
			ID        string `json:"id"`
			UnitPrice int64  `json:"unit_price"`
			Effective int64  `json:"effective_unit_price"`
			StockKg   string `json:"stock_kg"`
			LowStock  bool   `json:"low_stock"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 || body.NextPageToken != "next" {
		t.Fatalf("unexpected list response %s", rr.Body.String())
	}
	item := body.Items[0]
	if item.StockKg != "12.5" || item.LowStock || item.Effective != 400 {
		t.Fatalf("unexpected item payload %#v", item)
	}
}

func TestCatalogHandlersListDoublesLowStockPrice(t *testing.T) {
	product := sampleProduct()
	product.StockGrams = 1500
	svc := &stubCatalogService{
		listFn: func(context.Context, services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			return domain.CursorPage[services.Product]{Items: []services.Product{product}}, nil
		},
	}
	router := newCatalogTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/products/", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body struct {
		Items []struct {
			UnitPrice int64 `json:"unit_price"`
			Effective int64 `json:"effective_unit_price"`
			LowStock  bool  `json:"low_stock"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(body.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(body.Items))
	}
	if !body.Items[0].LowStock || body.Items[0].UnitPrice != 400 || body.Items[0].Effective != 800 {
		t.Fatalf("unexpected payload %#v", body.Items[0])
	}
}

func TestCatalogHandlersListRejectsBadLowStock(t *testing.T) {
	router := newCatalogTestRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/products/?lowStock=maybe", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCatalogHandlersGetProduct(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(_ context.Context, productID string) (services.Product, error) {
			if productID != "prd_a" {
				t.Fatalf("unexpected product id %q", productID)
			}
			return sampleProduct(), nil
		},
	}
	router := newCatalogTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_a", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Product struct {
			ID          string `json:"id"`
			ThresholdKg string `json:"threshold_kg"`
		} `json:"product"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Product.ID != "prd_a" || body.Product.ThresholdKg != "2" {
		t.Fatalf("unexpected product payload %#v", body.Product)
	}
}

func TestCatalogHandlersGetProductMapsNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(context.Context, string) (services.Product, error) {
			return services.Product{}, services.ErrProductNotFound
		},
	}
	router := newCatalogTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
