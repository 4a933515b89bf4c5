package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/platform/httpx"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/services"
)

// CatalogHandlers serves the public product catalogue. Listing and reads are
// open to anonymous callers; mutations live under /admin.
type CatalogHandlers struct {
	catalog services.CatalogService
	pager   pagination.Options
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService, pager pagination.Options) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, pager: pager}
}

// Routes registers the /products endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	pager, ok := parsePager(ctx, w, r, h.pager)
	if !ok {
		return
	}

	filter := services.ProductListFilter{Pager: pager}
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		category := domain.ProductCategory(strings.ToLower(raw))
		filter.Category = &category
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("lowStock")); raw != "" {
		switch strings.ToLower(raw) {
		case "true", "1":
			filter.LowStock = true
		case "false", "0":
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "lowStock must be a boolean", http.StatusBadRequest))
			return
		}
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
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

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	UnitPrice   int64  `json:"unit_price"`
	Effective   int64  `json:"effective_unit_price"`
	StockKg     string `json:"stock_kg"`
	ThresholdKg string `json:"threshold_kg"`
	LowStock    bool   `json:"low_stock"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Name:        product.Name,
		Category:    string(product.Category),
		UnitPrice:   product.UnitPriceCents,
		Effective:   domain.EffectiveUnitPrice(product),
		StockKg:     domain.FormatKilograms(product.StockGrams),
		ThresholdKg: domain.FormatKilograms(product.ThresholdGrams),
		LowStock:    product.LowStock(),
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

// writeCatalogError maps catalogue service sentinels onto the error envelope.
func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_invalid_input", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
