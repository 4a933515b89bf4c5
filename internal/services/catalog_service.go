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

const productIDPrefix = "prd_"

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalogue mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates the product id is already taken or an edit raced.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalogue service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
}

// NewCatalogService constructs the catalogue service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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
	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	if product.ID == "" {
		product.ID = productIDPrefix + s.newID()
	}
	now := s.clock()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if strings.TrimSpace(cmd.ProductID) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.buildProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	if strings.TrimSpace(productID) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if filter.Category != nil && !validCategory(string(*filter.Category)) {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, *filter.Category)
	}
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category: filter.Category,
		LowStock: filter.LowStock,
		Pager:    filter.Pager,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// buildProduct validates and converts the raw command into a domain product.
func (s *catalogService) buildProduct(cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	category := strings.TrimSpace(strings.ToLower(cmd.Category))
	if !validCategory(category) {
		return Product{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, cmd.Category)
	}
	if cmd.UnitPriceCents <= 0 {
		return Product{}, fmt.Errorf("%w: unit price must be positive", ErrCatalogInvalidInput)
	}
	stock, err := domain.ParseStockKilograms(cmd.StockKilograms)
	if err != nil {
		return Product{}, fmt.Errorf("%w: stock: %v", ErrCatalogInvalidInput, err)
	}
	threshold, err := domain.ParseStockKilograms(cmd.ThresholdKilogram)
	if err != nil {
		return Product{}, fmt.Errorf("%w: threshold: %v", ErrCatalogInvalidInput, err)
	}

	return Product{
		ID:             strings.TrimSpace(cmd.ProductID),
		Name:           name,
		Category:       domain.ProductCategory(category),
		UnitPriceCents: cmd.UnitPriceCents,
		StockGrams:     stock,
		ThresholdGrams: threshold,
	}, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		}
	}
	return err
}

func validCategory(category string) bool {
	switch domain.ProductCategory(category) {
	case domain.CategoryVegetable, domain.CategoryFruit, domain.CategoryOther:
		return true
	default:
		return false
	}
}
