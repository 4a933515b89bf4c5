package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/greengrocer/api/internal/domain"
	pfirestore "github.com/greengrocer/api/internal/platform/firestore"
	"github.com/greengrocer/api/internal/platform/pagination"
	"github.com/greengrocer/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalogue entries in Firestore. Stock is only
// mutated by the order transactions in OrderRepository; catalogue edits here
// preserve whatever stock level those transactions left behind.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// Insert creates a new product document, failing on duplicate ids.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}

	ref, err := r.base.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	doc := fromDomainProduct(product)
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update rewrites the catalogue fields while keeping the stored stock level.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, product.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored productDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}

		stored.Name = strings.TrimSpace(product.Name)
		stored.Category = string(product.Category)
		stored.UnitPriceCents = product.UnitPriceCents
		stored.ThresholdGrams = product.ThresholdGrams
		stored.UpdatedAt = product.UpdatedAt
		stored.recalculate()

		return tx.Set(ref, stored)
	})
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads several products at once, preserving input order. Missing
// ids surface as a not-found repository error naming the first absent product.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

// List returns a catalogue page ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if filter.Category != nil {
			query = query.Where("category", "==", string(*filter.Category))
		}
		if filter.LowStock {
			query = query.Where("lowStock", "==", true)
		}
		query = query.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) == 2 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[i-1]
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{last.Data.Name, last.ID}})
			if err != nil {
				return domain.CursorPage[domain.Product]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type productDocument struct {
	Name           string    `firestore:"name"`
	Category       string    `firestore:"category"`
	UnitPriceCents int64     `firestore:"unitPriceCents"`
	StockGrams     int64     `firestore:"stockGrams"`
	ThresholdGrams int64     `firestore:"thresholdGrams"`
	LowStock       bool      `firestore:"lowStock"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// recalculate refreshes the derived lowStock flag after any stock or
// threshold mutation so listings can filter on it.
func (d *productDocument) recalculate() {
	d.LowStock = d.StockGrams <= d.ThresholdGrams
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           d.Name,
		Category:       domain.ProductCategory(d.Category),
		UnitPriceCents: d.UnitPriceCents,
		StockGrams:     d.StockGrams,
		ThresholdGrams: d.ThresholdGrams,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDomainProduct(product domain.Product) productDocument {
	doc := productDocument{
		Name:           strings.TrimSpace(product.Name),
		Category:       string(product.Category),
		UnitPriceCents: product.UnitPriceCents,
		StockGrams:     product.StockGrams,
		ThresholdGrams: product.ThresholdGrams,
		CreatedAt:      product.CreatedAt,
		UpdatedAt:      product.UpdatedAt,
	}
	doc.recalculate()
	return doc
}
