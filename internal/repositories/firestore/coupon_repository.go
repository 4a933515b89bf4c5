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

const couponCollection = "coupons"

// CouponRepository stores coupons keyed by their normalised code so lookups
// during checkout are a single document read.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base, provider: provider}, nil
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// Insert creates a coupon, failing when the code is already taken.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	code := normaliseCouponCode(coupon.Code)
	if code == "" {
		return errors.New("coupon code is required")
	}

	ref, err := r.base.DocumentRef(ctx, code)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainCoupon(coupon)); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update rewrites an existing coupon.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	code := normaliseCouponCode(coupon.Code)
	if code == "" {
		return errors.New("coupon code is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored couponDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}

		stored.Kind = string(coupon.Kind)
		stored.Value = coupon.Value
		stored.MinSubtotalCents = coupon.MinSubtotalCents
		stored.Active = coupon.Active
		stored.ExpiresAt = coupon.ExpiresAt
		stored.UpdatedAt = coupon.UpdatedAt

		return tx.Set(ref, stored)
	})
}

// FindByCode loads the coupon for the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	doc, err := r.base.Get(ctx, normaliseCouponCode(code))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) == 1 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	page := domain.CursorPage[domain.Coupon]{}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[i-1].ID}})
			if err != nil {
				return domain.CursorPage[domain.Coupon]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type couponDocument struct {
	Code             string     `firestore:"code"`
	Kind             string     `firestore:"kind"`
	Value            int64      `firestore:"value"`
	MinSubtotalCents int64      `firestore:"minSubtotalCents"`
	Active           bool       `firestore:"active"`
	ExpiresAt        *time.Time `firestore:"expiresAt"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	code := d.Code
	if code == "" {
		code = id
	}
	return domain.Coupon{
		ID:               id,
		Code:             code,
		Kind:             domain.CouponKind(d.Kind),
		Value:            d.Value,
		MinSubtotalCents: d.MinSubtotalCents,
		Active:           d.Active,
		ExpiresAt:        d.ExpiresAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func fromDomainCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:             normaliseCouponCode(coupon.Code),
		Kind:             string(coupon.Kind),
		Value:            coupon.Value,
		MinSubtotalCents: coupon.MinSubtotalCents,
		Active:           coupon.Active,
		ExpiresAt:        coupon.ExpiresAt,
		CreatedAt:        coupon.CreatedAt,
		UpdatedAt:        coupon.UpdatedAt,
	}
}

func normaliseCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
