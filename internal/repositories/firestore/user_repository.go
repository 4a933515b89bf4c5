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

const userCollection = "users"

// UserRepository persists customer, carrier, and owner accounts. Balance and
// delivered-order counters are owned by the order transactions; profile
// updates here must never clobber them.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// Insert creates a new account document, failing on duplicate ids.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, user.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainUser(user)); err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

// Update rewrites profile fields while preserving the stored balance and
// delivered-order counter.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, user.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored userDocument
		if err := snap.DataTo(&stored); err != nil {
			return err
		}

		stored.Role = string(user.Role)
		stored.DisplayName = strings.TrimSpace(user.DisplayName)
		stored.Email = strings.TrimSpace(user.Email)
		stored.UpdatedAt = user.UpdatedAt

		return tx.Set(ref, stored)
	})
}

// FindByID loads a single account.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of accounts, optionally restricted to one role.
func (r *UserRepository) List(ctx context.Context, role *domain.UserRole, pager domain.Pagination) (domain.CursorPage[domain.User], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.User]{}, errors.New("user repository not initialised")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.User]{}, err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if role != nil {
			query = query.Where("role", "==", string(*role))
		}
		query = query.OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) == 1 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.User]{}, err
	}

	page := domain.CursorPage[domain.User]{}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[i-1].ID}})
			if err != nil {
				return domain.CursorPage[domain.User]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

type userDocument struct {
	Role            string    `firestore:"role"`
	DisplayName     string    `firestore:"displayName"`
	Email           string    `firestore:"email"`
	BalanceCents    int64     `firestore:"balanceCents"`
	DeliveredOrders int64     `firestore:"deliveredOrders"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d userDocument) toDomain(id string) domain.User {
	return domain.User{
		ID:              id,
		Role:            domain.UserRole(d.Role),
		DisplayName:     d.DisplayName,
		Email:           d.Email,
		BalanceCents:    d.BalanceCents,
		DeliveredOrders: d.DeliveredOrders,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func fromDomainUser(user domain.User) userDocument {
	return userDocument{
		Role:            string(user.Role),
		DisplayName:     strings.TrimSpace(user.DisplayName),
		Email:           strings.TrimSpace(user.Email),
		BalanceCents:    user.BalanceCents,
		DeliveredOrders: user.DeliveredOrders,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}
