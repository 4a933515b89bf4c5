package firestore

import (
	"context"
	"errors"
	"time"

	"google.golang.org/api/iterator"

	pfirestore "github.com/greengrocer/api/internal/platform/firestore"
	"github.com/greengrocer/api/internal/repositories"
)

// Registry wires every Firestore-backed repository onto one shared provider.
type Registry struct {
	provider *pfirestore.Provider

	products *ProductRepository
	orders   *OrderRepository
	coupons  *CouponRepository
	users    *UserRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repository set backed by the given provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	health, err := repositories.NewProbeHealthRepository([]repositories.DependencyProbe{
		{Name: "firestore", Check: firestoreProbe(provider)},
	}, time.Now)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		coupons:  coupons,
		users:    users,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Products returns the catalogue repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Coupons returns the coupon repository.
func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

// Users returns the account repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Health returns the readiness probe repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// firestoreProbe issues a minimal read to confirm the backend answers.
func firestoreProbe(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}
