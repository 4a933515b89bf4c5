package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/greengrocer/api/internal/platform/config"
	"github.com/greengrocer/api/internal/repositories"
	"github.com/greengrocer/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog services.CatalogService
	Coupons services.CouponService
	Users   services.UserService
	Orders  services.OrderService
	System  services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises optional dependencies before the services are built.
type Option func(*containerDeps)

type containerDeps struct {
	events        services.OrderEventPublisher
	orderLogger   func(ctx context.Context, event string, fields map[string]any)
	recordOutcome func(operation, outcome string)
	clock         func() time.Time
}

// WithOrderEventPublisher wires the publisher used for order lifecycle events.
func WithOrderEventPublisher(pub services.OrderEventPublisher) Option {
	return func(d *containerDeps) {
		d.events = pub
	}
}

// WithOrderLogger wires the structured event logger passed to the order service.
func WithOrderLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(d *containerDeps) {
		d.orderLogger = logger
	}
}

// WithOrderOutcomeRecorder wires the metrics hook counting order operation results.
func WithOrderOutcomeRecorder(record func(operation, outcome string)) Option {
	return func(d *containerDeps) {
		d.recordOutcome = record
	}
}

// WithClock overrides the clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *containerDeps) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	deps := containerDeps{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	svc, err := buildServices(ctx, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, deps containerDeps) (Services, error) {
	var svc Services

	if productsRepo := reg.Products(); productsRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products: productsRepo,
			Clock:    deps.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if couponsRepo := reg.Coupons(); couponsRepo != nil {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Coupons: couponsRepo,
			Clock:   deps.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users: usersRepo,
			Clock: deps.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if ordersRepo := reg.Orders(); ordersRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:        ordersRepo,
			Products:      reg.Products(),
			Coupons:       reg.Coupons(),
			Users:         reg.Users(),
			Clock:         deps.clock,
			Events:        deps.events,
			Logger:        deps.orderLogger,
			RecordOutcome: deps.recordOutcome,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            deps.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
