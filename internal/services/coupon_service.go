package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	domain "github.com/greengrocer/api/internal/domain"
	"github.com/greengrocer/api/internal/repositories"
)

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{1,31}$`)

var (
	// ErrCouponInvalidInput indicates the caller supplied invalid coupon data.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates no coupon exists under the given code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponConflict indicates the code is already taken.
	ErrCouponConflict = errors.New("coupon: conflict")
)

// CouponServiceDeps bundles constructor inputs for the coupon service.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
}

type couponService struct {
	coupons repositories.CouponRepository
	clock   func() time.Time
}

// NewCouponService constructs the coupon service with the supplied dependencies.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &couponService{
		coupons: deps.Coupons,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := s.buildCoupon(cmd)
	if err != nil {
		return Coupon{}, err
	}
	now := s.clock()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	coupon.ID = coupon.Code
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := s.buildCoupon(cmd)
	if err != nil {
		return Coupon{}, err
	}
	coupon.UpdatedAt = s.clock()

	if err := s.coupons.Update(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return s.GetCoupon(ctx, coupon.Code)
}

func (s *couponService) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	if strings.TrimSpace(code) == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) ListCoupons(ctx context.Context, pager Pagination) (domain.CursorPage[Coupon], error) {
	page, err := s.coupons.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *couponService) buildCoupon(cmd UpsertCouponCommand) (Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if !couponCodePattern.MatchString(code) {
		return Coupon{}, fmt.Errorf("%w: code must match %s", ErrCouponInvalidInput, couponCodePattern)
	}

	kind := domain.CouponKind(strings.ToUpper(strings.TrimSpace(cmd.Kind)))
	switch kind {
	case domain.CouponAmount:
		if cmd.Value <= 0 {
			return Coupon{}, fmt.Errorf("%w: amount must be positive", ErrCouponInvalidInput)
		}
	case domain.CouponPercent:
		if cmd.Value <= 0 || cmd.Value > 100 {
			return Coupon{}, fmt.Errorf("%w: percent must be between 1 and 100", ErrCouponInvalidInput)
		}
	default:
		return Coupon{}, fmt.Errorf("%w: unknown kind %q", ErrCouponInvalidInput, cmd.Kind)
	}

	if cmd.MinSubtotalCents < 0 {
		return Coupon{}, fmt.Errorf("%w: minimum subtotal cannot be negative", ErrCouponInvalidInput)
	}

	return Coupon{
		ID:               code,
		Code:             code,
		Kind:             kind,
		Value:            cmd.Value,
		MinSubtotalCents: cmd.MinSubtotalCents,
		Active:           cmd.Active,
		ExpiresAt:        cmd.ExpiresAt,
	}, nil
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		}
	}
	return err
}
