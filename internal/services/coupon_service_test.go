package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/greengrocer/api/internal/domain"
)

func newTestCouponService(t *testing.T, deps CouponServiceDeps) CouponService {
	t.Helper()
	if deps.Coupons == nil {
		deps.Coupons = &stubCouponRepo{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC))
	}
	svc, err := NewCouponService(deps)
	if err != nil {
		t.Fatalf("NewCouponService returned error: %v", err)
	}
	return svc
}

func TestCouponServiceCreateNormalisesCode(t *testing.T) {
	var inserted domain.Coupon
	svc := newTestCouponService(t, CouponServiceDeps{
		Coupons: &stubCouponRepo{
			insertFn: func(_ context.Context, coupon domain.Coupon) error {
				inserted = coupon
				return nil
			},
		},
	})

	coupon, err := svc.CreateCoupon(context.Background(), UpsertCouponCommand{
		Code:   " spring10 ",
		Kind:   "percent",
		Value:  10,
		Active: true,
	})
	if err != nil {
		t.Fatalf("CreateCoupon returned error: %v", err)
	}
	if inserted.Code != "SPRING10" || inserted.Kind != domain.CouponPercent {
		t.Fatalf("unexpected coupon %#v", inserted)
	}
	if coupon.Code != "SPRING10" {
		t.Fatalf("expected normalised code, got %q", coupon.Code)
	}
}

func TestCouponServiceCreateValidation(t *testing.T) {
	svc := newTestCouponService(t, CouponServiceDeps{
		Coupons: &stubCouponRepo{
			insertFn: func(context.Context, domain.Coupon) error {
				t.Fatal("repository must not be called for invalid input")
				return nil
			},
		},
	})

	cases := map[string]UpsertCouponCommand{
		"empty code":       {Kind: "amount", Value: 100},
		"bad characters":   {Code: "ten percent!", Kind: "percent", Value: 10},
		"unknown kind":     {Code: "SAVE", Kind: "bogo", Value: 10},
		"zero amount":      {Code: "SAVE", Kind: "amount", Value: 0},
		"percent over 100": {Code: "SAVE", Kind: "percent", Value: 120},
		"negative minimum": {Code: "SAVE", Kind: "amount", Value: 100, MinSubtotalCents: -1},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.CreateCoupon(context.Background(), cmd); !errors.Is(err, ErrCouponInvalidInput) {
				t.Fatalf("expected ErrCouponInvalidInput, got %v", err)
			}
		})
	}
}

func TestCouponServiceCreateMapsConflict(t *testing.T) {
	svc := newTestCouponService(t, CouponServiceDeps{
		Coupons: &stubCouponRepo{
			insertFn: func(context.Context, domain.Coupon) error {
				return &stubRepoError{conflict: true}
			},
		},
	})

	_, err := svc.CreateCoupon(context.Background(), UpsertCouponCommand{
		Code:  "TAKEN",
		Kind:  "amount",
		Value: 500,
	})
	if !errors.Is(err, ErrCouponConflict) {
		t.Fatalf("expected ErrCouponConflict, got %v", err)
	}
}

func TestCouponServiceGetCouponMapsNotFound(t *testing.T) {
	svc := newTestCouponService(t, CouponServiceDeps{
		Coupons: &stubCouponRepo{
			findFn: func(context.Context, string) (domain.Coupon, error) {
				return domain.Coupon{}, &stubRepoError{notFound: true}
			},
		},
	})

	if _, err := svc.GetCoupon(context.Background(), "MISSING"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}
