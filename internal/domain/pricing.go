package domain

import (
	"time"
)

// Money is carried as int64 minor units (cents) and weight as int64 grams, so
// every rounding boundary is exact integer arithmetic. All divisions round
// half-up, matching the totals shown at preview time to the cent.

const (
	// GramsPerKilogram converts catalogue prices (per kg) to line totals.
	GramsPerKilogram = 1000

	// VATPercent is the tax rate applied to the post-discount subtotal.
	VATPercent = 20

	// MinOrderSubtotalCents is the minimum pre-discount subtotal accepted at
	// checkout. Exactly this value passes.
	MinOrderSubtotalCents = 5000

	// DeliveryWindow bounds how far out a requested delivery slot may be.
	DeliveryWindow = 48 * time.Hour
)

// roundHalfUpDiv divides non-negative n by positive d, rounding half away
// from zero.
func roundHalfUpDiv(n, d int64) int64 {
	return (n + d/2) / d
}

// PercentOf returns pct% of amount in minor units, rounded half-up.
func PercentOf(amount, pct int64) int64 {
	return roundHalfUpDiv(amount*pct, 100)
}

// EffectiveUnitPrice resolves the per-kilogram price charged right now:
// double the base price while stock sits at or below the threshold.
func EffectiveUnitPrice(p Product) int64 {
	if p.LowStock() {
		return p.UnitPriceCents * 2
	}
	return p.UnitPriceCents
}

// LineTotal prices a quantity in grams at a per-kilogram unit price.
func LineTotal(unitPriceCents, quantityGrams int64) int64 {
	return roundHalfUpDiv(unitPriceCents*quantityGrams, GramsPerKilogram)
}

// LoyaltyPercent maps a customer's delivered-order count onto the discount
// tier applied to the raw subtotal.
func LoyaltyPercent(deliveredOrders int64) int64 {
	switch {
	case deliveredOrders >= 50:
		return 15
	case deliveredOrders >= 25:
		return 10
	case deliveredOrders >= 10:
		return 5
	default:
		return 0
	}
}

// CouponRejectReason explains why a coupon contributed no discount.
type CouponRejectReason string

const (
	// CouponRejectNone means the coupon applied.
	CouponRejectNone CouponRejectReason = ""
	// CouponRejectInactive means the coupon has been switched off.
	CouponRejectInactive CouponRejectReason = "inactive"
	// CouponRejectExpired means the coupon's expiry has passed.
	CouponRejectExpired CouponRejectReason = "expired"
	// CouponRejectBelowMinimum means the eligible base missed the coupon's
	// minimum cart value.
	CouponRejectBelowMinimum CouponRejectReason = "below_minimum"
)

// CouponDiscount evaluates a coupon against the subtotal remaining after the
// loyalty discount. A zero discount with a non-empty reason means the coupon
// could not be honoured.
func CouponDiscount(c Coupon, baseCents int64, at time.Time) (int64, CouponRejectReason) {
	if !c.Active {
		return 0, CouponRejectInactive
	}
	if c.Expired(at) {
		return 0, CouponRejectExpired
	}
	if baseCents < c.MinSubtotalCents {
		return 0, CouponRejectBelowMinimum
	}

	switch c.Kind {
	case CouponPercent:
		return PercentOf(baseCents, c.Value), CouponRejectNone
	default:
		discount := c.Value
		if discount > baseCents {
			discount = baseCents
		}
		return discount, CouponRejectNone
	}
}

// TotalsBreakdown is the full money resolution for one cart subtotal. The
// same computation backs checkout previews and the commit-time snapshot.
type TotalsBreakdown struct {
	SubtotalCents        int64
	LoyaltyPercent       int64
	LoyaltyDiscountCents int64
	CouponDiscountCents  int64
	VATCents             int64
	TotalCents           int64
	CouponApplied        bool
	CouponReject         CouponRejectReason
}

// Totals converts the breakdown into the shape persisted on an order.
func (b TotalsBreakdown) Totals() OrderTotals {
	return OrderTotals{
		SubtotalCents:        b.SubtotalCents,
		LoyaltyPercent:       b.LoyaltyPercent,
		LoyaltyDiscountCents: b.LoyaltyDiscountCents,
		CouponDiscountCents:  b.CouponDiscountCents,
		VATCents:             b.VATCents,
		TotalCents:           b.TotalCents,
	}
}

// ComputeTotals stacks the discount layers in their fixed order: loyalty on
// the raw subtotal, coupon on the remainder, VAT on the post-discount value.
// A nil coupon is the ordinary no-coupon case, not an error.
func ComputeTotals(subtotalCents int64, deliveredOrders int64, coupon *Coupon, at time.Time) TotalsBreakdown {
	breakdown := TotalsBreakdown{
		SubtotalCents:  subtotalCents,
		LoyaltyPercent: LoyaltyPercent(deliveredOrders),
	}

	breakdown.LoyaltyDiscountCents = PercentOf(subtotalCents, breakdown.LoyaltyPercent)
	afterLoyalty := subtotalCents - breakdown.LoyaltyDiscountCents
	if afterLoyalty < 0 {
		afterLoyalty = 0
	}

	if coupon != nil {
		discount, reject := CouponDiscount(*coupon, afterLoyalty, at)
		breakdown.CouponDiscountCents = discount
		breakdown.CouponReject = reject
		breakdown.CouponApplied = reject == CouponRejectNone
	}

	afterDiscount := afterLoyalty - breakdown.CouponDiscountCents
	if afterDiscount < 0 {
		afterDiscount = 0
	}

	breakdown.VATCents = PercentOf(afterDiscount, VATPercent)
	breakdown.TotalCents = afterDiscount + breakdown.VATCents
	return breakdown
}
