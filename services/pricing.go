package services

import (
	"context"
	"time"

	"prago-api/models"
	"prago-api/store"

	"github.com/shopspring/decimal"
)

type resolver func(ctx context.Context, r *store.Repos, id int64) (models.Purchasable, error)

// resolvers is the closed set of purchasable variants.
var resolvers = map[models.ItemKind]resolver{
	models.KindCourse: func(ctx context.Context, r *store.Repos, id int64) (models.Purchasable, error) {
		c, err := r.Courses.GetByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "course not found")
		}
		return c, nil
	},
	models.KindSubscriptionPlan: func(ctx context.Context, r *store.Repos, id int64) (models.Purchasable, error) {
		p, err := r.Plans.GetByID(ctx, id)
		if err != nil {
			return nil, notFound(err, "subscription plan not found")
		}
		if !p.IsActive {
			return nil, notFoundError("subscription plan not found")
		}
		return p, nil
	},
}

func resolveItem(ctx context.Context, r *store.Repos, ref models.ItemRef) (models.Purchasable, error) {
	resolve, ok := resolvers[ref.Kind]
	if !ok {
		return nil, validationError("unknown item type " + string(ref.Kind))
	}
	return resolve(ctx, r, ref.ID)
}

// PricedLine is a cart line priced at the current time.
type PricedLine struct {
	ID int64 `json:"id"`
	models.ItemRef
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// Totals are computed from live prices, never stored on the cart.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func priceLines(ctx context.Context, r *store.Repos, items []models.CartItem, now time.Time) ([]PricedLine, decimal.Decimal, error) {
	lines := make([]PricedLine, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		p, err := resolveItem(ctx, r, it.ItemRef)
		if err != nil {
			return nil, decimal.Zero, err
		}
		unit := p.UnitPrice(now)
		total := unit.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(total)
		lines = append(lines, PricedLine{
			ID:         it.ID,
			ItemRef:    it.ItemRef,
			Name:       p.DisplayName(),
			Quantity:   it.Quantity,
			UnitPrice:  unit,
			TotalPrice: total,
		})
	}
	return lines, subtotal, nil
}

func computeTotals(subtotal decimal.Decimal, coupon *models.Coupon, now time.Time) Totals {
	discount := decimal.Zero
	if coupon != nil {
		discount = coupon.DiscountFor(subtotal, now)
	}
	return Totals{Subtotal: subtotal, Discount: discount, Total: subtotal.Sub(discount)}
}

// rials converts an amount to the integer the gateway expects.
func rials(amount decimal.Decimal) int64 {
	return amount.Floor().IntPart()
}
