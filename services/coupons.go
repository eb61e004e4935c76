package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"prago-api/models"
	"prago-api/store"

	"github.com/shopspring/decimal"
)

type CouponService struct {
	store store.Store
	now   func() time.Time
}

func NewCouponService(s store.Store) *CouponService {
	return &CouponService{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Validate looks a code up case-insensitively and checks it is usable now.
func (s *CouponService) Validate(ctx context.Context, code string) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("Coupon code is required")
	}
	coupon, err := s.store.Repos().Coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, notFound(err, "Coupon not found")
	}
	if !coupon.IsValid(s.now()) {
		return nil, validationError("Coupon is invalid or expired")
	}
	return coupon, nil
}

type NewCoupon struct {
	Code          string              `json:"code" binding:"required,max=50"`
	Description   string              `json:"description"`
	DiscountType  models.DiscountType `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	UsageLimit    int                 `json:"usage_limit" binding:"min=0"`
	ValidFrom     *time.Time          `json:"valid_from"`
	ValidTo       *time.Time          `json:"valid_to"`
	IsActive      *bool               `json:"is_active"`
}

func (s *CouponService) Create(ctx context.Context, in NewCoupon) (*models.Coupon, error) {
	if !in.DiscountValue.IsPositive() {
		return nil, validationError("discount_value must be positive")
	}
	if in.DiscountType == models.DiscountPercentage && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, validationError("percentage discount cannot exceed 100")
	}

	c := &models.Coupon{
		Code:          strings.TrimSpace(in.Code),
		Description:   in.Description,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		UsageLimit:    in.UsageLimit,
		ValidFrom:     s.now(),
		ValidTo:       in.ValidTo,
		IsActive:      true,
	}
	if in.ValidFrom != nil {
		c.ValidFrom = *in.ValidFrom
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if c.ValidTo != nil && c.ValidTo.Before(c.ValidFrom) {
		return nil, validationError("valid_to must be after valid_from")
	}

	err := s.store.Repos().Coupons.Create(ctx, c)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("A coupon with this code already exists")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
