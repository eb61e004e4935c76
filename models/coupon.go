package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

type Coupon struct {
	ID            int64           `db:"id" json:"id"`
	Code          string          `db:"code" json:"code"`
	Description   string          `db:"description" json:"description"`
	DiscountType  DiscountType    `db:"discount_type" json:"discount_type"`
	DiscountValue decimal.Decimal `db:"discount_value" json:"discount_value"`
	UsageLimit    int             `db:"usage_limit" json:"usage_limit"`
	TimesUsed     int             `db:"times_used" json:"times_used"`
	ValidFrom     time.Time       `db:"valid_from" json:"valid_from"`
	ValidTo       *time.Time      `db:"valid_to" json:"valid_to"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// IsValid checks the active flag, the validity window and the usage limit.
// A zero UsageLimit means unlimited and a nil ValidTo never expires.
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return false
	}
	if now.Before(c.ValidFrom) {
		return false
	}
	if c.UsageLimit > 0 && c.TimesUsed >= c.UsageLimit {
		return false
	}
	return true
}

// ApplyDiscount returns the discounted amount, never below zero. An invalid
// coupon leaves the amount unchanged.
func (c *Coupon) ApplyDiscount(amount decimal.Decimal, now time.Time) decimal.Decimal {
	if !c.IsValid(now) {
		return amount
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(c.DiscountValue).Div(hundred)
	default:
		discount = decimal.Min(amount, c.DiscountValue)
	}

	return decimal.Max(amount.Sub(discount), decimal.Zero)
}

func (c *Coupon) DiscountFor(amount decimal.Decimal, now time.Time) decimal.Decimal {
	return amount.Sub(c.ApplyDiscount(amount, now))
}

func (c *Coupon) RecordUsage() {
	c.TimesUsed++
}
