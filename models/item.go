package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind tags the variant of a purchasable item.
type ItemKind string

const (
	KindCourse           ItemKind = "course"
	KindSubscriptionPlan ItemKind = "subscription_plan"
)

func ParseItemKind(s string) (ItemKind, error) {
	switch ItemKind(s) {
	case KindCourse, KindSubscriptionPlan:
		return ItemKind(s), nil
	case "":
		return KindCourse, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

// ItemRef points at one purchasable item.
type ItemRef struct {
	Kind ItemKind `db:"item_kind" json:"item_type"`
	ID   int64    `db:"item_id" json:"item_id"`
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Purchasable is implemented by every variant an order line can reference.
type Purchasable interface {
	Ref() ItemRef
	UnitPrice(now time.Time) decimal.Decimal
	DisplayName() string
}

func (c *Course) Ref() ItemRef                            { return ItemRef{Kind: KindCourse, ID: c.ID} }
func (c *Course) UnitPrice(now time.Time) decimal.Decimal { return c.CurrentPrice(now) }
func (c *Course) DisplayName() string                     { return c.Title }

func (p *SubscriptionPlan) Ref() ItemRef { return ItemRef{Kind: KindSubscriptionPlan, ID: p.ID} }
func (p *SubscriptionPlan) UnitPrice(now time.Time) decimal.Decimal {
	return p.CurrentPrice(now)
}
func (p *SubscriptionPlan) DisplayName() string { return p.Name }
