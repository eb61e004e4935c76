package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderFailed   OrderStatus = "failed"
	OrderCanceled OrderStatus = "canceled"
	OrderRefunded OrderStatus = "refunded"
)

type OrderType string

const (
	OrderTypeCourse       OrderType = "course"
	OrderTypeSubscription OrderType = "subscription"
	OrderTypeMulti        OrderType = "multi"
)

// InferOrderType derives the order type from its lines: a single line keeps
// the type of its item, anything else is multi.
func InferOrderType(refs []ItemRef) OrderType {
	if len(refs) != 1 {
		return OrderTypeMulti
	}
	if refs[0].Kind == KindSubscriptionPlan {
		return OrderTypeSubscription
	}
	return OrderTypeCourse
}

type Cart struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CouponID  *int64    `db:"coupon_id" json:"coupon_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ID     int64 `db:"id" json:"id"`
	CartID int64 `db:"cart_id" json:"-"`
	ItemRef
	Quantity int       `db:"quantity" json:"quantity"`
	AddedAt  time.Time `db:"added_at" json:"added_at"`
}

type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	OrderNumber    string          `db:"order_number" json:"order_number"`
	Status         OrderStatus     `db:"status" json:"status"`
	OrderType      OrderType       `db:"order_type" json:"order_type"`
	CourseID       *int64          `db:"course_id" json:"course_id"`
	PlanID         *int64          `db:"plan_id" json:"subscription_plan_id"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	FinalAmount    decimal.Decimal `db:"final_amount" json:"final_amount"`
	CouponID       *int64          `db:"coupon_id" json:"coupon_id"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	PaidAt         *time.Time      `db:"paid_at" json:"paid_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// SetAmounts stores total and discount and derives a non-negative final amount.
func (o *Order) SetAmounts(total, discount decimal.Decimal) {
	if discount.GreaterThan(total) {
		discount = total
	}
	o.TotalAmount = total
	o.DiscountAmount = discount
	o.FinalAmount = decimal.Max(total.Sub(discount), decimal.Zero)
}

func (o *Order) IsPaid() bool { return o.Status == OrderPaid }

type OrderItem struct {
	ID      int64 `db:"id" json:"id"`
	OrderID int64 `db:"order_id" json:"-"`
	ItemRef
	Name       string          `db:"name" json:"name"`
	Quantity   int             `db:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
}

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
)

const PaymentMethodZarinpal = "zarinpal"

type Transaction struct {
	ID                      int64             `db:"id" json:"id"`
	OrderID                 int64             `db:"order_id" json:"order_id"`
	TransactionID           string            `db:"transaction_id" json:"transaction_id"`
	Amount                  decimal.Decimal   `db:"amount" json:"amount"`
	Status                  TransactionStatus `db:"status" json:"status"`
	PaymentMethod           string            `db:"payment_method" json:"payment_method"`
	PaymentGatewayReference *string           `db:"payment_gateway_reference" json:"payment_gateway_reference"`
	Description             string            `db:"description" json:"description"`
	ExtraData               ExtraData         `db:"extra_data" json:"extra_data"`
	CreatedAt               time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time         `db:"updated_at" json:"updated_at"`
}

// MarkFailed records the failure and appends the reason to the description.
func (t *Transaction) MarkFailed(reason string) {
	t.Status = TransactionFailed
	if reason == "" {
		return
	}
	if t.Description != "" {
		t.Description += "\n"
	}
	t.Description += "Failure reason: " + reason
}

// ExtraData is the opaque gateway payload kept on a transaction, stored as JSON text.
type ExtraData map[string]any

func (d ExtraData) Get(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func (d ExtraData) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *ExtraData) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("extra_data: unsupported type")
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}
