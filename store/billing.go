package store

import (
	"context"
	"errors"

	"prago-api/models"

	"github.com/jmoiron/sqlx"
)

const couponColumns = `id, code, description, discount_type, discount_value, usage_limit,
	times_used, valid_from, valid_to, is_active, created_at`

type couponRepo struct {
	q sqlx.ExtContext
}

func (r *couponRepo) Create(ctx context.Context, c *models.Coupon) error {
	c.CreatedAt = now()
	if c.ValidFrom.IsZero() {
		c.ValidFrom = c.CreatedAt
	}
	id, err := insert(ctx, r.q, `
		INSERT INTO coupons (code, description, discount_type, discount_value, usage_limit,
			times_used, valid_from, valid_to, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code, c.Description, c.DiscountType, c.DiscountValue, c.UsageLimit,
		c.TimesUsed, c.ValidFrom, c.ValidTo, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *couponRepo) GetByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var c models.Coupon
	if err := get(ctx, r.q, &c, "SELECT "+couponColumns+" FROM coupons WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	if err := get(ctx, r.q, &c, "SELECT "+couponColumns+" FROM coupons WHERE UPPER(code) = UPPER(?)", code); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) GetForUpdate(ctx context.Context, id int64) (*models.Coupon, error) {
	var c models.Coupon
	if err := get(ctx, r.q, &c, forUpdate("SELECT "+couponColumns+" FROM coupons WHERE id = ?"), id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) IncrementUsage(ctx context.Context, id int64) error {
	return execOne(ctx, r.q, "UPDATE coupons SET times_used = times_used + 1 WHERE id = ?", id)
}

type cartRepo struct {
	q sqlx.ExtContext
}

func (r *cartRepo) GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error) {
	var c models.Cart
	err := get(ctx, r.q, &c, "SELECT id, user_id, coupon_id, created_at, updated_at FROM carts WHERE user_id = ?", userID)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// A failed INSERT aborts a postgres transaction, so a concurrently
	// created cart must not surface as a duplicate key error.
	ts := now()
	query := insertIgnore(r.q, "INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)", "user_id")
	if _, err := exec(ctx, r.q, query, userID, ts, ts); err != nil {
		return nil, err
	}
	if err := get(ctx, r.q, &c, "SELECT id, user_id, coupon_id, created_at, updated_at FROM carts WHERE user_id = ?", userID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) SetCoupon(ctx context.Context, cartID int64, couponID *int64) error {
	return execOne(ctx, r.q, "UPDATE carts SET coupon_id = ?, updated_at = ? WHERE id = ?", couponID, now(), cartID)
}

func (r *cartRepo) Items(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := selectAll(ctx, r.q, &items,
		"SELECT id, cart_id, item_kind, item_id, quantity, added_at FROM cart_items WHERE cart_id = ? ORDER BY id", cartID)
	return items, err
}

func (r *cartRepo) AddItem(ctx context.Context, item *models.CartItem) error {
	item.AddedAt = now()
	id, err := insert(ctx, r.q,
		"INSERT INTO cart_items (cart_id, item_kind, item_id, quantity, added_at) VALUES (?, ?, ?, ?, ?)",
		item.CartID, item.Kind, item.ItemRef.ID, item.Quantity, item.AddedAt,
	)
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (r *cartRepo) RemoveItem(ctx context.Context, cartID int64, ref models.ItemRef) error {
	return execOne(ctx, r.q,
		"DELETE FROM cart_items WHERE cart_id = ? AND item_kind = ? AND item_id = ?", cartID, ref.Kind, ref.ID)
}

func (r *cartRepo) Clear(ctx context.Context, cartID int64) error {
	if _, err := exec(ctx, r.q, "DELETE FROM cart_items WHERE cart_id = ?", cartID); err != nil {
		return err
	}
	_, err := exec(ctx, r.q, "UPDATE carts SET coupon_id = NULL, updated_at = ? WHERE id = ?", now(), cartID)
	return err
}

const orderColumns = `id, user_id, order_number, status, order_type, course_id, plan_id, total_amount,
	discount_amount, final_amount, coupon_id, created_at, updated_at, paid_at`

type orderRepo struct {
	q sqlx.ExtContext
}

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	ts := now()
	o.CreatedAt, o.UpdatedAt = ts, ts
	id, err := insert(ctx, r.q, `
		INSERT INTO orders (user_id, order_number, status, order_type, course_id, plan_id,
			total_amount, discount_amount, final_amount, coupon_id, created_at, updated_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.OrderNumber, o.Status, o.OrderType, o.CourseID, o.PlanID,
		o.TotalAmount, o.DiscountAmount, o.FinalAmount, o.CouponID, o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return err
	}
	o.ID = id

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		itemID, err := insert(ctx, r.q, `
			INSERT INTO order_items (order_id, item_kind, item_id, name, quantity, unit_price, total_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.OrderID, item.Kind, item.ItemRef.ID, item.Name, item.Quantity, item.UnitPrice, item.TotalPrice,
		)
		if err != nil {
			return err
		}
		item.ID = itemID
	}
	return nil
}

func (r *orderRepo) getBy(ctx context.Context, query string, value any) (*models.Order, error) {
	var o models.Order
	if err := get(ctx, r.q, &o, query, value); err != nil {
		return nil, err
	}
	items, err := r.Items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return r.getBy(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.getBy(ctx, forUpdate("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id)
}

func (r *orderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.getBy(ctx, "SELECT "+orderColumns+" FROM orders WHERE order_number = ?", number)
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	if err := selectAll(ctx, r.q, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID,
	); err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := r.Items(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *orderRepo) Items(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := selectAll(ctx, r.q, &items, `
		SELECT id, order_id, item_kind, item_id, name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	return items, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, o *models.Order) error {
	o.UpdatedAt = now()
	return execOne(ctx, r.q, "UPDATE orders SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?",
		o.Status, o.PaidAt, o.UpdatedAt, o.ID)
}

func (r *orderRepo) LatestPaidWithItem(ctx context.Context, userID int64, ref models.ItemRef) (*models.Order, error) {
	return r.getByArgs(ctx, `
		SELECT o.id, o.user_id, o.order_number, o.status, o.order_type, o.course_id, o.plan_id,
			o.total_amount, o.discount_amount, o.final_amount, o.coupon_id, o.created_at, o.updated_at, o.paid_at
		FROM orders o JOIN order_items oi ON oi.order_id = o.id
		WHERE o.user_id = ? AND o.status = ? AND oi.item_kind = ? AND oi.item_id = ?
		ORDER BY o.paid_at DESC, o.id DESC LIMIT 1`,
		userID, models.OrderPaid, ref.Kind, ref.ID)
}

func (r *orderRepo) getByArgs(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var o models.Order
	if err := get(ctx, r.q, &o, query, args...); err != nil {
		return nil, err
	}
	return &o, nil
}

const transactionColumns = `id, order_id, transaction_id, amount, status, payment_method,
	payment_gateway_reference, description, extra_data, created_at, updated_at`

type transactionRepo struct {
	q sqlx.ExtContext
}

func (r *transactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	id, err := insert(ctx, r.q, `
		INSERT INTO transactions (order_id, transaction_id, amount, status, payment_method,
			payment_gateway_reference, description, extra_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.TransactionID, t.Amount, t.Status, t.PaymentMethod,
		t.PaymentGatewayReference, t.Description, t.ExtraData, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (r *transactionRepo) getBy(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	var t models.Transaction
	if err := get(ctx, r.q, &t, query, args...); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return r.getBy(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE transaction_id = ?", transactionID)
}

func (r *transactionRepo) GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error) {
	return r.getBy(ctx, forUpdate("SELECT "+transactionColumns+" FROM transactions WHERE id = ?"), id)
}

func (r *transactionRepo) GetByAuthority(ctx context.Context, authority string) (*models.Transaction, error) {
	return r.getBy(ctx, "SELECT "+transactionColumns+
		" FROM transactions WHERE payment_gateway_reference = ? ORDER BY created_at DESC, id DESC LIMIT 1", authority)
}

func (r *transactionRepo) LatestForOrder(ctx context.Context, orderID int64, method string) (*models.Transaction, error) {
	return r.getBy(ctx, "SELECT "+transactionColumns+
		" FROM transactions WHERE order_id = ? AND payment_method = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		orderID, method)
}

func (r *transactionRepo) HasSuccessful(ctx context.Context, orderID int64) (bool, error) {
	var n int
	if err := get(ctx, r.q, &n, "SELECT COUNT(*) FROM transactions WHERE order_id = ? AND status = ?",
		orderID, models.TransactionSuccessful); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *transactionRepo) Update(ctx context.Context, t *models.Transaction) error {
	t.UpdatedAt = now()
	return execOne(ctx, r.q, `
		UPDATE transactions SET status = ?, payment_gateway_reference = ?, description = ?,
			extra_data = ?, updated_at = ?
		WHERE id = ?`,
		t.Status, t.PaymentGatewayReference, t.Description, t.ExtraData, t.UpdatedAt, t.ID,
	)
}
