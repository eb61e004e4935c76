package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"prago-api/models"
	"prago-api/store"
)

type couponRepo struct{ s *Store }

func (r *couponRepo) Create(ctx context.Context, c *models.Coupon) error {
	d, err := r.s.lock("coupons.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.coupons {
		if strings.EqualFold(existing.Code, c.Code) {
			return fmt.Errorf("%w: coupon code", store.ErrDuplicate)
		}
	}
	c.ID = d.nextID()
	c.CreatedAt = now()
	if c.ValidFrom.IsZero() {
		c.ValidFrom = c.CreatedAt
	}
	d.coupons[c.ID] = *c
	return nil
}

func (r *couponRepo) GetByID(ctx context.Context, id int64) (*models.Coupon, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	c, ok := d.coupons[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (r *couponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, c := range d.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetForUpdate needs no row lock here: transactions are already serialized.
func (r *couponRepo) GetForUpdate(ctx context.Context, id int64) (*models.Coupon, error) {
	return r.GetByID(ctx, id)
}

func (r *couponRepo) IncrementUsage(ctx context.Context, id int64) error {
	d, err := r.s.lock("coupons.increment_usage")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	c, ok := d.coupons[id]
	if !ok {
		return store.ErrNotFound
	}
	c.RecordUsage()
	d.coupons[id] = c
	return nil
}

type cartRepo struct{ s *Store }

func (r *cartRepo) GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error) {
	d, err := r.s.lock("carts.get_or_create")
	defer r.s.unlock()
	if err != nil {
		return nil, err
	}
	for _, c := range d.carts {
		if c.UserID == userID {
			return &c, nil
		}
	}
	ts := now()
	c := models.Cart{ID: d.nextID(), UserID: userID, CreatedAt: ts, UpdatedAt: ts}
	d.carts[c.ID] = c
	return &c, nil
}

func (r *cartRepo) SetCoupon(ctx context.Context, cartID int64, couponID *int64) error {
	d, err := r.s.lock("carts.set_coupon")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	c, ok := d.carts[cartID]
	if !ok {
		return store.ErrNotFound
	}
	c.CouponID = couponID
	c.UpdatedAt = now()
	d.carts[cartID] = c
	return nil
}

func (r *cartRepo) Items(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.CartItem
	for _, item := range d.cartItems {
		if item.CartID == cartID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *cartRepo) AddItem(ctx context.Context, item *models.CartItem) error {
	d, err := r.s.lock("carts.add_item")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.cartItems {
		if existing.CartID == item.CartID && existing.ItemRef == item.ItemRef {
			return fmt.Errorf("%w: cart item", store.ErrDuplicate)
		}
	}
	item.ID = d.nextID()
	item.AddedAt = now()
	d.cartItems[item.ID] = *item
	return nil
}

func (r *cartRepo) RemoveItem(ctx context.Context, cartID int64, ref models.ItemRef) error {
	d, err := r.s.lock("carts.remove_item")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for id, item := range d.cartItems {
		if item.CartID == cartID && item.ItemRef == ref {
			delete(d.cartItems, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *cartRepo) Clear(ctx context.Context, cartID int64) error {
	d, err := r.s.lock("carts.clear")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for id, item := range d.cartItems {
		if item.CartID == cartID {
			delete(d.cartItems, id)
		}
	}
	if c, ok := d.carts[cartID]; ok {
		c.CouponID = nil
		c.UpdatedAt = now()
		d.carts[cartID] = c
	}
	return nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	d, err := r.s.lock("orders.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.orders {
		if existing.OrderNumber == o.OrderNumber {
			return fmt.Errorf("%w: order number", store.ErrDuplicate)
		}
	}
	o.ID = d.nextID()
	ts := now()
	o.CreatedAt, o.UpdatedAt = ts, ts
	for i := range o.Items {
		o.Items[i].ID = d.nextID()
		o.Items[i].OrderID = o.ID
		d.orderItems[o.Items[i].ID] = o.Items[i]
	}
	stored := *o
	stored.Items = nil
	d.orders[o.ID] = stored
	return nil
}

func (d *data) itemsOf(orderID int64) []models.OrderItem {
	out := []models.OrderItem{}
	for _, item := range d.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) withItems(o models.Order) *models.Order {
	o.Items = d.itemsOf(o.ID)
	return &o
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	o, ok := d.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d.withItems(o), nil
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *orderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, o := range d.orders {
		if o.OrderNumber == number {
			return d.withItems(o), nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Order
	for _, o := range d.orders {
		if o.UserID == userID {
			out = append(out, *d.withItems(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *orderRepo) Items(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	return d.itemsOf(orderID), nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, o *models.Order) error {
	d, err := r.s.lock("orders.update_status")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	stored, ok := d.orders[o.ID]
	if !ok {
		return store.ErrNotFound
	}
	o.UpdatedAt = now()
	stored.Status = o.Status
	stored.PaidAt = o.PaidAt
	stored.UpdatedAt = o.UpdatedAt
	d.orders[o.ID] = stored
	return nil
}

func (r *orderRepo) LatestPaidWithItem(ctx context.Context, userID int64, ref models.ItemRef) (*models.Order, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var best *models.Order
	for _, o := range d.orders {
		if o.UserID != userID || o.Status != models.OrderPaid {
			continue
		}
		for _, item := range d.itemsOf(o.ID) {
			if item.ItemRef == ref && (best == nil || o.ID > best.ID) {
				found := o
				best = &found
			}
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	d, err := r.s.lock("transactions.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.transactions {
		if existing.TransactionID == t.TransactionID {
			return fmt.Errorf("%w: transaction id", store.ErrDuplicate)
		}
	}
	t.ID = d.nextID()
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	stored := *t
	stored.ExtraData = cloneExtra(t.ExtraData)
	d.transactions[t.ID] = stored
	return nil
}

func (r *transactionRepo) find(match func(t models.Transaction) bool) (*models.Transaction, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var best *models.Transaction
	for _, t := range d.transactions {
		if match(t) && (best == nil || t.ID > best.ID) {
			found := t
			best = &found
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	best.ExtraData = cloneExtra(best.ExtraData)
	return best, nil
}

func (r *transactionRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool { return t.TransactionID == transactionID })
}

func (r *transactionRepo) GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool { return t.ID == id })
}

func (r *transactionRepo) GetByAuthority(ctx context.Context, authority string) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool {
		return t.PaymentGatewayReference != nil && *t.PaymentGatewayReference == authority
	})
}

func (r *transactionRepo) LatestForOrder(ctx context.Context, orderID int64, method string) (*models.Transaction, error) {
	return r.find(func(t models.Transaction) bool { return t.OrderID == orderID && t.PaymentMethod == method })
}

func (r *transactionRepo) HasSuccessful(ctx context.Context, orderID int64) (bool, error) {
	_, err := r.find(func(t models.Transaction) bool {
		return t.OrderID == orderID && t.Status == models.TransactionSuccessful
	})
	if err == store.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *transactionRepo) Update(ctx context.Context, t *models.Transaction) error {
	d, err := r.s.lock("transactions.update")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	stored, ok := d.transactions[t.ID]
	if !ok {
		return store.ErrNotFound
	}
	t.UpdatedAt = now()
	stored.Status = t.Status
	stored.PaymentGatewayReference = t.PaymentGatewayReference
	stored.Description = t.Description
	stored.ExtraData = cloneExtra(t.ExtraData)
	stored.UpdatedAt = t.UpdatedAt
	d.transactions[t.ID] = stored
	return nil
}
