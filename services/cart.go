package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prago-api/cache"
	"prago-api/events"
	"prago-api/models"
	"prago-api/store"
	"prago-api/tasks"
	"prago-api/utils"

	"github.com/rs/zerolog/log"
)

type CartService struct {
	store             store.Store
	payments          *Payments
	enqueuer          tasks.Enqueuer
	events            events.Publisher
	guard             cache.Guard
	paymentCheckDelay time.Duration
	idempotencyTTL    time.Duration
	now               func() time.Time
}

type CartOptions struct {
	PaymentCheckDelay time.Duration
	IdempotencyTTL    time.Duration
}

func NewCartService(s store.Store, payments *Payments, enqueuer tasks.Enqueuer, publisher events.Publisher, guard cache.Guard, opts CartOptions) *CartService {
	return &CartService{
		store:             s,
		payments:          payments,
		enqueuer:          enqueuer,
		events:            publisher,
		guard:             guard,
		paymentCheckDelay: opts.PaymentCheckDelay,
		idempotencyTTL:    opts.IdempotencyTTL,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

type CartView struct {
	ID        int64          `json:"id"`
	Items     []PricedLine   `json:"items"`
	Coupon    *models.Coupon `json:"coupon"`
	ItemCount int            `json:"item_count"`
	Totals
}

func (s *CartService) view(ctx context.Context, r *store.Repos, cart *models.Cart) (*CartView, error) {
	items, err := r.Carts.Items(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	lines, subtotal, err := priceLines(ctx, r, items, now)
	if err != nil {
		return nil, err
	}

	var coupon *models.Coupon
	if cart.CouponID != nil {
		coupon, err = r.Coupons.GetByID(ctx, *cart.CouponID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	v := &CartView{ID: cart.ID, Items: lines, Coupon: coupon, Totals: computeTotals(subtotal, coupon, now)}
	for _, l := range lines {
		v.ItemCount += l.Quantity
	}
	return v, nil
}

func (s *CartService) Get(ctx context.Context, userID int64) (*CartView, error) {
	r := s.store.Repos()
	cart, err := r.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r, cart)
}

func (s *CartService) Add(ctx context.Context, userID int64, ref models.ItemRef, quantity int) (*CartView, error) {
	if ref.Kind != models.KindCourse {
		return nil, validationError("Subscription plans are purchased directly, not through the cart")
	}
	if quantity < 1 {
		quantity = 1
	}

	r := s.store.Repos()
	if _, err := resolveItem(ctx, r, ref); err != nil {
		return nil, err
	}

	e, err := r.Enrollments.Get(ctx, userID, ref.ID)
	if err == nil && e.IsActive {
		return nil, validationError("You are already enrolled in this course")
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	cart, err := r.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	err = r.Carts.AddItem(ctx, &models.CartItem{CartID: cart.ID, ItemRef: ref, Quantity: quantity})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("Item already in cart")
	}
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r, cart)
}

func (s *CartService) Remove(ctx context.Context, userID int64, ref models.ItemRef) (*CartView, error) {
	r := s.store.Repos()
	cart, err := r.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.Carts.RemoveItem(ctx, cart.ID, ref); err != nil {
		return nil, notFound(err, "Item not found in cart")
	}
	return s.view(ctx, r, cart)
}

func (s *CartService) ApplyCoupon(ctx context.Context, userID int64, code string) (*CartView, error) {
	r := s.store.Repos()
	coupon, err := r.Coupons.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, notFound(err, "Coupon not found")
	}
	if !coupon.IsValid(s.now()) {
		return nil, validationError("Coupon is invalid or expired")
	}

	cart, err := r.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.Carts.SetCoupon(ctx, cart.ID, &coupon.ID); err != nil {
		return nil, err
	}
	cart.CouponID = &coupon.ID
	return s.view(ctx, r, cart)
}

func (s *CartService) RemoveCoupon(ctx context.Context, userID int64) (*CartView, error) {
	r := s.store.Repos()
	cart, err := r.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.Carts.SetCoupon(ctx, cart.ID, nil); err != nil {
		return nil, err
	}
	cart.CouponID = nil
	return s.view(ctx, r, cart)
}

// Checkout turns the cart into a pending order and starts its payment.
// A non-empty idempotency key may only be used once per user.
func (s *CartService) Checkout(ctx context.Context, userID int64, callbackURL, idempotencyKey string) (*PaymentInit, error) {
	if idempotencyKey != "" {
		key := cache.IdempotencyKey(userID, idempotencyKey)
		ok, err := s.guard.Claim(ctx, key, s.idempotencyTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conflictError("This checkout request was already processed")
		}
	}

	order, err := s.createOrder(ctx, userID)
	if err != nil {
		if idempotencyKey != "" {
			if rErr := s.guard.Release(ctx, cache.IdempotencyKey(userID, idempotencyKey)); rErr != nil {
				log.Error().Err(rErr).Msg("failed to release idempotency key")
			}
		}
		return nil, err
	}

	afterOrderCreated(ctx, s.events, s.enqueuer, s.paymentCheckDelay, order)
	return s.payments.initiate(ctx, order, callbackURL, "")
}

func (s *CartService) createOrder(ctx context.Context, userID int64) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithTx(ctx, func(r *store.Repos) error {
		now := s.now()
		cart, err := r.Carts.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		items, err := r.Carts.Items(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return validationError("Cart is empty")
		}
		lines, subtotal, err := priceLines(ctx, r, items, now)
		if err != nil {
			return err
		}

		var coupon *models.Coupon
		if cart.CouponID != nil {
			coupon, err = r.Coupons.GetForUpdate(ctx, *cart.CouponID)
			if err != nil {
				return notFound(err, "Coupon not found")
			}
			if !coupon.IsValid(now) {
				return validationError("Coupon is invalid or expired")
			}
		}

		order = buildOrder(userID, lines, computeTotals(subtotal, coupon, now))
		if coupon != nil {
			order.CouponID = &coupon.ID
		}
		if err := r.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if coupon != nil {
			if err := r.Coupons.IncrementUsage(ctx, coupon.ID); err != nil {
				return fmt.Errorf("record coupon usage: %w", err)
			}
		}
		return r.Carts.Clear(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func buildOrder(userID int64, lines []PricedLine, totals Totals) *models.Order {
	order := &models.Order{
		UserID:      userID,
		OrderNumber: utils.NewOrderNumber(),
		Status:      models.OrderPending,
	}
	refs := make([]models.ItemRef, 0, len(lines))
	for _, l := range lines {
		refs = append(refs, l.ItemRef)
		order.Items = append(order.Items, models.OrderItem{
			ItemRef:    l.ItemRef,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
			TotalPrice: l.TotalPrice,
		})
	}
	order.OrderType = models.InferOrderType(refs)
	if len(refs) == 1 {
		id := refs[0].ID
		switch refs[0].Kind {
		case models.KindCourse:
			order.CourseID = &id
		case models.KindSubscriptionPlan:
			order.PlanID = &id
		}
	}
	order.SetAmounts(totals.Subtotal, totals.Discount)
	return order
}

// afterOrderCreated publishes the creation event and schedules the unpaid
// order check. Failures are logged only.
func afterOrderCreated(ctx context.Context, publisher events.Publisher, enqueuer tasks.Enqueuer, delay time.Duration, order *models.Order) {
	if err := publisher.Publish(ctx, events.NewOrderEvent(events.OrderCreated, order)); err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("failed to publish order created event")
	}

	job, err := tasks.NewJob(tasks.KindPaymentCheck, tasks.PaymentCheck{OrderID: order.ID})
	if err == nil {
		err = enqueuer.EnqueueDelayed(ctx, job, delay)
	}
	if err != nil {
		log.Error().Err(err).Str("order_number", order.OrderNumber).Msg("failed to schedule payment check")
	}
}
