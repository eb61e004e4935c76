package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prago-api/events"
	"prago-api/models"
	"prago-api/store"
	"prago-api/tasks"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type SubscriptionService struct {
	store             store.Store
	payments          *Payments
	enqueuer          tasks.Enqueuer
	events            events.Publisher
	paymentCheckDelay time.Duration
	now               func() time.Time
}

func NewSubscriptionService(s store.Store, payments *Payments, enqueuer tasks.Enqueuer, publisher events.Publisher, paymentCheckDelay time.Duration) *SubscriptionService {
	return &SubscriptionService{
		store:             s,
		payments:          payments,
		enqueuer:          enqueuer,
		events:            publisher,
		paymentCheckDelay: paymentCheckDelay,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

type PlanView struct {
	*models.SubscriptionPlan
	OriginalPrice   decimal.Decimal `json:"original_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HasSpecialOffer bool            `json:"has_special_offer"`
}

func newPlanView(p *models.SubscriptionPlan, now time.Time) PlanView {
	return PlanView{
		SubscriptionPlan: p,
		OriginalPrice:    p.Price,
		CurrentPrice:     p.CurrentPrice(now),
		HasSpecialOffer:  p.ActiveAt(now),
	}
}

func (s *SubscriptionService) ListPlans(ctx context.Context) ([]PlanView, error) {
	plans, err := s.store.Repos().Plans.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]PlanView, 0, len(plans))
	for i := range plans {
		views = append(views, newPlanView(&plans[i], now))
	}
	return views, nil
}

func (s *SubscriptionService) GetPlan(ctx context.Context, slug string) (*PlanView, error) {
	plan, err := s.store.Repos().Plans.GetBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "Subscription plan not found")
	}
	if !plan.IsActive {
		return nil, notFoundError("Subscription plan not found")
	}
	v := newPlanView(plan, s.now())
	return &v, nil
}

type CourseSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type PaidOrderSummary struct {
	OrderNumber string          `json:"order_number"`
	PaidAt      *time.Time      `json:"paid_at"`
	Amount      decimal.Decimal `json:"amount"`
}

type SubscriptionView struct {
	ID                 int64             `json:"id"`
	PlanID             int64             `json:"plan_id"`
	PlanName           string            `json:"plan_name"`
	DurationDays       int               `json:"duration_days"`
	StartDate          time.Time         `json:"start_date"`
	EndDate            time.Time         `json:"end_date"`
	IsActive           bool              `json:"is_active"`
	IsValid            bool              `json:"is_valid"`
	RemainingDays      int               `json:"remaining_days"`
	ProgressPercentage float64           `json:"progress_percentage"`
	CoursesCount       int               `json:"courses_count"`
	AvailableCourses   []CourseSummary   `json:"available_courses"`
	Order              *PaidOrderSummary `json:"order,omitempty"`
}

func (s *SubscriptionService) view(ctx context.Context, r *store.Repos, sub *models.UserSubscription, now time.Time) (*SubscriptionView, error) {
	plan, err := r.Plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan %d: %w", sub.PlanID, err)
	}
	courses, err := r.Courses.GetByIDs(ctx, plan.IncludedCourseIDs)
	if err != nil {
		return nil, err
	}

	v := &SubscriptionView{
		ID:                 sub.ID,
		PlanID:             plan.ID,
		PlanName:           plan.Name,
		DurationDays:       plan.DurationDays,
		StartDate:          sub.StartDate,
		EndDate:            sub.EndDate,
		IsActive:           sub.IsActive,
		IsValid:            sub.IsValid(now),
		RemainingDays:      sub.RemainingDays(now),
		ProgressPercentage: sub.ProgressPercentage(now),
		AvailableCourses:   make([]CourseSummary, 0, len(courses)),
	}
	for _, c := range courses {
		v.AvailableCourses = append(v.AvailableCourses, CourseSummary{ID: c.ID, Title: c.Title, Slug: c.Slug})
	}
	v.CoursesCount = len(v.AvailableCourses)
	return v, nil
}

func (s *SubscriptionService) Mine(ctx context.Context, userID int64) ([]SubscriptionView, error) {
	r := s.store.Repos()
	subs, err := r.Subscriptions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]SubscriptionView, 0, len(subs))
	for i := range subs {
		v, err := s.view(ctx, r, &subs[i], now)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *SubscriptionService) MineDetail(ctx context.Context, userID, id int64) (*SubscriptionView, error) {
	r := s.store.Repos()
	sub, err := r.Subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "Subscription not found")
	}
	if sub.UserID != userID {
		return nil, notFoundError("Subscription not found")
	}
	v, err := s.view(ctx, r, sub, s.now())
	if err != nil {
		return nil, err
	}

	order, err := r.Orders.LatestPaidWithItem(ctx, userID, models.ItemRef{Kind: models.KindSubscriptionPlan, ID: sub.PlanID})
	switch {
	case err == nil:
		v.Order = &PaidOrderSummary{OrderNumber: order.OrderNumber, PaidAt: order.PaidAt, Amount: order.FinalAmount}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return v, nil
}

// Active returns the valid subscription that ends last.
func (s *SubscriptionService) Active(ctx context.Context, userID int64) (*SubscriptionView, error) {
	r := s.store.Repos()
	now := s.now()
	subs, err := r.Subscriptions.ListValid(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, notFoundError("No active subscription found.")
	}
	return s.view(ctx, r, &subs[0], now)
}

type PurchaseRequest struct {
	PlanID      int64
	CallbackURL string
	CouponCode  string
}

// Purchase creates a subscription order for the plan and starts its payment.
// An unknown or unusable coupon code is ignored.
func (s *SubscriptionService) Purchase(ctx context.Context, userID int64, req PurchaseRequest) (*PaymentInit, error) {
	var (
		order  *models.Order
		coupon *models.Coupon
	)
	err := s.store.WithTx(ctx, func(r *store.Repos) error {
		now := s.now()
		item, err := resolveItem(ctx, r, models.ItemRef{Kind: models.KindSubscriptionPlan, ID: req.PlanID})
		if err != nil {
			return err
		}
		plan := item.(*models.SubscriptionPlan)

		valid, err := r.Subscriptions.ListValid(ctx, userID, now)
		if err != nil {
			return err
		}
		for _, sub := range valid {
			if sub.PlanID == plan.ID {
				return validationError("You already have an active subscription to this plan")
			}
		}

		if code := strings.TrimSpace(req.CouponCode); code != "" {
			coupon = s.lockCoupon(ctx, r, code, now)
		}

		price := plan.CurrentPrice(now)
		line := PricedLine{
			ItemRef:    plan.Ref(),
			Name:       plan.Name,
			Quantity:   1,
			UnitPrice:  price,
			TotalPrice: price,
		}
		order = buildOrder(userID, []PricedLine{line}, computeTotals(price, coupon, now))
		if coupon != nil {
			order.CouponID = &coupon.ID
		}
		if err := r.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if coupon != nil {
			return r.Coupons.IncrementUsage(ctx, coupon.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	afterOrderCreated(ctx, s.events, s.enqueuer, s.paymentCheckDelay, order)

	note := ""
	if coupon != nil {
		note = "Coupon: " + coupon.Code
	}
	return s.payments.initiate(ctx, order, req.CallbackURL, note)
}

func (s *SubscriptionService) lockCoupon(ctx context.Context, r *store.Repos, code string, now time.Time) *models.Coupon {
	found, err := r.Coupons.GetByCode(ctx, code)
	if err != nil {
		log.Info().Str("coupon", code).Msg("coupon not found, purchasing without discount")
		return nil
	}
	coupon, err := r.Coupons.GetForUpdate(ctx, found.ID)
	if err != nil || !coupon.IsValid(now) {
		log.Info().Str("coupon", code).Msg("coupon invalid or expired, purchasing without discount")
		return nil
	}
	return coupon
}
