package services

import (
	"context"
	"fmt"
	"time"

	"prago-api/models"
	"prago-api/store"
)

type granter func(ctx context.Context, r *store.Repos, userID, itemID int64, now time.Time) error

var granters = map[models.ItemKind]granter{
	models.KindCourse:           enroll,
	models.KindSubscriptionPlan: subscribe,
}

func enroll(ctx context.Context, r *store.Repos, userID, courseID int64, _ time.Time) error {
	e, created, err := r.Enrollments.GetOrCreate(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("enroll user %d in course %d: %w", userID, courseID, err)
	}
	if !created && !e.IsActive {
		e.IsActive = true
		return r.Enrollments.Update(ctx, e)
	}
	return nil
}

// subscribe starts a new period at now, or at the end of the latest still
// valid subscription to the same plan.
func subscribe(ctx context.Context, r *store.Repos, userID, planID int64, now time.Time) error {
	plan, err := r.Plans.GetByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %d: %w", planID, err)
	}

	start := now
	valid, err := r.Subscriptions.ListValid(ctx, userID, now)
	if err != nil {
		return err
	}
	for _, s := range valid {
		if s.PlanID == planID && s.EndDate.After(start) {
			start = s.EndDate
		}
	}

	return r.Subscriptions.Create(ctx, &models.UserSubscription{
		UserID:    userID,
		PlanID:    planID,
		StartDate: start,
		EndDate:   start.Add(plan.Duration()),
		IsActive:  true,
	})
}

func entitlementRefs(order *models.Order) []models.ItemRef {
	switch {
	case order.OrderType == models.OrderTypeCourse && order.CourseID != nil:
		return []models.ItemRef{{Kind: models.KindCourse, ID: *order.CourseID}}
	case order.OrderType == models.OrderTypeSubscription && order.PlanID != nil:
		return []models.ItemRef{{Kind: models.KindSubscriptionPlan, ID: *order.PlanID}}
	}
	refs := make([]models.ItemRef, 0, len(order.Items))
	for _, it := range order.Items {
		refs = append(refs, it.ItemRef)
	}
	return refs
}

// markOrderPaid locks the order, flips it to paid and grants what it bought.
// It reports false when the order was already paid. Run it inside WithTx.
func markOrderPaid(ctx context.Context, r *store.Repos, orderID int64, now time.Time) (*models.Order, bool, error) {
	order, err := r.Orders.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	if order.IsPaid() {
		return order, false, nil
	}

	order.Status = models.OrderPaid
	if order.PaidAt == nil {
		paidAt := now
		order.PaidAt = &paidAt
	}
	if err := r.Orders.UpdateStatus(ctx, order); err != nil {
		return nil, false, err
	}

	for _, ref := range entitlementRefs(order) {
		grant, ok := granters[ref.Kind]
		if !ok {
			return nil, false, fmt.Errorf("order %s: no entitlement for %s", order.OrderNumber, ref)
		}
		if err := grant(ctx, r, order.UserID, ref.ID, now); err != nil {
			return nil, false, err
		}
	}
	return order, true, nil
}

// markTransactionSuccessful records the gateway data on the transaction and
// cascades to the order. It is a no-op for an already successful transaction.
func markTransactionSuccessful(ctx context.Context, r *store.Repos, trxID int64, extra models.ExtraData, now time.Time) (*models.Transaction, *models.Order, error) {
	trx, err := r.Transactions.GetForUpdate(ctx, trxID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock transaction %d: %w", trxID, err)
	}
	if trx.Status == models.TransactionSuccessful {
		return trx, nil, nil
	}

	if trx.ExtraData == nil {
		trx.ExtraData = models.ExtraData{}
	}
	for k, v := range extra {
		trx.ExtraData[k] = v
	}
	trx.Status = models.TransactionSuccessful
	if err := r.Transactions.Update(ctx, trx); err != nil {
		return nil, nil, err
	}

	order, paidNow, err := markOrderPaid(ctx, r, trx.OrderID, now)
	if err != nil {
		return nil, nil, err
	}
	if !paidNow {
		order = nil
	}
	return trx, order, nil
}
