package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prago-api/models"
	"prago-api/store"
)

const (
	SourceDirectPurchase = "direct_purchase"
	SourceSubscription   = "subscription"
)

type EnrollmentService struct {
	store store.Store
	now   func() time.Time
}

func NewEnrollmentService(s store.Store) *EnrollmentService {
	return &EnrollmentService{store: s, now: func() time.Time { return time.Now().UTC() }}
}

type EnrollmentSubscription struct {
	ID            int64     `json:"id"`
	PlanName      string    `json:"plan_name"`
	EndDate       time.Time `json:"end_date"`
	RemainingDays int       `json:"remaining_days"`
	IsValid       bool      `json:"is_valid"`
}

type EnrollmentView struct {
	ID                   int64                   `json:"id"`
	Course               CourseSummary           `json:"course"`
	EnrolledAt           time.Time               `json:"enrollment_date"`
	IsActive             bool                    `json:"is_active"`
	LastAccessedAt       *time.Time              `json:"last_accessed_at"`
	CompletionPercentage int                     `json:"completion_percentage"`
	Source               string                  `json:"enrollment_source"`
	SubscriptionID       *int64                  `json:"subscription_id"`
	Subscription         *EnrollmentSubscription `json:"subscription,omitempty"`
	Order                *PaidOrderSummary       `json:"order,omitempty"`
}

// coveringSubscription finds a valid subscription whose plan includes the course.
func coveringSubscription(ctx context.Context, r *store.Repos, userID, courseID int64, now time.Time) (*models.UserSubscription, *models.SubscriptionPlan, error) {
	subs, err := r.Subscriptions.ListValid(ctx, userID, now)
	if err != nil {
		return nil, nil, err
	}
	for i := range subs {
		plan, err := r.Plans.GetByID(ctx, subs[i].PlanID)
		if err != nil {
			return nil, nil, fmt.Errorf("load plan %d: %w", subs[i].PlanID, err)
		}
		if plan.Includes(courseID) {
			return &subs[i], plan, nil
		}
	}
	return nil, nil, nil
}

func (s *EnrollmentService) view(ctx context.Context, r *store.Repos, e *models.Enrollment, course *models.Course, now time.Time) (*EnrollmentView, error) {
	v := &EnrollmentView{
		ID:                   e.ID,
		Course:               CourseSummary{ID: course.ID, Title: course.Title, Slug: course.Slug},
		EnrolledAt:           e.EnrolledAt,
		IsActive:             e.IsActive,
		LastAccessedAt:       e.LastAccessedAt,
		CompletionPercentage: e.CompletionPercentage,
		Source:               SourceDirectPurchase,
	}

	sub, plan, err := coveringSubscription(ctx, r, e.UserID, course.ID, now)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		v.Source = SourceSubscription
		v.SubscriptionID = &sub.ID
		v.Subscription = &EnrollmentSubscription{
			ID:            sub.ID,
			PlanName:      plan.Name,
			EndDate:       sub.EndDate,
			RemainingDays: sub.RemainingDays(now),
			IsValid:       sub.IsValid(now),
		}
	}
	return v, nil
}

func (s *EnrollmentService) List(ctx context.Context, userID int64) ([]EnrollmentView, error) {
	r := s.store.Repos()
	enrollments, err := r.Enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.CourseID)
	}
	courses, err := r.Courses.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Course, len(courses))
	for i := range courses {
		byID[courses[i].ID] = &courses[i]
	}

	now := s.now()
	views := make([]EnrollmentView, 0, len(enrollments))
	for i := range enrollments {
		course, ok := byID[enrollments[i].CourseID]
		if !ok {
			continue
		}
		v, err := s.view(ctx, r, &enrollments[i], course, now)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *EnrollmentService) load(ctx context.Context, r *store.Repos, userID int64, slug string) (*models.Enrollment, *models.Course, error) {
	course, err := r.Courses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, notFound(err, "Course not found")
	}
	e, err := r.Enrollments.Get(ctx, userID, course.ID)
	if err != nil {
		return nil, nil, notFound(err, "Enrollment not found")
	}
	if !e.IsActive {
		return nil, nil, notFoundError("Enrollment not found")
	}
	return e, course, nil
}

func (s *EnrollmentService) Detail(ctx context.Context, userID int64, slug string) (*EnrollmentView, error) {
	r := s.store.Repos()
	e, course, err := s.load(ctx, r, userID, slug)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, r, e, course, s.now())
	if err != nil {
		return nil, err
	}
	if v.Source == SourceDirectPurchase {
		order, err := r.Orders.LatestPaidWithItem(ctx, userID, course.Ref())
		switch {
		case err == nil:
			v.Order = &PaidOrderSummary{OrderNumber: order.OrderNumber, PaidAt: order.PaidAt, Amount: order.FinalAmount}
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return v, nil
}

// Enroll grants access without an order: the course must be free or covered
// by a valid subscription.
func (s *EnrollmentService) Enroll(ctx context.Context, userID int64, slug string) (*EnrollmentView, bool, error) {
	r := s.store.Repos()
	now := s.now()
	course, err := r.Courses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, false, notFound(err, "Course not found")
	}

	if !course.IsFree(now) {
		sub, _, err := coveringSubscription(ctx, r, userID, course.ID, now)
		if err != nil {
			return nil, false, err
		}
		if sub == nil {
			return nil, false, validationError("This course must be purchased before enrolling")
		}
	}

	e, created, err := r.Enrollments.GetOrCreate(ctx, userID, course.ID)
	if err != nil {
		return nil, false, err
	}
	if !e.IsActive {
		e.IsActive = true
		if err := r.Enrollments.Update(ctx, e); err != nil {
			return nil, false, err
		}
		created = true
	}
	v, err := s.view(ctx, r, e, course, now)
	return v, created, err
}

func (s *EnrollmentService) UpdateProgress(ctx context.Context, userID int64, slug string, percentage int) (*EnrollmentView, error) {
	if percentage < 0 || percentage > 100 {
		return nil, validationError("completion_percentage must be between 0 and 100")
	}
	r := s.store.Repos()
	e, course, err := s.load(ctx, r, userID, slug)
	if err != nil {
		return nil, err
	}
	now := s.now()
	e.CompletionPercentage = percentage
	e.LastAccessedAt = &now
	if err := r.Enrollments.Update(ctx, e); err != nil {
		return nil, err
	}
	return s.view(ctx, r, e, course, now)
}
