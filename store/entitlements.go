package store

import (
	"context"
	"errors"
	"time"

	"prago-api/models"

	"github.com/jmoiron/sqlx"
)

const enrollmentColumns = "id, user_id, course_id, enrolled_at, is_active, last_accessed_at, completion_percentage"

type enrollmentRepo struct {
	q sqlx.ExtContext
}

func (r *enrollmentRepo) Get(ctx context.Context, userID, courseID int64) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := get(ctx, r.q, &e,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE user_id = ? AND course_id = ?", userID, courseID,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *enrollmentRepo) GetOrCreate(ctx context.Context, userID, courseID int64) (*models.Enrollment, bool, error) {
	e, err := r.Get(ctx, userID, courseID)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	e = &models.Enrollment{UserID: userID, CourseID: courseID, EnrolledAt: now(), IsActive: true}
	id, err := insert(ctx, r.q,
		"INSERT INTO enrollments (user_id, course_id, enrolled_at, is_active, completion_percentage) VALUES (?, ?, ?, ?, ?)",
		e.UserID, e.CourseID, e.EnrolledAt, e.IsActive, 0,
	)
	if errors.Is(err, ErrDuplicate) {
		e, err = r.Get(ctx, userID, courseID)
		return e, false, err
	}
	if err != nil {
		return nil, false, err
	}
	e.ID = id
	return e, true, nil
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := selectAll(ctx, r.q, &enrollments,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE user_id = ? AND is_active = ? ORDER BY enrolled_at DESC, id DESC",
		userID, true)
	return enrollments, err
}

func (r *enrollmentRepo) Update(ctx context.Context, e *models.Enrollment) error {
	return execOne(ctx, r.q,
		"UPDATE enrollments SET is_active = ?, last_accessed_at = ?, completion_percentage = ? WHERE id = ?",
		e.IsActive, e.LastAccessedAt, e.CompletionPercentage, e.ID)
}

const subscriptionColumns = "id, user_id, plan_id, start_date, end_date, is_active"

type subscriptionRepo struct {
	q sqlx.ExtContext
}

func (r *subscriptionRepo) Create(ctx context.Context, s *models.UserSubscription) error {
	id, err := insert(ctx, r.q,
		"INSERT INTO user_subscriptions (user_id, plan_id, start_date, end_date, is_active) VALUES (?, ?, ?, ?, ?)",
		s.UserID, s.PlanID, s.StartDate, s.EndDate, s.IsActive,
	)
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id int64) (*models.UserSubscription, error) {
	var s models.UserSubscription
	if err := get(ctx, r.q, &s, "SELECT "+subscriptionColumns+" FROM user_subscriptions WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID int64) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := selectAll(ctx, r.q, &subs,
		"SELECT "+subscriptionColumns+" FROM user_subscriptions WHERE user_id = ? ORDER BY start_date DESC, id DESC", userID)
	return subs, err
}

func (r *subscriptionRepo) ListValid(ctx context.Context, userID int64, at time.Time) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := selectAll(ctx, r.q, &subs,
		"SELECT "+subscriptionColumns+" FROM user_subscriptions WHERE user_id = ? AND is_active = ? AND end_date > ? ORDER BY end_date DESC",
		userID, true, at)
	return subs, err
}
