package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionPlan struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Slug        string          `db:"slug" json:"slug"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	SpecialOffer
	DurationDays int       `db:"duration_days" json:"duration_days"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`

	IncludedCourseIDs []int64 `db:"-" json:"included_course_ids,omitempty"`
}

func (p *SubscriptionPlan) CurrentPrice(now time.Time) decimal.Decimal {
	return p.PriceAt(p.Price, now)
}

func (p *SubscriptionPlan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

func (p *SubscriptionPlan) Includes(courseID int64) bool {
	for _, id := range p.IncludedCourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

type UserSubscription struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	PlanID    int64     `db:"plan_id" json:"plan_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

func (s *UserSubscription) IsValid(now time.Time) bool {
	return s.IsActive && s.EndDate.After(now)
}

func (s *UserSubscription) RemainingDays(now time.Time) int {
	if !s.EndDate.After(now) {
		return 0
	}
	return int(s.EndDate.Sub(now).Hours() / 24)
}

// ProgressPercentage is the elapsed share of the subscription period.
func (s *UserSubscription) ProgressPercentage(now time.Time) float64 {
	total := s.EndDate.Sub(s.StartDate)
	if total <= 0 {
		return 100
	}
	elapsed := now.Sub(s.StartDate)
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= total:
		return 100
	}
	return math.Round(float64(elapsed)/float64(total)*1000) / 10
}

type Enrollment struct {
	ID                   int64      `db:"id" json:"id"`
	UserID               int64      `db:"user_id" json:"user_id"`
	CourseID             int64      `db:"course_id" json:"course_id"`
	EnrolledAt           time.Time  `db:"enrolled_at" json:"enrolled_at"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	LastAccessedAt       *time.Time `db:"last_accessed_at" json:"last_accessed_at"`
	CompletionPercentage int        `db:"completion_percentage" json:"completion_percentage"`
}
