package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"prago-api/models"
	"prago-api/store"
)

type enrollmentRepo struct{ s *Store }

func (r *enrollmentRepo) Get(ctx context.Context, userID, courseID int64) (*models.Enrollment, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, e := range d.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *enrollmentRepo) GetOrCreate(ctx context.Context, userID, courseID int64) (*models.Enrollment, bool, error) {
	d, err := r.s.lock("enrollments.get_or_create")
	defer r.s.unlock()
	if err != nil {
		return nil, false, err
	}
	for _, e := range d.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return &e, false, nil
		}
	}
	e := models.Enrollment{ID: d.nextID(), UserID: userID, CourseID: courseID, EnrolledAt: now(), IsActive: true}
	d.enrollments[e.ID] = e
	return &e, true, nil
}

func (r *enrollmentRepo) ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Enrollment
	for _, e := range d.enrollments {
		if e.UserID == userID && e.IsActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *enrollmentRepo) Update(ctx context.Context, e *models.Enrollment) error {
	d, err := r.s.lock("enrollments.update")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	if _, ok := d.enrollments[e.ID]; !ok {
		return store.ErrNotFound
	}
	d.enrollments[e.ID] = *e
	return nil
}

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Create(ctx context.Context, sub *models.UserSubscription) error {
	d, err := r.s.lock("subscriptions.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	sub.ID = d.nextID()
	d.subscriptions[sub.ID] = *sub
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id int64) (*models.UserSubscription, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	sub, ok := d.subscriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sub, nil
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID int64) ([]models.UserSubscription, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.UserSubscription
	for _, sub := range d.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b models.UserSubscription) int { return b.StartDate.Compare(a.StartDate) })
	return out, nil
}

func (r *subscriptionRepo) ListValid(ctx context.Context, userID int64, at time.Time) ([]models.UserSubscription, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.UserSubscription
	for _, sub := range d.subscriptions {
		if sub.UserID == userID && sub.IsValid(at) {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b models.UserSubscription) int { return b.EndDate.Compare(a.EndDate) })
	return out, nil
}
