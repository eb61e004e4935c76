package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"prago-api/models"
	"prago-api/store"

	"github.com/shopspring/decimal"
)

type courseRepo struct{ s *Store }

func (r *courseRepo) Create(ctx context.Context, c *models.Course) error {
	d, err := r.s.lock("courses.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.courses {
		if existing.Slug == c.Slug {
			return fmt.Errorf("%w: course slug", store.ErrDuplicate)
		}
	}
	c.ID = d.nextID()
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts
	c.CategoryIDs = slices.Clone(c.CategoryIDs)
	d.courses[c.ID] = *c
	return nil
}

func (r *courseRepo) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	c, ok := d.courses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (r *courseRepo) GetBySlug(ctx context.Context, slug string) (*models.Course, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, c := range d.courses {
		if c.Slug == slug {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *courseRepo) GetByIDs(ctx context.Context, ids []int64) ([]models.Course, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Course
	for _, id := range ids {
		if c, ok := d.courses[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *courseRepo) List(ctx context.Context, f store.CourseFilter) ([]models.Course, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()

	var categoryID int64 = -1
	if f.CategorySlug != "" {
		for _, cat := range d.categories {
			if cat.Slug == f.CategorySlug {
				categoryID = cat.ID
			}
		}
	}

	var out []models.Course
	for _, c := range d.courses {
		if !c.IsPublished {
			continue
		}
		if f.CategorySlug != "" && !slices.Contains(c.CategoryIDs, categoryID) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *courseRepo) UpdateTotalHours(ctx context.Context, id int64, hours decimal.Decimal) error {
	d, err := r.s.lock("courses.update_total_hours")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	c, ok := d.courses[id]
	if !ok {
		return store.ErrNotFound
	}
	c.TotalHours = hours
	c.UpdatedAt = now()
	d.courses[id] = c
	return nil
}

func (r *courseRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	d, err := r.s.lock("courses.create_category")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.categories {
		if existing.Slug == c.Slug {
			return fmt.Errorf("%w: category slug", store.ErrDuplicate)
		}
	}
	c.ID = d.nextID()
	d.categories[c.ID] = *c
	return nil
}

func (r *courseRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Category
	for _, c := range d.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *courseRepo) CreateEpisode(ctx context.Context, e *models.Episode) error {
	d, err := r.s.lock("courses.create_episode")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	if _, ok := d.courses[e.CourseID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range d.episodes {
		if existing.Slug == e.Slug {
			return fmt.Errorf("%w: episode slug", store.ErrDuplicate)
		}
	}
	e.ID = d.nextID()
	e.CreatedAt = now()
	d.episodes[e.ID] = *e
	return nil
}

func (r *courseRepo) GetEpisode(ctx context.Context, id int64) (*models.Episode, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	e, ok := d.episodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (r *courseRepo) ListEpisodes(ctx context.Context, courseID int64) ([]models.Episode, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.Episode
	for _, e := range d.episodes {
		if e.CourseID == courseID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *courseRepo) UpdateEpisodeDuration(ctx context.Context, id int64, seconds int) error {
	d, err := r.s.lock("courses.update_episode_duration")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	e, ok := d.episodes[id]
	if !ok {
		return store.ErrNotFound
	}
	e.DurationSeconds = &seconds
	d.episodes[id] = e
	return nil
}

type planRepo struct{ s *Store }

func (r *planRepo) Create(ctx context.Context, p *models.SubscriptionPlan) error {
	d, err := r.s.lock("plans.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.plans {
		if existing.Slug == p.Slug {
			return fmt.Errorf("%w: plan slug", store.ErrDuplicate)
		}
	}
	p.ID = d.nextID()
	p.CreatedAt = now()
	p.IncludedCourseIDs = slices.Clone(p.IncludedCourseIDs)
	d.plans[p.ID] = *p
	return nil
}

func (r *planRepo) GetByID(ctx context.Context, id int64) (*models.SubscriptionPlan, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	p, ok := d.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *planRepo) GetBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, p := range d.plans {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *planRepo) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var out []models.SubscriptionPlan
	for _, p := range d.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}
