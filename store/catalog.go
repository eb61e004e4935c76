package store

import (
	"context"
	"strings"

	"prago-api/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const courseColumns = `c.id, c.title, c.slug, c.description, c.price, c.special_offer_price,
	c.special_offer_start, c.special_offer_end, c.intro_video_url, c.total_hours,
	c.is_published, c.created_at, c.updated_at`

type courseRepo struct {
	q sqlx.ExtContext
}

func (r *courseRepo) Create(ctx context.Context, c *models.Course) error {
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts
	id, err := insert(ctx, r.q, `
		INSERT INTO courses (title, slug, description, price, special_offer_price,
			special_offer_start, special_offer_end, intro_video_url, total_hours,
			is_published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Title, c.Slug, c.Description, c.Price, c.SpecialOffer.Price,
		c.Start, c.End, c.IntroVideoURL, c.TotalHours,
		c.IsPublished, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	c.ID = id

	for _, categoryID := range c.CategoryIDs {
		if _, err := exec(ctx, r.q,
			"INSERT INTO course_categories (course_id, category_id) VALUES (?, ?)", c.ID, categoryID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *courseRepo) getBy(ctx context.Context, column string, value any) (*models.Course, error) {
	var c models.Course
	if err := get(ctx, r.q, &c, "SELECT "+courseColumns+" FROM courses c WHERE c."+column+" = ?", value); err != nil {
		return nil, err
	}
	if err := selectAll(ctx, r.q, &c.CategoryIDs,
		"SELECT category_id FROM course_categories WHERE course_id = ? ORDER BY category_id", c.ID,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *courseRepo) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	return r.getBy(ctx, "id", id)
}

func (r *courseRepo) GetBySlug(ctx context.Context, slug string) (*models.Course, error) {
	return r.getBy(ctx, "slug", slug)
}

func (r *courseRepo) GetByIDs(ctx context.Context, ids []int64) ([]models.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := in(r.q, "SELECT "+courseColumns+" FROM courses c WHERE c.id IN (?) ORDER BY c.id", ids)
	if err != nil {
		return nil, err
	}
	var courses []models.Course
	err = sqlx.SelectContext(ctx, r.q, &courses, query, args...)
	return courses, err
}

func (r *courseRepo) List(ctx context.Context, f CourseFilter) ([]models.Course, error) {
	var (
		where []string
		args  []any
		join  string
	)
	where = append(where, "c.is_published = ?")
	args = append(args, true)
	if f.CategorySlug != "" {
		join = " JOIN course_categories cc ON cc.course_id = c.id JOIN categories cat ON cat.id = cc.category_id"
		where = append(where, "cat.slug = ?")
		args = append(args, f.CategorySlug)
	}
	if f.Query != "" {
		where = append(where, "LOWER(c.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Query)+"%")
	}

	var courses []models.Course
	err := selectAll(ctx, r.q, &courses,
		"SELECT "+courseColumns+" FROM courses c"+join+" WHERE "+strings.Join(where, " AND ")+" ORDER BY c.created_at DESC",
		args...,
	)
	return courses, err
}

func (r *courseRepo) UpdateTotalHours(ctx context.Context, id int64, hours decimal.Decimal) error {
	return execOne(ctx, r.q, "UPDATE courses SET total_hours = ?, updated_at = ? WHERE id = ?", hours, now(), id)
}

func (r *courseRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	id, err := insert(ctx, r.q, "INSERT INTO categories (name, slug) VALUES (?, ?)", c.Name, c.Slug)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *courseRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := selectAll(ctx, r.q, &categories, "SELECT id, name, slug FROM categories ORDER BY name")
	return categories, err
}

const episodeColumns = "id, course_id, title, slug, type, content_url, duration_seconds, sort_order, created_at"

func (r *courseRepo) CreateEpisode(ctx context.Context, e *models.Episode) error {
	e.CreatedAt = now()
	id, err := insert(ctx, r.q, `
		INSERT INTO episodes (course_id, title, slug, type, content_url, duration_seconds, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CourseID, e.Title, e.Slug, e.Type, e.ContentURL, e.DurationSeconds, e.SortOrder, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

func (r *courseRepo) GetEpisode(ctx context.Context, id int64) (*models.Episode, error) {
	var e models.Episode
	if err := get(ctx, r.q, &e, "SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *courseRepo) ListEpisodes(ctx context.Context, courseID int64) ([]models.Episode, error) {
	var episodes []models.Episode
	err := selectAll(ctx, r.q, &episodes,
		"SELECT "+episodeColumns+" FROM episodes WHERE course_id = ? ORDER BY sort_order, id", courseID)
	return episodes, err
}

func (r *courseRepo) UpdateEpisodeDuration(ctx context.Context, id int64, seconds int) error {
	return execOne(ctx, r.q, "UPDATE episodes SET duration_seconds = ? WHERE id = ?", seconds, id)
}

const planColumns = `id, name, slug, description, price, special_offer_price, special_offer_start,
	special_offer_end, duration_days, is_active, created_at`

type planRepo struct {
	q sqlx.ExtContext
}

func (r *planRepo) Create(ctx context.Context, p *models.SubscriptionPlan) error {
	p.CreatedAt = now()
	id, err := insert(ctx, r.q, `
		INSERT INTO subscription_plans (name, slug, description, price, special_offer_price,
			special_offer_start, special_offer_end, duration_days, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Slug, p.Description, p.Price, p.SpecialOffer.Price,
		p.Start, p.End, p.DurationDays, p.IsActive, p.CreatedAt,
	)
	if err != nil {
		return err
	}
	p.ID = id

	for _, courseID := range p.IncludedCourseIDs {
		if _, err := exec(ctx, r.q,
			"INSERT INTO plan_courses (plan_id, course_id) VALUES (?, ?)", p.ID, courseID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *planRepo) loadCourses(ctx context.Context, p *models.SubscriptionPlan) error {
	return selectAll(ctx, r.q, &p.IncludedCourseIDs,
		"SELECT course_id FROM plan_courses WHERE plan_id = ? ORDER BY course_id", p.ID)
}

func (r *planRepo) getBy(ctx context.Context, column string, value any) (*models.SubscriptionPlan, error) {
	var p models.SubscriptionPlan
	if err := get(ctx, r.q, &p, "SELECT "+planColumns+" FROM subscription_plans WHERE "+column+" = ?", value); err != nil {
		return nil, err
	}
	if err := r.loadCourses(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepo) GetByID(ctx context.Context, id int64) (*models.SubscriptionPlan, error) {
	return r.getBy(ctx, "id", id)
}

func (r *planRepo) GetBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error) {
	return r.getBy(ctx, "slug", slug)
}

func (r *planRepo) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	if err := selectAll(ctx, r.q, &plans,
		"SELECT "+planColumns+" FROM subscription_plans WHERE is_active = ? ORDER BY price", true,
	); err != nil {
		return nil, err
	}
	for i := range plans {
		if err := r.loadCourses(ctx, &plans[i]); err != nil {
			return nil, err
		}
	}
	return plans, nil
}
