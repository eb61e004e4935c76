package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prago-api/models"
	"prago-api/store"
	"prago-api/tasks"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type CatalogService struct {
	store    store.Store
	enqueuer tasks.Enqueuer
	now      func() time.Time
}

func NewCatalogService(s store.Store, enqueuer tasks.Enqueuer) *CatalogService {
	return &CatalogService{store: s, enqueuer: enqueuer, now: func() time.Time { return time.Now().UTC() }}
}

type CourseView struct {
	*models.Course
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HasSpecialOffer bool            `json:"has_special_offer"`
}

type CourseDetail struct {
	CourseView
	Episodes []models.Episode `json:"episodes"`
}

func newCourseView(c *models.Course, now time.Time) CourseView {
	return CourseView{Course: c, CurrentPrice: c.CurrentPrice(now), HasSpecialOffer: c.ActiveAt(now)}
}

func (s *CatalogService) List(ctx context.Context, filter store.CourseFilter) ([]CourseView, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	courses, err := s.store.Repos().Courses.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]CourseView, 0, len(courses))
	for i := range courses {
		views = append(views, newCourseView(&courses[i], now))
	}
	return views, nil
}

func (s *CatalogService) Get(ctx context.Context, slug string) (*CourseDetail, error) {
	r := s.store.Repos()
	course, err := r.Courses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "Course not found")
	}
	if !course.IsPublished {
		return nil, notFoundError("Course not found")
	}
	episodes, err := r.Courses.ListEpisodes(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	if episodes == nil {
		episodes = []models.Episode{}
	}
	return &CourseDetail{CourseView: newCourseView(course, s.now()), Episodes: episodes}, nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.store.Repos().Courses.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []models.Category{}
	}
	return cats, nil
}

type NewCategory struct {
	Name string `json:"name" binding:"required,max=100"`
	Slug string `json:"slug" binding:"required,max=100"`
}

func (s *CatalogService) CreateCategory(ctx context.Context, in NewCategory) (*models.Category, error) {
	cat := &models.Category{Name: strings.TrimSpace(in.Name), Slug: strings.TrimSpace(in.Slug)}
	err := s.store.Repos().Courses.CreateCategory(ctx, cat)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("A category with this slug already exists")
	}
	if err != nil {
		return nil, err
	}
	return cat, nil
}

type NewCourse struct {
	Title             string              `json:"title" binding:"required,max=255"`
	Slug              string              `json:"slug" binding:"required,max=255"`
	Description       string              `json:"description"`
	Price             decimal.Decimal     `json:"price"`
	SpecialOfferPrice decimal.NullDecimal `json:"special_offer_price"`
	SpecialOfferStart *time.Time          `json:"special_offer_start"`
	SpecialOfferEnd   *time.Time          `json:"special_offer_end"`
	IntroVideoURL     string              `json:"intro_video_url"`
	IsPublished       bool                `json:"is_published"`
	CategoryIDs       []int64             `json:"category_ids"`
}

func (s *CatalogService) CreateCourse(ctx context.Context, in NewCourse) (*models.Course, error) {
	if in.Price.IsNegative() {
		return nil, validationError("price cannot be negative")
	}
	offer := models.SpecialOffer{Price: in.SpecialOfferPrice, Start: in.SpecialOfferStart, End: in.SpecialOfferEnd}
	if offer.Price.Valid && offer.Price.Decimal.IsNegative() {
		return nil, validationError("special_offer_price cannot be negative")
	}
	if offer.Start != nil && offer.End != nil && offer.End.Before(*offer.Start) {
		return nil, validationError("special_offer_end must be after special_offer_start")
	}

	course := &models.Course{
		Title:         strings.TrimSpace(in.Title),
		Slug:          strings.TrimSpace(in.Slug),
		Description:   in.Description,
		Price:         in.Price,
		SpecialOffer:  offer,
		IntroVideoURL: in.IntroVideoURL,
		TotalHours:    decimal.Zero,
		IsPublished:   in.IsPublished,
		CategoryIDs:   in.CategoryIDs,
	}
	err := s.store.Repos().Courses.Create(ctx, course)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("A course with this slug already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	return course, nil
}

type NewEpisode struct {
	Title           string             `json:"title" binding:"required,max=255"`
	Slug            string             `json:"slug" binding:"required,max=255"`
	Type            models.EpisodeType `json:"type" binding:"required,oneof=video file text quiz"`
	ContentURL      string             `json:"content_url"`
	DurationSeconds *int               `json:"duration_seconds"`
	Order           int                `json:"order"`
}

// AddEpisode stores the episode and schedules the duration probe for videos
// that arrive without one.
func (s *CatalogService) AddEpisode(ctx context.Context, courseID int64, in NewEpisode) (*models.Episode, error) {
	if in.DurationSeconds != nil && *in.DurationSeconds < 0 {
		return nil, validationError("duration_seconds cannot be negative")
	}
	r := s.store.Repos()
	if _, err := r.Courses.GetByID(ctx, courseID); err != nil {
		return nil, notFound(err, "Course not found")
	}

	ep := &models.Episode{
		CourseID:        courseID,
		Title:           strings.TrimSpace(in.Title),
		Slug:            strings.TrimSpace(in.Slug),
		Type:            in.Type,
		ContentURL:      strings.TrimSpace(in.ContentURL),
		DurationSeconds: in.DurationSeconds,
		SortOrder:       in.Order,
	}
	err := r.Courses.CreateEpisode(ctx, ep)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("An episode with this slug already exists in the course")
	}
	if err != nil {
		return nil, fmt.Errorf("create episode: %w", err)
	}

	if ep.Type != models.EpisodeVideo {
		return ep, nil
	}
	var job tasks.Job
	switch {
	case ep.DurationSeconds == nil && ep.ContentURL != "":
		job, err = tasks.NewJob(tasks.KindEpisodeDuration, tasks.EpisodeDuration{EpisodeID: ep.ID})
	case ep.DurationSeconds != nil:
		job, err = tasks.NewJob(tasks.KindCourseHours, tasks.CourseHours{CourseID: courseID})
	default:
		return ep, nil
	}
	if err == nil {
		err = s.enqueuer.Enqueue(ctx, job)
	}
	if err != nil {
		log.Error().Err(err).Int64("episode_id", ep.ID).Msg("failed to enqueue episode job")
	}
	return ep, nil
}
