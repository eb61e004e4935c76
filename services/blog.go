package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prago-api/models"
	"prago-api/store"
)

const wordsPerMinute = 200

type BlogService struct {
	store store.Store
	now   func() time.Time
}

func NewBlogService(s store.Store) *BlogService {
	return &BlogService{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// ParseOrdering falls back to newest first for anything unknown.
func ParseOrdering(s string) store.PostOrdering {
	switch o := store.PostOrdering(s); o {
	case store.OrderByPublishedAsc, store.OrderByPublishedDesc, store.OrderByViewsAsc, store.OrderByViewsDesc:
		return o
	}
	return store.OrderByPublishedDesc
}

func (s *BlogService) List(ctx context.Context, ordering string) ([]models.Post, error) {
	posts, err := s.store.Repos().Posts.ListPublished(ctx, s.now(), ParseOrdering(ordering))
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

// Get returns a published post and counts the view.
func (s *BlogService) Get(ctx context.Context, slug string) (*models.Post, error) {
	r := s.store.Repos()
	post, err := r.Posts.GetBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "Post not found")
	}
	if !post.IsPublishedAt(s.now()) {
		return nil, notFoundError("Post not found")
	}
	if err := r.Posts.IncrementViews(ctx, post.ID); err != nil {
		return nil, err
	}
	post.ViewsCount++
	return post, nil
}

type NewPost struct {
	Title       string            `json:"title" binding:"required,max=255"`
	Slug        string            `json:"slug" binding:"required,max=255"`
	Content     string            `json:"content" binding:"required"`
	Excerpt     string            `json:"excerpt"`
	Status      models.PostStatus `json:"status" binding:"omitempty,oneof=draft review published"`
	PublishedAt *time.Time        `json:"published_at"`
}

func (s *BlogService) Create(ctx context.Context, authorID int64, in NewPost) (*models.Post, error) {
	post := &models.Post{
		AuthorID:        &authorID,
		Title:           strings.TrimSpace(in.Title),
		Slug:            strings.TrimSpace(in.Slug),
		Content:         in.Content,
		Excerpt:         in.Excerpt,
		Status:          in.Status,
		PublishedAt:     in.PublishedAt,
		AverageReadTime: readTime(in.Content),
	}
	if post.Status == "" {
		post.Status = models.PostDraft
	}
	if post.Status == models.PostPublished && post.PublishedAt == nil {
		now := s.now()
		post.PublishedAt = &now
	}

	err := s.store.Repos().Posts.Create(ctx, post)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, validationError("A post with this slug already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// readTime estimates minutes of reading, at least one.
func readTime(content string) int {
	minutes := len(strings.Fields(content)) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
