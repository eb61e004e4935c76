package services

import (
	"strings"
	"testing"
	"time"

	"prago-api/models"
	"prago-api/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlog(t *testing.T) {
	e := newEnv(t)
	blog := NewBlogService(e.store)
	author := e.user(t, "writer")
	now := time.Now().UTC()
	older, newer, future := now.Add(-48*time.Hour), now.Add(-time.Hour), now.Add(time.Hour)

	for _, in := range []NewPost{
		{Title: "Older", Slug: "older", Content: "short", Status: models.PostPublished, PublishedAt: &older},
		{Title: "Newer", Slug: "newer", Content: strings.Repeat("word ", 450), Status: models.PostPublished, PublishedAt: &newer},
		{Title: "Scheduled", Slug: "scheduled", Content: "soon", Status: models.PostPublished, PublishedAt: &future},
		{Title: "Draft", Slug: "draft", Content: "wip"},
	} {
		_, err := blog.Create(e.ctx, author.ID, in)
		require.NoError(t, err)
	}
	_, err := blog.Create(e.ctx, author.ID, NewPost{Title: "Dup", Slug: "older", Content: "x"})
	assertKind(t, err, KindValidation)

	posts, err := blog.List(e.ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "newer", posts[0].Slug)
	assert.Equal(t, 2, posts[0].AverageReadTime)

	posts, err = blog.List(e.ctx, "published_at")
	require.NoError(t, err)
	assert.Equal(t, "older", posts[0].Slug)

	post, err := blog.Get(e.ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, 1, post.ViewsCount)

	posts, err = blog.List(e.ctx, "-views_count")
	require.NoError(t, err)
	assert.Equal(t, "older", posts[0].Slug)

	for _, slug := range []string{"draft", "scheduled", "missing"} {
		_, err = blog.Get(e.ctx, slug)
		assertKind(t, err, KindNotFound)
	}
}

func TestParseOrdering(t *testing.T) {
	assert.Equal(t, store.OrderByViewsAsc, ParseOrdering("views_count"))
	assert.Equal(t, store.OrderByPublishedDesc, ParseOrdering("title"))
	assert.Equal(t, store.OrderByPublishedDesc, ParseOrdering(""))
}
