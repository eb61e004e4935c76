package store

import (
	"context"
	"time"

	"prago-api/models"

	"github.com/jmoiron/sqlx"
)

const ticketColumns = "id, user_id, ticket_number, subject, department, status, created_at, updated_at"

type ticketRepo struct {
	q sqlx.ExtContext
}

func (r *ticketRepo) Create(ctx context.Context, t *models.Ticket) error {
	ts := now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	id, err := insert(ctx, r.q, `
		INSERT INTO tickets (user_id, ticket_number, subject, department, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.TicketNumber, t.Subject, t.Department, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (r *ticketRepo) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	var t models.Ticket
	if err := get(ctx, r.q, &t, "SELECT "+ticketColumns+" FROM tickets WHERE ticket_number = ?", number); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepo) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := selectAll(ctx, r.q, &tickets,
		"SELECT "+ticketColumns+" FROM tickets WHERE user_id = ? ORDER BY updated_at DESC, id DESC", userID)
	return tickets, err
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id int64, status models.TicketStatus) error {
	return execOne(ctx, r.q, "UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?", status, now(), id)
}

func (r *ticketRepo) AddMessage(ctx context.Context, m *models.TicketMessage) error {
	m.CreatedAt = now()
	id, err := insert(ctx, r.q,
		"INSERT INTO ticket_messages (ticket_id, sender_id, message, created_at) VALUES (?, ?, ?, ?)",
		m.TicketID, m.SenderID, m.Message, m.CreatedAt,
	)
	if err != nil {
		return err
	}
	m.ID = id
	_, err = exec(ctx, r.q, "UPDATE tickets SET updated_at = ? WHERE id = ?", m.CreatedAt, m.TicketID)
	return err
}

func (r *ticketRepo) Messages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error) {
	var msgs []models.TicketMessage
	err := selectAll(ctx, r.q, &msgs,
		"SELECT id, ticket_id, sender_id, message, created_at FROM ticket_messages WHERE ticket_id = ? ORDER BY created_at, id", ticketID)
	return msgs, err
}

func (r *ticketRepo) CountByStatus(ctx context.Context, userID int64, statuses []models.TicketStatus) (int, error) {
	query, args, err := in(r.q, "SELECT COUNT(*) FROM tickets WHERE user_id = ? AND status IN (?)", userID, statuses)
	if err != nil {
		return 0, err
	}
	var n int
	err = sqlx.GetContext(ctx, r.q, &n, query, args...)
	return n, err
}

const postColumns = `id, author_id, title, slug, content, excerpt, status, views_count, likes_count,
	average_read_time, created_at, updated_at, published_at`

type postRepo struct {
	q sqlx.ExtContext
}

func (r *postRepo) Create(ctx context.Context, p *models.Post) error {
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	id, err := insert(ctx, r.q, `
		INSERT INTO posts (author_id, title, slug, content, excerpt, status, views_count, likes_count,
			average_read_time, created_at, updated_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AuthorID, p.Title, p.Slug, p.Content, p.Excerpt, p.Status, p.ViewsCount, p.LikesCount,
		p.AverageReadTime, p.CreatedAt, p.UpdatedAt, p.PublishedAt,
	)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *postRepo) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var p models.Post
	if err := get(ctx, r.q, &p, "SELECT "+postColumns+" FROM posts WHERE slug = ?", slug); err != nil {
		return nil, err
	}
	return &p, nil
}

var postOrderClauses = map[PostOrdering]string{
	OrderByPublishedDesc: "published_at DESC",
	OrderByPublishedAsc:  "published_at ASC",
	OrderByViewsDesc:     "views_count DESC",
	OrderByViewsAsc:      "views_count ASC",
}

func (r *postRepo) ListPublished(ctx context.Context, at time.Time, ordering PostOrdering) ([]models.Post, error) {
	clause, ok := postOrderClauses[ordering]
	if !ok {
		clause = postOrderClauses[OrderByPublishedDesc]
	}
	var posts []models.Post
	err := selectAll(ctx, r.q, &posts,
		"SELECT "+postColumns+" FROM posts WHERE status = ? AND published_at <= ? ORDER BY "+clause+", id DESC",
		models.PostPublished, at)
	return posts, err
}

func (r *postRepo) IncrementViews(ctx context.Context, id int64) error {
	return execOne(ctx, r.q, "UPDATE posts SET views_count = views_count + 1 WHERE id = ?", id)
}
