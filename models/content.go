package models

import "time"

type Department string

const (
	DepartmentSales     Department = "sales"
	DepartmentSupport   Department = "support"
	DepartmentBilling   Department = "billing"
	DepartmentTechnical Department = "technical"
)

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketAnswered   TicketStatus = "answered"
	TicketClosed     TicketStatus = "closed"
	TicketResolved   TicketStatus = "resolved"
)

// ActiveTicketStatuses are the statuses counted as still needing attention.
var ActiveTicketStatuses = []TicketStatus{TicketOpen, TicketInProgress, TicketAnswered}

type Ticket struct {
	ID           int64        `db:"id" json:"id"`
	UserID       int64        `db:"user_id" json:"user_id"`
	TicketNumber string       `db:"ticket_number" json:"ticket_number"`
	Subject      string       `db:"subject" json:"subject"`
	Department   Department   `db:"department" json:"department"`
	Status       TicketStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`

	Messages []TicketMessage `db:"-" json:"messages,omitempty"`
}

func (t *Ticket) AcceptsMessages() bool {
	return t.Status != TicketClosed && t.Status != TicketResolved
}

type TicketMessage struct {
	ID        int64     `db:"id" json:"id"`
	TicketID  int64     `db:"ticket_id" json:"ticket_id"`
	SenderID  int64     `db:"sender_id" json:"sender_id"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostReview    PostStatus = "review"
	PostPublished PostStatus = "published"
)

type Post struct {
	ID              int64      `db:"id" json:"id"`
	AuthorID        *int64     `db:"author_id" json:"author_id"`
	Title           string     `db:"title" json:"title"`
	Slug            string     `db:"slug" json:"slug"`
	Content         string     `db:"content" json:"content"`
	Excerpt         string     `db:"excerpt" json:"excerpt"`
	Status          PostStatus `db:"status" json:"status"`
	ViewsCount      int        `db:"views_count" json:"views_count"`
	LikesCount      int        `db:"likes_count" json:"likes_count"`
	AverageReadTime int        `db:"average_read_time" json:"average_read_time"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	PublishedAt     *time.Time `db:"published_at" json:"published_at"`
}

func (p *Post) IsPublishedAt(now time.Time) bool {
	return p.Status == PostPublished && p.PublishedAt != nil && !p.PublishedAt.After(now)
}

// OrderEvent is the payload published on the order events topic.
type OrderEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      int64       `json:"user_id"`
	Type        string      `json:"type"`
	Status      OrderStatus `json:"status"`
	OrderType   OrderType   `json:"order_type"`
	FinalAmount string      `json:"final_amount"`
	Occurred    time.Time   `json:"occurred"`
}
