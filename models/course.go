package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpecialOffer is a temporary price that replaces the list price while
// now falls inside [Start, End].
type SpecialOffer struct {
	Price decimal.NullDecimal `db:"special_offer_price" json:"special_offer_price"`
	Start *time.Time          `db:"special_offer_start" json:"special_offer_start"`
	End   *time.Time          `db:"special_offer_end" json:"special_offer_end"`
}

func (o SpecialOffer) ActiveAt(now time.Time) bool {
	if !o.Price.Valid || o.Start == nil || o.End == nil {
		return false
	}
	return !now.Before(*o.Start) && !now.After(*o.End)
}

// PriceAt picks the offer price when it is active, the list price otherwise.
func (o SpecialOffer) PriceAt(list decimal.Decimal, now time.Time) decimal.Decimal {
	if o.ActiveAt(now) {
		return o.Price.Decimal
	}
	return list
}

type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Slug string `db:"slug" json:"slug"`
}

type Course struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Slug        string          `db:"slug" json:"slug"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	SpecialOffer
	IntroVideoURL string          `db:"intro_video_url" json:"intro_video_url"`
	TotalHours    decimal.Decimal `db:"total_hours" json:"total_hours"`
	IsPublished   bool            `db:"is_published" json:"is_published"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`

	CategoryIDs []int64 `db:"-" json:"category_ids,omitempty"`
}

func (c *Course) CurrentPrice(now time.Time) decimal.Decimal {
	return c.PriceAt(c.Price, now)
}

func (c *Course) IsFree(now time.Time) bool {
	return !c.CurrentPrice(now).IsPositive()
}

type EpisodeType string

const (
	EpisodeVideo EpisodeType = "video"
	EpisodeFile  EpisodeType = "file"
	EpisodeText  EpisodeType = "text"
	EpisodeQuiz  EpisodeType = "quiz"
)

type Episode struct {
	ID              int64       `db:"id" json:"id"`
	CourseID        int64       `db:"course_id" json:"course_id"`
	Title           string      `db:"title" json:"title"`
	Slug            string      `db:"slug" json:"slug"`
	Type            EpisodeType `db:"type" json:"type"`
	ContentURL      string      `db:"content_url" json:"content_url"`
	DurationSeconds *int        `db:"duration_seconds" json:"duration_seconds"`
	SortOrder       int         `db:"sort_order" json:"order"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// CourseHours sums the durations of video episodes and rounds to one decimal.
func CourseHours(episodes []Episode) decimal.Decimal {
	total := 0
	for _, e := range episodes {
		if e.Type == EpisodeVideo && e.DurationSeconds != nil {
			total += *e.DurationSeconds
		}
	}
	return decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(3600)).Round(1)
}
