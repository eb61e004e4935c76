package store

import (
	"context"
	"errors"
	"time"

	"prago-api/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error

	CreateProfile(ctx context.Context, profile *models.Profile) error
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)

	Roles(ctx context.Context, userID int64) ([]models.Role, error)
	AddRole(ctx context.Context, userID int64, role models.Role) error
	RemoveRole(ctx context.Context, userID int64, role models.Role) error
}

type OTPRepository interface {
	Get(ctx context.Context, identifier string) (*models.OTPSecret, error)
	Create(ctx context.Context, secret *models.OTPSecret) error
}

type CourseFilter struct {
	CategorySlug string
	Query        string
}

type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id int64) (*models.Course, error)
	GetBySlug(ctx context.Context, slug string) (*models.Course, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.Course, error)
	List(ctx context.Context, filter CourseFilter) ([]models.Course, error)
	UpdateTotalHours(ctx context.Context, id int64, hours decimal.Decimal) error

	CreateCategory(ctx context.Context, category *models.Category) error
	ListCategories(ctx context.Context) ([]models.Category, error)

	CreateEpisode(ctx context.Context, episode *models.Episode) error
	GetEpisode(ctx context.Context, id int64) (*models.Episode, error)
	ListEpisodes(ctx context.Context, courseID int64) ([]models.Episode, error)
	UpdateEpisodeDuration(ctx context.Context, id int64, seconds int) error
}

type PlanRepository interface {
	Create(ctx context.Context, plan *models.SubscriptionPlan) error
	GetByID(ctx context.Context, id int64) (*models.SubscriptionPlan, error)
	GetBySlug(ctx context.Context, slug string) (*models.SubscriptionPlan, error)
	ListActive(ctx context.Context) ([]models.SubscriptionPlan, error)
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByID(ctx context.Context, id int64) (*models.Coupon, error)
	// GetByCode matches the code case-insensitively.
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	// GetForUpdate locks the coupon row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, id int64) error
}

type CartRepository interface {
	GetOrCreate(ctx context.Context, userID int64) (*models.Cart, error)
	SetCoupon(ctx context.Context, cartID int64, couponID *int64) error
	Items(ctx context.Context, cartID int64) ([]models.CartItem, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	RemoveItem(ctx context.Context, cartID int64, ref models.ItemRef) error
	// Clear drops every item and the applied coupon.
	Clear(ctx context.Context, cartID int64) error
}

type OrderRepository interface {
	// Create inserts the order together with its items.
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Order, error)
	Items(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateStatus(ctx context.Context, order *models.Order) error
	LatestPaidWithItem(ctx context.Context, userID int64, ref models.ItemRef) (*models.Order, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, trx *models.Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error)
	GetByAuthority(ctx context.Context, authority string) (*models.Transaction, error)
	LatestForOrder(ctx context.Context, orderID int64, method string) (*models.Transaction, error)
	HasSuccessful(ctx context.Context, orderID int64) (bool, error)
	Update(ctx context.Context, trx *models.Transaction) error
}

type EnrollmentRepository interface {
	// GetOrCreate returns the existing enrollment or inserts an active one.
	GetOrCreate(ctx context.Context, userID, courseID int64) (*models.Enrollment, bool, error)
	Get(ctx context.Context, userID, courseID int64) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Enrollment, error)
	Update(ctx context.Context, enrollment *models.Enrollment) error
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.UserSubscription) error
	GetByID(ctx context.Context, id int64) (*models.UserSubscription, error)
	ListByUser(ctx context.Context, userID int64) ([]models.UserSubscription, error)
	// ListValid returns active subscriptions ending after now, latest end first.
	ListValid(ctx context.Context, userID int64, now time.Time) ([]models.UserSubscription, error)
}

type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByNumber(ctx context.Context, number string) (*models.Ticket, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
	UpdateStatus(ctx context.Context, id int64, status models.TicketStatus) error
	AddMessage(ctx context.Context, msg *models.TicketMessage) error
	Messages(ctx context.Context, ticketID int64) ([]models.TicketMessage, error)
	CountByStatus(ctx context.Context, userID int64, statuses []models.TicketStatus) (int, error)
}

type PostOrdering string

const (
	OrderByPublishedDesc PostOrdering = "-published_at"
	OrderByPublishedAsc  PostOrdering = "published_at"
	OrderByViewsDesc     PostOrdering = "-views_count"
	OrderByViewsAsc      PostOrdering = "views_count"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	ListPublished(ctx context.Context, now time.Time, ordering PostOrdering) ([]models.Post, error)
	IncrementViews(ctx context.Context, id int64) error
}

// Repos groups the repositories bound to one connection or transaction.
type Repos struct {
	Users         UserRepository
	OTP           OTPRepository
	Courses       CourseRepository
	Plans         PlanRepository
	Coupons       CouponRepository
	Carts         CartRepository
	Orders        OrderRepository
	Transactions  TransactionRepository
	Enrollments   EnrollmentRepository
	Subscriptions SubscriptionRepository
	Tickets       TicketRepository
	Posts         PostRepository
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() *Repos
	// WithTx runs fn inside one transaction; any error rolls everything back.
	WithTx(ctx context.Context, fn func(r *Repos) error) error
}
