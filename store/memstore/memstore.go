// Package memstore is an in-memory store.Store for tests and local runs.
// Transactions are serialized and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"prago-api/models"
	"prago-api/store"
)

type data struct {
	seq int64

	users         map[int64]models.User
	profiles      map[int64]models.Profile
	roles         map[int64]map[models.Role]bool
	otps          map[string]models.OTPSecret
	categories    map[int64]models.Category
	courses       map[int64]models.Course
	episodes      map[int64]models.Episode
	plans         map[int64]models.SubscriptionPlan
	coupons       map[int64]models.Coupon
	carts         map[int64]models.Cart
	cartItems     map[int64]models.CartItem
	orders        map[int64]models.Order
	orderItems    map[int64]models.OrderItem
	transactions  map[int64]models.Transaction
	enrollments   map[int64]models.Enrollment
	subscriptions map[int64]models.UserSubscription
	tickets       map[int64]models.Ticket
	messages      map[int64]models.TicketMessage
	posts         map[int64]models.Post
}

func newData() *data {
	return &data{
		users:         map[int64]models.User{},
		profiles:      map[int64]models.Profile{},
		roles:         map[int64]map[models.Role]bool{},
		otps:          map[string]models.OTPSecret{},
		categories:    map[int64]models.Category{},
		courses:       map[int64]models.Course{},
		episodes:      map[int64]models.Episode{},
		plans:         map[int64]models.SubscriptionPlan{},
		coupons:       map[int64]models.Coupon{},
		carts:         map[int64]models.Cart{},
		cartItems:     map[int64]models.CartItem{},
		orders:        map[int64]models.Order{},
		orderItems:    map[int64]models.OrderItem{},
		transactions:  map[int64]models.Transaction{},
		enrollments:   map[int64]models.Enrollment{},
		subscriptions: map[int64]models.UserSubscription{},
		tickets:       map[int64]models.Ticket{},
		messages:      map[int64]models.TicketMessage{},
		posts:         map[int64]models.Post{},
	}
}

func (d *data) clone() *data {
	c := &data{
		seq:           d.seq,
		users:         maps.Clone(d.users),
		profiles:      maps.Clone(d.profiles),
		roles:         make(map[int64]map[models.Role]bool, len(d.roles)),
		otps:          maps.Clone(d.otps),
		categories:    maps.Clone(d.categories),
		courses:       maps.Clone(d.courses),
		episodes:      maps.Clone(d.episodes),
		plans:         maps.Clone(d.plans),
		coupons:       maps.Clone(d.coupons),
		carts:         maps.Clone(d.carts),
		cartItems:     maps.Clone(d.cartItems),
		orders:        maps.Clone(d.orders),
		orderItems:    maps.Clone(d.orderItems),
		transactions:  maps.Clone(d.transactions),
		enrollments:   maps.Clone(d.enrollments),
		subscriptions: maps.Clone(d.subscriptions),
		tickets:       maps.Clone(d.tickets),
		messages:      maps.Clone(d.messages),
		posts:         maps.Clone(d.posts),
	}
	for id, r := range d.roles {
		c.roles[id] = maps.Clone(r)
	}
	return c
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

var _ store.Store = (*Store)(nil)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	d    *data

	faults map[string]error
	repos  *store.Repos
}

func New() *Store {
	s := &Store{d: newData(), faults: map[string]error{}}
	s.repos = &store.Repos{
		Users:         &userRepo{s},
		OTP:           &otpRepo{s},
		Courses:       &courseRepo{s},
		Plans:         &planRepo{s},
		Coupons:       &couponRepo{s},
		Carts:         &cartRepo{s},
		Orders:        &orderRepo{s},
		Transactions:  &transactionRepo{s},
		Enrollments:   &enrollmentRepo{s},
		Subscriptions: &subscriptionRepo{s},
		Tickets:       &ticketRepo{s},
		Posts:         &postRepo{s},
	}
	return s
}

func (s *Store) Repos() *store.Repos { return s.repos }

func (s *Store) WithTx(ctx context.Context, fn func(r *store.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// FailOn makes the named operation (for example "orders.create") return err
// until cleared with a nil error.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// lock acquires the data mutex and reports an injected fault for op.
func (s *Store) lock(op string) (*data, error) {
	s.mu.Lock()
	if err, ok := s.faults[op]; ok {
		return s.d, err
	}
	return s.d, nil
}

func (s *Store) unlock() { s.mu.Unlock() }

func now() time.Time { return time.Now().UTC() }

func cloneExtra(e models.ExtraData) models.ExtraData {
	if e == nil {
		return nil
	}
	return maps.Clone(e)
}
