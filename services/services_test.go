package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"prago-api/cache"
	"prago-api/models"
	"prago-api/store/memstore"
	"prago-api/tasks"
	"prago-api/zarinpal"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSiteURL     = "https://api.prago.test"
	testFrontendURL = "https://prago.test/payment/result"
	testCallbackURL = "https://prago.test/checkout/done"
)

type fakeGateway struct {
	mu sync.Mutex

	authority  string
	requestErr error
	requests   []zarinpal.PaymentRequest
	// uniqueAuthorities suffixes the authority with the request number.
	uniqueAuthorities bool

	verifyResult      *zarinpal.VerifyResult
	verifyErr         error
	verifyCalls       int
	verifiedAmount    int64
	verifiedAuthority string
	// settled, when set, answers Verify per authority like the real gateway:
	// unknown authorities are rejected.
	settled map[string]*zarinpal.VerifyResult
}

func (g *fakeGateway) RequestPayment(_ context.Context, req zarinpal.PaymentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.requestErr != nil {
		return "", g.requestErr
	}
	if g.uniqueAuthorities {
		return fmt.Sprintf("%s%02d", g.authority, len(g.requests)), nil
	}
	return g.authority, nil
}

func (g *fakeGateway) Verify(_ context.Context, amount int64, authority string) (*zarinpal.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	g.verifiedAmount = amount
	g.verifiedAuthority = authority
	if g.settled != nil {
		if res, ok := g.settled[authority]; ok {
			return res, nil
		}
		return &zarinpal.VerifyResult{Code: -54, Message: "Invalid authority", Rejected: true}, nil
	}
	return g.verifyResult, g.verifyErr
}

func (g *fakeGateway) StartPayURL(authority string) string {
	return "https://gateway.test/pg/StartPay/" + authority
}

type delayedJob struct {
	job   tasks.Job
	delay time.Duration
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	jobs    []tasks.Job
	delayed []delayedJob
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, job tasks.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

func (e *fakeEnqueuer) EnqueueDelayed(_ context.Context, job tasks.Job, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delayed = append(e.delayed, delayedJob{job, delay})
	return nil
}

func (e *fakeEnqueuer) last(t *testing.T, kind tasks.Kind) tasks.Job {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.jobs) - 1; i >= 0; i-- {
		if e.jobs[i].Kind == kind {
			return e.jobs[i]
		}
	}
	t.Fatalf("no %s job enqueued", kind)
	return tasks.Job{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *fakePublisher) Publish(_ context.Context, e models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type env struct {
	ctx       context.Context
	store     *memstore.Store
	gateway   *fakeGateway
	enqueuer  *fakeEnqueuer
	publisher *fakePublisher
	guard     *cache.Memory

	payments    *Payments
	cart        *CartService
	subs        *SubscriptionService
	enrollments *EnrollmentService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:       context.Background(),
		store:     memstore.New(),
		gateway:   &fakeGateway{authority: "A000000000000000000000000000000000001"},
		enqueuer:  &fakeEnqueuer{},
		publisher: &fakePublisher{},
		guard:     cache.NewMemory(),
	}
	e.payments = NewPayments(e.store, e.gateway, e.publisher, testSiteURL, testFrontendURL)
	e.cart = NewCartService(e.store, e.payments, e.enqueuer, e.publisher, e.guard, CartOptions{
		PaymentCheckDelay: 30 * time.Minute,
		IdempotencyTTL:    time.Hour,
	})
	e.subs = NewSubscriptionService(e.store, e.payments, e.enqueuer, e.publisher, 30*time.Minute)
	e.enrollments = NewEnrollmentService(e.store)
	return e
}

func (e *env) user(t *testing.T, username string) *models.User {
	t.Helper()
	email := username + "@example.com"
	u := &models.User{Username: username, Email: &email, IsActive: true}
	require.NoError(t, e.store.Repos().Users.Create(e.ctx, u))
	return u
}

func (e *env) course(t *testing.T, slug string, price int64) *models.Course {
	t.Helper()
	c := &models.Course{Title: "Course " + slug, Slug: slug, Price: decimal.NewFromInt(price), IsPublished: true}
	require.NoError(t, e.store.Repos().Courses.Create(e.ctx, c))
	return c
}

func (e *env) plan(t *testing.T, slug string, price int64, days int, courseIDs ...int64) *models.SubscriptionPlan {
	t.Helper()
	p := &models.SubscriptionPlan{
		Name:              "Plan " + slug,
		Slug:              slug,
		Price:             decimal.NewFromInt(price),
		DurationDays:      days,
		IsActive:          true,
		IncludedCourseIDs: courseIDs,
	}
	require.NoError(t, e.store.Repos().Plans.Create(e.ctx, p))
	return p
}

func (e *env) coupon(t *testing.T, code string, kind models.DiscountType, value int64, limit int) *models.Coupon {
	t.Helper()
	c := &models.Coupon{
		Code:          code,
		DiscountType:  kind,
		DiscountValue: decimal.NewFromInt(value),
		UsageLimit:    limit,
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		IsActive:      true,
	}
	require.NoError(t, e.store.Repos().Coupons.Create(e.ctx, c))
	return c
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Truef(t, IsKind(err, kind), "unexpected error %v", err)
}
