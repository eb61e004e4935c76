package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"prago-api/cache"
	"prago-api/events"
	"prago-api/middlewares"
	"prago-api/models"
	"prago-api/services"
	"prago-api/store/memstore"
	"prago-api/tasks"
	"prago-api/utils"
	"prago-api/zarinpal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frontendURL = "https://prago.test/payment/result"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGateway struct {
	verify *zarinpal.VerifyResult
}

func (g *stubGateway) RequestPayment(context.Context, zarinpal.PaymentRequest) (string, error) {
	return "A00000000000000000000000000000000042", nil
}

func (g *stubGateway) Verify(context.Context, int64, string) (*zarinpal.VerifyResult, error) {
	if g.verify == nil {
		return nil, errors.New("unexpected verify call")
	}
	return g.verify, nil
}

func (g *stubGateway) StartPayURL(authority string) string {
	return "https://gateway.test/pg/StartPay/" + authority
}

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(context.Context, tasks.Job) error { return nil }

func (nopEnqueuer) EnqueueDelayed(context.Context, tasks.Job, time.Duration) error { return nil }

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	store   *memstore.Store
	gateway *stubGateway
	tokens  *utils.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := memstore.New()
	gateway := &stubGateway{}
	tokens := utils.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	guard := cache.NewMemory()
	var enqueuer nopEnqueuer
	publisher := events.Nop{}

	payments := services.NewPayments(s, gateway, publisher, "https://api.prago.test", frontendURL)
	h := &Handlers{
		Auth:    NewAuthController(services.NewAccountService(s, tokens, enqueuer, guard, services.AccountOptions{FrontendURL: "https://prago.test"})),
		Catalog: NewCatalogController(services.NewCatalogService(s, enqueuer)),
		Cart: NewCartController(services.NewCartService(s, payments, enqueuer, publisher, guard, services.CartOptions{
			PaymentCheckDelay: time.Minute,
			IdempotencyTTL:    time.Hour,
		})),
		Coupons:       NewCouponController(services.NewCouponService(s)),
		Payments:      NewPaymentController(payments),
		Orders:        NewOrderController(services.NewOrderService(s)),
		Subscriptions: NewSubscriptionController(services.NewSubscriptionService(s, payments, enqueuer, publisher, time.Minute)),
		Enrollments:   NewEnrollmentController(services.NewEnrollmentService(s)),
		Tickets:       NewTicketController(services.NewSupportService(s)),
		Posts:         NewPostController(services.NewBlogService(s)),
	}

	r := gin.New()
	RegisterRoutes(r, h, Guards{
		Auth:      middlewares.AuthMiddleware(tokens),
		Staff:     middlewares.StaffOnly(s.Repos().Users),
		RateLimit: middlewares.RateLimit(middlewares.NewIPRateLimiter(1000, 1000)),
	})
	return &testServer{t: t, router: r, store: s, gateway: gateway, tokens: tokens}
}

func (ts *testServer) user(username string, staff bool) (*models.User, string) {
	ts.t.Helper()
	email := username + "@example.com"
	u := &models.User{Username: username, Email: &email, IsActive: true, IsStaff: staff}
	require.NoError(ts.t, ts.store.Repos().Users.Create(context.Background(), u))
	pair, err := ts.tokens.Pair(u.ID)
	require.NoError(ts.t, err)
	return u, pair.Access
}

func (ts *testServer) course(slug string, price int64) *models.Course {
	ts.t.Helper()
	c := &models.Course{Title: "Course " + slug, Slug: slug, Price: decimal.NewFromInt(price), IsPublished: true}
	require.NoError(ts.t, ts.store.Repos().Courses.Create(context.Background(), c))
	return c
}

func (ts *testServer) do(method, path, token string, body any, header ...string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestCheckoutAndVerify(t *testing.T) {
	ts := newTestServer(t)
	user, token := ts.user("sara", false)
	course := ts.course("go-basics", 250000)

	w := ts.do(http.MethodPost, "/cart/add/", token, gin.H{"item_id": course.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/cart/checkout/", token, nil, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pay := decode[services.PaymentInit](t, w)
	assert.Equal(t, "https://gateway.test/pg/StartPay/A00000000000000000000000000000000042", pay.PaymentURL)
	assert.NotEmpty(t, pay.TransactionID)

	w = ts.do(http.MethodPost, "/cart/checkout/", token, nil, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.gateway.verify = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "998877"}
	q := url.Values{
		"Authority":      {pay.Authority},
		"Status":         {"OK"},
		"order_id":       {pay.OrderNumber},
		"transaction_id": {pay.TransactionID},
	}
	w = ts.do(http.MethodGet, "/payment/zarinpal/verify/?"+q.Encode(), "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "success", loc.Query().Get("status"))
	assert.Equal(t, "998877", loc.Query().Get("ref_id"))

	enrollment, err := ts.store.Repos().Enrollments.Get(context.Background(), user.ID, course.ID)
	require.NoError(t, err)
	assert.True(t, enrollment.IsActive)

	w = ts.do(http.MethodGet, "/orders/"+pay.OrderNumber, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order := decode[models.Order](t, w)
	assert.Equal(t, models.OrderPaid, order.Status)
}

func TestVerifyWithoutParamsRedirectsWithError(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/payment/zarinpal/verify/", "", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "prago.test", loc.Host)
	assert.Equal(t, "error", loc.Query().Get("status"))
}

func TestCheckoutEmptyCart(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user("ali", false)

	w := ts.do(http.MethodPost, "/cart/checkout/", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/orders/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCartValidation(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user("reza", false)
	course := ts.course("sql", 1000)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing item id", gin.H{}, http.StatusBadRequest},
		{"unknown item type", gin.H{"item_id": course.ID, "item_type": "ebook"}, http.StatusBadRequest},
		{"plans are bought directly", gin.H{"item_id": 1, "item_type": "subscription_plan"}, http.StatusBadRequest},
		{"unknown course", gin.H{"item_id": 9999}, http.StatusNotFound},
		{"ok", gin.H{"item_id": course.ID}, http.StatusOK},
		{"duplicate", gin.H{"item_id": course.ID}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/cart/add/", token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := ts.do(http.MethodPost, "/cart/add/", token, gin.H{})
	body := decode[map[string]any](t, w)
	assert.Equal(t, map[string]any{"item_id": "This field is required."}, body["details"])
}

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/cart/", "/orders/", "/enrollments/", "/tickets/", "/subscriptions/mine/"} {
		w := ts.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	ts := newTestServer(t)
	_, userToken := ts.user("user", false)
	_, staffToken := ts.user("admin", true)
	coupon := gin.H{"code": "SPRING", "discount_type": "percentage", "discount_value": "20"}

	w := ts.do(http.MethodPost, "/admin/coupons", userToken, coupon)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodPost, "/admin/coupons", staffToken, coupon)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/coupons/validate", "", gin.H{"coupon_code": "spring"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["valid"])

	w = ts.do(http.MethodPost, "/coupons/validate", "", gin.H{"coupon_code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTicketLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.user("mina", false)

	w := ts.do(http.MethodPost, "/tickets/", token, gin.H{"subject": "Refund", "department": "billing", "message": "Please refund"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ticket := decode[models.Ticket](t, w)

	w = ts.do(http.MethodGet, "/tickets/active-count/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active_tickets_count":1}`, w.Body.String())

	w = ts.do(http.MethodPatch, "/tickets/"+ticket.TicketNumber, token, gin.H{"status": "closed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/tickets/"+ticket.TicketNumber+"/messages/", token, gin.H{"message": "still there?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, other := ts.user("other", false)
	w = ts.do(http.MethodGet, "/tickets/"+ticket.TicketNumber, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[services.ErrorKind]int{
		services.KindValidation:   http.StatusBadRequest,
		services.KindNotFound:     http.StatusNotFound,
		services.KindConflict:     http.StatusConflict,
		services.KindUnauthorized: http.StatusUnauthorized,
		services.KindForbidden:    http.StatusForbidden,
		services.KindRateLimited:  http.StatusTooManyRequests,
		services.KindUpstream:     http.StatusBadGateway,
		services.ErrorKind(0):     http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind))
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) { respondError(c, errors.New("dial tcp: connection refused")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
