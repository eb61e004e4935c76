package services

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"prago-api/models"
	"prago-api/store"
	"prago-api/zarinpal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutCourse(t *testing.T, e *env, u *models.User, c *models.Course) *PaymentInit {
	t.Helper()
	_, err := e.cart.Add(e.ctx, u.ID, c.Ref(), 1)
	require.NoError(t, err)
	pay, err := e.cart.Checkout(e.ctx, u.ID, testCallbackURL, "")
	require.NoError(t, err)
	return pay
}

func verifyParams(pay *PaymentInit, status string) VerifyParams {
	return VerifyParams{
		Authority:     pay.Authority,
		Status:        status,
		OrderNumber:   pay.OrderNumber,
		TransactionID: pay.TransactionID,
	}
}

func TestVerifyCanceledByUser(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	pay := checkoutCourse(t, e, u, e.course(t, "go", 100000))

	out := e.payments.Verify(e.ctx, verifyParams(pay, "NOK"))
	assert.Equal(t, OutcomeCanceled, out.Status)
	assert.Equal(t, testCallbackURL, out.Base)
	assert.Zero(t, e.gateway.verifyCalls)

	r := e.store.Repos()
	trx, err := r.Transactions.GetByTransactionID(e.ctx, pay.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, trx.Status)
	assert.Contains(t, trx.Description, "Payment canceled by user")

	order, err := r.Orders.GetByNumber(e.ctx, pay.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
}

func TestVerifySuccessGrantsCourse(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	c := e.course(t, "go", 100000)
	pay := checkoutCourse(t, e, u, c)
	e.gateway.verifyResult = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "REF123", CardPan: "6037****1234"}

	out := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, "REF123", out.RefID)
	assert.Equal(t, int64(100000), e.gateway.verifiedAmount)

	redirect, err := url.Parse(out.RedirectURL())
	require.NoError(t, err)
	assert.Equal(t, "success", redirect.Query().Get("status"))
	assert.Equal(t, "REF123", redirect.Query().Get("ref_id"))
	assert.Equal(t, pay.TransactionID, redirect.Query().Get("transaction_id"))

	r := e.store.Repos()
	trx, err := r.Transactions.GetByTransactionID(e.ctx, pay.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSuccessful, trx.Status)
	assert.Equal(t, "REF123", trx.ExtraData.Get("ref_id"))
	assert.Equal(t, "6037****1234", trx.ExtraData.Get("card_pan"))

	order, err := r.Orders.GetByNumber(e.ctx, pay.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	require.NotNil(t, order.PaidAt)

	enrollment, err := r.Enrollments.Get(e.ctx, u.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, enrollment.IsActive)

	assert.Equal(t, []string{"order.created", "order.paid"}, e.publisher.types())
}

func TestVerifyIsIdempotent(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	c := e.course(t, "go", 100000)
	pay := checkoutCourse(t, e, u, c)
	e.gateway.verifyResult = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "REF123"}

	first := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
	second := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))

	assert.Equal(t, OutcomeSuccess, first.Status)
	assert.Equal(t, OutcomeSuccess, second.Status)
	assert.Equal(t, "REF123", second.RefID)
	assert.Equal(t, 1, e.gateway.verifyCalls)
	assert.Equal(t, []string{"order.created", "order.paid"}, e.publisher.types())

	enrollments, err := e.store.Repos().Enrollments.ListByUser(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
}

func TestVerifyTransportErrorLeavesTransactionPending(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	pay := checkoutCourse(t, e, u, e.course(t, "go", 100000))
	e.gateway.verifyErr = zarinpal.ErrTransport

	out := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
	assert.Equal(t, OutcomeError, out.Status)
	assert.NotEmpty(t, out.Message)

	trx, err := e.store.Repos().Transactions.GetByTransactionID(e.ctx, pay.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, trx.Status)
}

func TestVerifyGatewayFailure(t *testing.T) {
	tests := []struct {
		name    string
		result  zarinpal.VerifyResult
		message string
	}{
		{"rejected", zarinpal.VerifyResult{Code: -51, Message: "Session is not valid", Rejected: true}, "Session is not valid"},
		{"missing ref id", zarinpal.VerifyResult{Code: zarinpal.CodeSuccess}, "No reference ID"},
		{"unknown code", zarinpal.VerifyResult{Code: -9}, "verification failed with code -9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			u := e.user(t, "sara")
			pay := checkoutCourse(t, e, u, e.course(t, "go", 100000))
			result := tt.result
			e.gateway.verifyResult = &result

			out := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
			assert.Equal(t, OutcomeFailed, out.Status)
			assert.Equal(t, tt.message, out.Message)

			r := e.store.Repos()
			trx, err := r.Transactions.GetByTransactionID(e.ctx, pay.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, models.TransactionFailed, trx.Status)

			order, err := r.Orders.GetByNumber(e.ctx, pay.OrderNumber)
			require.NoError(t, err)
			assert.Equal(t, models.OrderPending, order.Status)
		})
	}
}

func TestVerifyBadRequests(t *testing.T) {
	e := newEnv(t)

	out := e.payments.Verify(e.ctx, VerifyParams{Status: "OK"})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Equal(t, testFrontendURL, out.Base)
	assert.Equal(t, "Invalid payment verification request", out.Message)

	out = e.payments.Verify(e.ctx, VerifyParams{Authority: "A1", Status: "OK", TransactionID: "TRX-MISSING"})
	assert.Equal(t, "Transaction not found", out.Message)

	out = e.payments.Verify(e.ctx, VerifyParams{Authority: "A1", Status: "OK", OrderNumber: "ORD-MISSING"})
	assert.Equal(t, "Order not found", out.Message)

	redirect, err := url.Parse(out.RedirectURL())
	require.NoError(t, err)
	assert.Equal(t, "error", redirect.Query().Get("status"))
}

func TestVerifyFindsTransactionByAuthority(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	pay := checkoutCourse(t, e, u, e.course(t, "go", 100000))
	e.gateway.verifyResult = &zarinpal.VerifyResult{Code: zarinpal.CodeAlreadyVerified, RefID: "REF9"}

	out := e.payments.Verify(e.ctx, VerifyParams{Authority: pay.Authority, Status: "OK"})
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, "REF9", out.RefID)
}

func TestVerifyRejectsAuthorityOfAnotherTransaction(t *testing.T) {
	e := newEnv(t)
	e.gateway.uniqueAuthorities = true
	u := e.user(t, "sara")
	paid := checkoutCourse(t, e, u, e.course(t, "go", 100000))
	unpaid := checkoutCourse(t, e, u, e.course(t, "rust", 200000))
	require.NotEqual(t, paid.Authority, unpaid.Authority)

	// Only the first authority was paid; the gateway reports 101 on replays.
	e.gateway.settled = map[string]*zarinpal.VerifyResult{
		paid.Authority: {Code: zarinpal.CodeSuccess, RefID: "REF-A"},
	}
	out := e.payments.Verify(e.ctx, verifyParams(paid, "OK"))
	require.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, paid.Authority, e.gateway.verifiedAuthority)
	e.gateway.settled[paid.Authority] = &zarinpal.VerifyResult{Code: zarinpal.CodeAlreadyVerified, RefID: "REF-A"}
	calls := e.gateway.verifyCalls

	out = e.payments.Verify(e.ctx, VerifyParams{Authority: paid.Authority, Status: "OK", TransactionID: unpaid.TransactionID})
	assert.Equal(t, OutcomeError, out.Status)
	assert.Equal(t, calls, e.gateway.verifyCalls)

	r := e.store.Repos()
	order, err := r.Orders.GetByNumber(e.ctx, unpaid.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	trx, err := r.Transactions.GetByTransactionID(e.ctx, unpaid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, trx.Status)

	// The matching authority still settles the second order normally.
	e.gateway.settled[unpaid.Authority] = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "REF-B"}
	out = e.payments.Verify(e.ctx, verifyParams(unpaid, "OK"))
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.Equal(t, "REF-B", out.RefID)
}

func TestRedirectURLKeepsExistingQuery(t *testing.T) {
	out := VerifyOutcome{Status: OutcomeSuccess, Base: "https://prago.test/done?from=cart", RefID: "R1"}
	assert.Equal(t, "https://prago.test/done?from=cart&ref_id=R1&status=success", out.RedirectURL())
}

func TestInitiateChecksOrder(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	stranger := e.user(t, "omid")
	pay := checkoutCourse(t, e, u, e.course(t, "go", 100000))

	_, err := e.payments.Initiate(e.ctx, stranger.ID, pay.OrderID, "")
	assertKind(t, err, KindNotFound)

	again, err := e.payments.Initiate(e.ctx, u.ID, pay.OrderID, "")
	require.NoError(t, err)
	assert.NotEqual(t, pay.TransactionID, again.TransactionID)

	e.gateway.verifyResult = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "REF1"}
	out := e.payments.Verify(e.ctx, verifyParams(again, "OK"))
	require.Equal(t, OutcomeSuccess, out.Status)

	_, err = e.payments.Initiate(e.ctx, u.ID, pay.OrderID, "")
	assertKind(t, err, KindValidation)
}

func TestMarkOrderPaidIsIdempotent(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	c := e.course(t, "go", 100000)
	p := e.plan(t, "monthly", 50000, 30)
	order := &models.Order{
		UserID:      u.ID,
		OrderNumber: "ORD-MULTI001",
		Status:      models.OrderPending,
		OrderType:   models.OrderTypeMulti,
		Items: []models.OrderItem{
			{ItemRef: c.Ref(), Name: c.Title, Quantity: 1},
			{ItemRef: p.Ref(), Name: p.Name, Quantity: 1},
		},
	}
	require.NoError(t, e.store.Repos().Orders.Create(e.ctx, order))

	now := time.Now().UTC()
	var results []bool
	for i := 0; i < 2; i++ {
		err := e.store.WithTx(e.ctx, func(r *store.Repos) error {
			_, paidNow, err := markOrderPaid(e.ctx, r, order.ID, now)
			results = append(results, paidNow)
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []bool{true, false}, results)

	r := e.store.Repos()
	enrollments, err := r.Enrollments.ListByUser(e.ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
	subs, err := r.Subscriptions.ListByUser(e.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.WithinDuration(t, now.Add(30*24*time.Hour), subs[0].EndDate, time.Second)
}

func TestMarkOrderPaidRollsBackOnGrantFailure(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	c := e.course(t, "go", 100000)
	pay := checkoutCourse(t, e, u, c)
	e.gateway.verifyResult = &zarinpal.VerifyResult{Code: zarinpal.CodeSuccess, RefID: "REF123"}

	e.store.FailOn("enrollments.get_or_create", errors.New("boom"))
	out := e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
	assert.Equal(t, OutcomeError, out.Status)
	e.store.FailOn("enrollments.get_or_create", nil)

	r := e.store.Repos()
	trx, err := r.Transactions.GetByTransactionID(e.ctx, pay.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, trx.Status)
	order, err := r.Orders.GetByNumber(e.ctx, pay.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)

	out = e.payments.Verify(e.ctx, verifyParams(pay, "OK"))
	assert.Equal(t, OutcomeSuccess, out.Status)
}

func TestSubscribeExtendsValidSubscription(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "sara")
	p := e.plan(t, "monthly", 50000, 30)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		require.NoError(t, e.store.WithTx(e.ctx, func(r *store.Repos) error {
			return subscribe(e.ctx, r, u.ID, p.ID, now)
		}))
	}

	subs, err := e.store.Repos().Subscriptions.ListByUser(e.ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	ends := []time.Time{subs[0].EndDate, subs[1].EndDate}
	if ends[0].After(ends[1]) {
		ends[0], ends[1] = ends[1], ends[0]
	}
	assert.WithinDuration(t, now.Add(30*24*time.Hour), ends[0], time.Second)
	assert.WithinDuration(t, now.Add(60*24*time.Hour), ends[1], time.Second)
}
