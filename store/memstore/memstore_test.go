package memstore

import (
	"context"
	"errors"
	"testing"

	"prago-api/models"
	"prago-api/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := s.Repos()

	coupon := &models.Coupon{Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true}
	require.NoError(t, r.Coupons.Create(ctx, coupon))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *store.Repos) error {
		require.NoError(t, tx.Coupons.IncrementUsage(ctx, coupon.ID))
		require.NoError(t, tx.Orders.Create(ctx, &models.Order{UserID: 1, OrderNumber: "ORD-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.Coupons.GetByID(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TimesUsed)

	_, err = r.Orders.GetByNumber(ctx, "ORD-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(tx *store.Repos) error {
		return tx.Orders.Create(ctx, &models.Order{
			UserID:      7,
			OrderNumber: "ORD-2",
			Items:       []models.OrderItem{{ItemRef: models.ItemRef{Kind: models.KindCourse, ID: 3}, Quantity: 1}},
		})
	})
	require.NoError(t, err)

	order, err := s.Repos().Orders.GetByNumber(ctx, "ORD-2")
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(3), order.Items[0].ItemRef.ID)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")

	s.FailOn("orders.create", boom)
	assert.ErrorIs(t, s.Repos().Orders.Create(ctx, &models.Order{OrderNumber: "ORD-3"}), boom)

	s.FailOn("orders.create", nil)
	assert.NoError(t, s.Repos().Orders.Create(ctx, &models.Order{OrderNumber: "ORD-3"}))
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	r := New().Repos()

	email := "a@example.com"
	require.NoError(t, r.Users.Create(ctx, &models.User{Username: "alice", Email: &email}))
	assert.ErrorIs(t, r.Users.Create(ctx, &models.User{Username: "ALICE"}), store.ErrDuplicate)
	assert.ErrorIs(t, r.Users.Create(ctx, &models.User{Username: "bob", Email: &email}), store.ErrDuplicate)

	cart, err := r.Carts.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	ref := models.ItemRef{Kind: models.KindCourse, ID: 9}
	require.NoError(t, r.Carts.AddItem(ctx, &models.CartItem{CartID: cart.ID, ItemRef: ref, Quantity: 1}))
	assert.ErrorIs(t, r.Carts.AddItem(ctx, &models.CartItem{CartID: cart.ID, ItemRef: ref, Quantity: 1}), store.ErrDuplicate)

	e1, created, err := r.Enrollments.GetOrCreate(ctx, 1, 9)
	require.NoError(t, err)
	assert.True(t, created)
	e2, created, err := r.Enrollments.GetOrCreate(ctx, 1, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e1.ID, e2.ID)
}

func TestTransactionExtraDataIsCopied(t *testing.T) {
	ctx := context.Background()
	r := New().Repos()

	trx := &models.Transaction{TransactionID: "TRX-1", ExtraData: models.ExtraData{"a": "1"}}
	require.NoError(t, r.Transactions.Create(ctx, trx))
	trx.ExtraData["a"] = "changed"

	got, err := r.Transactions.GetByTransactionID(ctx, "TRX-1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ExtraData.Get("a"))
}
