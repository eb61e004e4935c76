package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateDuplicateErrors(t *testing.T) {
	err := translate(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, errors.Is(err, ErrDuplicate))

	err = translate(&pq.Error{Code: "23505", Message: "duplicate key value"})
	assert.True(t, errors.Is(err, ErrDuplicate))

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}

func TestInRebindsPerDriver(t *testing.T) {
	pg := sqlx.NewDb(nil, "postgres")
	query, args, err := in(pg, "SELECT 1 FROM t WHERE a = ? AND b IN (?)", 1, []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b IN ($2, $3)", query)
	assert.Len(t, args, 3)

	my := sqlx.NewDb(nil, "mysql")
	query, _, err = in(my, "SELECT 1 FROM t WHERE b IN (?)", []int64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM t WHERE b IN (?, ?)", query)
}

func TestInsertIgnorePerDriver(t *testing.T) {
	const query = "INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)"

	pg := sqlx.NewDb(nil, "postgres")
	got := insertIgnore(pg, query, "user_id")
	assert.Equal(t, query+" ON CONFLICT (user_id) DO NOTHING", got)
	assert.Equal(t, "INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, $2, $3) ON CONFLICT (user_id) DO NOTHING", pg.Rebind(got))

	my := sqlx.NewDb(nil, "mysql")
	assert.Equal(t, "INSERT IGNORE INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)", insertIgnore(my, query, "user_id"))
}

func TestNewReposBindsEveryRepository(t *testing.T) {
	r := newRepos(sqlx.NewDb(nil, "mysql"))
	assert.NotNil(t, r.Users)
	assert.NotNil(t, r.OTP)
	assert.NotNil(t, r.Courses)
	assert.NotNil(t, r.Plans)
	assert.NotNil(t, r.Coupons)
	assert.NotNil(t, r.Carts)
	assert.NotNil(t, r.Orders)
	assert.NotNil(t, r.Transactions)
	assert.NotNil(t, r.Enrollments)
	assert.NotNil(t, r.Subscriptions)
	assert.NotNil(t, r.Tickets)
	assert.NotNil(t, r.Posts)
	assert.Equal(t, "SELECT 1 FOR UPDATE", forUpdate("SELECT 1"))
}
