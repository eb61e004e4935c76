package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

var _ Store = (*SQLStore)(nil)

// SQLStore is the sqlx backed Store used in production.
type SQLStore struct {
	db    *sqlx.DB
	repos *Repos
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, repos: newRepos(db)}
}

func (s *SQLStore) Repos() *Repos { return s.repos }

func (s *SQLStore) WithTx(ctx context.Context, fn func(r *Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newRepos(q sqlx.ExtContext) *Repos {
	return &Repos{
		Users:         &userRepo{q: q},
		OTP:           &otpRepo{q: q},
		Courses:       &courseRepo{q: q},
		Plans:         &planRepo{q: q},
		Coupons:       &couponRepo{q: q},
		Carts:         &cartRepo{q: q},
		Orders:        &orderRepo{q: q},
		Transactions:  &transactionRepo{q: q},
		Enrollments:   &enrollmentRepo{q: q},
		Subscriptions: &subscriptionRepo{q: q},
		Tickets:       &ticketRepo{q: q},
		Posts:         &postRepo{q: q},
	}
}

func get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func selectAll(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

// execOne fails with ErrNotFound when no row was touched.
func execOne(ctx context.Context, q sqlx.ExtContext, query string, args ...any) error {
	n, err := exec(ctx, q, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// insert runs an INSERT and returns the generated id.
func insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	if q.DriverName() == "postgres" {
		var id int64
		err := q.QueryRowxContext(ctx, q.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, translate(err)
	}

	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.LastInsertId()
}

// insertIgnore turns an INSERT into one that skips rows conflicting on the
// given unique columns.
func insertIgnore(q sqlx.ExtContext, query, conflict string) string {
	if q.DriverName() == "postgres" {
		return query + " ON CONFLICT (" + conflict + ") DO NOTHING"
	}
	return strings.Replace(query, "INSERT INTO", "INSERT IGNORE INTO", 1)
}

// in expands a slice argument for IN (?) clauses.
func in(q sqlx.ExtContext, query string, args ...any) (string, []any, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(query), args, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Message)
	}
	return err
}

func forUpdate(query string) string {
	return query + " FOR UPDATE"
}

func now() time.Time {
	return time.Now().UTC()
}
