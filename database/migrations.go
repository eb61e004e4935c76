package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// dialect fills the column types that differ between mysql and postgres.
func dialect(driver string) *strings.Replacer {
	if driver == "postgres" {
		return strings.NewReplacer(
			"{{pk}}", "BIGSERIAL PRIMARY KEY",
			"{{ts}}", "TIMESTAMP",
			"{{now}}", "CURRENT_TIMESTAMP",
		)
	}
	return strings.NewReplacer(
		"{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY",
		"{{ts}}", "DATETIME(6)",
		"{{now}}", "CURRENT_TIMESTAMP(6)",
	)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		email VARCHAR(254) NULL UNIQUE,
		phone VARCHAR(15) NULL UNIQUE,
		username VARCHAR(50) NOT NULL UNIQUE,
		first_name VARCHAR(50) NOT NULL DEFAULT '',
		last_name VARCHAR(50) NOT NULL DEFAULT '',
		password_hash VARCHAR(128) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		date_joined {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id {{pk}},
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		bio TEXT NOT NULL,
		education VARCHAR(100) NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
	`CREATE TABLE IF NOT EXISTS otp_secrets (
		id {{pk}},
		identifier VARCHAR(254) NOT NULL UNIQUE,
		secret VARCHAR(64) NOT NULL,
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		slug VARCHAR(100) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS courses (
		id {{pk}},
		title VARCHAR(100) NOT NULL,
		slug VARCHAR(100) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		price DECIMAL(12,0) NOT NULL,
		special_offer_price DECIMAL(12,0) NULL,
		special_offer_start {{ts}} NULL,
		special_offer_end {{ts}} NULL,
		intro_video_url VARCHAR(500) NOT NULL DEFAULT '',
		total_hours DECIMAL(6,1) NOT NULL DEFAULT 0,
		is_published BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS course_categories (
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
		PRIMARY KEY (course_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS episodes (
		id {{pk}},
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title VARCHAR(200) NOT NULL,
		slug VARCHAR(200) NOT NULL UNIQUE,
		type VARCHAR(10) NOT NULL DEFAULT 'video',
		content_url VARCHAR(500) NOT NULL,
		duration_seconds INT NULL,
		sort_order INT NOT NULL DEFAULT 1,
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS subscription_plans (
		id {{pk}},
		name VARCHAR(100) NOT NULL,
		slug VARCHAR(100) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		price DECIMAL(12,0) NOT NULL,
		special_offer_price DECIMAL(12,0) NULL,
		special_offer_start {{ts}} NULL,
		special_offer_end {{ts}} NULL,
		duration_days INT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS plan_courses (
		plan_id BIGINT NOT NULL REFERENCES subscription_plans(id) ON DELETE CASCADE,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		PRIMARY KEY (plan_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id {{pk}},
		code VARCHAR(50) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		discount_type VARCHAR(10) NOT NULL DEFAULT 'percentage',
		discount_value DECIMAL(12,2) NOT NULL,
		usage_limit INT NOT NULL DEFAULT 0,
		times_used INT NOT NULL DEFAULT 0,
		valid_from {{ts}} NOT NULL,
		valid_to {{ts}} NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id {{pk}},
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		coupon_id BIGINT NULL REFERENCES coupons(id) ON DELETE SET NULL,
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id {{pk}},
		cart_id BIGINT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		item_kind VARCHAR(20) NOT NULL,
		item_id BIGINT NOT NULL,
		quantity INT NOT NULL DEFAULT 1,
		added_at {{ts}} NOT NULL DEFAULT {{now}},
		UNIQUE (cart_id, item_kind, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id {{pk}},
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		order_number VARCHAR(50) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		order_type VARCHAR(20) NOT NULL,
		course_id BIGINT NULL REFERENCES courses(id) ON DELETE SET NULL,
		plan_id BIGINT NULL REFERENCES subscription_plans(id) ON DELETE SET NULL,
		total_amount DECIMAL(12,0) NOT NULL,
		discount_amount DECIMAL(12,0) NOT NULL DEFAULT 0,
		final_amount DECIMAL(12,0) NOT NULL,
		coupon_id BIGINT NULL REFERENCES coupons(id) ON DELETE SET NULL,
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}},
		paid_at {{ts}} NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id {{pk}},
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		item_kind VARCHAR(20) NOT NULL,
		item_id BIGINT NOT NULL,
		name VARCHAR(200) NOT NULL,
		quantity INT NOT NULL DEFAULT 1,
		unit_price DECIMAL(12,0) NOT NULL,
		total_price DECIMAL(12,0) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id {{pk}},
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		transaction_id VARCHAR(100) NOT NULL UNIQUE,
		amount DECIMAL(12,0) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(20) NOT NULL,
		payment_gateway_reference VARCHAR(100) NULL,
		description TEXT NOT NULL,
		extra_data TEXT NULL,
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id {{pk}},
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		enrolled_at {{ts}} NOT NULL DEFAULT {{now}},
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_accessed_at {{ts}} NULL,
		completion_percentage INT NOT NULL DEFAULT 0,
		UNIQUE (user_id, course_id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id {{pk}},
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		plan_id BIGINT NOT NULL REFERENCES subscription_plans(id) ON DELETE CASCADE,
		start_date {{ts}} NOT NULL,
		end_date {{ts}} NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id {{pk}},
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ticket_number VARCHAR(20) NOT NULL UNIQUE,
		subject VARCHAR(255) NOT NULL,
		department VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_messages (
		id {{pk}},
		ticket_id BIGINT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message TEXT NOT NULL,
		created_at {{ts}} NOT NULL DEFAULT {{now}}
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id {{pk}},
		author_id BIGINT NULL REFERENCES users(id) ON DELETE SET NULL,
		title VARCHAR(200) NOT NULL,
		slug VARCHAR(200) NOT NULL UNIQUE,
		content TEXT NOT NULL,
		excerpt TEXT NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'draft',
		views_count INT NOT NULL DEFAULT 0,
		likes_count INT NOT NULL DEFAULT 0,
		average_read_time INT NOT NULL DEFAULT 0,
		created_at {{ts}} NOT NULL DEFAULT {{now}},
		updated_at {{ts}} NOT NULL DEFAULT {{now}},
		published_at {{ts}} NULL
	)`,
}

// Migrate creates every table that does not exist yet, retrying each
// statement while the database is still coming up.
func Migrate(ctx context.Context, db *sqlx.DB, retries int) error {
	r := dialect(db.DriverName())
	for _, stmt := range schema {
		query := r.Replace(stmt)
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if _, err = db.ExecContext(ctx, query); err == nil {
				break
			}
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("migration statement failed, retrying")
			time.Sleep(time.Second)
		}
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
