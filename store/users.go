package store

import (
	"context"

	"prago-api/models"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, phone, username, first_name, last_name, password_hash,
	is_active, is_staff, is_superuser, date_joined`

type userRepo struct {
	q sqlx.ExtContext
}

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	if u.DateJoined.IsZero() {
		u.DateJoined = now()
	}
	id, err := insert(ctx, r.q, `
		INSERT INTO users (email, phone, username, first_name, last_name, password_hash,
			is_active, is_staff, is_superuser, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Phone, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		u.IsActive, u.IsStaff, u.IsSuperuser, u.DateJoined,
	)
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (r *userRepo) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	var u models.User
	if err := get(ctx, r.q, &u, "SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *userRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *userRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	if err := get(ctx, r.q, &n, "SELECT COUNT(*) FROM users WHERE LOWER(username) = LOWER(?)", username); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *userRepo) Update(ctx context.Context, u *models.User) error {
	return execOne(ctx, r.q, `
		UPDATE users SET email = ?, phone = ?, username = ?, first_name = ?, last_name = ?,
			is_active = ?, is_staff = ?
		WHERE id = ?`,
		u.Email, u.Phone, u.Username, u.FirstName, u.LastName, u.IsActive, u.IsStaff, u.ID,
	)
}

func (r *userRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return execOne(ctx, r.q, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
}

func (r *userRepo) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	id, err := insert(ctx, r.q,
		"INSERT INTO profiles (user_id, bio, education, created_at) VALUES (?, ?, ?, ?)",
		p.UserID, p.Bio, p.Education, p.CreatedAt,
	)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *userRepo) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	var p models.Profile
	if err := get(ctx, r.q, &p, "SELECT id, user_id, bio, education, created_at FROM profiles WHERE user_id = ?", userID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *userRepo) Roles(ctx context.Context, userID int64) ([]models.Role, error) {
	var roles []models.Role
	err := selectAll(ctx, r.q, &roles, "SELECT role FROM user_roles WHERE user_id = ? ORDER BY role", userID)
	return roles, err
}

func (r *userRepo) AddRole(ctx context.Context, userID int64, role models.Role) error {
	var n int
	if err := get(ctx, r.q, &n, "SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?", userID, role); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := exec(ctx, r.q, "INSERT INTO user_roles (user_id, role) VALUES (?, ?)", userID, role)
	return err
}

func (r *userRepo) RemoveRole(ctx context.Context, userID int64, role models.Role) error {
	_, err := exec(ctx, r.q, "DELETE FROM user_roles WHERE user_id = ? AND role = ?", userID, role)
	return err
}

type otpRepo struct {
	q sqlx.ExtContext
}

func (r *otpRepo) Get(ctx context.Context, identifier string) (*models.OTPSecret, error) {
	var s models.OTPSecret
	if err := get(ctx, r.q, &s, "SELECT id, identifier, secret, created_at FROM otp_secrets WHERE identifier = ?", identifier); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *otpRepo) Create(ctx context.Context, s *models.OTPSecret) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now()
	}
	id, err := insert(ctx, r.q,
		"INSERT INTO otp_secrets (identifier, secret, created_at) VALUES (?, ?, ?)",
		s.Identifier, s.Secret, s.CreatedAt,
	)
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}
