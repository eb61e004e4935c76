package models

import (
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        *string   `db:"email" json:"email"`
	Phone        *string   `db:"phone" json:"phone"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	IsSuperuser  bool      `db:"is_superuser" json:"is_superuser"`
	DateJoined   time.Time `db:"date_joined" json:"date_joined"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) HasUsablePassword() bool { return u.PasswordHash != "" }

func (u *User) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

func (u *User) PhoneOrEmpty() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

type Profile struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Bio       string    `db:"bio" json:"bio"`
	Education string    `db:"education" json:"education"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Role string

const (
	RoleTeacher   Role = "teacher"
	RoleOrganizer Role = "organizer"
	RoleAuthor    Role = "author"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(s)); r {
	case RoleTeacher, RoleOrganizer, RoleAuthor:
		return r, true
	}
	return "", false
}

type OTPSecret struct {
	ID         int64     `db:"id"`
	Identifier string    `db:"identifier"`
	Secret     string    `db:"secret"`
	CreatedAt  time.Time `db:"created_at"`
}

type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

var (
	phonePattern = regexp.MustCompile(`^(?:\+98|0)9\d{9}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ClassifyIdentifier tells an email from an Iranian mobile number. The
// returned identifier is normalized (lower-cased email, trimmed phone).
func ClassifyIdentifier(raw string) (IdentifierKind, string, bool) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "@") {
		s = strings.ToLower(s)
		return IdentifierEmail, s, emailPattern.MatchString(s)
	}
	if phonePattern.MatchString(s) {
		return IdentifierPhone, s, true
	}
	return "", s, false
}
