package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"prago-api/models"
	"prago-api/store"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	d, err := r.s.lock("users.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	for _, existing := range d.users {
		if conflicts(existing, u) {
			return fmt.Errorf("%w: user", store.ErrDuplicate)
		}
	}
	u.ID = d.nextID()
	if u.DateJoined.IsZero() {
		u.DateJoined = now()
	}
	d.users[u.ID] = *u
	return nil
}

func conflicts(a models.User, b *models.User) bool {
	if a.ID == b.ID {
		return false
	}
	if strings.EqualFold(a.Username, b.Username) {
		return true
	}
	if a.Email != nil && b.Email != nil && *a.Email == *b.Email {
		return true
	}
	return a.Phone != nil && b.Phone != nil && *a.Phone == *b.Phone
}

func (r *userRepo) find(match func(u models.User) bool) (*models.User, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	for _, u := range d.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email != nil && *u.Email == email })
}

func (r *userRepo) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *userRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.find(func(u models.User) bool { return strings.EqualFold(u.Username, username) })
	if err == store.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *userRepo) Update(ctx context.Context, u *models.User) error {
	d, err := r.s.lock("users.update")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	existing, ok := d.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range d.users {
		if conflicts(other, u) {
			return fmt.Errorf("%w: user", store.ErrDuplicate)
		}
	}
	u.PasswordHash = existing.PasswordHash
	d.users[u.ID] = *u
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	d, err := r.s.lock("users.update_password")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	u, ok := d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	d.users[id] = u
	return nil
}

func (r *userRepo) CreateProfile(ctx context.Context, p *models.Profile) error {
	d, err := r.s.lock("users.create_profile")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	if _, ok := d.profiles[p.UserID]; ok {
		return fmt.Errorf("%w: profile", store.ErrDuplicate)
	}
	p.ID = d.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	d.profiles[p.UserID] = *p
	return nil
}

func (r *userRepo) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *userRepo) Roles(ctx context.Context, userID int64) ([]models.Role, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	var roles []models.Role
	for role := range d.roles[userID] {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles, nil
}

func (r *userRepo) AddRole(ctx context.Context, userID int64, role models.Role) error {
	d, err := r.s.lock("users.add_role")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	if d.roles[userID] == nil {
		d.roles[userID] = map[models.Role]bool{}
	}
	d.roles[userID][role] = true
	return nil
}

func (r *userRepo) RemoveRole(ctx context.Context, userID int64, role models.Role) error {
	d, err := r.s.lock("users.remove_role")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	delete(d.roles[userID], role)
	return nil
}

type otpRepo struct{ s *Store }

func (r *otpRepo) Get(ctx context.Context, identifier string) (*models.OTPSecret, error) {
	d, _ := r.s.lock("")
	defer r.s.unlock()
	o, ok := d.otps[identifier]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r *otpRepo) Create(ctx context.Context, o *models.OTPSecret) error {
	d, err := r.s.lock("otp.create")
	defer r.s.unlock()
	if err != nil {
		return err
	}
	if _, ok := d.otps[o.Identifier]; ok {
		return fmt.Errorf("%w: otp", store.ErrDuplicate)
	}
	o.ID = d.nextID()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now()
	}
	d.otps[o.Identifier] = *o
	return nil
}
