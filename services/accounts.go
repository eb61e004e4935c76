package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prago-api/cache"
	"prago-api/models"
	"prago-api/store"
	"prago-api/tasks"
	"prago-api/utils"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpIssuer         = "Prago"
	minPasswordLength = 8
)

// GoogleTokenVerifier validates a Google id_token and returns its identity.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*utils.GoogleIdentity, error)
}

type AccountOptions struct {
	OTPPeriod   uint
	OTPCooldown time.Duration
	FrontendURL string
	// Google is nil when Google sign-in is disabled.
	Google GoogleTokenVerifier
}

type AccountService struct {
	store       store.Store
	tokens      *utils.TokenIssuer
	enqueuer    tasks.Enqueuer
	guard       cache.Guard
	otpPeriod   uint
	cooldown    time.Duration
	frontendURL string
	google      GoogleTokenVerifier
	hashCost    int
	now         func() time.Time
}

func NewAccountService(s store.Store, tokens *utils.TokenIssuer, enqueuer tasks.Enqueuer, guard cache.Guard, opts AccountOptions) *AccountService {
	if opts.OTPPeriod == 0 {
		opts.OTPPeriod = 120
	}
	return &AccountService{
		store:       s,
		tokens:      tokens,
		enqueuer:    enqueuer,
		guard:       guard,
		otpPeriod:   opts.OTPPeriod,
		cooldown:    opts.OTPCooldown,
		frontendURL: strings.TrimSuffix(opts.FrontendURL, "/"),
		google:      opts.Google,
		hashCost:    bcrypt.DefaultCost,
		now:         time.Now,
	}
}

func (s *AccountService) otpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.otpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// AuthResult is the answer to every login style endpoint. Either the token
// pair is set or NeedsSignup is.
type AuthResult struct {
	Message      string `json:"message"`
	UserID       int64  `json:"user_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	NeedsSignup  bool   `json:"needs_signup,omitempty"`
	SignupToken  string `json:"signup_token,omitempty"`
	NeedsProfile bool   `json:"needs_profile,omitempty"`
}

func (s *AccountService) loggedIn(user *models.User, message string) (*AuthResult, error) {
	pair, err := s.tokens.Pair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &AuthResult{Message: message, UserID: user.ID, AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}

func parseIdentifier(raw string) (models.IdentifierKind, string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", "", validationError("Email or phone number is required.")
	}
	kind, id, ok := models.ClassifyIdentifier(raw)
	if !ok {
		return "", "", validationError("Enter a valid email address or mobile number.")
	}
	return kind, id, nil
}

func userByIdentifier(ctx context.Context, r *store.Repos, kind models.IdentifierKind, id string) (*models.User, error) {
	if kind == models.IdentifierEmail {
		return r.Users.GetByEmail(ctx, id)
	}
	return r.Users.GetByPhone(ctx, id)
}

// RequestOTP sends a fresh code to the identifier. The code itself is only
// ever delivered out of band.
func (s *AccountService) RequestOTP(ctx context.Context, identifier string) error {
	kind, id, err := parseIdentifier(identifier)
	if err != nil {
		return err
	}

	if s.cooldown > 0 {
		ok, err := s.guard.Claim(ctx, cache.OTPCooldownKey(id), s.cooldown)
		if err != nil {
			return err
		}
		if !ok {
			return rateLimitedError("Please wait before requesting another code.")
		}
	}

	secret, err := s.otpSecret(ctx, id)
	if err != nil {
		return err
	}
	code, err := totp.GenerateCodeCustom(secret, s.now(), s.otpOpts())
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	var job tasks.Job
	if kind == models.IdentifierEmail {
		job, err = tasks.NewJob(tasks.KindOTPEmail, tasks.OTPEmail{Email: id, Code: code})
	} else {
		job, err = tasks.NewJob(tasks.KindOTPSMS, tasks.OTPSMS{Phone: id, Code: code})
	}
	if err == nil {
		err = s.enqueuer.Enqueue(ctx, job)
	}
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("failed to enqueue otp delivery")
	}
	return nil
}

func (s *AccountService) otpSecret(ctx context.Context, identifier string) (string, error) {
	r := s.store.Repos()
	rec, err := r.OTP.Get(ctx, identifier)
	if err == nil {
		return rec.Secret, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{Issuer: otpIssuer, AccountName: identifier})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	rec = &models.OTPSecret{Identifier: identifier, Secret: key.Secret()}
	err = r.OTP.Create(ctx, rec)
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent request created it first.
		existing, err := r.OTP.Get(ctx, identifier)
		if err != nil {
			return "", err
		}
		return existing.Secret, nil
	}
	if err != nil {
		return "", err
	}
	return rec.Secret, nil
}

func (s *AccountService) VerifyOTP(ctx context.Context, identifier, code string) (*AuthResult, error) {
	kind, id, err := parseIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	r := s.store.Repos()
	rec, err := r.OTP.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("OTP record not found.")
	}
	if err != nil {
		return nil, err
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), rec.Secret, s.now(), s.otpOpts())
	if err != nil || !ok {
		return nil, validationError("Invalid OTP.")
	}

	user, err := userByIdentifier(ctx, r, kind, id)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, forbiddenError("This account is disabled.")
		}
		return s.loggedIn(user, "Login successful.")
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	token, err := s.tokens.SignupToken(id)
	if err != nil {
		return nil, fmt.Errorf("issue signup token: %w", err)
	}
	return &AuthResult{Message: "OTP verified. Proceed to signup.", NeedsSignup: true, SignupToken: token}, nil
}

type SignupRequest struct {
	SignupToken string `json:"signup_token" binding:"required"`
	Username    string `json:"username" binding:"required,max=150"`
	FirstName   string `json:"first_name" binding:"max=150"`
	LastName    string `json:"last_name" binding:"max=150"`
	Password    string `json:"password"`
}

// Signup creates the account for an identifier that passed OTP verification.
func (s *AccountService) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	claims, err := s.tokens.Parse(req.SignupToken, utils.PurposeSignup)
	if err != nil {
		return nil, unauthorizedError("Signup token is invalid or expired.")
	}
	kind, id, ok := models.ClassifyIdentifier(claims.Identifier)
	if !ok {
		return nil, unauthorizedError("Signup token is invalid or expired.")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, validationError("Username is required.")
	}

	user := &models.User{
		Username:  username,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		IsActive:  true,
	}
	if kind == models.IdentifierEmail {
		user.Email = &id
	} else {
		user.Phone = &id
	}
	if req.Password != "" {
		if user.PasswordHash, err = s.hash(req.Password); err != nil {
			return nil, err
		}
	}

	err = s.store.WithTx(ctx, func(r *store.Repos) error {
		if _, err := userByIdentifier(ctx, r, kind, id); err == nil {
			return validationError("An account with this identifier already exists.")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return createUser(ctx, r, user)
	})
	if err != nil {
		return nil, err
	}
	return s.loggedIn(user, "Signup successful.")
}

// createUser inserts the user together with an empty profile.
func createUser(ctx context.Context, r *store.Repos, user *models.User) error {
	err := r.Users.Create(ctx, user)
	if errors.Is(err, store.ErrDuplicate) {
		return validationError("Username not available.")
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := r.Users.CreateProfile(ctx, &models.Profile{UserID: user.ID}); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *AccountService) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", validationError(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login accepts a username, an email address or a phone number.
func (s *AccountService) Login(ctx context.Context, login, password string) (*AuthResult, error) {
	r := s.store.Repos()
	var (
		user *models.User
		err  error
	)
	if kind, id, ok := models.ClassifyIdentifier(login); ok {
		user, err = userByIdentifier(ctx, r, kind, id)
	} else {
		user, err = r.Users.GetByUsername(ctx, strings.TrimSpace(login))
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("Invalid credentials.")
	}
	if err != nil {
		return nil, err
	}
	if !user.HasUsablePassword() || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, validationError("Invalid credentials.")
	}
	if !user.IsActive {
		return nil, forbiddenError("This account is disabled.")
	}
	return s.loggedIn(user, "Login successful.")
}

type GoogleProfile struct {
	IDToken    string `json:"id_token"`
	Email      string `json:"email"`
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// Google signs in the owner of a Google verified email, creating the
// account on first use. Identity comes from the id_token only; the other
// profile fields must agree with it when present.
func (s *AccountService) Google(ctx context.Context, p GoogleProfile) (*AuthResult, error) {
	if s.google == nil {
		return nil, forbiddenError("Google sign-in is not enabled")
	}
	if strings.TrimSpace(p.IDToken) == "" {
		return nil, validationError("id_token is required")
	}
	identity, err := s.google.Verify(ctx, p.IDToken)
	if err != nil {
		log.Warn().Err(err).Msg("google id_token rejected")
		return nil, unauthorizedError("Invalid Google token")
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if p.Email != "" && !strings.EqualFold(strings.TrimSpace(p.Email), email) {
		return nil, unauthorizedError("Invalid Google token")
	}
	p = GoogleProfile{
		Email:      email,
		Sub:        identity.Subject,
		Name:       firstNonEmpty(identity.Name, p.Name),
		GivenName:  firstNonEmpty(identity.GivenName, p.GivenName),
		FamilyName: firstNonEmpty(identity.FamilyName, p.FamilyName),
	}

	var (
		user    *models.User
		created bool
	)
	err = s.store.WithTx(ctx, func(r *store.Repos) error {
		existing, err := r.Users.GetByEmail(ctx, email)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		user = &models.User{Email: &email, IsActive: true}
		user.FirstName, user.LastName = splitGoogleName(p)
		user.Username = googleUsername(p.Sub, email)
		taken, err := r.Users.UsernameExists(ctx, user.Username)
		if err != nil {
			return err
		}
		if taken {
			user.Username += "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		}
		created = true
		return createUser(ctx, r, user)
	})
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, forbiddenError("This account is disabled.")
	}

	res, err := s.loggedIn(user, "Google authentication successful")
	if err != nil {
		return nil, err
	}
	res.NeedsProfile = created
	return res, nil
}

func googleUsername(sub, email string) string {
	if sub == "" {
		local, _, _ := strings.Cut(email, "@")
		return "google_" + local
	}
	if len(sub) > 8 {
		sub = sub[len(sub)-8:]
	}
	return "google_" + sub
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitGoogleName(p GoogleProfile) (first, last string) {
	if p.GivenName == "" && strings.Contains(p.Name, " ") {
		i := strings.LastIndex(p.Name, " ")
		return p.Name[:i], p.Name[i+1:]
	}
	return p.GivenName, p.FamilyName
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := s.tokens.Parse(refreshToken, utils.PurposeRefresh)
	if err != nil {
		return nil, unauthorizedError("Token is invalid or expired")
	}
	user, err := s.store.Repos().Users.GetByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
		return nil, unauthorizedError("User not found or inactive")
	}
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.Pair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &pair, nil
}

type MeView struct {
	*models.User
	Profile *models.Profile `json:"profile"`
	Roles   []models.Role   `json:"roles"`
}

func (s *AccountService) Me(ctx context.Context, userID int64) (*MeView, error) {
	r := s.store.Repos()
	user, err := r.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "User not found.")
	}
	v := &MeView{User: user, Roles: []models.Role{}}
	profile, err := r.Users.GetProfile(ctx, userID)
	switch {
	case err == nil:
		v.Profile = profile
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	roles, err := r.Users.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roles != nil {
		v.Roles = roles
	}
	return v, nil
}

// CheckUsername reports whether the username is free (case-insensitive).
func (s *AccountService) CheckUsername(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return validationError("Username is required.")
	}
	taken, err := s.store.Repos().Users.UsernameExists(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return validationError("Username not available.")
	}
	return nil
}

// RequestPasswordReset mails the signed-in user a single-use reset link. The
// token stops working once the password changes.
func (s *AccountService) RequestPasswordReset(ctx context.Context, userID int64) error {
	user, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, "User not found.")
	}
	if user.Email == nil {
		return validationError("No email address is registered for this account.")
	}
	token, err := s.tokens.ResetToken(user.ID, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	link := s.frontendURL + "/reset-password/" + token
	job, err := tasks.NewJob(tasks.KindEmail, tasks.Email{
		To:      *user.Email,
		Subject: "Password Reset Request",
		Body:    "Use this link to reset your password: " + link,
	})
	if err == nil {
		err = s.enqueuer.Enqueue(ctx, job)
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to enqueue password reset email")
	}
	return nil
}

type ResetPasswordRequest struct {
	Identifier  string `json:"identifier" binding:"required"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *AccountService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	r := s.store.Repos()
	var (
		user *models.User
		err  error
	)
	if kind, id, ok := models.ClassifyIdentifier(req.Identifier); ok {
		user, err = userByIdentifier(ctx, r, kind, id)
	} else {
		err = store.ErrNotFound
	}
	if err != nil {
		return notFound(err, "User not found.")
	}

	claims, err := s.tokens.Parse(req.Token, utils.PurposeReset)
	if err != nil || claims.UserID != user.ID || claims.Fingerprint != utils.Fingerprint(user.PasswordHash) {
		return validationError("Invalid or expired token.")
	}
	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}
	return r.Users.UpdatePassword(ctx, user.ID, hash)
}

func (s *AccountService) GrantRole(ctx context.Context, userID int64, role string) ([]models.Role, error) {
	return s.changeRole(ctx, userID, role, true)
}

func (s *AccountService) RevokeRole(ctx context.Context, userID int64, role string) ([]models.Role, error) {
	return s.changeRole(ctx, userID, role, false)
}

func (s *AccountService) changeRole(ctx context.Context, userID int64, name string, grant bool) ([]models.Role, error) {
	role, ok := models.ParseRole(name)
	if !ok {
		return nil, validationError("Invalid role.")
	}
	r := s.store.Repos()
	if _, err := r.Users.GetByID(ctx, userID); err != nil {
		return nil, notFound(err, "User not found.")
	}
	var err error
	if grant {
		err = r.Users.AddRole(ctx, userID, role)
	} else {
		err = r.Users.RemoveRole(ctx, userID, role)
	}
	if err != nil {
		return nil, err
	}
	roles, err := r.Users.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []models.Role{}
	}
	return roles, nil
}
