package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenPurpose string

const (
	PurposeAccess  TokenPurpose = "access"
	PurposeRefresh TokenPurpose = "refresh"
	PurposeSignup  TokenPurpose = "signup"
	PurposeReset   TokenPurpose = "password_reset"
)

const (
	signupTokenTTL = 15 * time.Minute
	resetTokenTTL  = 30 * time.Minute
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID     int64        `json:"user_id,omitempty"`
	Purpose    TokenPurpose `json:"purpose"`
	Identifier string       `json:"identifier,omitempty"`
	// Fingerprint ties a reset token to the password hash it was issued for.
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (t *TokenIssuer) issue(claims Claims, ttl time.Duration) (string, error) {
	issuedAt := t.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	if claims.UserID != 0 {
		claims.Subject = fmt.Sprint(claims.UserID)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) Pair(userID int64) (TokenPair, error) {
	access, err := t.issue(Claims{UserID: userID, Purpose: PurposeAccess}, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.issue(Claims{UserID: userID, Purpose: PurposeRefresh}, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// SignupToken proves that identifier passed OTP verification.
func (t *TokenIssuer) SignupToken(identifier string) (string, error) {
	return t.issue(Claims{Purpose: PurposeSignup, Identifier: identifier}, signupTokenTTL)
}

func (t *TokenIssuer) ResetToken(userID int64, passwordHash string) (string, error) {
	return t.issue(Claims{UserID: userID, Purpose: PurposeReset, Fingerprint: Fingerprint(passwordHash)}, resetTokenTTL)
}

// Parse validates signature, expiry and purpose.
func (t *TokenIssuer) Parse(tokenString string, purpose TokenPurpose) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func Fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
