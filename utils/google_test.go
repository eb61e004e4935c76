package utils

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "prago-web.apps.googleusercontent.com"

type googleKeys struct {
	key     *rsa.PrivateKey
	fetches atomic.Int32
	server  *httptest.Server
}

func newGoogleKeys(t *testing.T) *googleKeys {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	g := &googleKeys{key: key}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kid": "k1",
			"kty": "RSA",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *googleKeys) sign(t *testing.T, kid string, claims googleClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(g.key)
	require.NoError(t, err)
	return s
}

func validGoogleClaims() googleClaims {
	now := time.Now()
	return googleClaims{
		Email:         "sara@gmail.com",
		EmailVerified: true,
		GivenName:     "Sara",
		FamilyName:    "Ahmadi",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "1098765432112345678",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	keys := newGoogleKeys(t)
	v := NewGoogleVerifier(testClientID, keys.server.URL)

	id, err := v.Verify(context.Background(), keys.sign(t, "k1", validGoogleClaims()))
	require.NoError(t, err)
	assert.Equal(t, "sara@gmail.com", id.Email)
	assert.Equal(t, "1098765432112345678", id.Subject)
	assert.Equal(t, "Sara", id.GivenName)

	// Keys are cached between calls.
	_, err = v.Verify(context.Background(), keys.sign(t, "k1", validGoogleClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), keys.fetches.Load())
}

func TestGoogleVerifierRejects(t *testing.T) {
	keys := newGoogleKeys(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{"other audience", func() string {
			c := validGoogleClaims()
			c.Audience = jwt.ClaimStrings{"someone-else.apps.googleusercontent.com"}
			return keys.sign(t, "k1", c)
		}},
		{"other issuer", func() string {
			c := validGoogleClaims()
			c.Issuer = "https://evil.example"
			return keys.sign(t, "k1", c)
		}},
		{"expired", func() string {
			c := validGoogleClaims()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return keys.sign(t, "k1", c)
		}},
		{"unverified email", func() string {
			c := validGoogleClaims()
			c.EmailVerified = false
			return keys.sign(t, "k1", c)
		}},
		{"unknown key id", func() string {
			return keys.sign(t, "k2", validGoogleClaims())
		}},
		{"foreign signature", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, validGoogleClaims())
			token.Header["kid"] = "k1"
			s, err := token.SignedString(other)
			require.NoError(t, err)
			return s
		}},
		{"hmac token", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, validGoogleClaims())
			token.Header["kid"] = "k1"
			s, err := token.SignedString([]byte("secret"))
			require.NoError(t, err)
			return s
		}},
		{"garbage", func() string { return "not-a-token" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewGoogleVerifier(testClientID, keys.server.URL)
			_, err := v.Verify(context.Background(), tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
