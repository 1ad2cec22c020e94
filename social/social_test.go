package social

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "shop-web"
)

func newTestProvider(t *testing.T) (*Provider, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return NewWithKeySet("google", testIssuer, testClientID, keys, nil), key
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func baseClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "1234567890",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "ann@example.com",
		"email_verified": true,
		"given_name":     "Ann",
		"family_name":    "Lee",
	}
}

func TestVerifyMapsClaims(t *testing.T) {
	p, key := newTestProvider(t)
	id, err := p.Verify(context.Background(), sign(t, key, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, "1234567890", id.Subject)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Ann", id.FirstName)
	assert.Equal(t, "Lee", id.LastName)
}

func TestVerifyStringEmailVerified(t *testing.T) {
	p, key := newTestProvider(t)
	c := baseClaims()
	c["email_verified"] = "true"
	id, err := p.Verify(context.Background(), sign(t, key, c))
	require.NoError(t, err)
	assert.True(t, id.EmailVerified)
}

func TestVerifyRejects(t *testing.T) {
	p, key := newTestProvider(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := map[string]func() string{
		"wrong audience": func() string {
			c := baseClaims()
			c["aud"] = "someone-else"
			return sign(t, key, c)
		},
		"wrong issuer": func() string {
			c := baseClaims()
			c["iss"] = "https://evil.example.com"
			return sign(t, key, c)
		},
		"expired": func() string {
			c := baseClaims()
			c["exp"] = time.Now().Add(-time.Hour).Unix()
			return sign(t, key, c)
		},
		"foreign key": func() string {
			return sign(t, other, baseClaims())
		},
		"garbage": func() string { return "not.a.jwt" },
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Verify(context.Background(), build())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyRequiresEmail(t *testing.T) {
	p, key := newTestProvider(t)
	c := baseClaims()
	delete(c, "email")
	_, err := p.Verify(context.Background(), sign(t, key, c))
	assert.ErrorIs(t, err, ErrEmailMissing)
}

func TestRegistryDispatch(t *testing.T) {
	p, key := newTestProvider(t)
	r := NewRegistry(p)

	_, err := r.Verify(context.Background(), "facebook", "x")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	id, err := r.Verify(context.Background(), "google", sign(t, key, baseClaims()))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", id.Email)
}
