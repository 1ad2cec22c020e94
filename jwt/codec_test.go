package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hsConfig() Config {
	return Config{
		SigningMethod: MethodHS256,
		Access:        KeyPair{Private: []byte(strings.Repeat("a", 32))},
		Refresh:       KeyPair{Private: []byte(strings.Repeat("r", 32))},
		Issuer:        "shopauth",
	}
}

func newEdKeys(t *testing.T) KeyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return KeyPair{Private: priv, Public: pub}
}

func TestIssueAndParseAccess(t *testing.T) {
	c, err := NewCodec(hsConfig())
	require.NoError(t, err)

	issued, err := c.IssueAccess(AccessClaims{
		UID:   "u1",
		TID:   "t1",
		Perms: []string{"product:read"},
		Roles: []string{"CUSTOMER"},
		FP:    "fp",
	}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := c.ParseAccess(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UID)
	assert.Equal(t, "t1", claims.TID)
	assert.Equal(t, []string{"product:read"}, claims.Perms)
	assert.Equal(t, issued.ID, claims.SessionID())
	assert.Equal(t, "fp", claims.FP)
}

func TestSessionIDsAreUnique(t *testing.T) {
	c, err := NewCodec(hsConfig())
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		issued, err := c.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
		require.NoError(t, err)
		_, dup := seen[issued.ID]
		require.False(t, dup, "duplicate jti %s", issued.ID)
		seen[issued.ID] = struct{}{}
	}
}

func TestRefreshCannotBeUsedAsAccess(t *testing.T) {
	c, err := NewCodec(hsConfig())
	require.NoError(t, err)

	refresh, err := c.IssueRefresh(RefreshClaims{UID: "u1", FP: "fp", SID: "s1"}, time.Hour)
	require.NoError(t, err)
	_, err = c.ParseAccess(refresh.Token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	access, err := c.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = c.ParseRefresh(access.Token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	parsed, err := c.ParseRefresh(refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "s1", parsed.SID)
}

func TestParseExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	cfg := hsConfig()
	cfg.Now = func() time.Time { return past }
	old, err := NewCodec(cfg)
	require.NoError(t, err)

	issued, err := old.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
	require.NoError(t, err)

	c, err := NewCodec(hsConfig())
	require.NoError(t, err)
	_, err = c.ParseAccess(issued.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseMalformed(t *testing.T) {
	c, err := NewCodec(hsConfig())
	require.NoError(t, err)

	for _, tok := range []string{"", "   ", "not.a.jwt", "abc"} {
		_, err := c.ParseAccess(tok)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestParseRejectsTamperedSignature(t *testing.T) {
	c, err := NewCodec(hsConfig())
	require.NoError(t, err)

	issued, err := c.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.ParseAccess(tampered)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	cfg := Config{SigningMethod: MethodEd25519, Access: newEdKeys(t), Refresh: newEdKeys(t)}
	c, err := NewCodec(cfg)
	require.NoError(t, err)

	claims := AccessClaims{UID: "u1", Type: typeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "s1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	require.NoError(t, err)

	_, err = c.ParseAccess(token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseRejectsMissingType(t *testing.T) {
	cfg := hsConfig()
	c, err := NewCodec(cfg)
	require.NoError(t, err)

	claims := AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "s1",
		Issuer:    cfg.Issuer,
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(cfg.Access.Private)
	require.NoError(t, err)

	_, err = c.ParseAccess(token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEd25519RoundTripAndPEM(t *testing.T) {
	access, err := GenerateEd25519PEM()
	require.NoError(t, err)
	refresh, err := GenerateEd25519PEM()
	require.NoError(t, err)

	c, err := NewCodec(Config{SigningMethod: MethodEd25519, Access: access, Refresh: refresh, KeyID: "k1"})
	require.NoError(t, err)

	issued, err := c.IssueRefresh(RefreshClaims{UID: "u1", FP: "fp", SID: "s1"}, time.Hour)
	require.NoError(t, err)
	claims, err := c.ParseRefresh(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UID)

	verifyOnly, err := NewCodec(Config{
		SigningMethod: MethodEd25519,
		Access:        KeyPair{Public: access.Public},
		Refresh:       KeyPair{Public: refresh.Public},
		KeyID:         "k2",
	})
	require.NoError(t, err)
	_, err = verifyOnly.ParseRefresh(issued.Token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	_, err = verifyOnly.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
	assert.Error(t, err)
}

func TestNewCodecValidation(t *testing.T) {
	same := hsConfig()
	same.Refresh = same.Access
	_, err := NewCodec(same)
	assert.Error(t, err)

	short := hsConfig()
	short.Access.Private = []byte("short")
	_, err = NewCodec(short)
	assert.Error(t, err)

	_, err = NewCodec(Config{SigningMethod: "rsa"})
	assert.Error(t, err)

	leeway := hsConfig()
	leeway.Leeway = time.Hour
	_, err = NewCodec(leeway)
	assert.Error(t, err)
}

func FuzzParseAccess(f *testing.F) {
	c, err := NewCodec(hsConfig())
	if err != nil {
		f.Fatal(err)
	}
	valid, err := c.IssueAccess(AccessClaims{UID: "u1"}, time.Minute)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid.Token)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := c.ParseAccess(input)
		if err == nil && claims == nil {
			t.Fatal("ParseAccess returned nil claims without error")
		}
	})
}
