package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveClientIP(t *testing.T) {
	tests := []struct {
		name, xff, remote, want string
	}{
		{"first forwarded hop", "203.0.113.7, 10.0.0.1", "10.0.0.2:443", "203.0.113.7"},
		{"single forwarded", " 198.51.100.1 ", "10.0.0.2:443", "198.51.100.1"},
		{"remote with port", "", "192.0.2.10:5555", "192.0.2.10"},
		{"ipv6 remote", "", "[2001:db8::1]:8080", "2001:db8::1"},
		{"remote without port", "", "192.0.2.11", "192.0.2.11"},
		{"empty forwarded entry", " , 10.0.0.1", "192.0.2.12:1", "192.0.2.12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveClientIP(tt.xff, tt.remote))
		})
	}
}

func TestDeriveIsStableAndSensitive(t *testing.T) {
	a := Derive("192.0.2.1", "Mozilla/5.0")
	assert.Equal(t, a, Derive("192.0.2.1", "Mozilla/5.0"))
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Derive("192.0.2.2", "Mozilla/5.0"))
	assert.NotEqual(t, a, Derive("192.0.2.1", "curl/8.0"))
}

func TestEqual(t *testing.T) {
	fp := Derive("192.0.2.1", "ua")
	assert.True(t, Equal(fp, Derive("192.0.2.1", "ua")))
	assert.False(t, Equal(fp, Derive("192.0.2.1", "ub")))
	assert.False(t, Equal(fp, ""))
}
