package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// AccessClaims is the self-contained snapshot carried by an access token.
// The jti (RegisteredClaims.ID) is the session id.
type AccessClaims struct {
	UID   string   `json:"uid"`
	TID   string   `json:"tid,omitempty"`
	Perms []string `json:"perms,omitempty"`
	Roles []string `json:"roles,omitempty"`
	FP    string   `json:"fp"`
	Type  string   `json:"typ"`
	jwt.RegisteredClaims
}

// SessionID returns the token's jti.
func (c *AccessClaims) SessionID() string { return c.ID }

// Expiry returns the expiry time or the zero time when absent.
func (c *AccessClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// RefreshClaims binds a refresh token to a fingerprint and to the session id of
// the access token issued alongside it.
type RefreshClaims struct {
	UID  string `json:"uid"`
	TID  string `json:"tid,omitempty"`
	FP   string `json:"fp"`
	SID  string `json:"sid"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Issued is a signed token plus the identifiers the caller needs to track it.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}
