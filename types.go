package shopauth

import (
	"context"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// Principal is a user account. TenantID never changes after creation and
// accounts are only ever soft-deleted.
type Principal struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string // empty for social-only accounts
	FirstName    string
	LastName     string
	Phone        string

	TwoFactorEnabled    bool
	TwoFactorSecret     string
	FailedLoginAttempts int
	LockedUntil         time.Time
	AllowedIPs          []string

	Permissions []string
	Roles       []string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Role is a named, tenant-scoped bundle of permissions.
type Role struct {
	ID          string
	TenantID    string
	Name        string
	Permissions []string
}

type Tenant struct {
	ID     string
	Domain string
	Active bool
	Plan   string
}

// Session is the verified content of an access token.
type Session struct {
	UserID      string
	TenantID    string
	SessionID   string
	Roles       []string
	Permissions []string
	Fingerprint string
	ExpiresAt   time.Time
}

// Has reports whether the permission snapshot in the token contains p.
func (s *Session) Has(p string) bool {
	return s != nil && slices.Contains(s.Permissions, p)
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LoginResult is either a token pair or the MFA-required state, in which case
// UserID and ChallengeID are set. ChallengeID is the only way to finish the
// login with CompleteTwoFactor.
type LoginResult struct {
	MFARequired bool
	UserID      string
	ChallengeID string
	Tokens      *TokenPair
}

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// ProfileUpdate changes only the non-nil fields.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

// ExternalIdentity is an identity already verified by a social provider.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// IdentityStore persists principals and roles. Lookups of missing records
// return ErrIdentityNotFound.
type IdentityStore interface {
	FindByEmailInTenant(ctx context.Context, tenantID, email string) (*Principal, error)
	// FindByEmailGlobal ignores tenants, matches case-insensitively and skips
	// soft-deleted principals.
	FindByEmailGlobal(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	// Create assigns ID and timestamps. A duplicate email in the tenant fails
	// with ErrEmailAlreadyUsed.
	Create(ctx context.Context, p *Principal) error
	Save(ctx context.Context, p *Principal) error

	// EnsureRole returns the named role, creating it with perms if absent.
	EnsureRole(ctx context.Context, tenantID, name string, perms []string) (*Role, error)
	FindRole(ctx context.Context, tenantID, name string) (*Role, error)
	SetRolePermissions(ctx context.Context, tenantID, name string, perms []string) error
	UserIDsWithRole(ctx context.Context, tenantID, name string) ([]string, error)
}

type TenantDirectory interface {
	FindTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

type Mailer interface {
	SendPasswordReset(ctx context.Context, to *Principal, token string) error
	SendPasswordResetConfirmation(ctx context.Context, to *Principal) error
}

type Notifier interface {
	Welcome(ctx context.Context, p *Principal) error
}

// LockoutPolicy is the failed-login threshold and lock duration.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// IsLocked reports whether the lock window is still open at now.
func (p *Principal) IsLocked(now time.Time) bool {
	return !p.LockedUntil.IsZero() && p.LockedUntil.After(now)
}

// RecordFailedLogin counts a failed password attempt and opens the lock window
// once the threshold is reached. It reports whether the account is now locked.
func (p *Principal) RecordFailedLogin(now time.Time, policy LockoutPolicy) bool {
	if !p.LockedUntil.IsZero() && !p.LockedUntil.After(now) {
		p.ClearLockout()
	}
	p.FailedLoginAttempts++
	if policy.MaxAttempts > 0 && p.FailedLoginAttempts >= policy.MaxAttempts {
		p.LockedUntil = now.Add(policy.Duration)
		return true
	}
	return false
}

func (p *Principal) ClearLockout() {
	p.FailedLoginAttempts = 0
	p.LockedUntil = time.Time{}
}

func (p *Principal) IsDeleted() bool {
	return p.DeletedAt != nil
}

// IPAllowed checks ip against AllowedIPs, which holds addresses or CIDR
// prefixes. An empty list allows everything.
func (p *Principal) IPAllowed(ip string) bool {
	if len(p.AllowedIPs) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, entry := range p.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		if allowed, err := netip.ParseAddr(entry); err == nil && allowed.Unmap() == addr {
			return true
		}
	}
	return false
}

func (p *Principal) hasRole(name string) bool {
	return slices.Contains(p.Roles, name)
}

// NormalizeEmail trims and lowercases an email for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
