// Package tenancy decides whether a subject may act inside a tenant.
//
// A subject may act in its own tenant. Crossing tenants, or acting with no
// tenant at all, requires both the platform-admin role and the platform
// control permission.
package tenancy

import "slices"

const (
	DefaultPlatformAdminRole = "SUPER_ADMIN"
	DefaultPlatformControl   = "platform:control"
)

// Reasons recorded on a Decision.
const (
	ReasonSameTenant     = "same_tenant"
	ReasonPlatformAdmin  = "platform_admin"
	ReasonCrossTenant    = "cross_tenant"
	ReasonNoTenantScope  = "no_tenant_scope"
	ReasonMissingSubject = "missing_subject"
)

// Context is the tenant a request is addressed to.
type Context struct {
	ID string
}

type Subject struct {
	TenantID    string
	Roles       []string
	Permissions []string
}

type Decision struct {
	Allowed bool
	Reason  string
}

type Guard struct {
	adminRole   string
	controlPerm string
}

func NewGuard(adminRole, controlPermission string) *Guard {
	if adminRole == "" {
		adminRole = DefaultPlatformAdminRole
	}
	if controlPermission == "" {
		controlPermission = DefaultPlatformControl
	}
	return &Guard{adminRole: adminRole, controlPerm: controlPermission}
}

// IsPlatformAdmin requires the role and the permission together.
func (g *Guard) IsPlatformAdmin(s Subject) bool {
	return slices.Contains(s.Roles, g.adminRole) && slices.Contains(s.Permissions, g.controlPerm)
}

// Decide evaluates s against tenant. A nil tenant means a platform-scoped
// request.
func (g *Guard) Decide(s Subject, tenant *Context) Decision {
	if tenant == nil {
		if g.IsPlatformAdmin(s) {
			return Decision{Allowed: true, Reason: ReasonPlatformAdmin}
		}
		return Decision{Reason: ReasonNoTenantScope}
	}
	if s.TenantID != "" && s.TenantID == tenant.ID {
		return Decision{Allowed: true, Reason: ReasonSameTenant}
	}
	if g.IsPlatformAdmin(s) {
		return Decision{Allowed: true, Reason: ReasonPlatformAdmin}
	}
	if s.TenantID == "" {
		return Decision{Reason: ReasonMissingSubject}
	}
	return Decision{Reason: ReasonCrossTenant}
}
