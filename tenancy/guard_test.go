package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	g := NewGuard("", "")
	admin := []string{DefaultPlatformAdminRole}
	control := []string{DefaultPlatformControl}

	tests := []struct {
		name    string
		subject Subject
		tenant  *Context
		allowed bool
		reason  string
	}{
		{"same tenant", Subject{TenantID: "T1"}, &Context{ID: "T1"}, true, ReasonSameTenant},
		{"cross tenant denied", Subject{TenantID: "T1"}, &Context{ID: "T2"}, false, ReasonCrossTenant},
		{"platform admin crosses", Subject{TenantID: "T1", Roles: admin, Permissions: control}, &Context{ID: "T2"}, true, ReasonPlatformAdmin},
		{"role without permission", Subject{TenantID: "T1", Roles: admin}, &Context{ID: "T2"}, false, ReasonCrossTenant},
		{"permission without role", Subject{TenantID: "T1", Permissions: control}, &Context{ID: "T2"}, false, ReasonCrossTenant},
		{"no tenant regular user", Subject{TenantID: "T1"}, nil, false, ReasonNoTenantScope},
		{"no tenant platform admin", Subject{TenantID: "T1", Roles: admin, Permissions: control}, nil, true, ReasonPlatformAdmin},
		{"subject without tenant", Subject{}, &Context{ID: "T1"}, false, ReasonMissingSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.Decide(tt.subject, tt.tenant)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestCustomAdminNames(t *testing.T) {
	g := NewGuard("ROOT", "tenants:any")
	s := Subject{TenantID: "T1", Roles: []string{"ROOT"}, Permissions: []string{"tenants:any"}}
	assert.True(t, g.Decide(s, &Context{ID: "T9"}).Allowed)

	s.Roles = []string{DefaultPlatformAdminRole}
	s.Permissions = []string{DefaultPlatformControl}
	assert.False(t, g.Decide(s, &Context{ID: "T9"}).Allowed)
}
