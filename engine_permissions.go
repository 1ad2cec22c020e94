package shopauth

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/permission"
	"github.com/MrEthical07/shopauth/tenancy"
)

// loadPermissionGraph reads userID's direct grants and role grants. Roles that
// no longer exist are skipped.
func (e *Engine) loadPermissionGraph(ctx context.Context, userID string) (permission.Graph, error) {
	p, err := e.identities.FindByID(ctx, userID)
	if err != nil {
		return permission.Graph{}, err
	}
	g := permission.Graph{Direct: p.Permissions}
	for _, name := range p.Roles {
		role, err := e.identities.FindRole(ctx, p.TenantID, name)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrRoleNotFound) {
				e.logger.Warn("principal references missing role",
					zap.String("user_id", p.ID),
					zap.String("role", name),
				)
				continue
			}
			return permission.Graph{}, err
		}
		g.Roles = append(g.Roles, permission.RoleGrant{Name: role.Name, Permissions: role.Permissions})
	}
	return g, nil
}

// GetEffectivePermissions returns the sorted union of userID's direct and
// role permissions, served from the cache when warm.
func (e *Engine) GetEffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	set, err := e.effective(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func (e *Engine) HasPermission(ctx context.Context, userID, perm string) (bool, error) {
	set, err := e.effective(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// HasAllPermissions is true for an empty perms list.
func (e *Engine) HasAllPermissions(ctx context.Context, userID string, perms ...string) (bool, error) {
	set, err := e.effective(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAll(perms...), nil
}

// HasAnyPermission is false for an empty perms list.
func (e *Engine) HasAnyPermission(ctx context.Context, userID string, perms ...string) (bool, error) {
	set, err := e.effective(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasAny(perms...), nil
}

func (e *Engine) effective(ctx context.Context, userID string) (permission.Set, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	set, err := e.permissions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError(err)
	}
	return set, nil
}

// AssignRole adds an existing role of the user's tenant to userID.
func (e *Engine) AssignRole(ctx context.Context, userID, roleName string) error {
	return e.mutatePrincipal(ctx, userID, func(p *Principal) (bool, error) {
		role, err := e.identities.FindRole(ctx, p.TenantID, roleName)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrRoleNotFound) {
				return false, ErrRoleNotFound
			}
			return false, storeError(err)
		}
		if p.hasRole(role.Name) {
			return false, nil
		}
		p.Roles = append(p.Roles, role.Name)
		return true, nil
	})
}

func (e *Engine) RemoveRole(ctx context.Context, userID, roleName string) error {
	return e.mutatePrincipal(ctx, userID, func(p *Principal) (bool, error) {
		if !p.hasRole(roleName) {
			return false, nil
		}
		p.Roles = slices.DeleteFunc(slices.Clone(p.Roles), func(r string) bool { return r == roleName })
		return true, nil
	})
}

// GrantPermission adds a direct permission to userID.
func (e *Engine) GrantPermission(ctx context.Context, userID, perm string) error {
	name, err := permission.Parse(perm)
	if err != nil {
		return ErrInvalidPermission
	}
	return e.mutatePrincipal(ctx, userID, func(p *Principal) (bool, error) {
		if slices.Contains(p.Permissions, name) {
			return false, nil
		}
		p.Permissions = append(p.Permissions, name)
		return true, nil
	})
}

func (e *Engine) RevokePermission(ctx context.Context, userID, perm string) error {
	name, err := permission.Parse(perm)
	if err != nil {
		return ErrInvalidPermission
	}
	return e.mutatePrincipal(ctx, userID, func(p *Principal) (bool, error) {
		if !slices.Contains(p.Permissions, name) {
			return false, nil
		}
		p.Permissions = slices.DeleteFunc(slices.Clone(p.Permissions), func(s string) bool { return s == name })
		return true, nil
	})
}

// mutatePrincipal loads userID, applies fn and, when fn reports a change,
// saves and drops the cached permission set.
func (e *Engine) mutatePrincipal(ctx context.Context, userID string, fn func(*Principal) (bool, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	p, err := e.findActive(ctx, userID)
	if err != nil {
		return err
	}
	changed, err := fn(p)
	if err != nil || !changed {
		return err
	}
	if err := e.identities.Save(ctx, p); err != nil {
		return storeError(err)
	}
	e.invalidate(ctx, p.TenantID, p.ID)
	return nil
}

// SetRolePermissions replaces a role's permission set and drops the cached
// sets of every member. Tokens already issued keep their snapshot until the
// next refresh.
func (e *Engine) SetRolePermissions(ctx context.Context, tenantID, roleName string, perms []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	names := make([]string, 0, len(perms))
	for _, perm := range perms {
		name, err := permission.Parse(perm)
		if err != nil {
			return ErrInvalidPermission
		}
		names = append(names, name)
	}
	names = permission.NewSet(names...).Sorted()

	if err := e.identities.SetRolePermissions(ctx, tenantID, roleName, names); err != nil {
		if errors.Is(err, ErrIdentityNotFound) || errors.Is(err, ErrRoleNotFound) {
			return ErrRoleNotFound
		}
		return storeError(err)
	}
	members, err := e.identities.UserIDsWithRole(ctx, tenantID, roleName)
	if err != nil {
		return storeError(err)
	}
	e.invalidate(ctx, tenantID, members...)
	return nil
}

func (e *Engine) invalidate(ctx context.Context, tenantID string, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	if err := e.permissions.Invalidate(ctx, userIDs...); err != nil {
		e.logger.Error("permission cache invalidation failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
	for _, id := range userIDs {
		e.emitAudit(ctx, auditEventPermissionsChanged, true, id, tenantID, "", nil, nil)
	}
}

// ListTenants lists every tenant. Only platform admins may call it.
func (e *Engine) ListTenants(ctx context.Context, s *Session) ([]Tenant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.tenants == nil {
		return nil, ErrEngineNotReady
	}
	if s == nil {
		return nil, ErrTenantAccessDenied
	}
	decision := e.guard.Decide(tenancy.Subject{
		TenantID:    s.TenantID,
		Roles:       s.Roles,
		Permissions: s.Permissions,
	}, nil)
	if !decision.Allowed {
		e.emitAudit(ctx, auditEventTenantDenied, false, s.UserID, s.TenantID, s.SessionID, ErrTenantAccessDenied, func() map[string]string {
			return map[string]string{"reason": decision.Reason}
		})
		return nil, ErrTenantAccessDenied
	}
	tenants, err := e.tenants.ListTenants(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return tenants, nil
}

// ResolveTenant looks up a tenant by id for request scoping.
func (e *Engine) ResolveTenant(ctx context.Context, id string) (*Tenant, error) {
	if e == nil || e.tenants == nil {
		return nil, ErrEngineNotReady
	}
	t, err := e.tenants.FindTenant(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrTenantAccessDenied
		}
		return nil, storeError(err)
	}
	return t, nil
}
