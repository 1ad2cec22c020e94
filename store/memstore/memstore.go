// Package memstore is an in-memory IdentityStore and TenantDirectory for
// tests and local runs. Records are copied in and out, so callers must Save to
// persist changes.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/ids"
)

type roleKey struct {
	tenantID string
	name     string
}

type Store struct {
	mu         sync.RWMutex
	principals map[string]*shopauth.Principal
	roles      map[roleKey]*shopauth.Role
	tenants    map[string]*shopauth.Tenant
	now        func() time.Time
}

func New() *Store {
	return &Store{
		principals: make(map[string]*shopauth.Principal),
		roles:      make(map[roleKey]*shopauth.Role),
		tenants:    make(map[string]*shopauth.Tenant),
		now:        time.Now,
	}
}

func (s *Store) FindByEmailInTenant(_ context.Context, tenantID, email string) (*shopauth.Principal, error) {
	email = shopauth.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.principals {
		if p.TenantID == tenantID && p.Email == email && !p.IsDeleted() {
			return clonePrincipal(p), nil
		}
	}
	return nil, shopauth.ErrIdentityNotFound
}

// FindByEmailGlobal returns the oldest live principal with email in any
// tenant.
func (s *Store) FindByEmailGlobal(_ context.Context, email string) (*shopauth.Principal, error) {
	email = shopauth.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *shopauth.Principal
	for _, p := range s.principals {
		if p.Email != email || p.IsDeleted() {
			continue
		}
		if found == nil || p.ID < found.ID {
			found = p
		}
	}
	if found == nil {
		return nil, shopauth.ErrIdentityNotFound
	}
	return clonePrincipal(found), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*shopauth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, shopauth.ErrIdentityNotFound
	}
	return clonePrincipal(p), nil
}

func (s *Store) Create(_ context.Context, p *shopauth.Principal) error {
	p.Email = shopauth.NormalizeEmail(p.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.principals {
		if existing.TenantID == p.TenantID && existing.Email == p.Email && !existing.IsDeleted() {
			return shopauth.ErrEmailAlreadyUsed
		}
	}
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	s.principals[p.ID] = clonePrincipal(p)
	return nil
}

func (s *Store) Save(_ context.Context, p *shopauth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.principals[p.ID]
	if !ok {
		return shopauth.ErrIdentityNotFound
	}
	p.TenantID = existing.TenantID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()
	s.principals[p.ID] = clonePrincipal(p)
	return nil
}

// SoftDelete marks a principal deleted without removing it.
func (s *Store) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return shopauth.ErrIdentityNotFound
	}
	now := s.now().UTC()
	p.DeletedAt = &now
	return nil
}

func (s *Store) EnsureRole(_ context.Context, tenantID, name string, perms []string) (*shopauth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleKey{tenantID, name}
	if r, ok := s.roles[key]; ok {
		return cloneRole(r), nil
	}
	r := &shopauth.Role{
		ID:          ids.New(),
		TenantID:    tenantID,
		Name:        name,
		Permissions: slices.Clone(perms),
	}
	s.roles[key] = r
	return cloneRole(r), nil
}

func (s *Store) FindRole(_ context.Context, tenantID, name string) (*shopauth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleKey{tenantID, name}]
	if !ok {
		return nil, shopauth.ErrRoleNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) SetRolePermissions(_ context.Context, tenantID, name string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleKey{tenantID, name}]
	if !ok {
		return shopauth.ErrRoleNotFound
	}
	r.Permissions = slices.Clone(perms)
	return nil
}

func (s *Store) UserIDsWithRole(_ context.Context, tenantID, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, p := range s.principals {
		if p.TenantID == tenantID && slices.Contains(p.Roles, name) {
			out = append(out, p.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// PutTenant adds or replaces a tenant.
func (s *Store) PutTenant(t shopauth.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = &t
}

func (s *Store) FindTenant(_ context.Context, id string) (*shopauth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, shopauth.ErrIdentityNotFound
	}
	out := *t
	return &out, nil
}

func (s *Store) ListTenants(context.Context) ([]shopauth.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]shopauth.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clonePrincipal(p *shopauth.Principal) *shopauth.Principal {
	out := *p
	out.AllowedIPs = slices.Clone(p.AllowedIPs)
	out.Permissions = slices.Clone(p.Permissions)
	out.Roles = slices.Clone(p.Roles)
	if p.DeletedAt != nil {
		d := *p.DeletedAt
		out.DeletedAt = &d
	}
	return &out
}

func cloneRole(r *shopauth.Role) *shopauth.Role {
	out := *r
	out.Permissions = slices.Clone(r.Permissions)
	return &out
}
