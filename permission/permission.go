package permission

import (
	"errors"
	"sort"
	"strings"
)

var ErrInvalidPermission = errors.New("invalid permission")

// Parse validates and normalizes a "resource:action" string. Surrounding space
// is trimmed and case is lowered.
func Parse(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return "", ErrInvalidPermission
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", ErrInvalidPermission
	}
	return s, nil
}

// RoleGrant is one role held by the user together with its permissions.
type RoleGrant struct {
	Name        string
	Permissions []string
}

// Graph is everything that contributes to a user's effective permissions.
type Graph struct {
	Direct []string
	Roles  []RoleGrant
}

// RoleNames returns the role names in input order.
func (g Graph) RoleNames() []string {
	out := make([]string, 0, len(g.Roles))
	for _, r := range g.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Set is a deduplicated permission set.
type Set map[string]struct{}

// NewSet builds a set from names, skipping empty strings.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Aggregate returns the union of direct grants and every role's permissions.
func Aggregate(g Graph) Set {
	s := NewSet(g.Direct...)
	for _, r := range g.Roles {
		for _, p := range r.Permissions {
			if p != "" {
				s[p] = struct{}{}
			}
		}
	}
	return s
}

func (s Set) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// HasAll is true for an empty argument list.
func (s Set) HasAll(ps ...string) bool {
	for _, p := range ps {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny is false for an empty argument list.
func (s Set) HasAny(ps ...string) bool {
	for _, p := range ps {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
