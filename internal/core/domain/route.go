package domain

import "strings"

// Requirement is what a route demands of the current identity. The zero
// value means any authenticated identity.
type Requirement struct {
	Role Role
}

// AnyAuthenticated admits every logged-in identity regardless of role.
var AnyAuthenticated = Requirement{}

// RequireRole admits only identities holding role.
func RequireRole(role Role) Requirement { return Requirement{Role: role} }

// Admits reports whether id satisfies the requirement. A nil identity never does.
func (r Requirement) Admits(id *Identity) bool {
	if id == nil {
		return false
	}
	return r.Role == "" || id.Role == r.Role
}

func (r Requirement) String() string {
	if r.Role == "" {
		return "any"
	}
	return string(r.Role)
}

// RouteRule pairs a path prefix with the requirement that guards it.
// Public routes are simply absent from the table.
type RouteRule struct {
	Prefix      string
	Requirement Requirement
}

// RouteTable is evaluated longest-prefix first.
type RouteTable []RouteRule

// Lookup returns the requirement guarding path and whether the path is guarded.
func (t RouteTable) Lookup(path string) (Requirement, bool) {
	best := -1
	for i, rule := range t {
		if !UnderPrefix(path, rule.Prefix) {
			continue
		}
		if best < 0 || len(rule.Prefix) > len(t[best].Prefix) {
			best = i
		}
	}
	if best < 0 {
		return Requirement{}, false
	}
	return t[best].Requirement, true
}

// UnderPrefix reports whether path equals prefix or lies beneath it on a
// segment boundary ("/admin" matches "/admin/x" but not "/administer").
func UnderPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// PortalRoutes is the clinic portal's navigation table.
var PortalRoutes = RouteTable{
	{Prefix: "/perfil", Requirement: RequireRole(RoleUser)},
	{Prefix: "/pets", Requirement: RequireRole(RoleUser)},
	{Prefix: "/add-pet", Requirement: RequireRole(RoleUser)},
	{Prefix: "/pets-details", Requirement: RequireRole(RoleUser)},
	{Prefix: "/consultas", Requirement: RequireRole(RoleUser)},
	{Prefix: "/detalhes-consulta", Requirement: RequireRole(RoleUser)},
	{Prefix: "/detalhes-consulta-concluida", Requirement: RequireRole(RoleUser)},
	{Prefix: "/agendar-consulta", Requirement: RequireRole(RoleUser)},
	{Prefix: "/conversations", Requirement: RequireRole(RoleUser)},
	{Prefix: "/chat", Requirement: RequireRole(RoleUser)},

	{Prefix: "/vet", Requirement: RequireRole(RoleVeterinary)},
	{Prefix: "/admin", Requirement: RequireRole(RoleAdmin)},
	{Prefix: "/employee", Requirement: RequireRole(RoleEmployee)},
}
