package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the closed set of principals the clinic API issues.
type Role string

const (
	RoleUser       Role = "USER"
	RoleVeterinary Role = "VETERINARY"
	RoleEmployee   Role = "EMPLOYEE"
	RoleAdmin      Role = "ADMIN"
)

// Roles lists every role in declaration order.
var Roles = []Role{RoleUser, RoleVeterinary, RoleEmployee, RoleAdmin}

// ParseRole maps the wire value (case-insensitive) to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVeterinary, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// LandingPath is where a freshly logged-in principal should be sent.
func (r Role) LandingPath() string {
	switch r {
	case RoleVeterinary:
		return "/vet/dashboard"
	case RoleAdmin:
		return "/admin/dashboard"
	case RoleEmployee:
		return "/employee/dashboard"
	case RoleUser:
		return "/"
	}
	return "/"
}

func (r Role) String() string { return string(r) }

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
