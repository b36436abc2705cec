package core

import (
	"net/http"
	"slices"
	"strings"
)

// Role names granted by the filter itself.
const (
	RoleAuthenticated = "ROLE_AUTHENTICATED"
	RoleAdministrator = "ROLE_ADMINISTRATOR"
)

// DefaultRootUsername is the principal that is granted RoleAdministrator
// without any role lookup.
const DefaultRootUsername = "admin"

// RoleSet is an ordered set of role names. The zero value is empty and
// ready to use.
type RoleSet struct {
	roles []string
}

// NewRoleSet builds a RoleSet from roles, dropping blanks and duplicates.
func NewRoleSet(roles ...string) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s.Add(r)
	}
	return s
}

// Add inserts role unless it is blank or already present. It reports
// whether the set changed.
func (s *RoleSet) Add(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" || s.Contains(role) {
		return false
	}
	s.roles = append(s.roles, role)
	return true
}

func (s RoleSet) Contains(role string) bool { return slices.Contains(s.roles, role) }

func (s RoleSet) Len() int { return len(s.roles) }

// Slice returns the roles in insertion order.
func (s RoleSet) Slice() []string { return slices.Clone(s.roles) }

func (s RoleSet) clone() RoleSet { return RoleSet{roles: slices.Clone(s.roles)} }

// Details describes the request an authentication was created for.
type Details struct {
	RemoteAddr string
	SessionID  string
	RequestURI string
	Header     http.Header
}

// Authentication is the result of a successful pre-authentication. It is
// immutable once created.
type Authentication struct {
	principal string
	roles     RoleSet
	details   Details
}

// NewAuthentication creates an Authentication. roles and details are copied.
func NewAuthentication(principal string, roles RoleSet, details Details) *Authentication {
	details.Header = details.Header.Clone()
	return &Authentication{principal: principal, roles: roles.clone(), details: details}
}

func (a *Authentication) Principal() string { return a.principal }

// Roles returns the granted roles in the order they were added.
func (a *Authentication) Roles() []string { return a.roles.Slice() }

func (a *Authentication) HasRole(role string) bool { return a.roles.Contains(role) }

func (a *Authentication) Details() Details {
	d := a.details
	d.Header = d.Header.Clone()
	return d
}
