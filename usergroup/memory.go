package usergroup

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Service and RoleService. It is safe for concurrent
// use and is mostly useful for tests and small static deployments.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]User
	userRoles  map[string][]string
	groupRoles map[string][]string
}

// NewMemory returns an empty Memory service.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]User),
		userRoles:  make(map[string][]string),
		groupRoles: make(map[string][]string),
	}
}

// PutUser adds or replaces a user.
func (m *Memory) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Groups = slices.Clone(u.Groups)
	m.users[u.Username] = u
}

// GrantUserRole grants role to username.
func (m *Memory) GrantUserRole(username, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.userRoles[username], role) {
		m.userRoles[username] = append(m.userRoles[username], role)
	}
}

// GrantGroupRole grants role to every member of group.
func (m *Memory) GrantGroupRole(group, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.groupRoles[group], role) {
		m.groupRoles[group] = append(m.groupRoles[group], role)
	}
}

// GetUserByUsername implements Service.
func (m *Memory) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	u.Groups = slices.Clone(u.Groups)
	return &u, nil
}

// RolesForUser implements RoleService.
func (m *Memory) RolesForUser(_ context.Context, username string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.userRoles[username]), nil
}

// RolesForGroup implements RoleService.
func (m *Memory) RolesForGroup(_ context.Context, group string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.groupRoles[group]), nil
}
