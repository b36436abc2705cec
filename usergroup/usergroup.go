// Package usergroup defines the user, group and role lookups the filter
// consults after a principal has been resolved: the enabled flag of a user
// and the roles granted to a user directly or through its groups.
package usergroup

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrServiceNotFound is returned by a Registry when no service is registered
// under the requested name.
var ErrServiceNotFound = errors.New("usergroup: service not found")

// User is a user record as seen by the filter.
type User struct {
	Username string
	Enabled  bool
	Groups   []string
}

// Service looks up users. GetUserByUsername returns (nil, nil) when the user
// does not exist.
type Service interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// RoleService looks up roles granted to users and groups.
type RoleService interface {
	RolesForUser(ctx context.Context, username string) ([]string, error)
	RolesForGroup(ctx context.Context, group string) ([]string, error)
}

// Registry resolves named services, the way a security manager exposes its
// configured user-group and role services.
type Registry interface {
	UserGroupService(name string) (Service, error)
	RoleService(name string) (RoleService, error)
}

// MapRegistry is a Registry backed by two maps.
type MapRegistry struct {
	mu    sync.RWMutex
	users map[string]Service
	roles map[string]RoleService
}

// NewRegistry returns an empty MapRegistry.
func NewRegistry() *MapRegistry {
	return &MapRegistry{
		users: make(map[string]Service),
		roles: make(map[string]RoleService),
	}
}

// RegisterUserGroupService adds or replaces a user-group service.
func (r *MapRegistry) RegisterUserGroupService(name string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[name] = svc
}

// RegisterRoleService adds or replaces a role service.
func (r *MapRegistry) RegisterRoleService(name string, svc RoleService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[name] = svc
}

// UserGroupService implements Registry.
func (r *MapRegistry) UserGroupService(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.users[name]
	if !ok {
		return nil, fmt.Errorf("%w: user-group service %q", ErrServiceNotFound, name)
	}
	return svc, nil
}

// RoleService implements Registry.
func (r *MapRegistry) RoleService(name string) (RoleService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("%w: role service %q", ErrServiceNotFound, name)
	}
	return svc, nil
}
