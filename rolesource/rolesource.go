// Package rolesource provides the strategies that map an authenticated
// principal to role names.
package rolesource

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
)

// Static grants the same roles to every principal.
func Static(roles ...string) core.RoleResolver {
	fixed := slices.Clone(roles)
	return core.RoleResolverFunc(func(context.Context, string, core.Details) ([]string, error) {
		return slices.Clone(fixed), nil
	})
}

// RoleService grants the roles roles has for the principal.
func RoleService(roles usergroup.RoleService) core.RoleResolver {
	return core.RoleResolverFunc(func(ctx context.Context, principal string, _ core.Details) ([]string, error) {
		granted, err := roles.RolesForUser(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("roles of user %q: %w", principal, err)
		}
		return granted, nil
	})
}

// UserGroup grants the roles of the principal and of every group the
// principal belongs to in users. Principals unknown to users only receive
// their own roles.
func UserGroup(users usergroup.Service, roles usergroup.RoleService) core.RoleResolver {
	return core.RoleResolverFunc(func(ctx context.Context, principal string, _ core.Details) ([]string, error) {
		granted, err := roles.RolesForUser(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("roles of user %q: %w", principal, err)
		}

		user, err := users.GetUserByUsername(ctx, principal)
		if err != nil {
			return nil, fmt.Errorf("lookup user %q: %w", principal, err)
		}
		if user == nil {
			return granted, nil
		}

		for _, group := range user.Groups {
			groupRoles, err := roles.RolesForGroup(ctx, group)
			if err != nil {
				return nil, fmt.Errorf("roles of group %q: %w", group, err)
			}
			granted = append(granted, groupRoles...)
		}
		return granted, nil
	})
}

// Header reads comma-separated roles from the request header name. Multiple
// header lines are combined.
func Header(name string) core.RoleResolver {
	return core.RoleResolverFunc(func(_ context.Context, _ string, details core.Details) ([]string, error) {
		var roles []string
		for _, line := range details.Header.Values(name) {
			for _, r := range strings.Split(line, ",") {
				if r = strings.TrimSpace(r); r != "" {
					roles = append(roles, r)
				}
			}
		}
		return roles, nil
	})
}

// FromConfig builds the resolver selected by cfg.RoleSource, looking named
// services up in registry. registry may be nil for Static and Header.
func FromConfig(cfg *config.FilterConfig, registry usergroup.Registry) (core.RoleResolver, error) {
	switch cfg.RoleSource {
	case config.RoleSourceStatic:
		return Static(cfg.StaticRoles...), nil

	case config.RoleSourceHeader:
		return Header(cfg.RolesHeader), nil

	case config.RoleSourceRoleService:
		if registry == nil {
			return nil, fmt.Errorf("role source %s needs a service registry", cfg.RoleSource)
		}
		roles, err := registry.RoleService(cfg.RoleServiceName)
		if err != nil {
			return nil, err
		}
		return RoleService(roles), nil

	case config.RoleSourceUserGroupService:
		if registry == nil {
			return nil, fmt.Errorf("role source %s needs a service registry", cfg.RoleSource)
		}
		users, err := registry.UserGroupService(cfg.UserGroupServiceName)
		if err != nil {
			return nil, err
		}
		roleServiceName := cfg.RoleServiceName
		if roleServiceName == "" {
			roleServiceName = cfg.UserGroupServiceName
		}
		roles, err := registry.RoleService(roleServiceName)
		if err != nil {
			return nil, err
		}
		return UserGroup(users, roles), nil

	default:
		return nil, fmt.Errorf("unknown role source %q", cfg.RoleSource)
	}
}
