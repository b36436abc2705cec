package rolesource

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauth2preauth/go-oauth2-filter/config"
	"github.com/oauth2preauth/go-oauth2-filter/core"
	"github.com/oauth2preauth/go-oauth2-filter/usergroup"
)

type failingRoles struct{}

func (failingRoles) RolesForUser(context.Context, string) ([]string, error) {
	return nil, errors.New("connection reset")
}

func (failingRoles) RolesForGroup(context.Context, string) ([]string, error) {
	return nil, errors.New("connection reset")
}

func newDirectory() *usergroup.Memory {
	m := usergroup.NewMemory()
	m.PutUser(usergroup.User{Username: "alice", Enabled: true, Groups: []string{"editors", "viewers"}})
	m.GrantUserRole("alice", "ROLE_AUTHOR")
	m.GrantGroupRole("editors", "ROLE_EDITOR")
	m.GrantGroupRole("viewers", "ROLE_VIEWER")
	return m
}

func TestStatic(t *testing.T) {
	roles := []string{"ROLE_A"}
	r := Static(roles...)
	roles[0] = "changed"

	got, err := r.ResolveRoles(context.Background(), "anyone", core.Details{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_A"}, got)

	got[0] = "mutated"
	again, _ := r.ResolveRoles(context.Background(), "anyone", core.Details{})
	assert.Equal(t, []string{"ROLE_A"}, again)
}

func TestUserGroup(t *testing.T) {
	dir := newDirectory()
	r := UserGroup(dir, dir)

	t.Run("user and group roles", func(t *testing.T) {
		got, err := r.ResolveRoles(context.Background(), "alice", core.Details{})
		require.NoError(t, err)
		assert.Equal(t, []string{"ROLE_AUTHOR", "ROLE_EDITOR", "ROLE_VIEWER"}, got)
	})

	t.Run("unknown user", func(t *testing.T) {
		got, err := r.ResolveRoles(context.Background(), "bob", core.Details{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("role service failure", func(t *testing.T) {
		_, err := UserGroup(dir, failingRoles{}).ResolveRoles(context.Background(), "alice", core.Details{})
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestRoleService(t *testing.T) {
	dir := newDirectory()

	got, err := RoleService(dir).ResolveRoles(context.Background(), "alice", core.Details{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_AUTHOR"}, got)

	_, err = RoleService(failingRoles{}).ResolveRoles(context.Background(), "alice", core.Details{})
	assert.ErrorContains(t, err, `roles of user "alice"`)
}

func TestHeader(t *testing.T) {
	h := http.Header{}
	h.Add("X-Roles", "ROLE_A, ROLE_B")
	h.Add("X-Roles", ",ROLE_C")

	got, err := Header("X-Roles").ResolveRoles(context.Background(), "alice", core.Details{Header: h})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_A", "ROLE_B", "ROLE_C"}, got)

	got, err = Header("X-Roles").ResolveRoles(context.Background(), "alice", core.Details{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFromConfig(t *testing.T) {
	dir := newDirectory()
	reg := usergroup.NewRegistry()
	reg.RegisterUserGroupService("default", dir)
	reg.RegisterRoleService("default", dir)

	tests := []struct {
		name     string
		cfg      config.FilterConfig
		registry usergroup.Registry
		want     []string
		wantErr  string
	}{
		{
			name: "static",
			cfg:  config.FilterConfig{RoleSource: config.RoleSourceStatic, StaticRoles: []string{"ROLE_S"}},
			want: []string{"ROLE_S"},
		},
		{
			name:     "user group service",
			cfg:      config.FilterConfig{RoleSource: config.RoleSourceUserGroupService, UserGroupServiceName: "default"},
			registry: reg,
			want:     []string{"ROLE_AUTHOR", "ROLE_EDITOR", "ROLE_VIEWER"},
		},
		{
			name:     "role service",
			cfg:      config.FilterConfig{RoleSource: config.RoleSourceRoleService, RoleServiceName: "default"},
			registry: reg,
			want:     []string{"ROLE_AUTHOR"},
		},
		{
			name:     "unknown service name",
			cfg:      config.FilterConfig{RoleSource: config.RoleSourceUserGroupService, UserGroupServiceName: "ldap"},
			registry: reg,
			wantErr:  "service not found",
		},
		{
			name:    "no registry",
			cfg:     config.FilterConfig{RoleSource: config.RoleSourceRoleService, RoleServiceName: "default"},
			wantErr: "needs a service registry",
		},
		{
			name:    "unknown source",
			cfg:     config.FilterConfig{RoleSource: "Ldap"},
			wantErr: `unknown role source "Ldap"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := FromConfig(&tc.cfg, tc.registry)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := r.ResolveRoles(context.Background(), "alice", core.Details{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
