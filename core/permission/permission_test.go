package permission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
	"github.com/trezcool/studentnotes/internal/testapp"
)

func TestFolderPermission(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)

	p := permission.FolderPermission{FolderPath: "cse/year1", CanRead: true, CanManage: true, IsActive: true}
	assert.True(t, p.Covers("cse/year1"))
	assert.True(t, p.Covers("/cse/year1/section-a/"))
	assert.False(t, p.Covers("cse/year10"))
	assert.False(t, p.Covers("cse"))

	assert.True(t, p.Allows(permission.Read))
	assert.False(t, p.Allows(permission.Write))
	assert.True(t, p.Allows(permission.Manage))
	assert.False(t, p.Allows("OWN"))

	assert.True(t, p.Valid(now))
	p.ExpiresAt.SetValid(future)
	assert.True(t, p.Valid(now))
	p.ExpiresAt.SetValid(past)
	assert.False(t, p.Valid(now))
	p.ExpiresAt.Valid = false
	p.IsActive = false
	assert.False(t, p.Valid(now))
}

func TestDepartment(t *testing.T) {
	tests := map[string]string{
		"cse":                     "cse",
		"cse/year1/section-a":     "cse",
		"/ece/year2/":             "ece",
		"":                        "",
		"mech/year1/section-b/x/": "mech",
	}
	for path, want := range tests {
		assert.Equal(t, want, permission.Department(path), path)
	}
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()
	app := testapp.New()
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	teacher := app.CreateTeacher(t, admin, "Grace", "grace@example.com", "cse")
	outsider := app.CreateTeacher(t, admin, "Alan", "alan@example.com", "ece")
	student := app.CreateStudent(t, "Sam", "sam@example.com")

	expired := time.Now().Add(-time.Minute)
	_, err := app.Permissions.Grant(ctx, admin, outsider.ID, user.FolderGrant{FolderPath: "cse/year2", CanRead: true, CanDelete: true})
	require.NoError(t, err)
	_, err = app.Permissions.Grant(ctx, admin, outsider.ID, user.FolderGrant{FolderPath: "cse/year3", CanRead: true, ExpiresAt: &expired})
	require.NoError(t, err)
	_, err = app.Permissions.Grant(ctx, admin, teacher.ID, user.FolderGrant{FolderPath: "cse/year1", CanManage: true})
	require.NoError(t, err)

	tests := []struct {
		name string
		usr  user.User
		kind string
		path string
		want bool
	}{
		{name: "admin reads anything", usr: admin, kind: permission.Read, path: "mech/year1", want: true},
		{name: "admin manages anything", usr: admin, kind: permission.Manage, path: "mech", want: true},
		{name: "member reads its department", usr: teacher, kind: permission.Read, path: "cse/year4", want: true},
		{name: "member writes its department", usr: teacher, kind: permission.Write, path: "cse/year4/section-c", want: true},
		{name: "member cannot delete by default", usr: teacher, kind: permission.Delete, path: "cse/year1"},
		{name: "member manages granted folder", usr: teacher, kind: permission.Manage, path: "cse/year1/section-a", want: true},
		{name: "member does not manage sibling", usr: teacher, kind: permission.Manage, path: "cse/year2"},
		{name: "outsider reads granted folder", usr: outsider, kind: permission.Read, path: "cse/year2/section-a", want: true},
		{name: "outsider deletes granted folder", usr: outsider, kind: permission.Delete, path: "cse/year2", want: true},
		{name: "outsider cannot write outside its department", usr: outsider, kind: permission.Write, path: "cse/year2"},
		{name: "expired grant", usr: outsider, kind: permission.Read, path: "cse/year3"},
		{name: "outsider cannot read ungranted folder", usr: outsider, kind: permission.Read, path: "cse/year1"},
		{name: "student", usr: student, kind: permission.Read, path: "cse/year1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := app.Permissions.Check(ctx, tt.usr, tt.kind, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			err = app.Permissions.Assert(ctx, tt.usr, tt.kind, tt.path)
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.True(t, core.IsForbidden(err))
			}
		})
	}

	_, err = app.Permissions.Check(ctx, teacher, "OWN", "cse")
	assert.Error(t, err)
}

func TestService_GrantRevoke(t *testing.T) {
	ctx := context.Background()
	app := testapp.New()
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	teacher := app.CreateTeacher(t, admin, "Grace", "grace@example.com")

	p, err := app.Permissions.Grant(ctx, admin, teacher.ID, user.FolderGrant{FolderPath: "/cse/year1/", CanRead: true})
	require.NoError(t, err)
	assert.Equal(t, "cse/year1", p.FolderPath)
	assert.Equal(t, admin.ID, p.GrantedByID.Int)

	// granting again replaces the rights in place
	p2, err := app.Permissions.Grant(ctx, admin, teacher.ID, user.FolderGrant{FolderPath: "cse/year1", CanRead: true, CanDelete: true})
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.True(t, p2.CanDelete)

	active, err := app.Permissions.Active(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, app.Permissions.Revoke(ctx, admin, teacher.ID, "cse/year1"))
	require.NoError(t, app.Permissions.Revoke(ctx, admin, teacher.ID, "cse/year1"))
	require.NoError(t, app.Permissions.Revoke(ctx, admin, teacher.ID, "ece"))

	active, err = app.Permissions.Active(ctx, teacher)
	require.NoError(t, err)
	assert.Empty(t, active)

	ok, err := app.Permissions.HasDelete(ctx, teacher, "cse/year1")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, _, err := app.Audit.Query(ctx, audit.QueryFilter{TargetType: audit.TargetFolderPermission}, core.Paginate{})
	require.NoError(t, err)
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	assert.Equal(t, []string{audit.FolderPermissionRevoked, audit.FolderPermissionGranted, audit.FolderPermissionGranted}, actions)
}
