package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
	"github.com/trezcool/studentnotes/internal/testapp"
	"github.com/trezcool/studentnotes/storage/database"
	sqlxrepos "github.com/trezcool/studentnotes/storage/database/sqlx"
)

// setup wires the services over a freshly migrated in-memory sqlite3 database.
func setup(t *testing.T) *testapp.App {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Database.Engine = database.SQLite
	conf.Database.DSN = "file::memory:"

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	return testapp.NewWithRepositories(testapp.Repositories{
		DB:          database.NewTxRunner(db),
		Users:       sqlxrepos.NewUserRepository(db),
		Notes:       sqlxrepos.NewNoteRepository(db),
		Permissions: sqlxrepos.NewPermissionRepository(db),
		Deletions:   sqlxrepos.NewDeletionRepository(db),
		Audit:       sqlxrepos.NewAuditRepository(db),
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	teacher := app.CreateTeacher(t, admin, "Ada Lovelace", "ada@example.com", "cse", "ece")
	app.CreateStudent(t, "Sam", "sam@example.com")

	t.Run("get", func(t *testing.T) {
		usr, err := app.Users.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, teacher.PublicID, usr.PublicID)
		assert.Equal(t, user.RoleTeacher, usr.Role)
		assert.Equal(t, []string{"cse", "ece"}, usr.AssignedDepartments)
		assert.Equal(t, admin.ID, int(usr.CreatedByID.Int))
		assert.NoError(t, usr.CheckPassword(testapp.Password))

		_, err = app.Users.GetByPublicID(ctx, "nope")
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})

	t.Run("email uniqueness", func(t *testing.T) {
		err := app.Repos.Users.CheckEmailUniqueness(ctx, teacher.Email, nil)
		assert.Equal(t, user.ErrEmailExists, err)
		assert.NoError(t, app.Repos.Users.CheckEmailUniqueness(ctx, teacher.Email, []user.User{teacher}))
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name   string
			filter user.QueryFilter
			want   int
		}{
			{name: "all", want: 3},
			{name: "role", filter: user.QueryFilter{Role: user.RoleTeacher}, want: 1},
			{name: "search", filter: user.QueryFilter{Search: "LOVE"}, want: 1},
			{name: "search with wildcard", filter: user.QueryFilter{Search: "%"}, want: 0},
			{name: "department", filter: user.QueryFilter{Department: "ece"}, want: 1},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				users, info, err := app.Users.Query(ctx, tt.filter, nil, core.Paginate{})
				require.NoError(t, err)
				assert.Len(t, users, tt.want)
				assert.Equal(t, int64(tt.want), info.TotalElements)
			})
		}
	})

	t.Run("permissions", func(t *testing.T) {
		perms, err := app.Permissions.Active(ctx, teacher)
		require.NoError(t, err)
		assert.Len(t, perms, 2)

		ok, err := app.Permissions.HasWrite(ctx, teacher, "cse/year1/section-a/networks")
		require.NoError(t, err)
		assert.True(t, ok)

		usr, err := app.Users.UpdatePermissions(ctx, admin, teacher.PublicID, user.UpdatePermissions{Departments: []string{"cse"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"cse"}, usr.AssignedDepartments)
	})

	t.Run("disable", func(t *testing.T) {
		usr, err := app.Users.Disable(ctx, admin, teacher.PublicID, "left")
		require.NoError(t, err)
		assert.Equal(t, user.StatusDisabled, usr.Status)
		assert.Equal(t, "left", usr.DisableReason.String)
		assert.True(t, usr.DisabledAt.Valid)

		stats, err := app.Users.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, user.Stats{Total: 3, Admins: 1, Teachers: 1, Students: 1, Active: 2, Disabled: 1}, stats)
	})
}

func TestNoteRepository(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	app.CreateDepartment(t, admin, "cse")
	teacher := app.CreateTeacher(t, admin, "Ada", "ada@example.com", "cse")
	n := app.CreateNote(t, teacher, "cse", "networks", "TCP", false)

	got, err := app.Notes.GetByPublicID(ctx, n.PublicID)
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "cse/year1/section-a/networks", got.FolderPath())
	assert.Equal(t, note.StatusDraft, got.Status)
	assert.Equal(t, teacher.Email, got.UploadedByEmail)
	assert.Equal(t, "# TCP\n\nSome content.", got.Content)

	content := "# TCP/IP"
	updated, err := app.Notes.Update(ctx, teacher, n.PublicID, note.UpdateNote{
		Title: "TCP/IP", Content: &content, ChangeSummary: "rename", ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CurrentVersion)
	assert.Equal(t, "TCP/IP", updated.Title)

	_, err = app.Notes.Update(ctx, teacher, n.PublicID, note.UpdateNote{Title: "UDP", ChangeSummary: "again", ExpectedVersion: 1})
	assert.Equal(t, note.ErrStaleVersion, errors.Cause(err))

	t.Run("versions", func(t *testing.T) {
		versions, err := app.Notes.Versions(ctx, updated)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Number)
		assert.True(t, versions[0].IsCurrent)
		assert.Equal(t, teacher.Email, versions[0].CreatedByEmail)
		assert.Equal(t, "rename", versions[0].ChangeSummary)
		assert.False(t, versions[1].IsCurrent)

		v, err := app.Notes.Version(ctx, updated, 1)
		require.NoError(t, err)
		assert.Equal(t, "TCP", v.Title)
		assert.Equal(t, "# TCP\n\nSome content.", v.Content)

		_, err = app.Notes.Version(ctx, updated, 9)
		assert.Equal(t, note.ErrVersionNotFound, errors.Cause(err))
	})

	t.Run("update by a manager", func(t *testing.T) {
		manager := app.CreateTeacher(t, admin, "Grace", "grace@example.com", "cse")
		_, err := app.Users.UpdatePermissions(ctx, admin, manager.PublicID, user.UpdatePermissions{
			Grants: []user.FolderGrant{{FolderPath: "cse", CanRead: true, CanWrite: true, CanManage: true}},
		})
		require.NoError(t, err)

		managed, err := app.Notes.Update(ctx, manager, n.PublicID, note.UpdateNote{Title: "TCP/IP suite", ChangeSummary: "title"})
		require.NoError(t, err)
		assert.Equal(t, 3, managed.CurrentVersion)
		assert.Equal(t, teacher.ID, managed.UploadedByID)
	})

	t.Run("publish and react", func(t *testing.T) {
		published, err := app.Notes.Publish(ctx, teacher, n.PublicID)
		require.NoError(t, err)
		assert.Equal(t, note.StatusPublished, published.Status)
		assert.True(t, published.PublishedAt.Valid)

		likes, err := app.Notes.Like(ctx, published.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, likes)

		draft := app.CreateNote(t, teacher, "cse", "compilers", "Parsing", false)
		_, err = app.Notes.Like(ctx, draft.ID)
		assert.Equal(t, note.ErrNotFound, errors.Cause(err))
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name   string
			filter note.QueryFilter
			want   int
		}{
			{name: "all", want: 2},
			{name: "search", filter: note.QueryFilter{Search: "tcp"}, want: 1},
			{name: "status", filter: note.QueryFilter{Status: note.StatusDraft}, want: 1},
			{name: "folder", filter: note.QueryFilter{Department: "cse", Subject: "compilers"}, want: 1},
			{name: "uploader", filter: note.QueryFilter{UploaderID: admin.ID}, want: 0},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				notes, info, err := app.Notes.Query(ctx, tt.filter, nil, core.Paginate{})
				require.NoError(t, err)
				assert.Len(t, notes, tt.want)
				assert.Equal(t, int64(tt.want), info.TotalElements)
			})
		}

		counts, err := app.Notes.Counts(ctx, note.CountFilter{UploaderID: teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, note.Counts{Total: 2, Draft: 1, Published: 1}, counts)
	})

	t.Run("departments", func(t *testing.T) {
		depts, err := app.Notes.Departments(ctx)
		require.NoError(t, err)
		require.Len(t, depts, 1)
		assert.Equal(t, "cse", depts[0].Name)

		require.NoError(t, app.Notes.DeleteDepartment(ctx, admin, "cse"))
		assert.Equal(t, note.ErrDepartmentNotFound, errors.Cause(app.Notes.DeleteDepartment(ctx, admin, "cse")))
	})
}

func TestDeletionRepository(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	teacher := app.CreateTeacher(t, admin, "Ada", "ada@example.com", "cse")
	n := app.CreateNote(t, teacher, "cse", "networks", "TCP", true)

	r, err := app.Deletions.Create(ctx, teacher, n.PublicID, deletion.NewRequest{Reason: "outdated"})
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusPending, r.Status)
	assert.Equal(t, n.PublicID, r.Note.PublicID)
	assert.Equal(t, note.StatusDeletePending, r.Note.Status)
	assert.Equal(t, teacher.Email, r.RequestedBy.Email)

	_, err = app.Deletions.Create(ctx, teacher, n.PublicID, deletion.NewRequest{Reason: "again"})
	assert.True(t, core.IsConflict(err))

	reqs, info, err := app.Deletions.Query(ctx, deletion.QueryFilter{Status: deletion.StatusPending, TeacherID: teacher.ID}, core.Paginate{})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(1), info.TotalElements)

	approved, err := app.Deletions.Approve(ctx, admin, r.PublicID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, deletion.StatusApproved, approved.Status)
	assert.Equal(t, admin.Name, approved.ResolvedByName.String)
	assert.Equal(t, note.StatusDeleted, approved.Note.Status)

	replayed, err := app.Deletions.Approve(ctx, admin, r.PublicID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, approved.ResolvedAt.Time.Unix(), replayed.ResolvedAt.Time.Unix())

	_, err = app.Deletions.Approve(ctx, admin, r.PublicID, "key-2")
	assert.True(t, core.IsBusinessRule(err))

	pending, err := app.Deletions.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	got, err := app.Notes.GetByPublicID(ctx, n.PublicID)
	require.NoError(t, err)
	assert.Equal(t, note.StatusDeleted, got.Status)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	app.CreateDepartment(t, admin, "cse")
	app.CreateDepartment(t, admin, "ece")

	entries, info, err := app.Audit.Query(ctx, audit.QueryFilter{Action: audit.DepartmentCreated}, core.Paginate{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), info.TotalElements)
	assert.Equal(t, admin.Email, entries[0].ActorEmail)
	assert.Equal(t, audit.TargetDepartment, entries[0].TargetType)
	assert.Contains(t, entries[0].Description, "ece") // newest first

	entries, _, err = app.Audit.Query(ctx, audit.QueryFilter{ActorID: admin.ID + 1}, core.Paginate{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, all, err := app.Audit.Query(ctx, audit.QueryFilter{}, core.Paginate{})
	require.NoError(t, err)
	count, err := app.Audit.CountSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int(all.TotalElements), count)
	assert.GreaterOrEqual(t, count, 2)

	count, err = app.Audit.CountSince(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, count)
}
