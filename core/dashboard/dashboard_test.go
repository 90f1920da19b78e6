package dashboard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/internal/testapp"
)

// brokenNotes fails the note counts and the health check.
type brokenNotes struct {
	note.Repository
}

func (brokenNotes) CountNotes(context.Context, note.CountFilter, ...core.DBExecutor) (note.Counts, error) {
	return note.Counts{}, errors.New("connection reset")
}

func (brokenNotes) ListDepartments(context.Context, ...core.DBExecutor) ([]note.Department, error) {
	return nil, errors.New("connection reset")
}

func TestService_AdminOverview(t *testing.T) {
	ctx := context.Background()
	app := testapp.New()
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	teacher := app.CreateTeacher(t, admin, "Grace", "grace@example.com", "cse")
	app.CreateStudent(t, "Sam", "sam@example.com")
	pub := app.CreateNote(t, teacher, "cse", "networks", "OSI", true)
	app.CreateNote(t, teacher, "cse", "networks", "TCP", false)
	_, err := app.Deletions.Create(ctx, teacher, pub.PublicID, deletion.NewRequest{Reason: "Outdated"})
	require.NoError(t, err)

	t.Run("healthy", func(t *testing.T) {
		ov := app.Dashboard.AdminOverview(ctx)
		assert.Equal(t, note.Counts{Total: 2, Draft: 1, DeletePending: 1}, ov.Notes)
		assert.Equal(t, dashboard.Activity{Last24h: 2, Last7d: 2, Last30d: 2}, ov.NewNotes)
		assert.Equal(t, 3, ov.Users.Total)
		assert.Equal(t, 1, ov.Users.Teachers)
		assert.Equal(t, 1, ov.PendingDeletions)
		assert.Greater(t, ov.Activity.Last24h, 0)
		assert.Equal(t, ov.Activity.Last24h, ov.Activity.Last30d)
		assert.Equal(t, dashboard.HealthUp, ov.Health)
		assert.False(t, ov.GeneratedAt.IsZero())
	})

	t.Run("degraded", func(t *testing.T) {
		notes := note.NewService(app.Repos.DB, brokenNotes{app.Repos.Notes}, app.Permissions, app.Audit, app.Conf, app.Logger)
		svc := dashboard.NewService(app.Users, notes, app.Deletions, app.Audit, app.Logger)

		ov := svc.AdminOverview(ctx)
		assert.Equal(t, dashboard.Unavailable, ov.Notes.Total)
		assert.Equal(t, dashboard.Unavailable, ov.Notes.Published)
		assert.Equal(t, dashboard.Unavailable, ov.NewNotes.Last7d)
		assert.Equal(t, dashboard.HealthDown, ov.Health)

		// the other groups are unaffected
		assert.Equal(t, 3, ov.Users.Total)
		assert.Equal(t, 1, ov.PendingDeletions)
	})
}

func TestService_TeacherDashboard(t *testing.T) {
	ctx := context.Background()
	app := testapp.New()
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	grace := app.CreateTeacher(t, admin, "Grace", "grace@example.com", "cse")
	alan := app.CreateTeacher(t, admin, "Alan", "alan@example.com", "cse")

	for _, title := range []string{"OSI", "TCP", "UDP", "IP", "DNS", "HTTP"} {
		app.CreateNote(t, grace, "cse", "networks", title, true)
	}
	algo := app.CreateNote(t, grace, "cse", "algorithms", "Sorting", false)
	app.CreateNote(t, alan, "cse", "networks", "Not mine", true)

	notes, _, err := app.Notes.ListByUploader(ctx, grace.ID, note.StatusPublished, core.Paginate{Size: 1})
	require.NoError(t, err)
	_, err = app.Deletions.Create(ctx, grace, notes[0].PublicID, deletion.NewRequest{Reason: "Outdated"})
	require.NoError(t, err)

	d, err := app.Dashboard.TeacherDashboard(ctx, grace, core.Paginate{Size: 10})
	require.NoError(t, err)

	assert.Equal(t, 7, d.Summary.Notes.Total)
	assert.Equal(t, 5, d.Summary.Notes.Published)
	assert.Equal(t, 1, d.Summary.Notes.DeletePending)
	assert.Equal(t, 1, d.Summary.PendingDeletions)

	require.Len(t, d.RecentNotes, 5)
	for _, n := range d.RecentNotes {
		assert.Equal(t, grace.ID, n.UploadedByID)
	}

	assert.Len(t, d.Folders["cse/year1/section-a/networks"], 6)
	require.Len(t, d.Folders["cse/year1/section-a/algorithms"], 1)
	assert.Equal(t, algo.PublicID, d.Folders["cse/year1/section-a/algorithms"][0].PublicID)
	assert.Equal(t, int64(7), d.FoldersPageInfo.TotalElements)

	require.Len(t, d.DeletionRequests, 1)
	assert.Equal(t, notes[0].PublicID, d.DeletionRequests[0].Note.PublicID)

	d, err = app.Dashboard.TeacherDashboard(ctx, alan, core.Paginate{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Summary.Notes.Total)
	assert.Empty(t, d.DeletionRequests)
}

func TestService_TeacherDashboardError(t *testing.T) {
	app := testapp.New()
	admin := app.CreateAdmin(t, "Admin", "admin@example.com")
	grace := app.CreateTeacher(t, admin, "Grace", "grace@example.com", "cse")

	notes := note.NewService(app.Repos.DB, brokenNotes{app.Repos.Notes}, app.Permissions, app.Audit, app.Conf, app.Logger)
	svc := dashboard.NewService(app.Users, notes, app.Deletions, app.Audit, app.Logger)

	_, err := svc.TeacherDashboard(context.Background(), grace, core.Paginate{})
	assert.Error(t, err)
}
