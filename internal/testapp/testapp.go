// Package testapp wires every service over test repositories, in memory unless given others.
package testapp

import (
	"context"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/assets"
	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/audit"
	"github.com/trezcool/studentnotes/core/dashboard"
	"github.com/trezcool/studentnotes/core/deletion"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/permission"
	"github.com/trezcool/studentnotes/core/user"
	emailsvc "github.com/trezcool/studentnotes/services/email"
	logsvc "github.com/trezcool/studentnotes/services/logger"
	dummydb "github.com/trezcool/studentnotes/storage/database/dummy"
)

// Password complies with the password policy.
const Password = "Str0ng&Secure!"

// Repositories are the stores the services of an App run on.
type Repositories struct {
	DB          core.TxRunner
	Users       user.Repository
	Notes       note.Repository
	Permissions permission.Repository
	Deletions   deletion.Repository
	Audit       audit.Repository
}

type App struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Repos      Repositories
	Mail       *emailsvc.ConsoleService

	Audit       *audit.Service
	Permissions *permission.Service
	Users       user.Service
	Notes       *note.Service
	Deletions   *deletion.Service
	Dashboard   *dashboard.Service
}

// New wires an App over the in-memory repositories.
func New() *App {
	repos := dummydb.NewRepositories()
	return NewWithRepositories(Repositories{
		DB:          repos.DB,
		Users:       repos.Users,
		Notes:       repos.Notes,
		Permissions: repos.Permissions,
		Deletions:   repos.Deletions,
		Audit:       repos.Audit,
	})
}

// NewWithRepositories wires an App over repos.
func NewWithRepositories(repos Repositories) *App {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(assets.FS, assets.CommonPasswordsFile, logger)
	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, conf, logger)

	mail := emailsvc.NewConsoleServiceMock(conf, logger)
	auditSvc := audit.NewService(repos.Audit, logger)
	perms := permission.NewService(repos.Permissions, auditSvc, logger)
	users := user.NewServiceMock(repos.DB, repos.Users, perms, auditSvc, mail, conf, logger)
	notes := note.NewService(repos.DB, repos.Notes, perms, auditSvc, conf, logger)
	deletions := deletion.NewService(repos.DB, repos.Deletions, notes, perms, auditSvc, mail, logger).SyncMail()

	return &App{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Repos:       repos,
		Mail:        mail,
		Audit:       auditSvc,
		Permissions: perms,
		Users:       users,
		Notes:       notes,
		Deletions:   deletions,
		Dashboard:   dashboard.NewService(users, notes, deletions, auditSvc, logger),
	}
}

// CreateAdmin stores an active admin.
func (app *App) CreateAdmin(t testing.TB, name, email string) user.User {
	t.Helper()
	usr, err := app.Users.Create(context.Background(), user.NewUser{
		Name:     name,
		Email:    email,
		Role:     user.RoleAdmin,
		Password: Password,
	})
	require.NoError(t, err)
	return usr
}

// CreateTeacher stores an active teacher with read & write access to depts, created by admin.
func (app *App) CreateTeacher(t testing.TB, admin user.User, name, email string, depts ...string) user.User {
	t.Helper()
	usr, _, err := app.Users.CreateTeacher(context.Background(), admin, user.NewTeacher{
		Name:        name,
		Email:       email,
		Password:    Password,
		Departments: depts,
	})
	require.NoError(t, err)
	return usr
}

// CreateStudent stores an active student.
func (app *App) CreateStudent(t testing.TB, name, email string) user.User {
	t.Helper()
	usr, err := app.Users.Create(context.Background(), user.NewUser{
		Name:     name,
		Email:    email,
		Role:     user.RoleStudent,
		Password: Password,
	})
	require.NoError(t, err)
	return usr
}

// CreateNote stores a note of usr in dept/year1/section-a/subject.
func (app *App) CreateNote(t testing.TB, usr user.User, dept, subject, title string, publish bool) note.Note {
	t.Helper()
	n, err := app.Notes.Create(context.Background(), usr, note.NewNote{
		Title:              title,
		Department:         dept,
		Year:               "year1",
		Section:            "section-a",
		Subject:            subject,
		Content:            "# " + title + "\n\nSome content.",
		PublishImmediately: publish,
	})
	require.NoError(t, err)
	return n
}

// CreateDepartment stores a department.
func (app *App) CreateDepartment(t testing.TB, admin user.User, name string) note.Department {
	t.Helper()
	d, err := app.Notes.CreateDepartment(context.Background(), admin, note.NewDepartment{Name: name})
	require.NoError(t, err)
	return d
}
