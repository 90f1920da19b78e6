package main

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
	"github.com/trezcool/studentnotes/internal/testapp"
	"github.com/trezcool/studentnotes/storage/static"
)

type cliEnv struct {
	*testapp.App
	cli     *commandLine
	out     *bytes.Buffer
	content afero.Fs
}

func setup(t *testing.T) *cliEnv {
	t.Helper()
	app := testapp.New()
	content := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(content, "pages/cse/year1/section-a/networks/osi.md", []byte("---\ntitle: OSI Model\n---\n# OSI"), 0o644))
	require.NoError(t, afero.WriteFile(content, "pages/cse/year1/section-a/networks/lab.jsx", []byte("export default Lab"), 0o644))

	out := new(bytes.Buffer)
	return &cliEnv{
		App: app,
		cli: &commandLine{
			engine:   "sqlite3",
			validate: app.Validate,
			users:    app.Users,
			notes:    app.Notes,
			static:   static.NewLoader(content, "", app.Logger),
			logger:   app.Logger,
			out:      out,
		},
		out:     out,
		content: content,
	}
}

func mockPassword(t *testing.T, pwd string) {
	t.Helper()
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (env *cliEnv) runTests(t *testing.T, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := env.cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrStr)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_root(t *testing.T) {
	env := setup(t)
	env.runTests(t, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol"`},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	var got []string
	orig := gooseRunFunc
	gooseRunFunc = func(db *sql.DB, engine, command string, args ...string) error {
		got = append([]string{engine, command}, args...)
		return nil
	}
	defer func() { gooseRunFunc = orig }()

	env.runTests(t, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
	})

	tests := []struct {
		args []string
		want []string
	}{
		{args: []string{"up"}, want: []string{"sqlite3", "up"}},
		{args: []string{"up-to", "2"}, want: []string{"sqlite3", "up-to", "2"}},
		{args: []string{"create", "course", "sql"}, want: []string{"sqlite3", "create", "course", "sql"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got = nil
			require.NoError(t, env.cli.run(append([]string{"admin", "migrate"}, tt.args...)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.runTests(t, []cliTest{
		{name: "missing flags", args: []string{"adduser"}, pwd: testapp.Password, wantErrStr: `required flag(s) "email", "name" not set`},
		{name: "no password", args: []string{"adduser", "--email", "root@example.com", "--name", "Root"}, wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "--email", "root@example.com", "--name", "Root"}, pwd: "12345678", wantErrStr: "password"},
		{name: "admin", args: []string{"adduser", "--email", "ROOT@example.com", "--name", "Root", "--admin"}, pwd: testapp.Password},
		{name: "student", args: []string{"adduser", "--email", "sam@example.com", "--name", "Sam"}, pwd: testapp.Password},
		{name: "duplicate", args: []string{"adduser", "--email", "root@example.com", "--name", "Root"}, pwd: testapp.Password, wantErrStr: "email"},
	})

	admin, err := env.Users.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, admin.Role)
	assert.NoError(t, admin.CheckPassword(testapp.Password))

	student, err := env.Users.GetByEmail(ctx, "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, student.Role)
	assert.Contains(t, env.out.String(), "created ROLE_ADMIN root@example.com")
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := env.CreateStudent(t, "Sam", "sam@example.com")
	const newPwd = "An0ther&Secret!"

	env.runTests(t, []cliTest{
		{name: "missing email", args: []string{"resetpassword"}, pwd: newPwd, wantErrStr: `required flag(s) "email" not set`},
		{name: "no password", args: []string{"resetpassword", "--email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "nobody@example.com"}, pwd: newPwd, wantErr: user.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "--email", usr.Email}, pwd: "password", wantErrStr: "password"},
		{name: "reset", args: []string{"resetpassword", "--email", "SAM@example.com"}, pwd: newPwd},
	})

	refreshed, err := env.Users.GetByEmail(ctx, usr.Email)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(usr.PasswordHash, refreshed.PasswordHash))
	assert.NoError(t, refreshed.CheckPassword(newPwd))
}

func Test_commandLine_createTeacher(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	admin := env.CreateAdmin(t, "Admin", "admin@example.com")
	env.CreateStudent(t, "Sam", "sam@example.com")

	env.runTests(t, []cliTest{
		{name: "missing admin", args: []string{"createteacher", "--email", "ada@example.com", "--name", "Ada"}, wantErrStr: `required flag(s) "by" not set`},
		{name: "not an admin", args: []string{"createteacher", "--email", "ada@example.com", "--name", "Ada", "--by", "sam@example.com"}, wantErrStr: "is not an active admin"},
		{name: "invalid department", args: []string{"createteacher", "--email", "ada@example.com", "--name", "Ada", "--dept", "c s e", "--by", admin.Email}, wantErrStr: "invalid input"},
		{name: "create", args: []string{"createteacher", "--email", "ada@example.com", "--name", "Ada", "--dept", "cse,ece", "--by", admin.Email}},
	})

	teacher, err := env.Users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, teacher.Role)
	assert.Equal(t, []string{"cse", "ece"}, teacher.AssignedDepartments)
	assert.Contains(t, env.out.String(), "password: ")
}

func Test_commandLine_importNotes(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	admin := env.CreateAdmin(t, "Admin", "admin@example.com")

	require.NoError(t, env.cli.run([]string{"admin", "importnotes", "--by", admin.Email}))
	assert.Contains(t, env.out.String(), "imported 1 notes, skipped 1")

	notes, _, err := env.Notes.Query(ctx, note.QueryFilter{}, nil, core.Paginate{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "OSI Model", notes[0].Title)
	assert.Equal(t, "cse/year1/section-a/networks", notes[0].FolderPath())
	assert.Equal(t, note.StatusPublished, notes[0].Status)

	// a second import finds the stored note
	env.out.Reset()
	require.NoError(t, env.cli.run([]string{"admin", "importnotes", "--by", admin.Email}))
	assert.Contains(t, env.out.String(), "imported 0 notes, skipped 2")
}

func Test_commandLine_tree(t *testing.T) {
	env := setup(t)
	admin := env.CreateAdmin(t, "Admin", "admin@example.com")
	env.CreateNote(t, admin, "ece", "circuits", "Ohm", true)

	require.NoError(t, env.cli.run([]string{"admin", "tree"}))
	out := env.out.String()
	assert.Contains(t, out, "mode: dynamic, departments: 2, notes: 3")
	assert.Contains(t, out, "/cse/year1/section-a/networks/osi")
	assert.Contains(t, out, "OSI Model")
	assert.Contains(t, out, "/cse/year1/section-a/networks/lab")
	assert.Contains(t, out, "Ohm")

	t.Run("folder", func(t *testing.T) {
		env.out.Reset()
		require.NoError(t, env.cli.run([]string{"admin", "tree", "/cse/year1/section-a"}))
		out := env.out.String()
		assert.Contains(t, out, "/cse/year1/section-a/networks/osi")
		assert.NotContains(t, out, "Ohm")
	})

	t.Run("single note", func(t *testing.T) {
		env.out.Reset()
		require.NoError(t, env.cli.run([]string{"admin", "tree", "cse/year1/section-a/networks/lab"}))
		out := env.out.String()
		assert.Contains(t, out, "/cse/year1/section-a/networks/lab")
		assert.NotContains(t, out, "OSI Model")
	})

	t.Run("unknown folder", func(t *testing.T) {
		err := env.cli.run([]string{"admin", "tree", "mech"})
		assert.EqualError(t, err, "no content at /mech")
	})
}
