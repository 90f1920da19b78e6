package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/studentnotes/core"
	"github.com/trezcool/studentnotes/core/catalog"
	"github.com/trezcool/studentnotes/core/note"
	"github.com/trezcool/studentnotes/core/user"
	"github.com/trezcool/studentnotes/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	engine   string
	validate *validator.Validate
	users    user.Service
	notes    *note.Service
	static   catalog.StaticSource
	logger   core.Logger
	out      io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.Execute()
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Student Notes administration",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.createTeacherCmd(),
		cli.importNotesCmd(),
		cli.treeCmd(),
	)
	return root
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	fmt.Fprintf(cli.out, format, args...)
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	cli.printf("\n")
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}

// admin returns the active admin account with the given email.
func (cli *commandLine) admin(ctx context.Context, email string) (user.User, error) {
	usr, err := cli.users.GetByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return user.User{}, errors.Wrapf(err, "finding admin %s", email)
	}
	if !usr.IsAdmin() || !usr.CanLogin() {
		return user.User{}, errors.Errorf("%s is not an active admin", email)
	}
	return usr, nil
}

// validationError flattens the validation errors of the form fields for the terminal.
func validationError(err error) error {
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msg := "invalid input:"
		for _, fErr := range vErr {
			msg += fmt.Sprintf(" %s (%s)", fErr.Field(), fErr.Tag())
		}
		return errors.New(msg)
	case *core.ValidationError:
		if len(vErr.Fields) == 0 {
			return vErr
		}
		msg := "invalid input:"
		for _, fErr := range vErr.Fields {
			msg += fmt.Sprintf(" %s (%s)", fErr.Field, fErr.Error)
		}
		return errors.New(msg)
	}
	return err
}
