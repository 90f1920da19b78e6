package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/studentnotes/core/user"
)

func (cli *commandLine) createTeacherCmd() *cobra.Command {
	var (
		nt      user.NewTeacher
		adminEm string
	)
	cmd := &cobra.Command{
		Use:   "createteacher",
		Short: "Create a teacher account with a generated password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			admin, err := cli.admin(ctx, adminEm)
			if err != nil {
				return err
			}
			teacher, pwd, err := cli.createTeacher(ctx, admin, nt)
			if err != nil {
				return err
			}
			cli.printf("created teacher %s (%s)\npassword: %s\n", teacher.Email, teacher.PublicID, pwd)
			return nil
		},
	}
	cmd.Flags().StringVar(&nt.Email, "email", "", "The teacher's email")
	cmd.Flags().StringVar(&nt.Name, "name", "", "The teacher's full name")
	cmd.Flags().StringVar(&nt.Phone, "phone", "", "The teacher's phone number")
	cmd.Flags().StringSliceVar(&nt.Departments, "dept", nil, "Assigned department (repeatable)")
	cmd.Flags().StringVar(&adminEm, "by", "", "Email of the admin creating the account")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func (cli *commandLine) createTeacher(ctx context.Context, admin user.User, nt user.NewTeacher) (user.User, string, error) {
	nt.Password = "" // always generated
	if err := nt.Validate(cli.validate, cli.users); err != nil {
		return user.User{}, "", validationError(err)
	}
	teacher, pwd, err := cli.users.CreateTeacher(ctx, admin, nt)
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "creating teacher")
	}
	return teacher, pwd, nil
}
