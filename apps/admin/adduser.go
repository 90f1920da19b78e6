package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/studentnotes/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var (
		email, name string
		isAdmin     bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a student or admin account; the password is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Usage()
				return errHelp
			}
			role := user.RoleStudent
			if isAdmin {
				role = user.RoleAdmin
			}
			usr, err := cli.addUser(context.Background(), user.NewUser{
				Name:            name,
				Email:           email,
				Role:            role,
				Password:        pwd,
				PasswordConfirm: pwd,
			})
			if err != nil {
				return err
			}
			cli.printf("created %s %s (%s)\n", usr.Role, usr.Email, usr.PublicID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	cmd.Flags().StringVar(&name, "name", "", "The user's full name")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Create an admin instead of a student")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) (user.User, error) {
	if err := nu.Validate(cli.validate, cli.users); err != nil {
		return user.User{}, validationError(err)
	}
	usr, err := cli.users.Create(ctx, nu)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}
