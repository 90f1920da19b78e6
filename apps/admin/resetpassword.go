package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/trezcool/studentnotes/core"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the new password is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Usage()
				return errHelp
			}
			if err := cli.resetPassword(context.Background(), email, pwd); err != nil {
				return err
			}
			cli.printf("password of %s has been reset\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	usr, err := cli.users.GetByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if _, err := cli.users.SetPassword(ctx, usr, pwd); err != nil {
		return validationError(err)
	}
	return nil
}
