package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/frontend/go-services/internal/session"
)

func loginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv("TASKBOARD_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or TASKBOARD_PASSWORD) are required")
			}
			if err := a.load(ctx); err != nil {
				return err
			}
			st, err := a.core.Guard.Login(ctx, email, password)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", st.User.Name, st.User.Email)
			return nil
		},
	}

	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("password", "p", "", "Account password (defaults to $TASKBOARD_PASSWORD)")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			confirm, _ := cmd.Flags().GetString("confirm")
			if confirm == "" {
				confirm = password
			}
			if err := a.load(ctx); err != nil {
				return err
			}
			st, err := a.core.Guard.Register(ctx, name, email, password, confirm)
			if err != nil {
				var ae *session.AuthError
				if errors.As(err, &ae) && len(ae.Fields) > 0 {
					printFieldErrors(cmd, ae.Fields)
				}
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s <%s>\n", st.User.Name, st.User.Email)
			return nil
		},
	}

	cmd.Flags().StringP("name", "n", "", "Display name")
	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("password", "p", "", "Password")
	cmd.Flags().String("confirm", "", "Password confirmation (defaults to --password)")
	return cmd
}

func printFieldErrors(cmd *cobra.Command, fields map[string][]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, msg := range fields[k] {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", k, msg)
		}
	}
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}
			// Restore loads the stored token so the backend session is ended too.
			a.core.Guard.Restore(ctx)
			a.core.Guard.Logout(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			u := core.Guard.State().User
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (id %s)\n", u.Name, u.Email, u.ID)
			return nil
		},
	}
}
