package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(c *console) *cobra.Command {
	var email, password, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long: `Login submits credentials to the admin API and stores the issued token.

When the account has two-factor authentication enabled the code is taken from
--code, or read from standard input when the flag is absent. The password
defaults to KUROS_PASSWORD.

Example:
  consolectl login --email admin@kuros.io
  consolectl login --email admin@kuros.io --code 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("KUROS_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and a password (--password or KUROS_PASSWORD) are required")
			}

			out, err := c.session.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			if out.RequiresTwoFactor {
				if code == "" {
					fmt.Fprint(cmd.ErrOrStderr(), "Two-factor code: ")
					line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && line == "" {
						return fmt.Errorf("read two-factor code: %w", err)
					}
					code = strings.TrimSpace(line)
				}
				if _, err := c.session.VerifyTwoFactor(cmd.Context(), out.UserID, code); err != nil {
					return fmt.Errorf("verify two-factor code: %w", err)
				}
			}

			snap := c.session.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", snap.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&password, "password", "", "account password (default: $KUROS_PASSWORD)")
	cmd.Flags().StringVar(&code, "code", "", "six-digit two-factor code")
	return cmd
}

func newLogoutCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.session.Logout(cmd.Context())
			return nil
		},
	}
}

func newWhoamiCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			user := c.session.Snapshot().User
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", user.Name, user.Email, user.Role)
			return nil
		},
	}
}
