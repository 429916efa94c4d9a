package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/penmaen-hall/server/internal/session"
	"github.com/spf13/cobra"
)

func newLoginCommand(global *globalOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the credential for later commands",
		Long: `Sign in to the server. The password is read from --password, then
HALL_PASSWORD, then the first line of standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			if err := a.provider.SignIn(ctx, email, secret); err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					return fmt.Errorf("invalid login credentials")
				}
				return err
			}
			role := "member"
			if a.provider.IsAdmin() {
				role = "admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", a.provider.Subject(), role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign-in email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			// A failed check still leaves the stored credential to revoke.
			_ = a.provider.Start(ctx)
			if err := a.provider.SignOut(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.provider.Start(commandContext(cmd)); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.provider.State() != session.StateAuthenticated {
				fmt.Fprintln(out, "not signed in")
				return nil
			}
			cred, _, err := a.store.Load()
			if err != nil {
				return err
			}
			role := "member"
			if a.provider.IsAdmin() {
				role = "admin"
			}
			fmt.Fprintf(out, "%s (%s)", a.provider.Subject(), role)
			if !cred.ExpiresAt.IsZero() {
				fmt.Fprintf(out, ", session expires %s", cred.ExpiresAt.Local().Format(time.RFC1123))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// requireAdmin resolves the stored session and fails unless it may write.
func requireAdmin(cmd *cobra.Command, a *app) error {
	if err := a.provider.Start(commandContext(cmd)); err != nil {
		return err
	}
	if !a.provider.IsAdmin() {
		return fmt.Errorf("an admin sign-in is required: run hallctl login")
	}
	return nil
}

func readSecret(flagValue string, in io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("HALL_PASSWORD"); env != "" {
		return env, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no password given: use --password, HALL_PASSWORD or standard input")
	}
	return line, nil
}
