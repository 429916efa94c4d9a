package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/penmaen-hall/server/internal/auth"
	"github.com/penmaen-hall/server/internal/identity"
	"github.com/penmaen-hall/server/internal/storage"
	"github.com/penmaen-hall/server/internal/storage/postgres"
	"github.com/spf13/cobra"
)

// adminStoreFactory opens the account store for the admin subcommands.
// Tests replace it.
type adminStoreFactory func(ctx context.Context, global *globalOptions) (storage.AdminRepository, func(), error)

func openAdminStore(ctx context.Context, global *globalOptions) (storage.AdminRepository, func(), error) {
	cfg, err := loadConfig(global)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return postgres.NewAdminRepository(pool), pool.Close, nil
}

func newAdminCommand(global *globalOptions) *cobra.Command {
	return newAdminCommandWith(global, openAdminStore)
}

func newAdminCommandWith(global *globalOptions, open adminStoreFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage committee sign-in accounts",
		Long: `Create and maintain the accounts that may sign in to manage events.

Passwords are read from --password, then ADMIN_PASSWORD, then the first
line of standard input.

Examples:
  server admin create --email clerk@penmaen.org --name "Hall Clerk"
  server admin list
  server admin set-password --email clerk@penmaen.org < password.txt
  server admin disable --email old.treasurer@penmaen.org`,
	}

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, admins storage.AdminRepository) error) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
		defer cancel()
		admins, closeFn, err := open(ctx, global)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, admins)
	}

	var email, name, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readPassword(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := identity.HashPassword(secret)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, admins storage.AdminRepository) error {
				created, err := admins.CreateAdmin(ctx, identity.Admin{
					Email:        email,
					Name:         name,
					PasswordHash: hash,
					Role:         string(auth.NormalizeRole(role)),
					Active:       true,
				})
				if errors.Is(err, identity.ErrAdminExists) {
					return fmt.Errorf("an account for %s already exists", identity.NormalizeEmail(email))
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s (%s)\n", created.Role, created.Email, created.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "sign-in email address")
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&password, "password", "", "password (at least 10 characters)")
	create.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "account role (admin, member)")
	_ = create.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, admins storage.AdminRepository) error {
				all, err := admins.ListAdmins(ctx)
				if err != nil {
					return err
				}
				return printAdmins(cmd.OutOrStdout(), all)
			})
		},
	}

	var resetEmail, resetPassword string
	setPassword := &cobra.Command{
		Use:   "set-password",
		Short: "Replace an account's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readPassword(resetPassword, cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := identity.HashPassword(secret)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, admins storage.AdminRepository) error {
				if err := admins.SetPassword(ctx, resetEmail, hash); err != nil {
					return notFoundAs(err, resetEmail)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", identity.NormalizeEmail(resetEmail))
				return nil
			})
		},
	}
	setPassword.Flags().StringVar(&resetEmail, "email", "", "sign-in email address")
	setPassword.Flags().StringVar(&resetPassword, "password", "", "new password (at least 10 characters)")
	_ = setPassword.MarkFlagRequired("email")

	cmd.AddCommand(create, list, setPassword,
		activeCommand("enable", "Allow an account to sign in", true, withStore),
		activeCommand("disable", "Stop an account from signing in", false, withStore),
	)
	return cmd
}

func activeCommand(use, short string, active bool, withStore func(*cobra.Command, func(context.Context, storage.AdminRepository) error) error) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, admins storage.AdminRepository) error {
				if err := admins.SetActive(ctx, email, active); err != nil {
					return notFoundAs(err, email)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", use, identity.NormalizeEmail(email))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "sign-in email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func notFoundAs(err error, email string) error {
	if errors.Is(err, identity.ErrAdminNotFound) {
		return fmt.Errorf("no account for %s", identity.NormalizeEmail(email))
	}
	return err
}

func readPassword(flagValue string, in io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("ADMIN_PASSWORD"); env != "" {
		return env, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("no password given: use --password, ADMIN_PASSWORD or standard input")
	}
	return line, nil
}

func printAdmins(out io.Writer, admins []identity.Admin) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tROLE\tACTIVE\tLAST SIGN-IN")
	for _, a := range admins {
		last := "never"
		if a.LastLoginAt != nil {
			last = a.LastLoginAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", a.Email, a.Name, a.Role, a.Active, last)
	}
	return w.Flush()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
