// Package cmd implements hallctl, the committee's command-line client for
// the village hall server.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/penmaen-hall/server/internal/client"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

const defaultServer = "http://localhost:8080"

type globalOptions struct {
	server      string
	credentials string
	logLevel    string
}

// app is the client-side stack one invocation works with.
type app struct {
	store    *session.FileStore
	client   *client.Client
	provider *session.Provider
	events   *events.Synchronizer
}

func (a *app) Close() {
	a.events.Close()
	a.provider.Close()
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "hallctl",
		Short: "Manage the village hall events schedule from the command line",
		Long: `hallctl talks to a running village hall server.

Anyone can list the schedule. Adding, changing and deleting events needs an
admin sign-in; the credential is kept in the user config directory until
logout or expiry.

The server defaults to $HALL_SERVER, then ` + defaultServer + `.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", "", "server base URL (default: $HALL_SERVER or "+defaultServer+")")
	root.PersistentFlags().StringVar(&opts.credentials, "credentials", "", "credential file (default: <user config dir>/hallctl/credentials.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newLoginCommand(opts))
	root.AddCommand(newLogoutCommand(opts))
	root.AddCommand(newWhoamiCommand(opts))
	root.AddCommand(newEventsCommand(opts))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the hallctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hallctl %s\n", Version)
		},
	})
	return root
}

func (o *globalOptions) serverURL() string {
	if o.server != "" {
		return o.server
	}
	if env := strings.TrimSpace(os.Getenv("HALL_SERVER")); env != "" {
		return env
	}
	return defaultServer
}

func (o *globalOptions) logger(cmd *cobra.Command) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(o.logLevel))
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
		Level(level).With().Timestamp().Logger()
}

// newApp builds the client, the session provider and the synchronizer over
// the same credential file.
func (o *globalOptions) newApp(cmd *cobra.Command) (*app, error) {
	path := o.credentials
	if path == "" {
		var err error
		if path, err = session.DefaultCredentialPath(); err != nil {
			return nil, err
		}
	}
	logger := o.logger(cmd)
	store := session.NewFileStore(path)
	c := client.New(o.serverURL(),
		client.WithCredentials(store),
		client.WithUserAgent("hallctl/"+Version),
	)
	return &app{
		store:    store,
		client:   c,
		provider: session.NewProvider(c, session.WithStore(store), session.WithLogger(logger)),
		events:   events.NewSynchronizer(c, events.WithLogger(logger)),
	}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
