package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/penmaen-hall/server/internal/api"
	"github.com/penmaen-hall/server/internal/api/handlers"
	"github.com/penmaen-hall/server/internal/auth"
	"github.com/penmaen-hall/server/internal/config"
	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/penmaen-hall/server/internal/geocoding/nominatim"
	"github.com/penmaen-hall/server/internal/identity"
	"github.com/penmaen-hall/server/internal/metrics"
	"github.com/penmaen-hall/server/internal/session"
	"github.com/penmaen-hall/server/internal/storage"
	"github.com/penmaen-hall/server/internal/storage/postgres"
	"github.com/penmaen-hall/server/internal/telemetry"
	"github.com/penmaen-hall/server/internal/venue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// hallTimeZone is where event dates and times are wall-clock values.
const hallTimeZone = "Europe/London"

const (
	initialLoadTimeout   = 10 * time.Second
	activationTimeout    = 15 * time.Second
	sessionSweepInterval = time.Minute
)

type serveOptions struct {
	host    string
	port    int
	migrate bool
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the village hall HTTP server",
		Long: `Start the village hall HTTP server and begin accepting requests.

The server will:
- Load configuration from --config, a .env file and environment variables
- Optionally apply pending database migrations (--migrate)
- Bootstrap the first admin account if ADMIN_* env vars are set
- Load the events schedule and serve the site, API and calendar feed
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with configuration from env vars
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Migrate the schema first, with debug logging
  server serve --migrate --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			applyServeOverrides(&cfg, opts)
			return runServer(commandContext(cmd), cfg, opts.migrate)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func applyServeOverrides(cfg *config.Config, opts *serveOptions) {
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
}

func runServer(parent context.Context, cfg config.Config, migrateFirst bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting village hall server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if migrateFirst {
		if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.Open(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()
	registerCollector(metrics.NewPoolStats(pool), logger)

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	bootCtx, bootCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := bootstrapAdmin(bootCtx, repo.Admins(), cfg.AdminBootstrap, cfg.IsProduction(), logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootCancel()

	loc, err := time.LoadLocation(hallTimeZone)
	if err != nil {
		return fmt.Errorf("load hall time zone: %w", err)
	}

	syncer := events.NewSynchronizer(repo.Events(),
		events.WithLogger(logger.With().Str("component", "events").Logger()),
		events.WithActivationTimeout(activationTimeout),
	)
	defer syncer.Close()
	loadCtx, loadCancel := context.WithTimeout(ctx, initialLoadTimeout)
	if err := syncer.Load(loadCtx); err != nil {
		// List keeps retrying in the background until a load succeeds.
		logger.Warn().Err(err).Msg("initial events load failed")
	}
	loadCancel()

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.Issuer)
	identitySvc := identity.NewService(repo.Admins(), tokens, logger.With().Str("component", "identity").Logger())

	sessions := session.NewRegistry(identitySvc, cfg.Auth.SessionIdle, logger.With().Str("component", "sessions").Logger())
	go sessions.Run(ctx, sessionSweepInterval)

	var geocoder venue.Geocoder
	if cfg.Venue.Geocode {
		geocoder = nominatim.NewClient(cfg.Venue.NominatimURL, cfg.Venue.NominatimEmail)
	}
	locator := venue.NewLocator(cfg.Venue, geocoder, logger.With().Str("component", "venue").Logger())

	health := handlers.NewHealthChecker(pool, func() (uint, bool, error) {
		return postgres.MigrationVersion(cfg.Database.URL)
	}, Version, GitCommit)

	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		Logger:   logger,
		Events:   syncer,
		Identity: identitySvc,
		Sessions: sessions,
		Venue:    locator,
		Health:   health,
		Location: loc,
		Build:    api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate},
	})
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return gracefulShutdown(server, cfg.Server.ShutdownTimeout, logger)
}

func registerCollector(c prometheus.Collector, logger zerolog.Logger) {
	if err := metrics.Registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			logger.Warn().Err(err).Msg("register collector")
		}
	}
}

// bootstrapAdmin creates the configured admin account unless it already
// exists. Incomplete settings skip it.
func bootstrapAdmin(ctx context.Context, admins storage.AdminRepository, cfg config.AdminBootstrapConfig, production bool, logger zerolog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}
	hash, err := identity.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := admins.CreateAdmin(ctx, identity.Admin{
		Email:        cfg.Email,
		Name:         cfg.Name,
		PasswordHash: hash,
		Role:         string(auth.RoleAdmin),
		Active:       true,
	})
	if errors.Is(err, identity.ErrAdminExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	event := logger.Info().Str("admin_id", created.ID)
	if !production {
		event = event.Str("email", created.Email)
	}
	event.Msg("bootstrapped admin account")
	return nil
}

func gracefulShutdown(server *http.Server, timeout time.Duration, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
