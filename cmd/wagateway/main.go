// WA Gateway - multi-tenant messaging gateway
//
// This is the main entry point for the WA Gateway. One process hosts a
// linked-device session per tenant and exposes pairing, lifecycle and
// message sending over HTTP, with optional MQTT commands and InfluxDB
// telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/wa-gateway/internal/api"
	"github.com/nerrad567/wa-gateway/internal/audit"
	"github.com/nerrad567/wa-gateway/internal/auth"
	"github.com/nerrad567/wa-gateway/internal/cleanup"
	"github.com/nerrad567/wa-gateway/internal/credentials"
	"github.com/nerrad567/wa-gateway/internal/dispatch"
	"github.com/nerrad567/wa-gateway/internal/gateway"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/config"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/database"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/wa-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/wa-gateway/internal/media"
	"github.com/nerrad567/wa-gateway/internal/pairing"
	"github.com/nerrad567/wa-gateway/internal/whatsapp"
	"github.com/nerrad567/wa-gateway/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds how long background work may delay exit.
	shutdownTimeout = 15 * time.Second

	// auditRetention is how long audit entries are kept.
	auditRetention = 90 * 24 * time.Hour

	// deviceName is shown in the account's linked devices list.
	deviceName = "WA Gateway"
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. The root command runs the gateway.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wagateway",
		Short:         "Multi-tenant messaging gateway",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(newTokenCommand(), newMigrateCommand())
	return root
}

// newTokenCommand issues an API bearer token signed with the configured
// secret.
func newTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		tenants []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.Security.JWT.TokenTTL) * time.Minute
			}
			tok, err := auth.GenerateToken(auth.Identity{
				Subject: subject,
				Role:    auth.Role(role),
				Tenants: tenants,
			}, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "name of the calling system (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleClient), "client, operator or admin")
	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant the token may act on (repeatable, * for all)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from security.jwt.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup sequence: linear wiring of every component
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting WA Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	auditRepo := audit.NewSQLiteRepository(db.DB)
	checks := map[string]api.HealthChecker{"database": db}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	creds := credentials.NewStore(cfg.Gateway.CredentialsDir)
	gwCfg := gateway.Config{
		Credentials: creds,
		Factory: whatsapp.NewFactory(whatsapp.Options{
			Logger:     log.Component("whatsapp").Logger,
			DeviceName: deviceName,
		}),
		Pairing: pairing.NewStore(cfg.Gateway.PairingDir),
		Media:   media.NewStore(cfg.Gateway.TempDir, cfg.Gateway.DownloadTimeout),
		Dispatch: dispatch.Config{
			RecipientCacheSize: cfg.Gateway.RecipientCacheSize,
			RecipientCacheTTL:  cfg.Gateway.RecipientCacheTTL,
		},
		AutoInit:      gateway.AutoInitPolicy{Settle: cfg.Gateway.SettleDelay},
		RestartDelay:  cfg.Gateway.RestartDelay,
		LogoutDelay:   cfg.Gateway.LogoutDelay,
		AnnounceDelay: cfg.Gateway.AnnounceDelay,
		TenantMaxAge:  cfg.Cleanup.TenantMaxAge,
		Audit:         auditRepo,
		Metrics:       gateway.MustNewMetrics(reg),
	}
	gwCfg.Media.SetLogger(log.Component("media"))
	gwCfg.Media.SetMaxDownloadSize(cfg.Gateway.MaxDownloadSize)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		gwCfg.MQTT = mqttClient
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxLog := log.Component("influxdb")
		influxClient.SetOnError(func(err error) {
			var werr *influxdb.WriteError
			if errors.As(err, &werr) {
				influxLog.Warn("InfluxDB batch failed",
					"points", werr.Points,
					"status", werr.StatusCode,
					"attempt", werr.Attempt,
					"retrying", werr.Retrying,
					"error", werr.Err,
				)
				return
			}
			influxLog.Error("InfluxDB write error", "error", err)
		})
		gwCfg.Points = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Gateway service
	svc := gateway.New(gwCfg)
	svc.SetLogger(log.Component("gateway"))
	defer func() {
		log.Info("closing sessions")
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := svc.Close(closeCtx); closeErr != nil {
			log.Error("error closing sessions", "error", closeErr)
		}
	}()

	if subErr := svc.SubscribeCommands(byte(cfg.MQTT.QoS)); subErr != nil {
		return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
	}

	restoreSessions(ctx, svc, creds, log)

	// Temp directory purge (optional)
	if cfg.Cleanup.Enabled {
		sched, schedErr := startCleanup(ctx, cfg, svc, auditRepo, log)
		if schedErr != nil {
			return fmt.Errorf("starting cleanup scheduler: %w", schedErr)
		}
		defer sched.Stop()
	} else {
		log.Info("temp cleanup disabled")
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Gateway:   cfg.Gateway,
		Logger:    log.Component("api"),
		Service:   svc,
		AuditRepo: auditRepo,
		Metrics:   reg,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, cleanup scheduler, sessions, InfluxDB, MQTT, database.
	log.Info("WA Gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WAGATEWAY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WAGATEWAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// restoreSessions provisions every tenant with credentials on disk so
// sessions paired before a restart reconnect without a request. Failures
// are logged per tenant.
func restoreSessions(ctx context.Context, svc *gateway.Service, creds *credentials.Store, log *logging.Logger) {
	tenants, err := creds.Tenants()
	if err != nil {
		log.Warn("listing stored sessions failed", "error", err)
		return
	}

	ctx = gateway.WithSource(ctx, audit.SourceSystem)
	for _, id := range tenants {
		if _, err := svc.Provision(ctx, id); err != nil {
			log.Warn("restoring session failed", "tenant_id", id, "error", err)
		}
	}
	if len(tenants) > 0 {
		log.Info("stored sessions restored", "count", len(tenants))
	}
}

// startCleanup schedules the process-wide temp purge. Each pass is
// recorded through the gateway and also prunes old audit entries.
func startCleanup(
	ctx context.Context,
	cfg *config.Config,
	svc *gateway.Service,
	auditRepo audit.Repository,
	log *logging.Logger,
) (*cleanup.Scheduler, error) {
	hook := func(res cleanup.Result) {
		hctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hctx = gateway.WithSource(hctx, audit.SourceSystem)

		svc.ObserveCleanup(hctx, "", res.Removed, res.Err)

		pruned, err := auditRepo.Prune(hctx, time.Now().Add(-auditRetention))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("pruning audit log failed", "error", err)
		} else if pruned > 0 {
			log.Info("audit log pruned", "removed", pruned)
		}
	}

	sched, err := cleanup.New(cleanup.Config{
		Schedule: cfg.Cleanup.Schedule,
		Dir:      cfg.Gateway.TempDir,
		MaxAge:   cfg.Cleanup.MaxAge,
	}, log.Component("cleanup").Logger, hook)
	if err != nil {
		return nil, err
	}
	sched.Start(ctx)
	log.Info("temp cleanup scheduled",
		"schedule", cfg.Cleanup.Schedule,
		"dir", cfg.Gateway.TempDir,
		"next", sched.Next(),
	)
	return sched, nil
}
