package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/cloudsummary/internal/config"
	"github.com/user/cloudsummary/internal/iam"
	"github.com/user/cloudsummary/internal/observability"
	"github.com/user/cloudsummary/internal/server"
	"github.com/user/cloudsummary/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cloudsummary",
	Short: "Cloud accounting summary service",
	Long:  "Serves daily cloud usage summaries from an accounting database to authorized IAM clients.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the summary HTTP server",
	RunE:  runServer,
}

var (
	configPath      string
	bindAddr        string
	otelEnabled     bool
	otelEndpoint    string
	shutdownTimeout = 5 * time.Second
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	serverCmd.Flags().StringVar(&configPath, "config", "cloudsummary.conf", "Path to the key=value configuration file")
	serverCmd.Flags().StringVar(&bindAddr, "bind", ":8080", "HTTP server bind address")
	serverCmd.Flags().BoolVar(&otelEnabled, "otel-enabled", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stdout exporter")
	serverCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful HTTP shutdown timeout before force-close")

	rootCmd.AddCommand(serverCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig reads the configuration file. Problems are never fatal: an
// unreadable file means defaults, and each rejected key keeps its default
// while the rest of the file still applies.
func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if keyErrs := config.KeyErrors(err); len(keyErrs) > 0 {
			for _, ke := range keyErrs {
				slog.Warn("configuration value problem", "path", path, "key", ke.Key, "error", ke.Err)
			}
		} else {
			slog.Warn("could not load configuration, using defaults", "path", path, "error", err)
		}
	}
	if secret := strings.TrimSpace(os.Getenv("CLOUDSUMMARY_IAM_SECRET")); secret != "" {
		cfg.IAM.ServerSecret = secret
	}
	return cfg
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(configPath)

	if cfg.IAM.Issuer != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IAM.Timeout)
		endpoint, err := iam.DiscoverIntrospectionEndpoint(ctx, cfg.IAM.Issuer)
		cancel()
		if err != nil {
			slog.Warn("introspection endpoint discovery failed, using configured endpoint",
				"issuer", cfg.IAM.Issuer, "endpoint", cfg.IAM.IntrospectURL, "error", err)
		} else {
			cfg.IAM.IntrospectURL = endpoint
		}
	}

	allow := iam.NewAllowList(cfg.AllowedForGet)
	slog.Info("starting cloudsummary server",
		"version", version,
		"bind", bindAddr,
		"config", configPath,
		"db_backend", cfg.DB.Backend,
		"db_host", cfg.DB.Hostname,
		"db_name", cfg.DB.Name,
		"introspect_url", cfg.IAM.IntrospectURL,
		"allowed_clients", allow.Len(),
		"return_headers", strings.Join(cfg.ReturnHeaders, ","),
		"results_per_page", cfg.ResultsPerPage,
		"otel_enabled", otelEnabled,
		"otel_endpoint", otelEndpoint,
		"shutdown_timeout", shutdownTimeout,
	)
	if cfg.IAM.ServerSecret == "" {
		slog.Warn("iam.server_secret is empty; introspection requests will likely be rejected")
	}

	otelShutdown, err := observability.InitTracer(observability.TracingConfig{
		Enabled:  otelEnabled,
		Endpoint: otelEndpoint,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("otel shutdown error", "error", err)
		}
	}()

	dbCfg := cfg.DB
	srv := server.New(server.Options{
		Verifier: iam.NewIntrospector(iam.IntrospectionConfig{
			Endpoint:     cfg.IAM.IntrospectURL,
			ServerID:     cfg.IAM.ServerID,
			ServerSecret: cfg.IAM.ServerSecret,
			Timeout:      cfg.IAM.Timeout,
		}),
		AllowList: allow,
		OpenStore: func(ctx context.Context) (*store.Store, error) {
			return store.Open(ctx, dbCfg)
		},
		ReturnHeaders:  cfg.ReturnHeaders,
		ResultsPerPage: cfg.ResultsPerPage,
	}, bindAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error; forcing close", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			slog.Error("HTTP force close error", "error", closeErr)
		}
	}
	slog.Info("cloudsummary server stopped")
	return nil
}
