package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/k3vt/aprsgate/internal/aprs"
	"github.com/k3vt/aprsgate/internal/beacon"
	"github.com/k3vt/aprsgate/internal/command"
	"github.com/k3vt/aprsgate/internal/config"
	"github.com/k3vt/aprsgate/internal/gateway"
	"github.com/k3vt/aprsgate/internal/metrics"
	"github.com/k3vt/aprsgate/internal/storage"
	"github.com/k3vt/aprsgate/internal/storage/redis"
	"github.com/k3vt/aprsgate/internal/storage/sqlite"
	"github.com/k3vt/aprsgate/internal/systemd"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start aprsgate server",
	Long:  `Start the aprsgate server with the bridge-facing gateway API, the APRS-IS uplink, and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting aprsgate")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize APRS-IS uplink
	resolver := aprs.NewResolver(logger)
	transmitter := aprs.NewTransmitter(aprs.Config{
		ServerHost:     cfg.APRS.ServerHost,
		ServerPort:     cfg.APRS.ServerPort,
		LoginCall:      cfg.APRS.LoginCall,
		DialTimeout:    parseDuration(cfg.APRS.DialTimeout, 10*time.Second),
		ConnectRetries: cfg.APRS.ConnectRetries,
	}, resolver, logger)

	logger.Info().
		Str("server", fmt.Sprintf("%s:%d", cfg.APRS.ServerHost, cfg.APRS.ServerPort)).
		Str("login", transmitter.Login()).
		Msg("APRS-IS uplink initialized")

	// Initialize bridge notifier (optional, requires a callback URL)
	var notifier beacon.Notifier
	if cfg.Gateway.CallbackURL != "" {
		notifier = gateway.NewWebhookNotifier(cfg.Gateway.CallbackURL, cfg.Gateway.BridgeToken, logger)
		logger.Info().Str("url", cfg.Gateway.CallbackURL).Msg("Bridge callback notifier initialized")
	} else {
		logger.Info().Msg("No callback URL configured, user notifications disabled")
	}

	clock := &beacon.RealClock{}

	// Initialize Session Manager
	manager := beacon.NewManager(store, transmitter, notifier, clock, logger)
	logger.Info().Msg("Session Manager initialized")

	// Initialize Command Dispatcher
	dispatcher := command.NewDispatcher(store, notifier, clock, cfg.Gateway.AdminUserID, logger)
	logger.Info().Int64("admin_user_id", cfg.Gateway.AdminUserID).Msg("Command Dispatcher initialized")

	// Initialize Expiry Sweeper
	sweeper := beacon.NewSweeper(
		manager,
		store,
		notifier,
		clock,
		parseDuration(cfg.Beacon.SweepInterval, 59*time.Second),
		time.Duration(cfg.Beacon.LogRetentionDays)*24*time.Hour,
		logger,
	)
	sweeper.Start()

	// Initialize Gateway Server
	gatewayServer := gateway.NewServer(cfg.Gateway, manager, dispatcher, store, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Gateway != nil {
		gatewayServer.SetListener(sdListeners.Gateway)
	}

	if err := gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start Gateway Server: %w", err)
	}

	logger.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Gateway.BindAddress, cfg.Gateway.Port)).
		Msg("Gateway Server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	// Log startup complete
	logger.Info().Msg("aprsgate startup complete")
	logger.Info().Msgf("Gateway API: http://%s:%d/", cfg.Gateway.BindAddress, cfg.Gateway.Port)
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Metrics.BindAddress, cfg.Metrics.Port)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().
				Int("active_sessions", manager.Active()).
				Msg("SIGHUP received, nothing to reload")
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop servers
	sweeper.Stop()

	if err := gatewayServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Gateway Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	if err := transmitter.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing APRS-IS uplink")
	}

	logger.Info().Msg("aprsgate stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "sqlite"
	}

	switch storageType {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (use 'sqlite' or 'redis')", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
