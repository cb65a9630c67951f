package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vinay-511/Code-collab/internal/auth"
	"github.com/vinay-511/Code-collab/internal/config"
	"github.com/vinay-511/Code-collab/internal/database"
	"github.com/vinay-511/Code-collab/internal/execution"
	"github.com/vinay-511/Code-collab/internal/logging"
	"github.com/vinay-511/Code-collab/internal/protocol"
	"github.com/vinay-511/Code-collab/internal/rooms"
	"github.com/vinay-511/Code-collab/internal/runs"
	"github.com/vinay-511/Code-collab/internal/server"
	"github.com/vinay-511/Code-collab/internal/tunnel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	tokenIssuer     = "codecollab"
	tokenAudience   = "codecollab-api"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string

	errMissingCredentials = errors.New("execution credentials are required (JDOODLE_CLIENT_ID and JDOODLE_CLIENT_SECRET)")
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "codecollab-server",
		Short:         "CodeCollab real-time collaboration server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "codecollab-server:", err)
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path for execution records")
	cmd.PersistentFlags().String("execution-url", defaults.GetString("execution.url"), "Remote execution endpoint")
	cmd.PersistentFlags().Int("execution-timeout-seconds", defaults.GetInt("execution.timeout_seconds"), "Remote execution timeout in seconds")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Room access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Room token signing secret (overrides env)")
	cmd.PersistentFlags().String("public-url", defaults.GetString("tunnel.public_url"), "Public URL to publish for clients")
	cmd.PersistentFlags().String("public-config-path", defaults.GetString("tunnel.config_path"), "File the public URL is written to")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "execution.url", "execution-url")
	bindFlag(cmd, "execution.timeout_seconds", "execution-timeout-seconds")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "tunnel.public_url", "public-url")
	bindFlag(cmd, "tunnel.config_path", "public-config-path")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if appConfig.MissingExecutionCredentials() {
		return errMissingCredentials
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	runsService, err := runs.NewService(runs.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: runs.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	executor, err := execution.NewClient(execution.ClientConfig{
		Endpoint:     appConfig.ExecutionURL,
		ClientID:     appConfig.ExecutionClientID,
		ClientSecret: appConfig.ExecutionClientSecret,
		Timeout:      appConfig.ExecutionTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	signingSecret, err := resolveSigningSecret(appConfig.SigningSecret, logger)
	if err != nil {
		return err
	}
	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	registry := rooms.NewRegistry(rooms.RegistryConfig{
		DefaultFileName: rooms.FileName(appConfig.DefaultFileName),
		DefaultShell:    appConfig.DefaultShell,
		Clock:           time.Now,
		Logger:          logger,
		// Purge failures are logged by the runs service.
		OnRoomDestroyed: func(_ rooms.RoomID, instanceID string) {
			_, _ = runsService.PurgeInstance(context.Background(), instanceID)
		},
	})
	hub := server.NewHub(server.HubConfig{
		SendBuffer: appConfig.SendBuffer,
		Logger:     logger,
	})
	messageRouter, err := protocol.NewRouter(protocol.RouterConfig{
		Registry: registry,
		Emitter:  hub,
		Tokens:   tokenManager,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var publisher *tunnel.Publisher
	if appConfig.TunnelConfigPath != "" {
		publisher, err = tunnel.NewPublisher(tunnel.PublisherConfig{
			ConfigPath: appConfig.TunnelConfigPath,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Hub:      hub,
		Router:   messageRouter,
		Registry: registry,
		Executor: executor,
		Runs:     runsService,
		Tokens:   tokenManager,
		Tunnel:   publisher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if appConfig.TunnelPublicURL != "" {
		group.Go(func() error {
			_, err := publisher.Publish(appConfig.TunnelPublicURL)
			return err
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping", zap.Int("rooms", registry.RoomCount()), zap.Int("connections", hub.Count()))
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// resolveSigningSecret returns the configured secret or a random per-process
// one. Tokens signed with a random secret do not survive a restart.
func resolveSigningSecret(configured string, logger *zap.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	buffer := make([]byte, 32)
	if _, err := rand.Read(buffer); err != nil {
		return nil, err
	}
	logger.Info("no signing secret configured, using a random per-process secret")
	return []byte(hex.EncodeToString(buffer)), nil
}
