package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "CODECOLLAB"
	defaultHTTPAddress         = "0.0.0.0:3000"
	defaultDatabasePath        = "file::memory:?cache=shared"
	defaultLogLevel            = "info"
	defaultExecutionURL        = "https://api.jdoodle.com/v1/execute"
	defaultExecutionTimeoutSec = 20
	defaultTokenTTLMinutes     = 720
	defaultTunnelConfigPath    = "public/config.json"
	defaultRoomFileName        = "main.js"
	defaultRoomShell           = "bash"
	defaultSendBuffer          = 256
)

// AppConfig captures runtime configuration for the collaboration server.
type AppConfig struct {
	HTTPAddress           string
	LogLevel              string
	DatabasePath          string
	ExecutionURL          string
	ExecutionClientID     string
	ExecutionClientSecret string
	ExecutionTimeout      time.Duration
	SigningSecret         string
	TokenTTL              time.Duration
	TunnelPublicURL       string
	TunnelConfigPath      string
	DefaultFileName       string
	DefaultShell          string
	SendBuffer            int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
// The bare JDOODLE_CLIENT_ID and JDOODLE_CLIENT_SECRET variables are honored as
// fallbacks for the execution credentials.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("execution.url", defaultExecutionURL)
	configViper.SetDefault("execution.timeout_seconds", defaultExecutionTimeoutSec)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("tunnel.public_url", "")
	configViper.SetDefault("tunnel.config_path", defaultTunnelConfigPath)
	configViper.SetDefault("rooms.default_file_name", defaultRoomFileName)
	configViper.SetDefault("rooms.default_shell", defaultRoomShell)
	configViper.SetDefault("websocket.send_buffer", defaultSendBuffer)

	_ = configViper.BindEnv("execution.client_id", envPrefix+"_EXECUTION_CLIENT_ID", "JDOODLE_CLIENT_ID")
	_ = configViper.BindEnv("execution.client_secret", envPrefix+"_EXECUTION_CLIENT_SECRET", "JDOODLE_CLIENT_SECRET")
	_ = configViper.BindEnv("auth.signing_secret", envPrefix+"_AUTH_SIGNING_SECRET")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:           strings.TrimSpace(configViper.GetString("http.address")),
		LogLevel:              configViper.GetString("log.level"),
		DatabasePath:          strings.TrimSpace(configViper.GetString("database.path")),
		ExecutionURL:          strings.TrimSpace(configViper.GetString("execution.url")),
		ExecutionClientID:     strings.TrimSpace(configViper.GetString("execution.client_id")),
		ExecutionClientSecret: strings.TrimSpace(configViper.GetString("execution.client_secret")),
		ExecutionTimeout:      time.Duration(configViper.GetInt("execution.timeout_seconds")) * time.Second,
		SigningSecret:         configViper.GetString("auth.signing_secret"),
		TokenTTL:              time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		TunnelPublicURL:       strings.TrimSpace(configViper.GetString("tunnel.public_url")),
		TunnelConfigPath:      strings.TrimSpace(configViper.GetString("tunnel.config_path")),
		DefaultFileName:       strings.TrimSpace(configViper.GetString("rooms.default_file_name")),
		DefaultShell:          strings.TrimSpace(configViper.GetString("rooms.default_shell")),
		SendBuffer:            configViper.GetInt("websocket.send_buffer"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// MissingExecutionCredentials reports whether the execution service cannot be
// reached for lack of credentials.
func (c AppConfig) MissingExecutionCredentials() bool {
	return c.ExecutionClientID == "" || c.ExecutionClientSecret == ""
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ExecutionURL == "" {
		return fmt.Errorf("execution.url is required")
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("execution.timeout_seconds must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.TunnelPublicURL != "" && c.TunnelConfigPath == "" {
		return fmt.Errorf("tunnel.config_path is required when tunnel.public_url is set")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive")
	}
	return nil
}
