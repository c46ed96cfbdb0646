// Package config provides configuration management for ads.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for ads.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

// ServerConfig holds WebSocket/HTTP gateway configuration (spec.md §6).
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Token         string `mapstructure:"token"`
	MaxClients    int    `mapstructure:"maxClients"`
	IdleMinutes   int    `mapstructure:"idleMinutes"`
	ReadTimeout   int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout  int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
// Driver is "sqlite" (the workspace-local default, spec.md §6 .ads/state.db)
// or "postgres" (opt-in, for operators centralizing many workspaces).
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ToolsConfig holds the Tool Runtime's policy knobs (spec.md §4.4, §6).
type ToolsConfig struct {
	EnableExec       bool     `mapstructure:"enableExec"`
	EnableFileTools  bool     `mapstructure:"enableFileTools"`
	EnableApplyPatch bool     `mapstructure:"enableApplyPatch"`
	ExecAllowlist    []string `mapstructure:"execAllowlist"`
	FileMaxBytes     int64    `mapstructure:"fileMaxBytes"`
	FileMaxWriteBytes int64   `mapstructure:"fileMaxWriteBytes"`
	PatchMaxBytes    int64    `mapstructure:"patchMaxBytes"`
	ExecTimeout      int      `mapstructure:"execTimeoutSeconds"`
}

// WorkspaceConfig holds the allowed-directory/workspace-root configuration.
type WorkspaceConfig struct {
	AllowedDirs []string `mapstructure:"allowedDirs"`
	Root        string   `mapstructure:"root"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// IdleTimeoutDuration returns the idle timeout as a time.Duration; zero means disabled.
func (s *ServerConfig) IdleTimeoutDuration() time.Duration {
	if s.IdleMinutes <= 0 {
		return 0
	}
	return time.Duration(s.IdleMinutes) * time.Minute
}

// ExecTimeoutDuration returns the exec tool timeout as a time.Duration.
func (t *ToolsConfig) ExecTimeoutDuration() time.Duration {
	if t.ExecTimeout <= 0 {
		return 300 * time.Second
	}
	return time.Duration(t.ExecTimeout) * time.Second
}

// detectDefaultLogFormat returns "json" in container/production environments
// and "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("ADS_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.token", "")
	v.SetDefault("server.maxClients", 1)
	v.SetDefault("server.idleMinutes", 0)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", ".ads/state.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ads")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "ads")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tools.enableExec", true)
	v.SetDefault("tools.enableFileTools", true)
	v.SetDefault("tools.enableApplyPatch", true)
	v.SetDefault("tools.execAllowlist", []string{})
	v.SetDefault("tools.fileMaxBytes", 200*1024)
	v.SetDefault("tools.fileMaxWriteBytes", 1024*1024)
	v.SetDefault("tools.patchMaxBytes", 512*1024)
	v.SetDefault("tools.execTimeoutSeconds", 300)

	v.SetDefault("workspace.allowedDirs", []string{})
	v.SetDefault("workspace.root", "")
}

// Load reads configuration from environment variables, a config file, and
// defaults (spec.md §6 and §9 "Ambient process-environment options").
// Environment variables use the prefix ADS_.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings: spec.md §6 names these flat, non-nested env vars.
	_ = v.BindEnv("server.host", "ADS_WEB_HOST")
	_ = v.BindEnv("server.port", "ADS_WEB_PORT")
	_ = v.BindEnv("server.token", "ADS_WEB_TOKEN")
	_ = v.BindEnv("server.maxClients", "ADS_WEB_MAX_CLIENTS")
	_ = v.BindEnv("server.idleMinutes", "ADS_WEB_IDLE_MINUTES")
	_ = v.BindEnv("tools.enableExec", "ENABLE_AGENT_EXEC_TOOL")
	_ = v.BindEnv("tools.enableFileTools", "ENABLE_AGENT_FILE_TOOLS")
	_ = v.BindEnv("tools.enableApplyPatch", "ENABLE_AGENT_APPLY_PATCH")
	_ = v.BindEnv("tools.execAllowlist", "AGENT_EXEC_TOOL_ALLOWLIST")
	_ = v.BindEnv("tools.fileMaxBytes", "AGENT_FILE_TOOL_MAX_BYTES")
	_ = v.BindEnv("tools.fileMaxWriteBytes", "AGENT_FILE_TOOL_MAX_WRITE_BYTES")
	_ = v.BindEnv("tools.patchMaxBytes", "AGENT_APPLY_PATCH_MAX_BYTES")
	_ = v.BindEnv("workspace.allowedDirs", "ALLOWED_DIRS")
	_ = v.BindEnv("workspace.root", "AD_WORKSPACE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".ads")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if allowlist := os.Getenv("AGENT_EXEC_TOOL_ALLOWLIST"); allowlist != "" && len(cfg.Tools.ExecAllowlist) == 0 {
		cfg.Tools.ExecAllowlist = strings.Split(allowlist, ",")
	}
	if dirs := os.Getenv("ALLOWED_DIRS"); dirs != "" && len(cfg.Workspace.AllowedDirs) == 0 {
		cfg.Workspace.AllowedDirs = strings.Split(dirs, ",")
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for postgres driver")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ExecAllowlistDisabled reports whether the exec allow-list check is disabled:
// spec.md §6 says the sentinel "*" or "all" disables the check, and an absent
// (empty) allow-list also disables it.
func (t *ToolsConfig) ExecAllowlistDisabled() bool {
	if len(t.ExecAllowlist) == 0 {
		return true
	}
	for _, entry := range t.ExecAllowlist {
		e := strings.TrimSpace(entry)
		if e == "*" || strings.EqualFold(e, "all") {
			return true
		}
	}
	return false
}
