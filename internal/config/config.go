package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration for medtwin
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Model    ModelConfig    `mapstructure:"model"`
	Insight  InsightConfig  `mapstructure:"insight"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// LLMConfig holds the text generation endpoint settings
type LLMConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	BaseURL         string  `mapstructure:"base_url"`
	Model           string  `mapstructure:"model"`
	Timeout         int     `mapstructure:"timeout"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	BreakerFailures int     `mapstructure:"breaker_failures"`
	BreakerCooldown int     `mapstructure:"breaker_cooldown"`
}

// TimeoutDuration returns the request timeout
func (l LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// StorageConfig holds filesystem locations
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// CatalogConfig holds treatment catalog sources
type CatalogConfig struct {
	Path       string `mapstructure:"path"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Watch      bool   `mapstructure:"watch"`
}

// ModelConfig holds health model settings
type ModelConfig struct {
	DuplicatePolicy string `mapstructure:"duplicate_policy"`
}

// InsightConfig holds the advisory sweep settings
type InsightConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Determine data directory
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("catalog.sqlite_path", filepath.Join(dataDir, "catalog.db"))

	// Config file path
	if configPath == "" {
		configPath = filepath.Join(dataDir, "medtwin.yaml")
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrConfigNotFound, err)
	}

	// If config file exists, load it
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDTWIN_SERVER_PORT, MEDTWIN_LLM_API_KEY, etc.)
	v.SetEnvPrefix("MEDTWIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal to struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration without touching disk or env
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are plain scalars and slices; decoding cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// LLM defaults
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.model", "gemini-pro")
	v.SetDefault("llm.timeout", 60)
	v.SetDefault("llm.rps", 1.0)
	v.SetDefault("llm.burst", 3)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_cooldown", 30)

	// Catalog defaults
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.watch", false)

	// Model defaults
	v.SetDefault("model.duplicate_policy", "stack")

	// Insight defaults
	v.SetDefault("insight.enabled", true)
	v.SetDefault("insight.schedule", "@every 5m")

	// Security defaults
	v.SetDefault("security.allow_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medtwin")
	}

	// Fall back to home directory
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medtwin")
}

// loadEnvOverrides applies aliased and non-prefixed env vars Viper cannot see
func loadEnvOverrides(cfg *Config) {
	if apiKey := ResolveEnvWithAliases("MEDTWIN_LLM_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}

	if model := ResolveEnvWithAliases("MEDTWIN_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}

	// Server settings
	if port := ResolveEnvWithAliases("MEDTWIN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "CONFIG_002",
			fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}

	if cfg.LLM.BaseURL == "" {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "CONFIG_002", "llm.base_url is required")
	}
	if cfg.LLM.RPS < 0 {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "CONFIG_002", "llm.rps must not be negative")
	}
	if cfg.LLM.RPS > 0 && cfg.LLM.Burst < 1 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 60
	}

	switch cfg.Model.DuplicatePolicy {
	case "":
		cfg.Model.DuplicatePolicy = "stack"
	case "stack", "reject":
	default:
		return apperrors.Wrap(apperrors.ErrConfigInvalid, "CONFIG_002",
			fmt.Sprintf("model.duplicate_policy %q must be stack or reject", cfg.Model.DuplicatePolicy))
	}

	// A missing API key is fine: callers may supply one per request
	return nil
}
