// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like SNOWFLAKE_ACCOUNT
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from multiple possible locations.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	// Snowflake
	if cfg.Snowflake.Account == "" {
		if val := os.Getenv("SNOWFLAKE_ACCOUNT"); val != "" {
			cfg.Snowflake.Account = val
		}
	}
	if cfg.Snowflake.User == "" {
		if val := os.Getenv("SNOWFLAKE_USER"); val != "" {
			cfg.Snowflake.User = val
		}
	}
	if cfg.Snowflake.Password == "" {
		if val := os.Getenv("SNOWFLAKE_PASSWORD"); val != "" {
			cfg.Snowflake.Password = val
		}
	}
	if cfg.Snowflake.Warehouse == "" {
		if val := os.Getenv("SNOWFLAKE_WAREHOUSE"); val != "" {
			cfg.Snowflake.Warehouse = val
		}
	}
	if cfg.Snowflake.Database == "" {
		if val := os.Getenv("SNOWFLAKE_DATABASE"); val != "" {
			cfg.Snowflake.Database = val
		}
	}
	if cfg.Snowflake.Schema == "" {
		if val := os.Getenv("SNOWFLAKE_SCHEMA"); val != "" {
			cfg.Snowflake.Schema = val
		}
	}

	// Tableau
	if cfg.Tableau.ServerURL == "" {
		if val := os.Getenv("TABLEAU_SERVER_URL"); val != "" {
			cfg.Tableau.ServerURL = val
		}
	}
	if cfg.Tableau.TokenName == "" {
		if val := os.Getenv("TABLEAU_TOKEN_NAME"); val != "" {
			cfg.Tableau.TokenName = val
		}
	}
	if cfg.Tableau.TokenValue == "" {
		if val := os.Getenv("TABLEAU_TOKEN_VALUE"); val != "" {
			cfg.Tableau.TokenValue = val
		}
	}

	// Database overrides
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Snowflake defaults
	if cfg.Snowflake.QueryTimeout == 0 {
		cfg.Snowflake.QueryTimeout = 60000
	}

	// Tableau defaults
	if cfg.Tableau.APIVersion == "" {
		cfg.Tableau.APIVersion = "3.19"
	}
	if cfg.Tableau.Timeout == 0 {
		cfg.Tableau.Timeout = 30000
	}

	// LLM defaults
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "claude-3-5-sonnet"
	}
	if cfg.LLM.DefaultEndpoint == "" {
		cfg.LLM.DefaultEndpoint = "/analytics"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}

	// Session defaults: 24h idle expiry, last 10 messages as context
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = 86400000
	}
	if cfg.Sessions.MaxContextMessages == 0 {
		cfg.Sessions.MaxContextMessages = 10
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Snowflake.Account == "" {
		return fmt.Errorf("snowflake.account is required")
	}
	if cfg.Snowflake.User == "" {
		return fmt.Errorf("snowflake.user is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
