// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	Tableau   TableauConfig  `mapstructure:"tableau"`
	LLM       LLMConfig      `mapstructure:"llm"`
	Sessions  SessionConfig  `mapstructure:"sessions"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SnowflakeConfig holds the Cortex warehouse connection settings.
type SnowflakeConfig struct {
	Account      string `mapstructure:"account"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Warehouse    string `mapstructure:"warehouse"`
	Database     string `mapstructure:"database"`
	Schema       string `mapstructure:"schema"`
	Role         string `mapstructure:"role"`
	QueryTimeout int    `mapstructure:"query_timeout"` // milliseconds
}

// GetDSN returns the gosnowflake connection string.
func (s SnowflakeConfig) GetDSN() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", s.User, s.Password, s.Account, s.Database, s.Schema)
	sep := "?"
	if s.Warehouse != "" {
		dsn += sep + "warehouse=" + s.Warehouse
		sep = "&"
	}
	if s.Role != "" {
		dsn += sep + "role=" + s.Role
	}
	return dsn
}

// TableauConfig holds the Tableau Server REST API settings.
type TableauConfig struct {
	ServerURL  string `mapstructure:"server_url"`
	APIVersion string `mapstructure:"api_version"`
	SiteID     string `mapstructure:"site_id"`
	TokenName  string `mapstructure:"token_name"`
	TokenValue string `mapstructure:"token_value"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// LLMConfig holds the model fallback, the routing fallback endpoint, and the
// completion retry budget. Temperature defaults live on endpoint profiles.
type LLMConfig struct {
	DefaultModel    string `mapstructure:"default_model"`
	DefaultEndpoint string `mapstructure:"default_endpoint"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	TTL                int `mapstructure:"ttl"` // milliseconds, idle expiry
	MaxContextMessages int `mapstructure:"max_context_messages"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
