package config

import (
	"fmt"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Profile store backends.
const (
	ProfileBackendSQL   = "sql"
	ProfileBackendMongo = "mongo"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DBDriver string `mapstructure:"db_driver" yaml:"db_driver"`
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
	DBDSN    string `mapstructure:"db_dsn" yaml:"db_dsn"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	ProfileBackend  string `mapstructure:"profile_backend" yaml:"profile_backend"`
	MongoURI        string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database" yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`

	// RedisAddr enables cross-instance fan-out when set.
	RedisAddr          string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix" yaml:"redis_channel_prefix"`

	RateLimitPerMinute int  `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	MaxMessageLength   int  `mapstructure:"max_message_length" yaml:"max_message_length"`
	ClientBuffer       int  `mapstructure:"client_buffer" yaml:"client_buffer"`
	HistoryRequireAuth bool `mapstructure:"history_require_auth" yaml:"history_require_auth"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DBDriver:           DriverSQLite,
		DBPath:             "educhat.db",
		JWTSecret:          "change-me",
		ProfileBackend:     ProfileBackendSQL,
		MongoDatabase:      "educonnect",
		MongoCollection:    "users",
		RedisChannelPrefix: "educhat:room",
		RateLimitPerMinute: 120,
		MaxMessageLength:   4000,
		ClientBuffer:       64,
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return fmt.Errorf("db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("db_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db_driver %q", c.DBDriver)
	}

	switch c.ProfileBackend {
	case ProfileBackendSQL:
	case ProfileBackendMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("mongo_uri is required for the mongo profile backend")
		}
	default:
		return fmt.Errorf("unknown profile_backend %q", c.ProfileBackend)
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.ClientBuffer <= 0 {
		return fmt.Errorf("client_buffer must be positive")
	}
	return nil
}
