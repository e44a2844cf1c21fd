package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	Log      LogConfig
}

// ServerConfig covers the socket-facing listener and the ambient limits
// C10 (ConnectionHub) enforces on every connection.
type ServerConfig struct {
	Host             string
	Port             int
	Mode             string // debug, release, test
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxFrameBytes    int64
	HeartbeatPeriod  time.Duration
	HeartbeatTimeout time.Duration
	DrainTimeout     time.Duration
}

// DatabaseConfig configures the C5 DurableStore's Postgres adapter.
type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	SSLMode           string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	SelectionTimeout  time.Duration
	OperationTimeout  time.Duration
}

// RedisConfig backs C1's L2 tier, C6's shared bus, and C3's distributed
// rate-limit tier. Enabled == false selects the in-process fallbacks
// for C6 and the local-only tier for C3, per spec.md §4.6/§9.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Enabled  bool
}

// SessionConfig signs the session-resumption token issued on auth_success
// (see SPEC_FULL.md's DOMAIN STACK table).
type SessionConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CHAT")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: environment variables and defaults carry the load.
	}

	bindEnvVariables()

	cfg := &Config{
		Server: ServerConfig{
			Host:             viper.GetString("server.host"),
			Port:             viper.GetInt("server.port"),
			Mode:             viper.GetString("server.mode"),
			ReadTimeout:      viper.GetDuration("server.read_timeout"),
			WriteTimeout:     viper.GetDuration("server.write_timeout"),
			MaxFrameBytes:    viper.GetInt64("server.max_frame_bytes"),
			HeartbeatPeriod:  viper.GetDuration("server.heartbeat_period"),
			HeartbeatTimeout: viper.GetDuration("server.heartbeat_timeout"),
			DrainTimeout:     viper.GetDuration("server.drain_timeout"),
		},
		Database: DatabaseConfig{
			Host:             viper.GetString("database.host"),
			Port:             viper.GetInt("database.port"),
			User:             viper.GetString("database.user"),
			Password:         viper.GetString("database.password"),
			DBName:           viper.GetString("database.dbname"),
			SSLMode:          viper.GetString("database.sslmode"),
			MaxOpenConns:     viper.GetInt("database.max_open_conns"),
			MaxIdleConns:     viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime:  viper.GetDuration("database.conn_max_lifetime"),
			SelectionTimeout: viper.GetDuration("database.selection_timeout"),
			OperationTimeout: viper.GetDuration("database.operation_timeout"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetInt("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			PoolSize: viper.GetInt("redis.pool_size"),
			Enabled:  viper.GetBool("redis.enabled"),
		},
		Session: SessionConfig{
			Secret: viper.GetString("session.secret"),
			TTL:    viper.GetDuration("session.ttl"),
			Issuer: viper.GetString("session.issuer"),
		},
		Log: LogConfig{
			Level:      viper.GetString("log.level"),
			Format:     viper.GetString("log.format"),
			OutputPath: viper.GetString("log.output_path"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_frame_bytes", 65536) // 64 KiB, spec.md §6
	viper.SetDefault("server.heartbeat_period", "30s")
	viper.SetDefault("server.heartbeat_timeout", "60s")
	viper.SetDefault("server.drain_timeout", "5s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "chat")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.selection_timeout", "5s")
	viper.SetDefault("database.operation_timeout", "45s")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.enabled", true)

	// Session token defaults
	viper.SetDefault("session.secret", "change-me-in-production")
	viper.SetDefault("session.ttl", "24h")
	viper.SetDefault("session.issuer", "relaychat")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output_path", "stdout")
}

func bindEnvVariables() {
	// Server — PORT taken as an identifier per spec.md §6.
	_ = viper.BindEnv("server.host", "SERVER_HOST")
	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.mode", "NODE_ENV")

	// Database — DB_POOL_SIZE named in spec.md §6 maps to max_open_conns.
	_ = viper.BindEnv("database.host", "DB_HOST")
	_ = viper.BindEnv("database.port", "DB_PORT")
	_ = viper.BindEnv("database.user", "DB_USER")
	_ = viper.BindEnv("database.password", "DB_PASSWORD")
	_ = viper.BindEnv("database.dbname", "DB_NAME")
	_ = viper.BindEnv("database.sslmode", "DB_SSLMODE")
	_ = viper.BindEnv("database.max_open_conns", "DB_POOL_SIZE")
	_ = viper.BindEnv("database.dsn", "MONGODB_URI") // identifier only; DSN parts above take precedence

	// Redis — bound as host/port/password parts; no single REDIS_URL variable is read.
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.port", "REDIS_PORT")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Session
	_ = viper.BindEnv("session.secret", "SESSION_SECRET")

	// Log
	_ = viper.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr returns the Redis address.
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr returns the listen address for the socket server.
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
