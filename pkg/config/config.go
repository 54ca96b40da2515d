// Package config loads the ticketing-core service's configuration via
// viper, environment-variable driven with local-development defaults,
// adapted from the reference pkg/config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is top-level service identity/environment info.
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	LogLevel    string
}

// ServerConfig is the HTTP listener configuration for the api binary.
type ServerConfig struct {
	Host string
	Port int
}

// WriteDatabaseConfig is the transactional write-store connection (§6).
type WriteDatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// DSN renders a libpq connection string.
func (c WriteDatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// ReadDatabaseConfig is the read-store connection; defaults to the write
// store's settings when unset so a single-database deployment needs no
// extra configuration (§6 "two database endpoints (write/read)").
type ReadDatabaseConfig WriteDatabaseConfig

// DSN renders a libpq connection string.
func (c ReadDatabaseConfig) DSN() string {
	return WriteDatabaseConfig(c).DSN()
}

// CacheConfig is the Cache (K) connection.
type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr renders host:port.
func (c CacheConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// BusConfig is the Bus (B) connection.
type BusConfig struct {
	Brokers       []string
	ClientID      string
	ConsumerGroup string
	Topic         string // ticket-events
	DLQTopic      string // ticket-events.dlq
	PublishMode   string // "inline" or "outbox"
}

// JWTConfig is the bearer-token verification configuration for the
// Interface adapters layer.
type JWTConfig struct {
	Secret string
	Issuer string
}

// OTelConfig controls tracing/metrics export.
type OTelConfig struct {
	Enabled        bool
	CollectorAddr  string
	ServiceVersion string
}

// Config is the fully assembled, validated configuration.
type Config struct {
	App    AppConfig
	Server ServerConfig
	WriteDB WriteDatabaseConfig
	ReadDB  ReadDatabaseConfig
	Cache   CacheConfig
	Bus     BusConfig
	JWT     JWTConfig
	OTel    OTelConfig

	ReservationDefaultMinutes int
	ReservationMinMinutes     int
	ReservationMaxMinutes     int
	SweepIntervalSeconds      int
	ProjectorDLQThreshold     int
}

// Load reads configuration from the environment (with .env fallback) and
// validates it.
func Load() (*Config, error) {
	return LoadWithPath(".")
}

// LoadWithPath reads configuration looking for an optional .env file at path.
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(path)
	_ = v.ReadInConfig() // absence of .env is not an error

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := bindConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "ticketing-core")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)

	v.SetDefault("WRITE_DB_HOST", "localhost")
	v.SetDefault("WRITE_DB_PORT", 5432)
	v.SetDefault("WRITE_DB_USER", "postgres")
	v.SetDefault("WRITE_DB_PASSWORD", "postgres")
	v.SetDefault("WRITE_DB_NAME", "ticketing")
	v.SetDefault("WRITE_DB_SSLMODE", "disable")
	v.SetDefault("WRITE_DB_MAX_CONNS", 20)
	v.SetDefault("WRITE_DB_MIN_CONNS", 2)
	v.SetDefault("WRITE_DB_CONN_MAX_LIFETIME_MIN", 30)

	v.SetDefault("READ_DB_HOST", "")
	v.SetDefault("READ_DB_PORT", 0)
	v.SetDefault("READ_DB_USER", "")
	v.SetDefault("READ_DB_PASSWORD", "")
	v.SetDefault("READ_DB_NAME", "")
	v.SetDefault("READ_DB_SSLMODE", "disable")
	v.SetDefault("READ_DB_MAX_CONNS", 10)
	v.SetDefault("READ_DB_MIN_CONNS", 2)

	v.SetDefault("CACHE_HOST", "localhost")
	v.SetDefault("CACHE_PORT", 6379)
	v.SetDefault("CACHE_PASSWORD", "")
	v.SetDefault("CACHE_DB", 0)

	v.SetDefault("BUS_BROKERS", "localhost:9092")
	v.SetDefault("BUS_CLIENT_ID", "ticketing-core")
	v.SetDefault("BUS_CONSUMER_GROUP", "ticketing-projector")
	v.SetDefault("BUS_TOPIC", "ticket-events")
	v.SetDefault("BUS_DLQ_TOPIC", "ticket-events.dlq")
	v.SetDefault("BUS_PUBLISH_MODE", "outbox")

	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("JWT_ISSUER", "ticketing-core")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SERVICE_VERSION", "dev")

	v.SetDefault("RESERVATION_DEFAULT_MINUTES", 15)
	v.SetDefault("RESERVATION_MIN_MINUTES", 5)
	v.SetDefault("RESERVATION_MAX_MINUTES", 60)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 30)
	v.SetDefault("PROJECTOR_DLQ_THRESHOLD", 5)
}

func bindConfig(v *viper.Viper) *Config {
	readHost := v.GetString("READ_DB_HOST")
	var readDB ReadDatabaseConfig
	if readHost == "" {
		// No separate read store configured: serve reads from the write store.
		readDB = ReadDatabaseConfig{
			Host:     v.GetString("WRITE_DB_HOST"),
			Port:     v.GetInt("WRITE_DB_PORT"),
			User:     v.GetString("WRITE_DB_USER"),
			Password: v.GetString("WRITE_DB_PASSWORD"),
			DBName:   v.GetString("WRITE_DB_NAME"),
			SSLMode:  v.GetString("WRITE_DB_SSLMODE"),
			MaxConns: int32(v.GetInt("READ_DB_MAX_CONNS")),
			MinConns: int32(v.GetInt("READ_DB_MIN_CONNS")),
		}
	} else {
		readDB = ReadDatabaseConfig{
			Host:     readHost,
			Port:     v.GetInt("READ_DB_PORT"),
			User:     v.GetString("READ_DB_USER"),
			Password: v.GetString("READ_DB_PASSWORD"),
			DBName:   v.GetString("READ_DB_NAME"),
			SSLMode:  v.GetString("READ_DB_SSLMODE"),
			MaxConns: int32(v.GetInt("READ_DB_MAX_CONNS")),
			MinConns: int32(v.GetInt("READ_DB_MIN_CONNS")),
		}
	}

	return &Config{
		App: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Environment: v.GetString("APP_ENV"),
			LogLevel:    v.GetString("LOG_LEVEL"),
		},
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		WriteDB: WriteDatabaseConfig{
			Host:            v.GetString("WRITE_DB_HOST"),
			Port:            v.GetInt("WRITE_DB_PORT"),
			User:            v.GetString("WRITE_DB_USER"),
			Password:        v.GetString("WRITE_DB_PASSWORD"),
			DBName:          v.GetString("WRITE_DB_NAME"),
			SSLMode:         v.GetString("WRITE_DB_SSLMODE"),
			MaxConns:        int32(v.GetInt("WRITE_DB_MAX_CONNS")),
			MinConns:        int32(v.GetInt("WRITE_DB_MIN_CONNS")),
			ConnMaxLifetime: time.Duration(v.GetInt("WRITE_DB_CONN_MAX_LIFETIME_MIN")) * time.Minute,
		},
		ReadDB: readDB,
		Cache: CacheConfig{
			Host:     v.GetString("CACHE_HOST"),
			Port:     v.GetInt("CACHE_PORT"),
			Password: v.GetString("CACHE_PASSWORD"),
			DB:       v.GetInt("CACHE_DB"),
		},
		Bus: BusConfig{
			Brokers:       strings.Split(v.GetString("BUS_BROKERS"), ","),
			ClientID:      v.GetString("BUS_CLIENT_ID"),
			ConsumerGroup: v.GetString("BUS_CONSUMER_GROUP"),
			Topic:         v.GetString("BUS_TOPIC"),
			DLQTopic:      v.GetString("BUS_DLQ_TOPIC"),
			PublishMode:   v.GetString("BUS_PUBLISH_MODE"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		OTel: OTelConfig{
			Enabled:        v.GetBool("OTEL_ENABLED"),
			CollectorAddr:  v.GetString("OTEL_COLLECTOR_ADDR"),
			ServiceVersion: v.GetString("OTEL_SERVICE_VERSION"),
		},
		ReservationDefaultMinutes: v.GetInt("RESERVATION_DEFAULT_MINUTES"),
		ReservationMinMinutes:     v.GetInt("RESERVATION_MIN_MINUTES"),
		ReservationMaxMinutes:     v.GetInt("RESERVATION_MAX_MINUTES"),
		SweepIntervalSeconds:      v.GetInt("SWEEP_INTERVAL_SECONDS"),
		ProjectorDLQThreshold:     v.GetInt("PROJECTOR_DLQ_THRESHOLD"),
	}
}

// IsProduction reports whether the service is configured for production.
func (c *Config) IsProduction() bool { return c.App.Environment == "production" }

// IsDevelopment reports whether the service is configured for development.
func (c *Config) IsDevelopment() bool { return c.App.Environment == "development" }

// Validate rejects unsafe configuration, most importantly a default JWT
// secret left in place in production.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWT.Secret == "dev-secret-change-me" {
		return fmt.Errorf("config: refusing to start in production with the default JWT secret")
	}
	if len(c.Bus.Brokers) == 0 || c.Bus.Brokers[0] == "" {
		return fmt.Errorf("config: at least one bus broker is required")
	}
	if c.Bus.PublishMode != "inline" && c.Bus.PublishMode != "outbox" {
		return fmt.Errorf("config: BUS_PUBLISH_MODE must be 'inline' or 'outbox', got %q", c.Bus.PublishMode)
	}
	if c.ReservationMinMinutes < 1 || c.ReservationMaxMinutes < c.ReservationMinMinutes {
		return fmt.Errorf("config: invalid reservation duration bounds")
	}
	return nil
}
