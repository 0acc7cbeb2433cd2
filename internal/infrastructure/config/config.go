package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. INVOICING_DATABASE_PASSWORD
const EnvPrefix = "INVOICING"

// Config holds all service configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Notification NotificationConfig
	SMTP         SMTPConfig
	Telemetry    TelemetryConfig
}

// AppConfig holds process-level settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the service runs with production safeguards
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // DriverPostgres or DriverSQLite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// MigrateOnStart applies the schema before the server starts serving
	MigrateOnStart bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level     string
	Format    string
	Output    string
	GormLevel string
}

// HTTPConfig holds the ops HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Guard backends for the notification dispatch claim
const (
	GuardNone   = "none"
	GuardMemory = "memory"
	GuardRedis  = "redis"
)

// Delivery modes for overdue notices
const (
	DeliverySMTP = "smtp"
	DeliveryLog  = "log"
)

// NotificationConfig controls overdue detection and delivery
type NotificationConfig struct {
	DetectionEnabled  bool
	DetectionInterval time.Duration
	DetectionTimeout  time.Duration
	Workers           int
	QueueSize         int
	GuardBackend      string
	ClaimTTL          time.Duration
	DeliveryMode      string
	Locale            string
}

// SMTPConfig holds outgoing mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Addr returns host:port
func (s SMTPConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// Load reads config.toml from the working directory or /app, then applies
// INVOICING_* environment overrides on top of built-in defaults
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return build(v)
}

// LoadFile reads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "invoicing")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "invoicing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "invoicing.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.gorm_level", "warn")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)

	v.SetDefault("notification.detection_enabled", true)
	v.SetDefault("notification.detection_interval", time.Hour)
	v.SetDefault("notification.detection_timeout", 5*time.Minute)
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queue_size", 1024)
	v.SetDefault("notification.guard_backend", GuardMemory)
	v.SetDefault("notification.claim_ttl", 10*time.Minute)
	v.SetDefault("notification.delivery_mode", DeliveryLog)
	v.SetDefault("notification.locale", "en")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "invoicing")
	v.SetDefault("telemetry.metrics_interval", 60*time.Second)
	v.SetDefault("telemetry.db_slow_query_threshold", 200*time.Millisecond)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:     v.GetString("log.level"),
			Format:    v.GetString("log.format"),
			Output:    v.GetString("log.output"),
			GormLevel: v.GetString("log.gorm_level"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Notification: NotificationConfig{
			DetectionEnabled:  v.GetBool("notification.detection_enabled"),
			DetectionInterval: v.GetDuration("notification.detection_interval"),
			DetectionTimeout:  v.GetDuration("notification.detection_timeout"),
			Workers:           v.GetInt("notification.workers"),
			QueueSize:         v.GetInt("notification.queue_size"),
			GuardBackend:      strings.ToLower(v.GetString("notification.guard_backend")),
			ClaimTTL:          v.GetDuration("notification.claim_ttl"),
			DeliveryMode:      strings.ToLower(v.GetString("notification.delivery_mode")),
			Locale:            v.GetString("notification.locale"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{DriverPostgres, DriverSQLite}, c.Database.Driver) {
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("database.max_open_conns must be positive"))
	}
	if c.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("database.max_idle_conns cannot be negative"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns))
	}

	n := c.Notification
	if n.Workers <= 0 {
		errs = append(errs, errors.New("notification.workers must be positive"))
	}
	if n.QueueSize <= 0 {
		errs = append(errs, errors.New("notification.queue_size must be positive"))
	}
	if n.DetectionEnabled && n.DetectionInterval <= 0 {
		errs = append(errs, errors.New("notification.detection_interval must be positive"))
	}
	if !slices.Contains([]string{GuardNone, GuardMemory, GuardRedis}, n.GuardBackend) {
		errs = append(errs, fmt.Errorf("notification.guard_backend must be none, memory or redis, got %q", n.GuardBackend))
	}
	if n.GuardBackend != GuardNone && n.ClaimTTL <= 0 {
		errs = append(errs, errors.New("notification.claim_ttl must be positive"))
	}
	switch n.DeliveryMode {
	case DeliveryLog:
	case DeliverySMTP:
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("smtp.host and smtp.from are required for smtp delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.delivery_mode must be smtp or log, got %q", n.DeliveryMode))
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio))
	}

	if c.App.IsProduction() {
		if c.Database.Driver == DriverPostgres {
			if c.Database.Password == "" {
				errs = append(errs, errors.New("database.password is required in production"))
			}
			if c.Database.SSLMode == "disable" {
				errs = append(errs, errors.New("database.sslmode cannot be 'disable' in production"))
			}
		}
		if c.Telemetry.DBLogFullSQL {
			errs = append(errs, errors.New("telemetry.db_log_full_sql must be false in production"))
		}
	}

	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection URL with escaped credentials
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
