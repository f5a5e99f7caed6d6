package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	JWT           JWTConfig           `yaml:"jwt"`
	Log           LogConfig           `yaml:"log"`
	MobileMoney   MobileMoneyConfig   `yaml:"mobile_money"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig contains PostgreSQL connection settings. The memory driver
// ignores everything but Driver.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// JWTConfig contains bearer token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// MobileMoneyConfig contains payment provider settings
type MobileMoneyConfig struct {
	Mock                    bool   `yaml:"mock"`
	BaseURL                 string `yaml:"base_url"`
	APIKey                  string `yaml:"api_key"`
	CallbackURL             string `yaml:"callback_url"`
	CallbackSecret          string `yaml:"callback_secret"`
	Currency                string `yaml:"currency"`
	RequestTimeoutSeconds   int    `yaml:"request_timeout_seconds"`
	MaxTries                uint   `yaml:"max_tries"`
	InitialBackoffMillis    int    `yaml:"initial_backoff_ms"`
	MaxBackoffMillis        int    `yaml:"max_backoff_ms"`
	MockCallbackDelayMillis int    `yaml:"mock_callback_delay_ms"`
}

// NotificationsConfig contains ops e-mail settings. An empty SendGrid key
// logs notifications instead of sending them.
type NotificationsConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	OpsEmail       string `yaml:"ops_email"`
}

// PaymentsConfig contains payment lifecycle settings
type PaymentsConfig struct {
	PendingTTLMinutes int `yaml:"pending_ttl_minutes"`
}

// SchedulerConfig contains cron schedule settings (with seconds)
type SchedulerConfig struct {
	ExpireStaleRentals  string `yaml:"expire_stale_rentals"`
	ExpireStalePayments string `yaml:"expire_stale_payments"`
}

// Load reads configuration from a YAML file. A .env file next to the process,
// if present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	envString("SERVER_HOST", &c.Server.Host)
	envInt("SERVER_PORT", &c.Server.Port)

	envString("DB_DRIVER", &c.Database.Driver)
	envString("DB_HOST", &c.Database.Host)
	envInt("DB_PORT", &c.Database.Port)
	envString("DB_USER", &c.Database.User)
	envString("DB_PASSWORD", &c.Database.Password)
	envString("DB_NAME", &c.Database.Database)
	envString("DB_SSL_MODE", &c.Database.SSLMode)
	envBool("DB_AUTO_MIGRATE", &c.Database.AutoMigrate)

	envString("JWT_SECRET", &c.JWT.Secret)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	envBool("MOMO_MOCK", &c.MobileMoney.Mock)
	envString("MOMO_BASE_URL", &c.MobileMoney.BaseURL)
	envString("MOMO_API_KEY", &c.MobileMoney.APIKey)
	envString("MOMO_CALLBACK_URL", &c.MobileMoney.CallbackURL)
	envString("MOMO_CALLBACK_SECRET", &c.MobileMoney.CallbackSecret)

	envString("SENDGRID_API_KEY", &c.Notifications.SendGridAPIKey)
	envString("OPS_EMAIL", &c.Notifications.OpsEmail)

	envInt("PAYMENT_PENDING_TTL_MINUTES", &c.Payments.PendingTTLMinutes)
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
		if c.Database.MaxOpenConns <= 0 {
			c.Database.MaxOpenConns = 20
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	mm := &c.MobileMoney
	if !mm.Mock && mm.BaseURL == "" {
		return fmt.Errorf("mobile money base_url is required unless mock is enabled")
	}
	if mm.CallbackSecret == "" {
		return fmt.Errorf("mobile money callback secret is required")
	}
	if mm.Currency == "" {
		mm.Currency = "TZS"
	}
	if mm.RequestTimeoutSeconds <= 0 {
		mm.RequestTimeoutSeconds = 15
	}
	if mm.MaxTries == 0 {
		mm.MaxTries = 5
	}
	if mm.InitialBackoffMillis <= 0 {
		mm.InitialBackoffMillis = 500
	}
	if mm.MaxBackoffMillis <= 0 {
		mm.MaxBackoffMillis = 10000
	}
	if mm.MockCallbackDelayMillis <= 0 {
		mm.MockCallbackDelayMillis = 2000
	}

	if c.Notifications.SendGridAPIKey != "" {
		if c.Notifications.FromEmail == "" || c.Notifications.OpsEmail == "" {
			return fmt.Errorf("notifications from_email and ops_email are required with a SendGrid key")
		}
	}
	if c.Notifications.FromName == "" {
		c.Notifications.FromName = "Cold Chain Operations"
	}

	if c.Payments.PendingTTLMinutes <= 0 {
		c.Payments.PendingTTLMinutes = 30
	}

	if c.Scheduler.ExpireStaleRentals == "" {
		c.Scheduler.ExpireStaleRentals = "0 15 0 * * *" // 00:15 UTC daily
	}
	if c.Scheduler.ExpireStalePayments == "" {
		c.Scheduler.ExpireStalePayments = "0 */5 * * * *"
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}

func (c *Config) PendingPaymentTTL() time.Duration {
	return time.Duration(c.Payments.PendingTTLMinutes) * time.Minute
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (m MobileMoneyConfig) RequestTimeout() time.Duration {
	return time.Duration(m.RequestTimeoutSeconds) * time.Second
}

func (m MobileMoneyConfig) InitialBackoff() time.Duration {
	return time.Duration(m.InitialBackoffMillis) * time.Millisecond
}

func (m MobileMoneyConfig) MaxBackoff() time.Duration {
	return time.Duration(m.MaxBackoffMillis) * time.Millisecond
}

func (m MobileMoneyConfig) MockCallbackDelay() time.Duration {
	return time.Duration(m.MockCallbackDelayMillis) * time.Millisecond
}
