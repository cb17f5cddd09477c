package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Payments PaymentsConfig `mapstructure:"payments"`
	Security SecurityConfig `mapstructure:"security"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Anchor   AnchorConfig   `mapstructure:"anchor"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"` // postgres or memory
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"db_name"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

// PaymentsConfig configures the payment gateway and credit pricing
type PaymentsConfig struct {
	Provider      string        `mapstructure:"provider"` // razorpay or sandbox
	BaseURL       string        `mapstructure:"base_url"`
	KeyID         string        `mapstructure:"key_id"`
	KeySecret     string        `mapstructure:"key_secret"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Currency      string        `mapstructure:"currency"`
	UnitPrice     int64         `mapstructure:"unit_price"` // minor units per tCO2e
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SecurityConfig configures bearer token verification
type SecurityConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// StorageConfig configures evidence file storage
type StorageConfig struct {
	Provider        string `mapstructure:"provider"` // s3 or memory
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes"`
}

// AnchorConfig configures the append-only ledger anchor
type AnchorConfig struct {
	Provider string `mapstructure:"provider"` // hash or dynamodb
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// ScoringConfig configures the MRV scoring collaborator
type ScoringConfig struct {
	Provider     string        `mapstructure:"provider"` // fixed or remote
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FixedTonnage float64       `mapstructure:"fixed_tonnage"`
	FixedQuality float64       `mapstructure:"fixed_quality"`
}

// WorkerConfig configures scheduled jobs
type WorkerConfig struct {
	ScoringRetrySchedule string `mapstructure:"scoring_retry_schedule"`
	ScoringRetryBatch    int    `mapstructure:"scoring_retry_batch"`
	ScoringMaxAttempts   int    `mapstructure:"scoring_max_attempts"`
	AuditSchedule        string `mapstructure:"audit_schedule"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EnvPrefix is prepended to every environment key, e.g. CARBON_DATABASE_HOST
const EnvPrefix = "CARBON"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "carbon_ledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("payments.provider", "sandbox")
	v.SetDefault("payments.base_url", "https://api.razorpay.com/v1")
	v.SetDefault("payments.key_id", "")
	v.SetDefault("payments.key_secret", "")
	v.SetDefault("payments.webhook_secret", "")
	v.SetDefault("payments.currency", "INR")
	v.SetDefault("payments.unit_price", 150000)
	v.SetDefault("payments.timeout", "10s")

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.issuer", "carbon-scribe")
	v.SetDefault("security.token_ttl", "24h")

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.prefix", "mrv-evidence")
	v.SetDefault("storage.max_upload_bytes", 25<<20)

	v.SetDefault("anchor.provider", "hash")
	v.SetDefault("anchor.table", "ledger_anchor")
	v.SetDefault("anchor.region", "us-east-1")
	v.SetDefault("anchor.endpoint", "")

	v.SetDefault("scoring.provider", "fixed")
	v.SetDefault("scoring.base_url", "")
	v.SetDefault("scoring.api_key", "")
	v.SetDefault("scoring.timeout", "30s")
	v.SetDefault("scoring.fixed_tonnage", 0)
	v.SetDefault("scoring.fixed_quality", 0.5)

	v.SetDefault("worker.scoring_retry_schedule", "@every 5m")
	v.SetDefault("worker.scoring_retry_batch", 50)
	v.SetDefault("worker.scoring_max_attempts", 10)
	v.SetDefault("worker.audit_schedule", "0 3 * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// LoadConfig loads configuration from an optional file and the environment.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Payments.Currency = strings.ToUpper(strings.TrimSpace(cfg.Payments.Currency))
	return &cfg, nil
}

// Validate checks the settings the service cannot run without
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Security.JWTSecret) == "" {
		errs = append(errs, errors.New("security.jwt_secret is required"))
	}
	if strings.TrimSpace(c.Payments.WebhookSecret) == "" {
		errs = append(errs, errors.New("payments.webhook_secret is required"))
	}
	if c.Payments.UnitPrice <= 0 {
		errs = append(errs, errors.New("payments.unit_price must be positive"))
	}
	if c.Payments.Currency == "" {
		errs = append(errs, errors.New("payments.currency is required"))
	}

	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Payments.Provider {
	case "sandbox":
	case "razorpay":
		if c.Payments.KeyID == "" || c.Payments.KeySecret == "" {
			errs = append(errs, errors.New("payments.key_id and payments.key_secret are required for razorpay"))
		}
	default:
		errs = append(errs, fmt.Errorf("payments.provider %q is not supported", c.Payments.Provider))
	}
	switch c.Storage.Provider {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider))
	}
	switch c.Anchor.Provider {
	case "hash":
	case "dynamodb":
		if c.Anchor.Table == "" {
			errs = append(errs, errors.New("anchor.table is required for dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("anchor.provider %q is not supported", c.Anchor.Provider))
	}
	switch c.Scoring.Provider {
	case "fixed":
		if c.Scoring.FixedQuality < 0 || c.Scoring.FixedQuality > 1 {
			errs = append(errs, errors.New("scoring.fixed_quality must be within [0,1]"))
		}
	case "remote":
		if c.Scoring.BaseURL == "" {
			errs = append(errs, errors.New("scoring.base_url is required for remote scoring"))
		}
	default:
		errs = append(errs, fmt.Errorf("scoring.provider %q is not supported", c.Scoring.Provider))
	}
	return errors.Join(errs...)
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
